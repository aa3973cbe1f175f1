package postgres

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	"github.com/astarworks/astar-management/internal/matter"
	"github.com/astarworks/astar-management/internal/tenant"
	"github.com/astarworks/astar-management/internal/user"
)

func TestMatterRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Matter Repository Suite")
}

var _ = Describe("MatterRepository", func() {
	var (
		db      *gorm.DB
		repo    *MatterRepository
		service *matter.Service
		ctx     context.Context
		actor   *internal.Principal
	)

	createMatter := func(ownerID int64, department string) *matter.Matter {
		m, err := service.Create(ctx, actor, matter.CreateMatterDTO{
			ClientID:   1,
			Title:      "contract dispute",
			Department: department,
			OwnerID:    ownerID,
		})
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&matter.Matter{}, &matter.Assignment{}, &user.User{}, &audit.Entry{})
		Expect(err).NotTo(HaveOccurred())

		err = tenant.RegisterCallbacks(db)
		Expect(err).NotTo(HaveOccurred())

		repo = NewMatterRepository(db)
		service = matter.NewService(repo, slog.Default())
		ctx = tenant.WithID(context.Background(), 1)
		actor = &internal.Principal{UserID: 10, TenantID: 1}
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("tenant isolation", func() {
		It("hides matters from other tenants", func() {
			m := createMatter(10, "")

			otherCtx := tenant.WithID(context.Background(), 2)
			_, err := repo.GetByID(otherCtx, m.ID)
			Expect(err).To(MatchError(internal.ErrMatterNotFound))

			matters, err := repo.List(otherCtx, matter.Filter{Limit: 50})
			Expect(err).NotTo(HaveOccurred())
			Expect(matters).To(BeEmpty())
		})
	})

	Describe("status transitions", func() {
		It("closes an open matter and stamps closed_at", func() {
			m := createMatter(10, "")

			closed, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusClosed})
			Expect(err).NotTo(HaveOccurred())
			Expect(closed.Status).To(Equal(matter.StatusClosed))
			Expect(closed.ClosedAt).NotTo(BeNil())
		})

		It("reopens a closed matter", func() {
			m := createMatter(10, "")
			_, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusClosed})
			Expect(err).NotTo(HaveOccurred())

			reopened, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusOpen})
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.Status).To(Equal(matter.StatusOpen))
			Expect(reopened.ClosedAt).To(BeNil())
		})

		It("rejects archiving an open matter", func() {
			m := createMatter(10, "")

			_, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusArchived})
			Expect(errors.Is(err, internal.ErrInvalidStatus)).To(BeTrue())
		})

		It("rejects any transition out of archived", func() {
			m := createMatter(10, "")
			_, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusClosed})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusArchived})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusOpen})
			Expect(errors.Is(err, internal.ErrInvalidStatus)).To(BeTrue())
		})
	})

	Describe("audit trail", func() {
		It("records create, status change and assignment events", func() {
			m := createMatter(10, "")
			_, err := service.ChangeStatus(ctx, actor, m.ID, matter.ChangeStatusDTO{Status: matter.StatusClosed})
			Expect(err).NotTo(HaveOccurred())
			Expect(service.Assign(ctx, actor, m.ID, matter.AssignDTO{UserID: 20, Role: "clerk"})).To(Succeed())

			var entries []audit.Entry
			Expect(db.WithContext(ctx).Order("id").Find(&entries).Error).To(Succeed())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].EventType).To(Equal(matter.EventMatterCreate))
			Expect(entries[1].EventType).To(Equal(matter.EventMatterStatus))
			Expect(entries[2].EventType).To(Equal(matter.EventMatterAssign))
		})
	})

	Describe("scope resolution", func() {
		It("reports the owner", func() {
			m := createMatter(10, "")

			ownerID, err := repo.OwnerID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ownerID).To(Equal(int64(10)))
		})

		It("reports assignment membership", func() {
			m := createMatter(10, "")
			Expect(service.Assign(ctx, actor, m.ID, matter.AssignDTO{UserID: 20})).To(Succeed())

			assigned, err := repo.IsAssigned(ctx, m.ID, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(assigned).To(BeTrue())

			assigned, err = repo.IsAssigned(ctx, m.ID, 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(assigned).To(BeFalse())
		})

		It("reports department sharing", func() {
			seedUser := func(id int64, department string) {
				u := &user.User{ID: id, TenantID: 1, Email: "u@firm.example", Department: department, IsActive: true}
				Expect(db.WithContext(tenant.AsSystem(context.Background())).Create(u).Error).To(Succeed())
			}
			seedUser(20, "litigation")
			seedUser(30, "corporate")

			m := createMatter(10, "litigation")

			shares, err := repo.SharesDepartment(ctx, m.ID, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(BeTrue())

			shares, err = repo.SharesDepartment(ctx, m.ID, 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(BeFalse())
		})

		It("never matches department scope on a matter without one", func() {
			m := createMatter(10, "")

			shares, err := repo.SharesDepartment(ctx, m.ID, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(shares).To(BeFalse())
		})
	})

	Describe("assignments", func() {
		It("removes an assignment exactly once", func() {
			m := createMatter(10, "")
			Expect(service.Assign(ctx, actor, m.ID, matter.AssignDTO{UserID: 20})).To(Succeed())

			Expect(service.Unassign(ctx, actor, m.ID, 20)).To(Succeed())
			err := service.Unassign(ctx, actor, m.ID, 20)
			Expect(errors.Is(err, internal.ErrMatterNotFound)).To(BeTrue())
		})
	})
})
