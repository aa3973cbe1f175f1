package postgres

import (
	"context"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	"github.com/astarworks/astar-management/internal/client"
	"github.com/astarworks/astar-management/internal/tenant"
)

func TestClientRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Client Repository Suite")
}

var _ = Describe("ClientRepository", func() {
	var (
		db      *gorm.DB
		repo    *ClientRepository
		service *client.Service
		ctx     context.Context
		actor   *internal.Principal
	)

	createClient := func(name string) *client.Client {
		c, err := service.Create(ctx, actor, client.CreateClientDTO{Name: name})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&client.Client{}, &audit.Entry{})
		Expect(err).NotTo(HaveOccurred())

		err = tenant.RegisterCallbacks(db)
		Expect(err).NotTo(HaveOccurred())

		repo = NewClientRepository(db)
		service = client.NewService(repo, slog.Default())
		ctx = tenant.WithID(context.Background(), 1)
		actor = &internal.Principal{UserID: 10, TenantID: 1}
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("tenant isolation", func() {
		It("hides clients from other tenants", func() {
			c := createClient("Yamada & Co")

			otherCtx := tenant.WithID(context.Background(), 2)
			_, err := repo.GetByID(otherCtx, c.ID)
			Expect(err).To(MatchError(internal.ErrClientNotFound))

			clients, err := repo.List(otherCtx, 50, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(clients).To(BeEmpty())
		})

		It("stamps the ambient tenant on create", func() {
			c := createClient("Tanaka")
			Expect(c.TenantID).To(Equal(int64(1)))
		})
	})

	Describe("lifecycle", func() {
		It("defaults kind to individual", func() {
			c := createClient("Suzuki")
			Expect(c.Kind).To(Equal(client.KindIndividual))
		})

		It("applies partial updates", func() {
			c := createClient("Sato")

			email := "sato@example.jp"
			updated, err := service.Update(ctx, actor, c.ID, client.UpdateClientDTO{Email: &email})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Email).To(Equal(email))
			Expect(updated.Name).To(Equal("Sato"))
		})

		It("soft deletes and stops listing the client", func() {
			c := createClient("Watanabe")

			Expect(service.Delete(ctx, actor, c.ID)).To(Succeed())

			_, err := repo.GetByID(ctx, c.ID)
			Expect(err).To(MatchError(internal.ErrClientNotFound))

			// the row survives the soft delete
			var count int64
			err = db.WithContext(ctx).Unscoped().Model(&client.Client{}).Where("id = ?", c.ID).Count(&count).Error
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})

		It("reports not found when deleting a missing client", func() {
			err := service.Delete(ctx, actor, 9999)
			Expect(err).To(MatchError(internal.ErrClientNotFound))
		})

		It("orders lists by name", func() {
			createClient("Zen Partners")
			createClient("Abe Holdings")

			clients, err := repo.List(ctx, 50, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(clients).To(HaveLen(2))
			Expect(clients[0].Name).To(Equal("Abe Holdings"))
		})
	})

	Describe("audit trail", func() {
		It("records every client mutation", func() {
			c := createClient("Ito")

			notes := "prefers email contact"
			_, err := service.Update(ctx, actor, c.ID, client.UpdateClientDTO{Notes: &notes})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, actor, c.ID)).To(Succeed())

			var entries []audit.Entry
			err = db.WithContext(ctx).Model(&audit.Entry{}).Order("id ASC").Find(&entries).Error
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].EventType).To(Equal(client.EventClientCreate))
			Expect(entries[1].EventType).To(Equal(client.EventClientUpdate))
			Expect(entries[2].EventType).To(Equal(client.EventClientDelete))
		})
	})
})
