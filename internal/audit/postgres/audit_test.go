package postgres

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal/audit"
	"github.com/astarworks/astar-management/internal/tenant"
)

func TestAuditRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Audit Repository Suite")
}

var _ = Describe("AuditRepository", func() {
	var (
		db   *gorm.DB
		repo *AuditRepository
	)

	tenantCtx := func(id int64) context.Context {
		return tenant.WithID(context.Background(), id)
	}

	record := func(tenantID int64, e audit.Entry) *audit.Entry {
		err := repo.Record(tenantCtx(tenantID), &e)
		Expect(err).NotTo(HaveOccurred())
		return &e
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&audit.Entry{})
		Expect(err).NotTo(HaveOccurred())

		err = tenant.RegisterCallbacks(db)
		Expect(err).NotTo(HaveOccurred())

		repo = NewAuditRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Record", func() {
		It("stamps the ambient tenant and created_at", func() {
			e := record(1, audit.Entry{
				ActorID:   10,
				EventType: audit.EventAuthzCheck,
				Outcome:   audit.OutcomeAllow,
			})

			Expect(e.ID).NotTo(BeZero())
			Expect(e.TenantID).To(Equal(int64(1)))
			Expect(e.CreatedAt).NotTo(BeZero())
		})

		It("rejects an entry that names a foreign tenant", func() {
			err := repo.Record(tenantCtx(1), &audit.Entry{
				TenantID:  2,
				ActorID:   10,
				EventType: audit.EventAuthzCheck,
				Outcome:   audit.OutcomeDeny,
			})

			Expect(err).To(MatchError(tenant.ErrTenantMismatch))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			record(1, audit.Entry{ActorID: 10, EventType: audit.EventAuthzCheck, Outcome: audit.OutcomeAllow})
			record(1, audit.Entry{ActorID: 10, EventType: audit.EventAuthzCheck, Outcome: audit.OutcomeDeny})
			record(1, audit.Entry{ActorID: 11, EventType: audit.EventRoleAssign, Outcome: audit.OutcomeSuccess})
			record(2, audit.Entry{ActorID: 20, EventType: audit.EventAuthzCheck, Outcome: audit.OutcomeAllow})
		})

		It("never returns another tenant's entries", func() {
			entries, err := repo.List(tenantCtx(1), audit.Filter{Limit: 50})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			for _, e := range entries {
				Expect(e.TenantID).To(Equal(int64(1)))
			}
		})

		It("filters by actor, event type and outcome", func() {
			entries, err := repo.List(tenantCtx(1), audit.Filter{
				ActorID:   10,
				EventType: audit.EventAuthzCheck,
				Outcome:   audit.OutcomeDeny,
				Limit:     50,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Outcome).To(Equal(audit.OutcomeDeny))
		})

		It("counts with the same filter semantics", func() {
			n, err := repo.Count(tenantCtx(1), audit.Filter{ActorID: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
		})
	})

	Describe("PurgeBefore", func() {
		It("deletes only entries older than the cutoff, in batches", func() {
			old := time.Now().AddDate(0, 0, -90)
			for i := 0; i < 3; i++ {
				record(1, audit.Entry{ActorID: 10, EventType: audit.EventAuthzCheck, Outcome: audit.OutcomeAllow, CreatedAt: old})
			}
			record(1, audit.Entry{ActorID: 10, EventType: audit.EventAuthzCheck, Outcome: audit.OutcomeAllow})

			sysCtx := tenant.AsSystem(context.Background())
			cutoff := time.Now().AddDate(0, 0, -30)

			purged, err := repo.PurgeBefore(sysCtx, cutoff, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(Equal(int64(2)))

			purged, err = repo.PurgeBefore(sysCtx, cutoff, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(Equal(int64(1)))

			n, err := repo.Count(tenantCtx(1), audit.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})
	})
})
