package tenant

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestTenantRowFilter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tenant Row Filter Suite")
}

type CaseNote struct {
	ID       int64 `gorm:"primaryKey"`
	TenantID int64 `gorm:"column:tenant_id;not null"`
	Body     string
}

func (CaseNote) TenantScoped() {}

var _ = Describe("Row filter callbacks", func() {
	var db *gorm.DB

	seedNote := func(tenantID int64, body string) int64 {
		note := &CaseNote{TenantID: tenantID, Body: body}
		err := db.WithContext(AsSystem(context.Background())).Create(note).Error
		Expect(err).NotTo(HaveOccurred())
		return note.ID
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&CaseNote{})
		Expect(err).NotTo(HaveOccurred())

		err = RegisterCallbacks(db)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("reads", func() {
		It("returns only rows belonging to the ambient tenant", func() {
			seedNote(1, "tenant one note")
			seedNote(2, "tenant two note")

			var notes []CaseNote
			ctx := WithID(context.Background(), 1)
			err := db.WithContext(ctx).Find(&notes).Error

			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].Body).To(Equal("tenant one note"))
		})

		It("returns not found for another tenant's row even by primary key", func() {
			foreignID := seedNote(2, "foreign")

			var note CaseNote
			ctx := WithID(context.Background(), 1)
			err := db.WithContext(ctx).First(&note, foreignID).Error

			Expect(err).To(MatchError(gorm.ErrRecordNotFound))
		})

		It("fails closed when no ambient tenant is set", func() {
			seedNote(1, "note")

			var notes []CaseNote
			err := db.WithContext(context.Background()).Find(&notes).Error

			Expect(err).To(MatchError(ErrNoAmbientTenant))
		})

		It("sees all tenants under a system session", func() {
			seedNote(1, "one")
			seedNote(2, "two")

			var notes []CaseNote
			err := db.WithContext(AsSystem(context.Background())).Find(&notes).Error

			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(HaveLen(2))
		})
	})

	Describe("writes", func() {
		It("stamps inserts with the ambient tenant", func() {
			ctx := WithID(context.Background(), 7)
			note := &CaseNote{Body: "unstamped"}
			err := db.WithContext(ctx).Create(note).Error

			Expect(err).NotTo(HaveOccurred())
			Expect(note.TenantID).To(Equal(int64(7)))
		})

		It("rejects an insert carrying a foreign tenant id", func() {
			ctx := WithID(context.Background(), 1)
			note := &CaseNote{TenantID: 2, Body: "smuggled"}
			err := db.WithContext(ctx).Create(note).Error

			Expect(err).To(MatchError(ErrTenantMismatch))
		})

		It("does not let an update touch another tenant's rows", func() {
			foreignID := seedNote(2, "original")

			ctx := WithID(context.Background(), 1)
			res := db.WithContext(ctx).Model(&CaseNote{}).
				Where("id = ?", foreignID).
				Update("body", "tampered")

			Expect(res.Error).NotTo(HaveOccurred())
			Expect(res.RowsAffected).To(BeZero())

			var note CaseNote
			err := db.WithContext(AsSystem(context.Background())).First(&note, foreignID).Error
			Expect(err).NotTo(HaveOccurred())
			Expect(note.Body).To(Equal("original"))
		})

		It("rejects an update that tries to move a row across tenants", func() {
			ownID := seedNote(1, "mine")

			ctx := WithID(context.Background(), 1)
			err := db.WithContext(ctx).Model(&CaseNote{}).
				Where("id = ?", ownID).
				Updates(map[string]interface{}{"tenant_id": 2}).Error

			Expect(err).To(MatchError(ErrTenantMismatch))
		})

		It("does not let a delete touch another tenant's rows", func() {
			foreignID := seedNote(2, "keep me")

			ctx := WithID(context.Background(), 1)
			res := db.WithContext(ctx).Delete(&CaseNote{}, foreignID)

			Expect(res.Error).NotTo(HaveOccurred())
			Expect(res.RowsAffected).To(BeZero())
		})
	})
})
