package expense

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

func TestExpense(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Expense Suite")
}

type fakeRepo struct {
	expenses map[int64]*Expense
	nextID   int64
	failTx   error
	rec      *fakeRecorder
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{expenses: make(map[int64]*Expense), nextID: 1}
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*Expense, error) {
	e, ok := f.expenses[id]
	if !ok {
		return nil, internal.ErrExpenseNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, filter Filter) ([]*Expense, error) {
	var out []*Expense
	for _, e := range f.expenses {
		if filter.MatterID != 0 && e.MatterID != filter.MatterID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) Create(_ context.Context, e *Expense) error {
	e.ID = f.nextID
	f.nextID++
	cp := *e
	f.expenses[e.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id int64, status, reason string, processedAt time.Time) error {
	e, ok := f.expenses[id]
	if !ok {
		return internal.ErrExpenseNotFound
	}
	e.Status = status
	e.RejectReason = reason
	e.ProcessedAt = &processedAt
	return nil
}

func (f *fakeRepo) Transact(ctx context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error {
	if f.failTx != nil {
		return f.failTx
	}
	return fn(f, f.recorder())
}

func (f *fakeRepo) recorder() *fakeRecorder {
	if f.rec == nil {
		f.rec = &fakeRecorder{}
	}
	return f.rec
}

type fakeMatterLookup struct {
	exists bool
	err    error
}

func (f *fakeMatterLookup) MatterExists(context.Context, int64) (bool, error) {
	return f.exists, f.err
}

type fakeRecorder struct {
	entries []*audit.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e *audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

var _ = Describe("Expense Service", func() {
	var (
		repo    *fakeRepo
		matters *fakeMatterLookup
		service *Service
		ctx     context.Context
		actor   *internal.Principal
	)

	yesterday := time.Now().Add(-24 * time.Hour)

	submit := func(amount int64) (*Expense, error) {
		return service.Submit(ctx, actor, CreateExpenseDTO{
			MatterID:    7,
			AmountJPY:   amount,
			Description: "court filing fee",
			Category:    "filing",
			ExpenseDate: yesterday,
		})
	}

	BeforeEach(func() {
		repo = newFakeRepo()
		matters = &fakeMatterLookup{exists: true}
		service = NewService(repo, matters, nil, slog.Default())
		ctx = context.Background()
		actor = &internal.Principal{UserID: 10, TenantID: 1}
	})

	Describe("submission", func() {
		It("records a pending expense above the auto-approval threshold", func() {
			e, err := submit(AutoApprovalThresholdJPY)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Status).To(Equal(StatusPendingApproval))
			Expect(e.ProcessedAt).To(BeNil())
			Expect(e.UserID).To(Equal(actor.UserID))
		})

		It("auto-approves amounts under the threshold", func() {
			e, err := submit(AutoApprovalThresholdJPY - 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Status).To(Equal(StatusApproved))
			Expect(e.ProcessedAt).NotTo(BeNil())
		})

		It("rejects submissions against a matter the tenant cannot see", func() {
			matters.exists = false
			_, err := submit(5000)
			Expect(err).To(MatchError(internal.ErrMatterNotFound))
			Expect(repo.expenses).To(BeEmpty())
		})

		It("rejects a future expense date", func() {
			_, err := service.Submit(ctx, actor, CreateExpenseDTO{
				MatterID:    7,
				AmountJPY:   5000,
				Description: "travel",
				ExpenseDate: time.Now().Add(48 * time.Hour),
			})
			Expect(err).To(HaveOccurred())
		})

		It("surfaces matter lookup failures", func() {
			matters.err = errors.New("db down")
			_, err := submit(5000)
			Expect(err).To(MatchError(matters.err))
		})

		It("audits the submission", func() {
			_, err := submit(50000)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.recorder().entries).To(HaveLen(1))
			Expect(repo.recorder().entries[0].EventType).To(Equal(EventExpenseSubmit))
		})
	})

	Describe("review", func() {
		It("approves a pending expense", func() {
			e, _ := submit(50000)

			approved, err := service.Approve(ctx, actor, e.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.Status).To(Equal(StatusApproved))
			Expect(approved.ProcessedAt).NotTo(BeNil())
		})

		It("refuses to approve an already-processed expense", func() {
			e, _ := submit(50000)
			_, err := service.Approve(ctx, actor, e.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Approve(ctx, actor, e.ID)
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})

		It("requires a reason to reject", func() {
			e, _ := submit(50000)
			_, err := service.Reject(ctx, actor, e.ID, RejectExpenseDTO{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects with the recorded reason", func() {
			e, _ := submit(50000)

			rejected, err := service.Reject(ctx, actor, e.ID, RejectExpenseDTO{Reason: "no receipt"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rejected.Status).To(Equal(StatusRejected))
			Expect(rejected.RejectReason).To(Equal("no receipt"))
		})

		It("refuses to reject an auto-approved expense", func() {
			e, _ := submit(100)
			_, err := service.Reject(ctx, actor, e.ID, RejectExpenseDTO{Reason: "late"})
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})

		It("audits approve and reject decisions", func() {
			e1, _ := submit(50000)
			e2, _ := submit(60000)

			_, err := service.Approve(ctx, actor, e1.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Reject(ctx, actor, e2.ID, RejectExpenseDTO{Reason: "duplicate"})
			Expect(err).NotTo(HaveOccurred())

			types := []string{}
			for _, entry := range repo.recorder().entries {
				types = append(types, entry.EventType)
			}
			Expect(types).To(ContainElements(EventExpenseApprove, EventExpenseReject))
		})
	})
})
