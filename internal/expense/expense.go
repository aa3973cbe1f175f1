package expense

import (
	"context"
	"time"

	"github.com/astarworks/astar-management/internal/audit"
)

const (
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
)

// AutoApprovalThresholdJPY: matter expenses below this amount are approved
// on submission without a reviewer.
const AutoApprovalThresholdJPY = 10000

const (
	EventExpenseSubmit  = "expense.submit"
	EventExpenseApprove = "expense.approve"
	EventExpenseReject  = "expense.reject"
)

// Expense is a billable cost recorded against a matter: filing fees,
// travel, expert witnesses and the like.
type Expense struct {
	ID              int64      `json:"id" gorm:"primaryKey"`
	TenantID        int64      `json:"tenant_id" gorm:"column:tenant_id;not null"`
	MatterID        int64      `json:"matter_id" gorm:"column:matter_id;not null"`
	UserID          int64      `json:"user_id" gorm:"column:user_id;not null"`
	AmountJPY       int64      `json:"amount_jpy" gorm:"column:amount_jpy;not null"`
	Description     string     `json:"description" gorm:"not null"`
	Category        string     `json:"category"`
	ReceiptURL      *string    `json:"receipt_url,omitempty" gorm:"column:receipt_url"`
	ReceiptFileName *string    `json:"receipt_filename,omitempty" gorm:"column:receipt_filename"`
	Status          string     `json:"status" gorm:"column:status;default:pending_approval"`
	RejectReason    string     `json:"reject_reason,omitempty" gorm:"column:reject_reason"`
	ExpenseDate     time.Time  `json:"expense_date" gorm:"column:expense_date;type:date"`
	SubmittedAt     time.Time  `json:"submitted_at" gorm:"column:submitted_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Expense) TableName() string { return "expenses" }

func (Expense) TenantScoped() {}

func (e *Expense) CanBeApproved() bool {
	return e.Status == StatusPendingApproval
}

func (e *Expense) CanBeRejected() bool {
	return e.Status == StatusPendingApproval
}

func (e *Expense) ShouldBeAutoApproved() bool {
	return e.AmountJPY < AutoApprovalThresholdJPY
}

type Filter struct {
	MatterID int64
	UserID   int64
	Status   string
	Limit    int
	Offset   int
}

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter Filter) ([]*Expense, error)
	Create(ctx context.Context, e *Expense) error
	UpdateStatus(ctx context.Context, id int64, status, reason string, processedAt time.Time) error

	Transact(ctx context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error
}

// MatterLookup is the slice of the matter repository the expense service
// needs: submissions must point at a matter the ambient tenant can see.
type MatterLookup interface {
	MatterExists(ctx context.Context, matterID int64) (bool, error)
}
