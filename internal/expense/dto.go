package expense

import (
	"time"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/core/common/validation"
)

type CreateExpenseDTO struct {
	MatterID        int64     `json:"matter_id"`
	AmountJPY       int64     `json:"amount_jpy"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	ExpenseDate     time.Time `json:"expense_date"`
	ReceiptURL      *string   `json:"receipt_url,omitempty"`
	ReceiptFileName *string   `json:"receipt_filename,omitempty"`
}

func (d *CreateExpenseDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("matter_id", d.MatterID).Required()
	v.Field("amount_jpy", d.AmountJPY).
		Required().
		MinInt(1, internal.ErrCodeInvalidAmount).
		MaxInt(50_000_000, internal.ErrCodeAmountTooHigh)
	v.Field("description", d.Description).Required().MaxLength(500)
	v.Field("expense_date", d.ExpenseDate).Required().NotFuture()

	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RejectExpenseDTO struct {
	Reason string `json:"reason"`
}

func (d *RejectExpenseDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("reason", d.Reason).Required().MaxLength(500)

	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
