package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/expense"
	"github.com/astarworks/astar-management/internal/matter"
	"github.com/astarworks/astar-management/internal/user"
)

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	var e expense.Expense
	err := r.db.WithContext(ctx).First(&e, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *ExpenseRepository) List(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	q := r.db.WithContext(ctx).Model(&expense.Expense{})
	if f.MatterID != 0 {
		q = q.Where("matter_id = ?", f.MatterID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	// pending review goes oldest first, everything else newest first
	order := "submitted_at DESC"
	if f.Status == expense.StatusPendingApproval {
		order = "submitted_at ASC"
	}

	var expenses []*expense.Expense
	err := q.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id int64, status, reason string, processedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&expense.Expense{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"reject_reason": reason,
			"processed_at":  processedAt,
			"updated_at":    time.Now(),
		}).Error
}

func (r *ExpenseRepository) Transact(ctx context.Context, fn func(repo expense.RepositoryAPI, rec audit.RecorderAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewExpenseRepository(tx), auditpg.NewAuditRepository(tx))
	})
}

// OwnerID resolves own-scope grants: the submitter owns the expense.
func (r *ExpenseRepository) OwnerID(ctx context.Context, resourceID int64) (int64, error) {
	e, err := r.GetByID(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	return e.UserID, nil
}

// IsAssigned resolves assigned-scope grants through the linked matter:
// whoever is assigned to the matter is assigned to its expenses.
func (r *ExpenseRepository) IsAssigned(ctx context.Context, resourceID, userID int64) (bool, error) {
	e, err := r.GetByID(ctx, resourceID)
	if err != nil {
		return false, err
	}
	var n int64
	err = r.db.WithContext(ctx).
		Model(&matter.Assignment{}).
		Where("matter_id = ? AND user_id = ?", e.MatterID, userID).
		Count(&n).Error
	return n > 0, err
}

// SharesDepartment resolves department-scope grants via the linked
// matter's department.
func (r *ExpenseRepository) SharesDepartment(ctx context.Context, resourceID, userID int64) (bool, error) {
	e, err := r.GetByID(ctx, resourceID)
	if err != nil {
		return false, err
	}

	var m matter.Matter
	if err := r.db.WithContext(ctx).First(&m, e.MatterID).Error; err != nil {
		return false, err
	}
	if m.Department == "" {
		return false, nil
	}

	var n int64
	err = r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ? AND department = ?", userID, m.Department).
		Count(&n).Error
	return n > 0, err
}
