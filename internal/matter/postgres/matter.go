package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/matter"
	"github.com/astarworks/astar-management/internal/user"
)

// MatterRepository implements matter.RepositoryAPI and doubles as the
// authz.ScopeResolver for the "matter" resource type: ownership comes from
// owner_id, assignment from matter_assignments, and department scope from
// comparing the matter's department with the user's.
type MatterRepository struct {
	db *gorm.DB
}

func NewMatterRepository(db *gorm.DB) *MatterRepository {
	return &MatterRepository{db: db}
}

func (r *MatterRepository) GetByID(ctx context.Context, id int64) (*matter.Matter, error) {
	var m matter.Matter
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrMatterNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatterRepository) List(ctx context.Context, f matter.Filter) ([]*matter.Matter, error) {
	q := r.db.WithContext(ctx)
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var matters []*matter.Matter
	err := q.Order("opened_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&matters).Error
	return matters, err
}

func (r *MatterRepository) Create(ctx context.Context, m *matter.Matter) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatterRepository) Update(ctx context.Context, m *matter.Matter) error {
	m.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *MatterRepository) Assign(ctx context.Context, a *matter.Assignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *MatterRepository) Unassign(ctx context.Context, matterID, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("matter_id = ? AND user_id = ?", matterID, userID).
		Delete(&matter.Assignment{})
	return res.RowsAffected, res.Error
}

func (r *MatterRepository) ListAssignments(ctx context.Context, matterID int64) ([]*matter.Assignment, error) {
	var assignments []*matter.Assignment
	err := r.db.WithContext(ctx).
		Where("matter_id = ?", matterID).
		Order("created_at").
		Find(&assignments).Error
	return assignments, err
}

// MatterExists answers expense submissions; the row filter keeps the
// check inside the ambient tenant.
func (r *MatterRepository) MatterExists(ctx context.Context, matterID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&matter.Matter{}).
		Where("id = ?", matterID).
		Count(&n).Error
	return n > 0, err
}

func (r *MatterRepository) Transact(ctx context.Context, fn func(repo matter.RepositoryAPI, rec audit.RecorderAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewMatterRepository(tx), auditpg.NewAuditRepository(tx))
	})
}

// OwnerID resolves own-scope grants.
func (r *MatterRepository) OwnerID(ctx context.Context, resourceID int64) (int64, error) {
	m, err := r.GetByID(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	return m.OwnerID, nil
}

// IsAssigned resolves assigned-scope grants.
func (r *MatterRepository) IsAssigned(ctx context.Context, resourceID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&matter.Assignment{}).
		Where("matter_id = ? AND user_id = ?", resourceID, userID).
		Count(&n).Error
	return n > 0, err
}

// SharesDepartment resolves department-scope grants. A matter without a
// department never matches.
func (r *MatterRepository) SharesDepartment(ctx context.Context, resourceID, userID int64) (bool, error) {
	m, err := r.GetByID(ctx, resourceID)
	if err != nil {
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
