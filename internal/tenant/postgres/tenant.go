package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/astarworks/astar-management/internal/tenant"
	"gorm.io/gorm"
)

// TenantRepository implements tenant.RepositoryAPI using GORM. The tenants
// table is the isolation root and is not itself tenant-scoped.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) tenant.RepositoryAPI {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&tenants).Error
	return tenants, err
}

func (r *TenantRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&tenant.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
}
