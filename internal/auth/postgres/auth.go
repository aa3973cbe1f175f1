package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal/auth"
)

// Repository loads credential rows. It deliberately uses raw SQL: at login
// time no ambient tenant exists yet, so these reads run outside the tenant
// row filter. Nothing else in the system reads users this way.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetByTenantEmail resolves the login row. Email is unique only per
// tenant, so the tenant slug is part of the key.
func (r *Repository) GetByTenantEmail(tenantSlug, email string) (*auth.AuthUser, error) {
	query := `SELECT u.id, u.tenant_id, u.email, u.name, u.password_hash, u.is_active
	          FROM users u
	          JOIN tenants t ON t.id = u.tenant_id
	          WHERE t.slug = ? AND u.email = ? AND u.deleted_at IS NULL`
	return r.scanUser(r.db.Raw(query, tenantSlug, email).Row())
}

func (r *Repository) GetByID(userID int64) (*auth.AuthUser, error) {
	query := `SELECT id, tenant_id, email, name, password_hash, is_active
	          FROM users WHERE id = ? AND deleted_at IS NULL`
	return r.scanUser(r.db.Raw(query, userID).Row())
}

func (r *Repository) scanUser(row *sql.Row) (*auth.AuthUser, error) {
	var user auth.AuthUser
	if err := row.Scan(&user.ID, &user.TenantID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	return &user, nil
}
