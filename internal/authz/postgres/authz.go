package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/authz"
)

// AuthzRepository implements authz.RepositoryAPI using GORM. All queries
// ride the tenant row filter; only the seeder touches these tables under a
// system session.
type AuthzRepository struct {
	db *gorm.DB
}

func NewAuthzRepository(db *gorm.DB) *AuthzRepository {
	return &AuthzRepository{db: db}
}

func (r *AuthzRepository) GetRole(ctx context.Context, id int64) (*authz.Role, error) {
	var role authz.Role
	err := r.db.WithContext(ctx).First(&role, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *AuthzRepository) GetRoleByName(ctx context.Context, name string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *AuthzRepository) ListRoles(ctx context.Context) ([]*authz.Role, error) {
	var roles []*authz.Role
	err := r.db.WithContext(ctx).Order("name").Find(&roles).Error
	return roles, err
}

func (r *AuthzRepository) CreateRole(ctx context.Context, role *authz.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *AuthzRepository) UpdateRole(ctx context.Context, role *authz.Role) error {
	role.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(role).Error
}

func (r *AuthzRepository) ListGrantsForRoles(ctx context.Context, roleIDs []int64) ([]*authz.Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var grants []*authz.Grant
	err := r.db.WithContext(ctx).Where("role_id IN ?", roleIDs).Find(&grants).Error
	return grants, err
}

func (r *AuthzRepository) CreateGrant(ctx context.Context, g *authz.Grant) error {
	err := r.db.WithContext(ctx).Create(g).Error
	if err != nil && isUniqueViolation(err) {
		return internal.NewConflictError("permission already granted at this scope", internal.ErrCodeDuplicateGrant)
	}
	return err
}

func (r *AuthzRepository) DeleteGrant(ctx context.Context, roleID int64, resource, action string, scope authz.Scope) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("role_id = ? AND resource = ? AND action = ? AND scope = ?", roleID, resource, action, scope).
		Delete(&authz.Grant{})
	return res.RowsAffected, res.Error
}

func (r *AuthzRepository) ListUserRoles(ctx context.Context, userID int64) ([]*authz.UserRole, error) {
	var userRoles []*authz.UserRole
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&userRoles).Error
	return userRoles, err
}

func (r *AuthzRepository) AssignRole(ctx context.Context, ur *authz.UserRole) error {
	err := r.db.WithContext(ctx).Create(ur).Error
	if err != nil && isUniqueViolation(err) {
		return internal.NewConflictError("role already assigned to user", internal.ErrCodeDuplicateUserRole)
	}
	return err
}

func (r *AuthzRepository) RevokeRole(ctx context.Context, userID, roleID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&authz.UserRole{})
	return res.RowsAffected, res.Error
}

func (r *AuthzRepository) AllRoles(ctx context.Context) (map[int64]*authz.Role, error) {
	var roles []*authz.Role
	if err := r.db.WithContext(ctx).Find(&roles).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*authz.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	return byID, nil
}

// Transact runs fn against transaction-bound repositories. The audit
// recorder shares the transaction, so a failed audit insert rolls back the
// whole mutation.
func (r *AuthzRepository) Transact(ctx context.Context, fn func(repo authz.RepositoryAPI, rec audit.RecorderAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewAuthzRepository(tx), auditpg.NewAuditRepository(tx))
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if err == nil {
		return false
	}
	// The sqlite driver used in tests does not translate to
	// gorm.ErrDuplicatedKey on all versions; fall back to the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}
