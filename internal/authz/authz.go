package authz

import (
	"context"
	"time"

	"github.com/astarworks/astar-management/internal/audit"
)

// Scope qualifies how broadly a grant applies, from a user's own rows up to
// the whole tenant. The order is total: a grant at a broader scope covers
// everything a narrower one would.
type Scope string

const (
	ScopeOwn        Scope = "own"
	ScopeAssigned   Scope = "assigned"
	ScopeDepartment Scope = "department"
	ScopeTenant     Scope = "tenant"
)

func (s Scope) Rank() int {
	switch s {
	case ScopeOwn:
		return 1
	case ScopeAssigned:
		return 2
	case ScopeDepartment:
		return 3
	case ScopeTenant:
		return 4
	default:
		return 0
	}
}

func (s Scope) Valid() bool { return s.Rank() != 0 }

// Covers reports whether a grant at scope s also satisfies requests that a
// grant at scope other would have satisfied.
func (s Scope) Covers(other Scope) bool { return s.Rank() >= other.Rank() }

// Role is a tenant-scoped named bundle of grants. ParentID forms a single
// inheritance chain; children inherit every grant of their ancestors.
type Role struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	TenantID    int64     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id,omitempty" gorm:"column:parent_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Role) TableName() string { return "roles" }

func (Role) TenantScoped() {}

// MaxRoleDepth bounds the inheritance chain. Writes that would exceed it
// are rejected, so the evaluator's walk always terminates.
const MaxRoleDepth = 5

// Grant is the role_permissions edge: this role may perform Action on
// Resource at Scope, optionally gated by a condition and an expiry.
type Grant struct {
	ID        int64      `json:"id" gorm:"primaryKey"`
	TenantID  int64      `json:"tenant_id" gorm:"column:tenant_id;not null"`
	RoleID    int64      `json:"role_id" gorm:"column:role_id;not null"`
	Resource  string     `json:"resource" gorm:"not null"`
	Action    string     `json:"action" gorm:"not null"`
	Scope     Scope      `json:"scope" gorm:"not null"`
	Condition []byte     `json:"condition,omitempty" gorm:"type:jsonb"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Grant) TableName() string { return "role_permissions" }

func (Grant) TenantScoped() {}

func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

func (g *Grant) Matches(resource, action string) bool {
	return g.Resource == resource && g.Action == action
}

// UserRole assigns a role to a user, optionally until ExpiresAt.
type UserRole struct {
	ID         int64      `json:"id" gorm:"primaryKey"`
	TenantID   int64      `json:"tenant_id" gorm:"column:tenant_id;not null"`
	UserID     int64      `json:"user_id" gorm:"column:user_id;not null"`
	RoleID     int64      `json:"role_id" gorm:"column:role_id;not null"`
	AssignedBy int64      `json:"assigned_by" gorm:"column:assigned_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (UserRole) TableName() string { return "user_roles" }

func (UserRole) TenantScoped() {}

func (ur *UserRole) Expired(now time.Time) bool {
	return ur.ExpiresAt != nil && !ur.ExpiresAt.After(now)
}

// Deny reasons. These never reach API clients; responses carry a generic
// message while the audit log keeps the real reason.
const (
	ReasonNoMatchingGrant         = "no_matching_grant"
	ReasonResourceContextRequired = "resource_context_required"
	ReasonConditionUnsatisfied    = "condition_unsatisfied"
	ReasonEvaluationError         = "evaluation_error"
)

// Decision is the evaluator's verdict for one (user, resource, action) check.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	MatchedGrant *Grant `json:"-"`
}

func allow(g *Grant) Decision { return Decision{Allowed: true, MatchedGrant: g} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// ScopeResolver answers whether a concrete resource row stands in an
// own/assigned/department relation to a user. Each resource type that
// supports sub-tenant grants registers one.
type ScopeResolver interface {
	OwnerID(ctx context.Context, resourceID int64) (int64, error)
	IsAssigned(ctx context.Context, resourceID, userID int64) (bool, error)
	SharesDepartment(ctx context.Context, resourceID, userID int64) (bool, error)
}

// RepositoryAPI is the persistence surface for the RBAC model. Transact
// runs fn inside one database transaction together with an audit recorder,
// so a failed audit write rolls the mutation back.
type RepositoryAPI interface {
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error

	ListGrantsForRoles(ctx context.Context, roleIDs []int64) ([]*Grant, error)
	CreateGrant(ctx context.Context, g *Grant) error
	DeleteGrant(ctx context.Context, roleID int64, resource, action string, scope Scope) (int64, error)

	ListUserRoles(ctx context.Context, userID int64) ([]*UserRole, error)
	AssignRole(ctx context.Context, ur *UserRole) error
	RevokeRole(ctx context.Context, userID, roleID int64) (int64, error)

	AllRoles(ctx context.Context) (map[int64]*Role, error)

	Transact(ctx context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error
}
