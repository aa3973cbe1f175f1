package tenant

import (
	"context"
	"errors"
	"time"
)

// Tenant is the root isolation boundary: one law firm, one tenant. Every
// tenant-scoped table carries a tenant_id foreign key pointing here.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("tenant: not found")
	ErrInactive = errors.New("tenant: inactive")

	// ErrNoAmbientTenant means a tenant-scoped query was issued without an
	// ambient tenant in context. Queries fail closed rather than running
	// unfiltered.
	ErrNoAmbientTenant = errors.New("tenant: no ambient tenant in context")

	// ErrTenantMismatch means a write carried a tenant_id other than the
	// ambient tenant. Rejected, never silently corrected.
	ErrTenantMismatch = errors.New("tenant: row tenant does not match ambient tenant")
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Create(ctx context.Context, t *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

type ServiceAPI interface {
	Resolve(ctx context.Context, id int64) (*Tenant, error)
}

// Service resolves and validates tenants for the request pipeline.
type Service struct {
	repo RepositoryAPI
}

func NewService(repo RepositoryAPI) *Service {
	return &Service{repo: repo}
}

// Resolve loads the tenant and verifies it is active. Inactive or unknown
// tenants are rejected before any tenant-scoped data access happens.
func (s *Service) Resolve(ctx context.Context, id int64) (*Tenant, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrInactive
	}
	return t, nil
}
