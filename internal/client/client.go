package client

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

const (
	EventClientCreate = "client.create"
	EventClientUpdate = "client.update"
	EventClientDelete = "client.delete"
)

// Client is a party the firm represents, individual or corporate.
type Client struct {
	ID        int64          `json:"id" gorm:"primaryKey"`
	TenantID  int64          `json:"tenant_id" gorm:"column:tenant_id;not null"`
	Name      string         `json:"name" gorm:"not null"`
	Kind      string         `json:"kind" gorm:"default:individual"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address"`
	Notes     string         `json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Client) TableName() string { return "clients" }

func (Client) TenantScoped() {}

const (
	KindIndividual = "individual"
	KindCorporate  = "corporate"
)

type CreateClientDTO struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (d *CreateClientDTO) Validate() error {
	if d.Name == "" {
		return internal.NewValidationFieldError("name", "name is required", internal.ErrCodeValidationFailed)
	}
	switch d.Kind {
	case "", KindIndividual, KindCorporate:
		return nil
	default:
		return internal.NewValidationFieldError("kind", "kind must be individual or corporate", internal.ErrCodeValidationFailed)
	}
}

type UpdateClientDTO struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context, limit, offset int) ([]*Client, error)
	Create(ctx context.Context, c *Client) error
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id int64) (int64, error)

	Transact(ctx context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error
}
