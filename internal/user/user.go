package user

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// User is a member of one tenant's firm. Deletion is soft so audit entries
// and matter history keep a resolvable actor.
type User struct {
	ID           int64          `json:"id" gorm:"primaryKey"`
	TenantID     int64          `json:"tenant_id" gorm:"column:tenant_id;not null"`
	Email        string         `json:"email" gorm:"not null"`
	Name         string         `json:"name"`
	PasswordHash string         `json:"-" gorm:"column:password_hash"`
	Department   string         `json:"department"`
	IsActive     bool           `json:"is_active" gorm:"column:is_active;default:true"`
	Roles        []string       `json:"roles,omitempty" gorm:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string { return "users" }

func (User) TenantScoped() {}

var ErrNotFound = errors.New("user not found")

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id int64) error
	RoleNames(ctx context.Context, userID int64) ([]string, error)
}
