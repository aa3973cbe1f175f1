package matter

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal/audit"
)

// Matter statuses. A matter opens, closes, and may be archived; closed
// matters can be reopened, archived ones cannot.
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// Audit event types emitted by the matter service.
const (
	EventMatterCreate   = "matter.create"
	EventMatterUpdate   = "matter.update"
	EventMatterStatus   = "matter.status_change"
	EventMatterAssign   = "matter.assign"
	EventMatterUnassign = "matter.unassign"
)

// Matter is a legal case handled for a client. OwnerID is the responsible
// lawyer; Department drives department-scope permission grants.
type Matter struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	TenantID    int64          `json:"tenant_id" gorm:"column:tenant_id;not null"`
	ClientID    int64          `json:"client_id" gorm:"column:client_id;not null"`
	OwnerID     int64          `json:"owner_id" gorm:"column:owner_id;not null"`
	Title       string         `json:"title" gorm:"not null"`
	Description string         `json:"description"`
	Status      string         `json:"status" gorm:"default:open"`
	Department  string         `json:"department"`
	OpenedAt    time.Time      `json:"opened_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Matter) TableName() string { return "matters" }

func (Matter) TenantScoped() {}

// Assignment puts a user on a matter's working team. Assignment is what
// assigned-scope grants resolve against.
type Assignment struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	TenantID  int64     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	MatterID  int64     `json:"matter_id" gorm:"column:matter_id;not null"`
	UserID    int64     `json:"user_id" gorm:"column:user_id;not null"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (Assignment) TableName() string { return "matter_assignments" }

func (Assignment) TenantScoped() {}

func validStatusTransition(from, to string) bool {
	switch from {
	case StatusOpen:
		return to == StatusClosed
	case StatusClosed:
		return to == StatusOpen || to == StatusArchived
	default:
		return false
	}
}

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*Matter, error)
	List(ctx context.Context, f Filter) ([]*Matter, error)
	Create(ctx context.Context, m *Matter) error
	Update(ctx context.Context, m *Matter) error

	Assign(ctx context.Context, a *Assignment) error
	Unassign(ctx context.Context, matterID, userID int64) (int64, error)
	ListAssignments(ctx context.Context, matterID int64) ([]*Assignment, error)

	Transact(ctx context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error
}

// Filter narrows matter listings.
type Filter struct {
	ClientID int64
	OwnerID  int64
	Status   string
	Limit    int
	Offset   int
}
