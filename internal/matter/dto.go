package matter

import (
	"github.com/astarworks/astar-management/internal"
)

type CreateMatterDTO struct {
	ClientID    int64  `json:"client_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Department  string `json:"department"`
	OwnerID     int64  `json:"owner_id,omitempty"`
}

func (d *CreateMatterDTO) Validate() error {
	if d.ClientID == 0 {
		return internal.NewValidationFieldError("client_id", "client_id is required", internal.ErrCodeValidationFailed)
	}
	if d.Title == "" {
		return internal.NewValidationFieldError("title", "title is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type UpdateMatterDTO struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Department  *string `json:"department,omitempty"`
	OwnerID     *int64  `json:"owner_id,omitempty"`
}

type ChangeStatusDTO struct {
	Status string `json:"status"`
}

func (d *ChangeStatusDTO) Validate() error {
	switch d.Status {
	case StatusOpen, StatusClosed, StatusArchived:
		return nil
	default:
		return internal.NewValidationFieldError("status", "status must be one of open, closed, archived", internal.ErrCodeValidationFailed)
	}
}

type AssignDTO struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (d *AssignDTO) Validate() error {
	if d.UserID == 0 {
		return internal.NewValidationFieldError("user_id", "user_id is required", internal.ErrCodeValidationFailed)
	}
	return nil
}
