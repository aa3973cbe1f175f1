package authz

import (
	"encoding/json"
	"time"

	"github.com/astarworks/astar-management/internal"
)

type CreateRoleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

func (d *CreateRoleDTO) Validate() error {
	if d.Name == "" {
		return internal.NewValidationFieldError("name", "name is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type SetParentDTO struct {
	ParentID *int64 `json:"parent_id"`
}

type GrantPermissionDTO struct {
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	Scope     Scope           `json:"scope"`
	Condition json.RawMessage `json:"condition,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (d *GrantPermissionDTO) Validate() error {
	if d.Resource == "" {
		return internal.NewValidationFieldError("resource", "resource is required", internal.ErrCodeValidationFailed)
	}
	if d.Action == "" {
		return internal.NewValidationFieldError("action", "action is required", internal.ErrCodeValidationFailed)
	}
	if !d.Scope.Valid() {
		return internal.NewValidationFieldError("scope", "scope must be one of own, assigned, department, tenant", internal.ErrCodeValidationFailed)
	}
	return nil
}

type RevokePermissionDTO struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    Scope  `json:"scope"`
}

type AssignRoleDTO struct {
	RoleID    int64      `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (d *AssignRoleDTO) Validate() error {
	if d.RoleID == 0 {
		return internal.NewValidationFieldError("role_id", "role_id is required", internal.ErrCodeValidationFailed)
	}
	return nil
}
