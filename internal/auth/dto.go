package auth

import (
	"strings"

	internal "github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/core/common/validation"
)

// LoginDTO carries credentials plus the tenant slug the user signs in to.
// Email alone does not identify a user across tenants.
type LoginDTO struct {
	TenantSlug string `json:"tenant"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("tenant", d.TenantSlug).Required()
	v.Field("email", d.Email).Required().Custom(func(val interface{}) *internal.AppError {
		s, _ := val.(string)
		if s != "" && !strings.Contains(s, "@") {
			return internal.NewValidationError("must be a valid email address", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	v.Field("password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func (d RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
