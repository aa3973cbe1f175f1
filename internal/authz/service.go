package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

// Service is the role-administration surface: roles, their parents, grants
// and user assignments. Every mutation runs in one transaction with its
// audit entry, then invalidates the grants cache before returning, so a
// revocation committed here is live on the very next permission check.
type Service struct {
	repo      RepositoryAPI
	evaluator *Evaluator
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, evaluator *Evaluator, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		logger:    logger,
	}
}

func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.repo.GetRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *Service) CreateRole(ctx context.Context, actor *internal.Principal, name, description string, parentID *int64) (*Role, error) {
	if name == "" {
		return nil, internal.NewValidationError("name is required", internal.ErrCodeValidationFailed)
	}

	role := &Role{
		Name:        name,
		Description: description,
		ParentID:    parentID,
	}

	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if parentID != nil {
			all, err := repo.AllRoles(ctx)
			if err != nil {
				return err
			}
			if _, ok := all[*parentID]; !ok {
				return internal.ErrRoleNotFound
			}
			if err := checkParentDepth(*parentID, all); err != nil {
				return err
			}
		}
		if err := repo.CreateRole(ctx, role); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:    actor.UserID,
			EventType:  audit.EventRoleCreate,
			ResourceID: role.ID,
			Outcome:    audit.OutcomeSuccess,
			Detail:     fmt.Sprintf(`{"name":%q}`, name),
		})
	})
	if err != nil {
		s.logger.Error("create role failed", "error", err, "name", name)
		return nil, err
	}

	return role, nil
}

// SetRoleParent rewires the inheritance chain. The cycle check runs inside
// the same transaction as the write, so concurrent rewires cannot sneak a
// loop past it.
func (s *Service) SetRoleParent(ctx context.Context, actor *internal.Principal, roleID int64, parentID *int64) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		role, err := repo.GetRole(ctx, roleID)
		if err != nil {
			return err
		}

		if parentID != nil {
			all, err := repo.AllRoles(ctx)
			if err != nil {
				return err
			}
			cyclic, err := wouldCreateCycle(roleID, *parentID, all)
			if err != nil {
				return err
			}
			if cyclic {
				return internal.ErrRoleHierarchyCycle
			}
		}

		role.ParentID = parentID
		if err := repo.UpdateRole(ctx, role); err != nil {
			return err
		}

		detail := `{"parent_id":null}`
		if parentID != nil {
			detail = fmt.Sprintf(`{"parent_id":%d}`, *parentID)
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:    actor.UserID,
			EventType:  audit.EventRoleParentChange,
			ResourceID: roleID,
			Outcome:    audit.OutcomeSuccess,
			Detail:     detail,
		})
	})
	if err != nil {
		if !errors.Is(err, internal.ErrRoleHierarchyCycle) {
			s.logger.Error("set role parent failed", "error", err, "role_id", roleID)
		}
		return err
	}

	s.evaluator.InvalidateTenant(actor.TenantID)
	return nil
}

func (s *Service) GrantPermission(ctx context.Context, actor *internal.Principal, roleID int64, resource, action string, scope Scope, condition []byte, expiresAt *time.Time) (*Grant, error) {
	if resource == "" || action == "" {
		return nil, internal.NewValidationError("resource and action are required", internal.ErrCodeValidationFailed)
	}
	if !scope.Valid() {
		return nil, internal.NewValidationError(fmt.Sprintf("invalid scope %q", scope), internal.ErrCodeValidationFailed)
	}
	// Reject malformed conditions at write time rather than on every check.
	if _, err := parseCondition(condition); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	grant := &Grant{
		RoleID:    roleID,
		Resource:  resource,
		Action:    action,
		Scope:     scope,
		Condition: condition,
		ExpiresAt: expiresAt,
	}

	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			return err
		}
		if err := repo.CreateGrant(ctx, grant); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    audit.EventPermissionGrant,
			ResourceType: resource,
			ResourceID:   roleID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"action":%q,"scope":%q}`, action, scope),
		})
	})
	if err != nil {
		s.logger.Error("grant permission failed", "error", err, "role_id", roleID, "resource", resource, "action", action)
		return nil, err
	}

	s.evaluator.InvalidateTenant(actor.TenantID)
	return grant, nil
}

func (s *Service) RevokePermission(ctx context.Context, actor *internal.Principal, roleID int64, resource, action string, scope Scope) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		deleted, err := repo.DeleteGrant(ctx, roleID, resource, action, scope)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return internal.ErrRoleNotFound
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:      actor.UserID,
			EventType:    audit.EventPermissionRevoke,
			ResourceType: resource,
			ResourceID:   roleID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       fmt.Sprintf(`{"action":%q,"scope":%q}`, action, scope),
		})
	})
	if err != nil {
		s.logger.Error("revoke permission failed", "error", err, "role_id", roleID, "resource", resource, "action", action)
		return err
	}

	s.evaluator.InvalidateTenant(actor.TenantID)
	return nil
}

func (s *Service) AssignRole(ctx context.Context, actor *internal.Principal, userID, roleID int64, expiresAt *time.Time) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			return err
		}
		ur := &UserRole{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: actor.UserID,
			ExpiresAt:  expiresAt,
		}
		if err := repo.AssignRole(ctx, ur); err != nil {
			return err
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:    actor.UserID,
			EventType:  audit.EventRoleAssign,
			ResourceID: roleID,
			Outcome:    audit.OutcomeSuccess,
			Detail:     fmt.Sprintf(`{"user_id":%d}`, userID),
		})
	})
	if err != nil {
		s.logger.Error("assign role failed", "error", err, "user_id", userID, "role_id", roleID)
		return err
	}

	s.evaluator.InvalidateUser(actor.TenantID, userID)
	return nil
}

func (s *Service) RevokeUserRole(ctx context.Context, actor *internal.Principal, userID, roleID int64) error {
	err := s.repo.Transact(ctx, func(repo RepositoryAPI, rec audit.RecorderAPI) error {
		revoked, err := repo.RevokeRole(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if revoked == 0 {
			return internal.ErrRoleNotFound
		}
		return rec.Record(ctx, &audit.Entry{
			ActorID:    actor.UserID,
			EventType:  audit.EventRoleRevoke,
			ResourceID: roleID,
			Outcome:    audit.OutcomeSuccess,
			Detail:     fmt.Sprintf(`{"user_id":%d}`, userID),
		})
	})
	if err != nil {
		s.logger.Error("revoke role failed", "error", err, "user_id", userID, "role_id", roleID)
		return err
	}

	s.evaluator.InvalidateUser(actor.TenantID, userID)
	return nil
}

// checkParentDepth rejects attaching under a chain already at the depth
// bound.
func checkParentDepth(parentID int64, all map[int64]*Role) error {
	current := all[parentID]
	for depth := 1; current != nil; depth++ {
		if depth >= MaxRoleDepth {
			return internal.NewValidationError(fmt.Sprintf("role hierarchy deeper than %d levels", MaxRoleDepth), internal.ErrCodeValidationFailed)
		}
		if current.ParentID == nil {
			return nil
		}
		current = all[*current.ParentID]
	}
	return nil
}
