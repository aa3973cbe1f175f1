package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/transport"
	"github.com/astarworks/astar-management/pkg/logger"
)

type ServiceAPI interface {
	GetRole(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	CreateRole(ctx context.Context, actor *internal.Principal, name, description string, parentID *int64) (*Role, error)
	SetRoleParent(ctx context.Context, actor *internal.Principal, roleID int64, parentID *int64) error
	GrantPermission(ctx context.Context, actor *internal.Principal, roleID int64, resource, action string, scope Scope, condition []byte, expiresAt *time.Time) (*Grant, error)
	RevokePermission(ctx context.Context, actor *internal.Principal, roleID int64, resource, action string, scope Scope) error
	AssignRole(ctx context.Context, actor *internal.Principal, userID, roleID int64, expiresAt *time.Time) error
	RevokeUserRole(ctx context.Context, actor *internal.Principal, userID, roleID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// ListRoles godoc
// @Summary List roles of the current tenant
// @Tags roles
// @Produce json
// @Success 200 {array} Role
// @Router /api/v1/roles [get]
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.Logger.Error("ListRoles: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, roles)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.Service.GetRole(r.Context(), roleID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto CreateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), actor, dto.Name, dto.Description, dto.ParentID)
	if err != nil {
		h.Logger.Error("CreateRole: service error", "error", err, "name", dto.Name)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateRole: role created", "role_id", role.ID, "name", role.Name, "actor_id", actor.UserID)
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) SetRoleParent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}

	var dto SetParentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.SetRoleParent(r.Context(), actor, roleID, dto.ParentID); err != nil {
		h.Logger.Error("SetRoleParent: service error", "error", err, "role_id", roleID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}

	var dto GrantPermissionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	grant, err := h.Service.GrantPermission(r.Context(), actor, roleID, dto.Resource, dto.Action, dto.Scope, dto.Condition, dto.ExpiresAt)
	if err != nil {
		h.Logger.Error("GrantPermission: service error", "error", err, "role_id", roleID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, grant)
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}

	var dto RevokePermissionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.RevokePermission(r.Context(), actor, roleID, dto.Resource, dto.Action, dto.Scope); err != nil {
		h.Logger.Error("RevokePermission: service error", "error", err, "role_id", roleID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}

	var dto AssignRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.AssignRole(r.Context(), actor, userID, dto.RoleID, dto.ExpiresAt); err != nil {
		h.Logger.Error("AssignRole: service error", "error", err, "user_id", userID, "role_id", dto.RoleID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

func (h *Handler) RevokeUserRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := h.urlID(w, r, "roleID")
	if !ok {
		return
	}

	if err := h.Service.RevokeUserRole(r.Context(), actor, userID, roleID); err != nil {
		h.Logger.Error("RevokeUserRole: service error", "error", err, "user_id", userID, "role_id", roleID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (*internal.Principal, bool) {
	p, ok := internal.PrincipalFromContext(r.Context())
	if !ok || p == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return p, true
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}
