package matter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/transport"
	"github.com/astarworks/astar-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// ListMatters godoc
// @Summary List matters visible to the current tenant
// @Tags matters
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/matters [get]
func (h *Handler) ListMatters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{Status: q.Get("status")}
	if v := q.Get("client_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.ClientID = id
		}
	}
	if v := q.Get("owner_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.OwnerID = id
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	matters, err := h.Service.List(r.Context(), f)
	if err != nil {
		h.Logger.Error("ListMatters: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list matters")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"matters": matters,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

func (h *Handler) GetMatter(w http.ResponseWriter, r *http.Request) {
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	m, err := h.Service.GetByID(r.Context(), matterID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) CreateMatter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto CreateMatterDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.Logger.Error("CreateMatter: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateMatter: matter created", "matter_id", m.ID, "actor_id", actor.UserID)
	h.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) UpdateMatter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	var dto UpdateMatterDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Service.Update(r.Context(), actor, matterID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	var dto ChangeStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Service.ChangeStatus(r.Context(), actor, matterID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) AssignUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	var dto AssignDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.Assign(r.Context(), actor, matterID, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

func (h *Handler) UnassignUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.Service.Unassign(r.Context(), actor, matterID, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	matterID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	assignments, err := h.Service.ListAssignments(r.Context(), matterID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, assignments)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (*internal.Principal, bool) {
	p, ok := internal.PrincipalFromContext(r.Context())
	if !ok || p == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return p, true
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid matter id")
		return 0, false
	}
	return id, true
}
