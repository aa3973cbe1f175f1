package expense

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/transport"
	"github.com/astarworks/astar-management/pkg/logger"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter Filter) ([]*Expense, error)
	Submit(ctx context.Context, actor *internal.Principal, dto CreateExpenseDTO) (*Expense, error)
	Approve(ctx context.Context, actor *internal.Principal, id int64) (*Expense, error)
	Reject(ctx context.Context, actor *internal.Principal, id int64, dto RejectExpenseDTO) (*Expense, error)
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

// @Summary Submit expense
// @Description Record a billable expense against a matter
// @Tags expenses
// @Accept json
// @Produce json
// @Success 201 {object} Expense
// @Router /expenses [post]
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.Service.Submit(r.Context(), actor, dto)
	if err != nil {
		h.Logger.Error("SubmitExpense: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)

	expenses, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("ListExpenses: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	e, err := h.Service.GetByID(r.Context(), expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	expenseID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	e, err := h.Service.Approve(r.Context(), actor, expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	expenseID, ok := h.urlID(w, r)
	if !ok {
		return
	}

	var dto RejectExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.Service.Reject(r.Context(), actor, expenseID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, e)
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	filter := Filter{Limit: 50}

	if v := q.Get("matter_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.MatterID = id
		}
	}
	if v := q.Get("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.UserID = id
		}
	}
	if v := q.Get("status"); v != "" {
		filter.Status = v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	return filter
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
		h.WriteError(w, http.StatusBadRequest, "invalid expense id")
		return 0, false
	}
	return id, true
}
