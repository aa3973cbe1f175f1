package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/astarworks/astar-management/internal/transport"
	"github.com/astarworks/astar-management/pkg/logger"
)

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

// List godoc
// @Summary List audit log entries
// @Tags audit
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/audit [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("List: failed to query audit log", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// Export godoc
// @Summary Export audit log entries as CSV
// @Tags audit
// @Produce text/csv
// @Success 200
// @Router /api/v1/audit/export.csv [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_log.csv"`)

	if err := h.Service.ExportCSV(r.Context(), filter, w); err != nil {
		// headers are already out; we can only log at this point
		h.Logger.Error("Export: csv export failed", "error", err)
	}
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		EventType: q.Get("event_type"),
		Outcome:   q.Get("outcome"),
	}

	if v := q.Get("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errInvalidQueryParam("actor_id")
		}
		filter.ActorID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidQueryParam("from")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidQueryParam("to")
		}
		filter.To = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errInvalidQueryParam("limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errInvalidQueryParam("offset")
		}
		filter.Offset = n
	}

	return filter, nil
}

type errInvalidQueryParam string

func (e errInvalidQueryParam) Error() string { return "invalid query parameter: " + string(e) }
