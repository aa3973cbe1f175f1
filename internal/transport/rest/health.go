package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

type healthStatus string

const (
	healthOK       healthStatus = "ok"
	healthDegraded healthStatus = "degraded"
)

type componentCheck struct {
	Status     healthStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type healthResponse struct {
	Status     healthStatus              `json:"status"`
	CheckedAt  time.Time                 `json:"checked_at"`
	Components map[string]componentCheck `json:"components"`
}

// HealthHandler answers liveness and readiness probes. Readiness pings
// the shared database pool; everything else in the process (event bus,
// caches) degrades without taking requests down, so only the database
// gates readiness.
type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	check := componentCheck{Status: healthOK}
	if err := h.db.PingContext(ctx); err != nil {
		check.Status = healthDegraded
		check.Error = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()

	resp := healthResponse{
		Status:     check.Status,
		CheckedAt:  time.Now().UTC(),
		Components: map[string]componentCheck{"database": check},
	}

	code := http.StatusOK
	if resp.Status != healthOK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
