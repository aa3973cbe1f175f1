package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/astarworks/astar-management/pkg/logger"
)

// RequestID assigns each request a trace id, honoring one supplied by an
// upstream proxy, and stores a logger carrying it in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
