package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/astarworks/astar-management/pkg/logger"
)

// Logging logs one line per request with method, path, status and
// duration, using the trace-id-carrying logger RequestID put in the
// context. Bodies are never captured: responses may stream (CSV
// exports) and requests may carry credentials.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if lg := logger.From(r.Context()); lg.Enabled(r.Context(), slog.LevelDebug) {
			lg.Debug("request headers", "headers", FilterHeaders(r.Header))
		}

		ww := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(ww, r)

		status := ww.status
		if status == 0 {
			status = http.StatusOK
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		logger.From(r.Context()).Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.written,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// sensitiveFields are header names that must never reach the logs.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"api_key",
	"cookie",
	"credential",
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// FilterHeaders masks sensitive headers for debug logging.
func FilterHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string)
	for name, values := range headers {
		lowerName := strings.ToLower(name)

		masked := false
		for _, field := range sensitiveFields {
			if strings.Contains(lowerName, field) {
				masked = true
				break
			}
		}

		if masked {
			filtered[name] = "[FILTERED]"
		} else {
			filtered[name] = strings.Join(values, ", ")
		}
	}
	return filtered
}
