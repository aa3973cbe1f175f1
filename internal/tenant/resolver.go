package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/astarworks/astar-management/internal"
)

// Resolver publishes the authenticated principal's tenant as the ambient
// tenant for the request. It runs after authentication and before every
// handler; a request with no resolvable tenant never reaches data access.
type Resolver struct {
	svc    ServiceAPI
	logger *slog.Logger
}

func NewResolver(svc ServiceAPI, logger *slog.Logger) *Resolver {
	return &Resolver{svc: svc, logger: logger}
}

func (rv *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := internal.PrincipalFromContext(r.Context())
		if !ok || principal == nil || principal.TenantID == 0 {
			rv.logger.Warn("tenant resolution failed: no tenant claim on principal")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		t, err := rv.svc.Resolve(r.Context(), principal.TenantID)
		if err != nil {
			switch {
			case errors.Is(err, ErrInactive):
				rv.logger.Warn("tenant resolution failed: tenant inactive", "tenant_id", principal.TenantID)
				http.Error(w, "Forbidden", http.StatusForbidden)
			case errors.Is(err, ErrNotFound):
				rv.logger.Warn("tenant resolution failed: unknown tenant", "tenant_id", principal.TenantID)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
			default:
				rv.logger.ErrorContext(r.Context(), "tenant resolution failed", "error", err, "tenant_id", principal.TenantID)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		ctx := WithID(r.Context(), t.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
