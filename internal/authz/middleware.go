package authz

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/astarworks/astar-management/internal"
)

// Authorizer is the HTTP-side facade over the evaluator. Routes attach it
// after authentication and tenant resolution, so the principal and ambient
// tenant are already in the request context.
type Authorizer struct {
	evaluator *Evaluator
	logger    *slog.Logger
}

func NewAuthorizer(evaluator *Evaluator, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		evaluator: evaluator,
		logger:    logger,
	}
}

// RequirePermission guards routes that act on no particular row, e.g. list
// and create endpoints. Grants below tenant scope cannot satisfy it.
func (a *Authorizer) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.check(w, r, next, resource, action, 0)
		})
	}
}

// RequirePermissionOn guards routes addressing one row; the resource id is
// read from the named URL parameter so own/assigned/department grants can
// resolve against it.
func (a *Authorizer) RequirePermissionOn(resource, action, urlParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resourceID, err := strconv.ParseInt(chi.URLParam(r, urlParam), 10, 64)
			if err != nil {
				http.Error(w, "invalid resource id", http.StatusBadRequest)
				return
			}
			a.check(w, r, next, resource, action, resourceID)
		})
	}
}

func (a *Authorizer) check(w http.ResponseWriter, r *http.Request, next http.Handler, resource, action string, resourceID int64) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok || principal == nil {
		a.logger.Warn("authorization check without principal", "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	evalCtx := EvalContext{IP: clientIP(r)}

	decision, err := a.evaluator.Evaluate(r.Context(), principal, resource, action, resourceID, evalCtx)
	if err != nil && !errors.Is(err, internal.ErrPermissionDenied) {
		a.logger.ErrorContext(r.Context(), "authorization check failed",
			"error", err, "user_id", principal.UserID, "resource", resource, "action", action)
		// Evaluation errors deny. The response stays generic.
		http.Error(w, "you do not have permission to perform this action", http.StatusForbidden)
		return
	}

	if !decision.Allowed {
		a.logger.WarnContext(r.Context(), "access denied",
			"user_id", principal.UserID,
			"resource", resource,
			"action", action,
			"resource_id", resourceID,
			"reason", decision.Reason)
		http.Error(w, "you do not have permission to perform this action", http.StatusForbidden)
		return
	}

	next.ServeHTTP(w, r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
