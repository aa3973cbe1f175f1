package tenant

import "context"

type contextKey int

const (
	ctxKeyTenantID contextKey = iota
	ctxKeySystem
)

// WithID returns a context carrying the ambient tenant id. Set once per
// request by the resolver middleware; never cached across requests.
func WithID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyTenantID, id)
}

// IDFromContext returns the ambient tenant id. There is no default: callers
// that need a tenant and find none must fail closed.
func IDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyTenantID).(int64)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// AsSystem marks the context as a cross-tenant administrative session.
// Only the seeder and the audit retention worker use this; request-scoped
// code never does.
func AsSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeySystem, true)
}

func IsSystem(ctx context.Context) bool {
	v, ok := ctx.Value(ctxKeySystem).(bool)
	return ok && v
}
