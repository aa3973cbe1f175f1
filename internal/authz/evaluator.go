package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

// Evaluator decides allow/deny for (user, resource, action) checks by
// expanding the user's roles and testing grants broadest scope first.
// Evaluation is a pure OR across grants: the first satisfied grant allows,
// and no grant can veto another. Every call writes exactly one audit entry.
type Evaluator struct {
	repo      RepositoryAPI
	recorder  audit.RecorderAPI
	cache     *grantsCache
	resolvers map[string]ScopeResolver
	logger    *slog.Logger
	now       func() time.Time
}

func NewEvaluator(repo RepositoryAPI, recorder audit.RecorderAPI, cacheTTL time.Duration, cacheMaxUsers int, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		repo:      repo,
		recorder:  recorder,
		cache:     newGrantsCache(cacheTTL, cacheMaxUsers),
		resolvers: make(map[string]ScopeResolver),
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterResolver wires the scope resolver for one resource type. Resource
// types without a resolver can only be allowed by tenant-scope grants.
func (e *Evaluator) RegisterResolver(resource string, r ScopeResolver) {
	e.resolvers[resource] = r
}

// Evaluate runs the full check. resourceID is zero when the caller has no
// concrete row, e.g. list endpoints or creates. The returned error is
// non-nil only for infrastructure failures (the decision is then a deny).
func (e *Evaluator) Evaluate(ctx context.Context, p *internal.Principal, resource, action string, resourceID int64, evalCtx EvalContext) (Decision, error) {
	if p == nil {
		return deny(ReasonNoMatchingGrant), internal.ErrAuthenticationRequired
	}

	decision, evalErr := e.decide(ctx, p, resource, action, resourceID, evalCtx)

	if auditErr := e.recordDecision(ctx, p, resource, action, resourceID, evalCtx, decision, evalErr); auditErr != nil {
		// Audit is fail-closed: an unrecorded allow must not stand.
		e.logger.Error("audit write failed during permission check",
			"error", auditErr, "user_id", p.UserID, "resource", resource, "action", action)
		return deny(ReasonEvaluationError), internal.ErrAuditWriteFailure
	}

	return decision, evalErr
}

func (e *Evaluator) decide(ctx context.Context, p *internal.Principal, resource, action string, resourceID int64, evalCtx EvalContext) (Decision, error) {
	grants, err := e.effectiveGrants(ctx, p.TenantID, p.UserID)
	if err != nil {
		return deny(ReasonEvaluationError), fmt.Errorf("load effective grants: %w", err)
	}

	now := e.now()
	matching := make([]*Grant, 0, len(grants))
	for _, g := range grants {
		if g.Matches(resource, action) && !g.Expired(now) {
			matching = append(matching, g)
		}
	}
	if len(matching) == 0 {
		return deny(ReasonNoMatchingGrant), nil
	}

	// Broadest scope first: a tenant grant short-circuits without touching
	// the resource at all.
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Scope.Rank() > matching[j].Scope.Rank()
	})

	var (
		sawConditionFail bool
		sawNeedsResource bool
	)

	for _, g := range matching {
		cond, err := parseCondition(g.Condition)
		if err != nil {
			return deny(ReasonEvaluationError), fmt.Errorf("grant %d: %w", g.ID, err)
		}
		ok, err := cond.Satisfied(evalCtx)
		if err != nil {
			return deny(ReasonEvaluationError), fmt.Errorf("grant %d: %w", g.ID, err)
		}
		if !ok {
			sawConditionFail = true
			continue
		}

		if g.Scope == ScopeTenant {
			return allow(g), nil
		}

		if resourceID == 0 {
			sawNeedsResource = true
			continue
		}

		matched, err := e.resolveScope(ctx, g.Scope, resource, resourceID, p.UserID)
		if err != nil {
			return deny(ReasonEvaluationError), fmt.Errorf("grant %d: resolve %s scope: %w", g.ID, g.Scope, err)
		}
		if matched {
			return allow(g), nil
		}
	}

	switch {
	case sawNeedsResource:
		return deny(ReasonResourceContextRequired), nil
	case sawConditionFail:
		return deny(ReasonConditionUnsatisfied), nil
	default:
		return deny(ReasonNoMatchingGrant), nil
	}
}

func (e *Evaluator) resolveScope(ctx context.Context, scope Scope, resource string, resourceID, userID int64) (bool, error) {
	resolver, ok := e.resolvers[resource]
	if !ok {
		return false, fmt.Errorf("no scope resolver registered for resource %q", resource)
	}

	switch scope {
	case ScopeOwn:
		ownerID, err := resolver.OwnerID(ctx, resourceID)
		if err != nil {
			return false, err
		}
		return ownerID == userID, nil
	case ScopeAssigned:
		return resolver.IsAssigned(ctx, resourceID, userID)
	case ScopeDepartment:
		return resolver.SharesDepartment(ctx, resourceID, userID)
	default:
		return false, fmt.Errorf("unknown scope %q", scope)
	}
}

// effectiveGrants returns every grant reachable from the user's non-expired
// role assignments, hierarchy included. Results are cached per (tenant, user)
// until TTL or the next mutation.
func (e *Evaluator) effectiveGrants(ctx context.Context, tenantID, userID int64) ([]*Grant, error) {
	if grants, ok := e.cache.Get(tenantID, userID, e.now()); ok {
		return grants, nil
	}

	userRoles, err := e.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	held := make([]int64, 0, len(userRoles))
	// The cache entry must not outlive the shortest-lived assignment that
	// feeds it, or an expired UserRole would keep contributing until TTL.
	var notAfter time.Time
	for _, ur := range userRoles {
		if ur.Expired(now) {
			continue
		}
		held = append(held, ur.RoleID)
		if ur.ExpiresAt != nil && (notAfter.IsZero() || ur.ExpiresAt.Before(notAfter)) {
			notAfter = *ur.ExpiresAt
		}
	}
	if len(held) == 0 {
		e.cache.Set(tenantID, userID, nil, time.Time{})
		return nil, nil
	}

	all, err := e.repo.AllRoles(ctx)
	if err != nil {
		return nil, err
	}

	effective, err := expandEffectiveRoles(held, all)
	if err != nil {
		return nil, err
	}

	grants, err := e.repo.ListGrantsForRoles(ctx, effective)
	if err != nil {
		return nil, err
	}

	e.cache.Set(tenantID, userID, grants, notAfter)
	return grants, nil
}

func (e *Evaluator) recordDecision(ctx context.Context, p *internal.Principal, resource, action string, resourceID int64, evalCtx EvalContext, d Decision, evalErr error) error {
	eventType := audit.EventAuthzCheck
	if d.Reason == ReasonEvaluationError {
		eventType = audit.EventEvaluationError
	}

	outcome := audit.OutcomeDeny
	if d.Allowed {
		outcome = audit.OutcomeAllow
	}

	detail := fmt.Sprintf(`{"action":%q`, action)
	if d.MatchedGrant != nil {
		detail += fmt.Sprintf(`,"matched_scope":%q,"matched_role_id":%d`, d.MatchedGrant.Scope, d.MatchedGrant.RoleID)
	}
	if evalErr != nil {
		detail += fmt.Sprintf(`,"error":%q`, evalErr.Error())
	}
	detail += "}"

	return e.recorder.Record(ctx, &audit.Entry{
		ActorID:      p.UserID,
		EventType:    eventType,
		ResourceType: resource,
		ResourceID:   resourceID,
		Outcome:      outcome,
		Reason:       d.Reason,
		Detail:       detail,
		IP:           evalCtx.IP,
	})
}

// Check is the boolean facade for call sites that only branch on the
// verdict. Infrastructure failures read as deny.
func (e *Evaluator) Check(ctx context.Context, p *internal.Principal, resource, action string, resourceID int64, evalCtx EvalContext) bool {
	d, err := e.Evaluate(ctx, p, resource, action, resourceID, evalCtx)
	if err != nil && !errors.Is(err, internal.ErrPermissionDenied) {
		e.logger.Error("permission check failed", "error", err, "resource", resource, "action", action)
	}
	return d.Allowed
}

// Require returns the generic permission error on deny so handlers can pass
// it straight to the error response path without leaking the reason.
func (e *Evaluator) Require(ctx context.Context, p *internal.Principal, resource, action string, resourceID int64, evalCtx EvalContext) error {
	d, err := e.Evaluate(ctx, p, resource, action, resourceID, evalCtx)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return internal.ErrPermissionDenied
	}
	return nil
}

// InvalidateUser drops the user's cached grants. Role administration calls
// this synchronously after commit.
func (e *Evaluator) InvalidateUser(tenantID, userID int64) {
	e.cache.InvalidateUser(tenantID, userID)
}

// InvalidateTenant drops all cached grants for the tenant.
func (e *Evaluator) InvalidateTenant(tenantID int64) {
	e.cache.InvalidateTenant(tenantID)
}
