package audit

import (
	"context"
	"time"
)

// Event types recorded by the authorization and business layers.
const (
	EventAuthzCheck       = "authz.check"
	EventEvaluationError  = "authz.evaluation_error"
	EventPermissionGrant  = "authz.grant"
	EventPermissionRevoke = "authz.revoke"
	EventRoleAssign       = "role.assign"
	EventRoleRevoke       = "role.revoke"
	EventRoleParentChange = "role.parent_change"
	EventRoleCreate       = "role.create"
	EventTenantMismatch   = "tenant.mismatch"
)

const (
	OutcomeAllow   = "allow"
	OutcomeDeny    = "deny"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is an immutable who-did-what-when record. The application only ever
// inserts entries; retention is an out-of-band administrative process.
type Entry struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	ActorID      int64     `json:"actor_id"`
	EventType    string    `json:"event_type"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   int64     `json:"resource_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	IP           string    `json:"ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Entry) TableName() string { return "audit_logs" }

func (Entry) TenantScoped() {}

// Filter narrows audit queries for compliance review. The tenant is never
// part of the filter: it always comes from the ambient tenant context.
type Filter struct {
	ActorID   int64      `json:"actor_id,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// RecorderAPI is the write side. Record must persist the entry before the
// surrounding business operation is considered complete; callers run it
// inside their transaction so a failed audit write aborts the mutation.
type RecorderAPI interface {
	Record(ctx context.Context, e *Entry) error
}

// RepositoryAPI is the full persistence surface. There is deliberately no
// update or delete; PurgeBefore exists only for the retention worker.
type RepositoryAPI interface {
	RecorderAPI
	List(ctx context.Context, f Filter) ([]*Entry, error)
	Count(ctx context.Context, f Filter) (int64, error)
	PurgeBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}
