package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
)

func TestAuthz(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Authz Suite")
}

type fakeRepo struct {
	roles     map[int64]*Role
	grants    []*Grant
	userRoles []*UserRole

	userRolesErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{roles: make(map[int64]*Role)}
}

func (f *fakeRepo) GetRole(_ context.Context, id int64) (*Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, internal.ErrRoleNotFound
	}
	return r, nil
}

func (f *fakeRepo) GetRoleByName(_ context.Context, name string) (*Role, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, internal.ErrRoleNotFound
}

func (f *fakeRepo) ListRoles(_ context.Context) ([]*Role, error) {
	out := make([]*Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) CreateRole(_ context.Context, r *Role) error {
	r.ID = int64(len(f.roles) + 1)
	f.roles[r.ID] = r
	return nil
}

func (f *fakeRepo) UpdateRole(_ context.Context, r *Role) error {
	f.roles[r.ID] = r
	return nil
}

func (f *fakeRepo) ListGrantsForRoles(_ context.Context, roleIDs []int64) ([]*Grant, error) {
	want := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = struct{}{}
	}
	var out []*Grant
	for _, g := range f.grants {
		if _, ok := want[g.RoleID]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateGrant(_ context.Context, g *Grant) error {
	f.grants = append(f.grants, g)
	return nil
}

func (f *fakeRepo) DeleteGrant(_ context.Context, roleID int64, resource, action string, scope Scope) (int64, error) {
	var kept []*Grant
	var deleted int64
	for _, g := range f.grants {
		if g.RoleID == roleID && g.Resource == resource && g.Action == action && g.Scope == scope {
			deleted++
			continue
		}
		kept = append(kept, g)
	}
	f.grants = kept
	return deleted, nil
}

func (f *fakeRepo) ListUserRoles(_ context.Context, userID int64) ([]*UserRole, error) {
	if f.userRolesErr != nil {
		return nil, f.userRolesErr
	}
	var out []*UserRole
	for _, ur := range f.userRoles {
		if ur.UserID == userID {
			out = append(out, ur)
		}
	}
	return out, nil
}

func (f *fakeRepo) AssignRole(_ context.Context, ur *UserRole) error {
	f.userRoles = append(f.userRoles, ur)
	return nil
}

func (f *fakeRepo) RevokeRole(_ context.Context, userID, roleID int64) (int64, error) {
	var kept []*UserRole
	var revoked int64
	for _, ur := range f.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			revoked++
			continue
		}
		kept = append(kept, ur)
	}
	f.userRoles = kept
	return revoked, nil
}

func (f *fakeRepo) AllRoles(_ context.Context) (map[int64]*Role, error) {
	return f.roles, nil
}

func (f *fakeRepo) Transact(_ context.Context, fn func(repo RepositoryAPI, rec audit.RecorderAPI) error) error {
	return fn(f, &fakeRecorder{})
}

type fakeRecorder struct {
	entries []*audit.Entry
	fail    bool
}

func (f *fakeRecorder) Record(_ context.Context, e *audit.Entry) error {
	if f.fail {
		return errors.New("audit store unavailable")
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeResolver struct {
	owner      int64
	assigned   map[int64]bool
	department map[int64]bool
	err        error
}

func (f *fakeResolver) OwnerID(_ context.Context, _ int64) (int64, error) {
	return f.owner, f.err
}

func (f *fakeResolver) IsAssigned(_ context.Context, _ int64, userID int64) (bool, error) {
	return f.assigned[userID], f.err
}

func (f *fakeResolver) SharesDepartment(_ context.Context, _ int64, userID int64) (bool, error) {
	return f.department[userID], f.err
}

var _ = Describe("Evaluator", func() {
	var (
		repo      *fakeRepo
		recorder  *fakeRecorder
		resolver  *fakeResolver
		evaluator *Evaluator
		principal *internal.Principal
	)

	const (
		tenantID = int64(1)
		userID   = int64(42)
	)

	addRole := func(id int64, parentID *int64) *Role {
		role := &Role{ID: id, TenantID: tenantID, Name: fmt.Sprintf("role-%d", id), ParentID: parentID}
		repo.roles[id] = role
		return role
	}

	holdRole := func(roleID int64, expiresAt *time.Time) {
		repo.userRoles = append(repo.userRoles, &UserRole{
			TenantID: tenantID, UserID: userID, RoleID: roleID, ExpiresAt: expiresAt,
		})
	}

	addGrant := func(roleID int64, resource, action string, scope Scope, condition []byte) {
		repo.grants = append(repo.grants, &Grant{
			TenantID: tenantID, RoleID: roleID,
			Resource: resource, Action: action, Scope: scope, Condition: condition,
		})
	}

	evaluate := func(resourceID int64) Decision {
		d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", resourceID, EvalContext{})
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		repo = newFakeRepo()
		recorder = &fakeRecorder{}
		resolver = &fakeResolver{assigned: map[int64]bool{}, department: map[int64]bool{}}
		evaluator = NewEvaluator(repo, recorder, time.Minute, 100, slog.Default())
		evaluator.RegisterResolver("matter", resolver)
		principal = &internal.Principal{UserID: userID, TenantID: tenantID}
	})

	Describe("scope resolution", func() {
		It("allows any resource when a tenant-scope grant matches", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			d := evaluate(999)
			Expect(d.Allowed).To(BeTrue())
			Expect(d.MatchedGrant.Scope).To(Equal(ScopeTenant))
		})

		It("allows a tenant-scope grant without any resource id", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(0).Allowed).To(BeTrue())
		})

		It("allows an own-scope grant when the user owns the resource", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeOwn, nil)
			resolver.owner = userID

			Expect(evaluate(7).Allowed).To(BeTrue())
		})

		It("denies an own-scope grant for someone else's resource", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeOwn, nil)
			resolver.owner = userID + 1

			d := evaluate(7)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonNoMatchingGrant))
		})

		It("allows via assignment at assigned scope", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeAssigned, nil)
			resolver.assigned[userID] = true

			Expect(evaluate(7).Allowed).To(BeTrue())
		})

		It("allows via shared department at department scope", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeDepartment, nil)
			resolver.department[userID] = true

			Expect(evaluate(7).Allowed).To(BeTrue())
		})

		It("denies sub-tenant grants when no resource id is supplied", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeAssigned, nil)
			resolver.assigned[userID] = true

			d := evaluate(0)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonResourceContextRequired))
		})
	})

	Describe("OR semantics", func() {
		It("allows when one of two grants is satisfied", func() {
			addRole(1, nil)
			addRole(2, nil)
			holdRole(1, nil)
			holdRole(2, nil)
			addGrant(1, "matter", "read", ScopeOwn, nil)
			addGrant(2, "matter", "read", ScopeAssigned, nil)
			resolver.owner = userID + 1
			resolver.assigned[userID] = true

			Expect(evaluate(7).Allowed).To(BeTrue())
		})

		It("does not require the narrowest scope to match", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeOwn, nil)
			addGrant(1, "matter", "read", ScopeDepartment, nil)
			resolver.owner = userID + 1
			resolver.department[userID] = true

			Expect(evaluate(7).Allowed).To(BeTrue())
		})
	})

	Describe("expiry", func() {
		It("ignores roles whose assignment has expired", func() {
			past := time.Now().Add(-time.Hour)
			addRole(1, nil)
			holdRole(1, &past)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			d := evaluate(7)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonNoMatchingGrant))
		})

		It("ignores grants past their expiry", func() {
			past := time.Now().Add(-time.Hour)
			addRole(1, nil)
			holdRole(1, nil)
			repo.grants = append(repo.grants, &Grant{
				TenantID: tenantID, RoleID: 1,
				Resource: "matter", Action: "read", Scope: ScopeTenant, ExpiresAt: &past,
			})

			Expect(evaluate(7).Allowed).To(BeFalse())
		})
	})

	Describe("hierarchy inheritance", func() {
		It("allows through a parent role's grant", func() {
			parent := addRole(1, nil)
			addRole(2, &parent.ID)
			holdRole(2, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(7).Allowed).To(BeTrue())
		})

		It("walks multi-level chains up to the depth bound", func() {
			top := addRole(1, nil)
			mid := addRole(2, &top.ID)
			addRole(3, &mid.ID)
			holdRole(3, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(7).Allowed).To(BeTrue())
		})
	})

	Describe("conditions", func() {
		It("disqualifies a grant whose condition is unsatisfied without vetoing others", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, []byte(`{"ip_cidr":["10.0.0.0/8"]}`))
			addGrant(1, "matter", "read", ScopeAssigned, nil)
			resolver.assigned[userID] = true

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{IP: "192.168.1.1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Allowed).To(BeTrue())
			Expect(d.MatchedGrant.Scope).To(Equal(ScopeAssigned))
		})

		It("denies with condition_unsatisfied when only conditioned grants match", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, []byte(`{"ip_cidr":["10.0.0.0/8"]}`))

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{IP: "192.168.1.1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonConditionUnsatisfied))
		})

		It("allows when the caller IP is inside the CIDR", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, []byte(`{"ip_cidr":["10.0.0.0/8"]}`))

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{IP: "10.1.2.3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Allowed).To(BeTrue())
		})
	})

	Describe("failure semantics", func() {
		It("denies with evaluation_error on a malformed condition", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, []byte(`{"time_window":{"start":"not-a-time","end":"18:00"}}`))

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{})
			Expect(err).To(HaveOccurred())
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonEvaluationError))
		})

		It("denies with evaluation_error when no resolver is registered", func() {
			addRole(1, nil)
			holdRole(1, nil)
			repo.grants = append(repo.grants, &Grant{
				TenantID: tenantID, RoleID: 1,
				Resource: "invoice", Action: "read", Scope: ScopeOwn,
			})

			d, err := evaluator.Evaluate(context.Background(), principal, "invoice", "read", 7, EvalContext{})
			Expect(err).To(HaveOccurred())
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonEvaluationError))
		})

		It("denies with evaluation_error when the resolver fails", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeOwn, nil)
			resolver.err = errors.New("db timeout")

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{})
			Expect(err).To(HaveOccurred())
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonEvaluationError))
		})

		It("denies when grant loading fails", func() {
			repo.userRolesErr = errors.New("db down")

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{})
			Expect(err).To(HaveOccurred())
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonEvaluationError))
		})
	})

	Describe("audit completeness", func() {
		It("writes exactly one entry per call with a matching outcome", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(7).Allowed).To(BeTrue())
			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].EventType).To(Equal(audit.EventAuthzCheck))
			Expect(recorder.entries[0].Outcome).To(Equal(audit.OutcomeAllow))
			Expect(recorder.entries[0].ActorID).To(Equal(userID))

			Expect(evaluate(7).Allowed).To(BeTrue())
			Expect(recorder.entries).To(HaveLen(2))
		})

		It("records denials with their internal reason", func() {
			d := evaluate(7)
			Expect(d.Allowed).To(BeFalse())
			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].Outcome).To(Equal(audit.OutcomeDeny))
			Expect(recorder.entries[0].Reason).To(Equal(ReasonNoMatchingGrant))
		})

		It("records evaluation errors as a distinct event type", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, []byte(`{"weekdays":["someday"]}`))

			_, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{})
			Expect(err).To(HaveOccurred())
			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].EventType).To(Equal(audit.EventEvaluationError))
		})

		It("denies an allow that could not be audited", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)
			recorder.fail = true

			d, err := evaluator.Evaluate(context.Background(), principal, "matter", "read", 7, EvalContext{})
			Expect(err).To(MatchError(internal.ErrAuditWriteFailure))
			Expect(d.Allowed).To(BeFalse())
		})
	})

	Describe("cache and revocation immediacy", func() {
		It("reflects a revocation immediately after invalidation", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(7).Allowed).To(BeTrue())

			_, err := repo.RevokeRole(context.Background(), userID, 1)
			Expect(err).NotTo(HaveOccurred())
			evaluator.InvalidateUser(tenantID, userID)

			d := evaluate(7)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonNoMatchingGrant))
		})

		It("serves repeat checks from cache", func() {
			addRole(1, nil)
			holdRole(1, nil)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			Expect(evaluate(7).Allowed).To(BeTrue())

			// Without invalidation the stale grant set is still served.
			repo.userRoles = nil
			Expect(evaluate(7).Allowed).To(BeTrue())

			evaluator.InvalidateTenant(tenantID)
			Expect(evaluate(7).Allowed).To(BeFalse())
		})

		It("stops serving cached grants once the backing assignment expires", func() {
			addRole(1, nil)
			expiry := time.Now().Add(10 * time.Minute)
			holdRole(1, &expiry)
			addGrant(1, "matter", "read", ScopeTenant, nil)

			// First check caches the grant set well within the TTL.
			Expect(evaluate(7).Allowed).To(BeTrue())

			// Past the assignment's expiry, still inside the cache TTL: the
			// entry must lapse with the assignment, not linger until TTL.
			evaluator.now = func() time.Time { return expiry.Add(time.Second) }

			d := evaluate(7)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(ReasonNoMatchingGrant))
		})
	})
})
