package rest

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/astarworks/astar-management/internal/audit"
	"github.com/astarworks/astar-management/internal/auth"
	"github.com/astarworks/astar-management/internal/authz"
	"github.com/astarworks/astar-management/internal/client"
	"github.com/astarworks/astar-management/internal/expense"
	"github.com/astarworks/astar-management/internal/matter"
	"github.com/astarworks/astar-management/internal/tenant"
	"github.com/astarworks/astar-management/internal/transport/middleware"
	"github.com/astarworks/astar-management/internal/transport/swagger"
	"github.com/astarworks/astar-management/internal/user"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth    *auth.Handler
	Authz   *authz.Handler
	Audit   *audit.Handler
	User    *user.Handler
	Matter  *matter.Handler
	Client  *client.Handler
	Expense *expense.Handler
}

// RegisterAllRoutes wires the full HTTP surface. Middleware order is
// load-bearing: trace id first, then CORS and recovery; inside the
// protected group authentication installs the principal, the tenant
// resolver publishes the ambient tenant, and only then do the
// permission guards run.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, resolver *tenant.Resolver, guard *authz.Authorizer) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.RequestID)
	router.Use(middleware.CORS)
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(resolver.Middleware)

			pr.Get("/users/me", h.User.GetCurrentUser)

			pr.Route("/users", func(ur chi.Router) {
				ur.With(guard.RequirePermission("user", "read")).Get("/", h.User.ListUsers)
				ur.With(guard.RequirePermission("user", "read")).Get("/{id}", h.User.GetUser)
				ur.With(guard.RequirePermission("user", "update")).Delete("/{id}", h.User.DeactivateUser)

				ur.With(guard.RequirePermission("role", "assign")).Post("/{id}/roles", h.Authz.AssignRole)
				ur.With(guard.RequirePermission("role", "assign")).Delete("/{id}/roles/{roleID}", h.Authz.RevokeUserRole)
			})

			pr.Route("/roles", func(rr chi.Router) {
				rr.With(guard.RequirePermission("role", "read")).Get("/", h.Authz.ListRoles)
				rr.With(guard.RequirePermission("role", "read")).Get("/{id}", h.Authz.GetRole)
				rr.With(guard.RequirePermission("role", "create")).Post("/", h.Authz.CreateRole)
				rr.With(guard.RequirePermission("role", "update")).Put("/{id}/parent", h.Authz.SetRoleParent)
				rr.With(guard.RequirePermission("role", "grant")).Post("/{id}/permissions", h.Authz.GrantPermission)
				rr.With(guard.RequirePermission("role", "grant")).Delete("/{id}/permissions", h.Authz.RevokePermission)
			})

			pr.Route("/matters", func(mr chi.Router) {
				mr.With(guard.RequirePermission("matter", "read")).Get("/", h.Matter.ListMatters)
				mr.With(guard.RequirePermission("matter", "create")).Post("/", h.Matter.CreateMatter)
				mr.With(guard.RequirePermissionOn("matter", "read", "id")).Get("/{id}", h.Matter.GetMatter)
				mr.With(guard.RequirePermissionOn("matter", "update", "id")).Put("/{id}", h.Matter.UpdateMatter)
				mr.With(guard.RequirePermissionOn("matter", "update", "id")).Patch("/{id}/status", h.Matter.ChangeStatus)
				mr.With(guard.RequirePermissionOn("matter", "assign", "id")).Post("/{id}/assignments", h.Matter.AssignUser)
				mr.With(guard.RequirePermissionOn("matter", "assign", "id")).Delete("/{id}/assignments/{userID}", h.Matter.UnassignUser)
				mr.With(guard.RequirePermissionOn("matter", "read", "id")).Get("/{id}/assignments", h.Matter.ListAssignments)
			})

			pr.Route("/clients", func(cr chi.Router) {
				cr.With(guard.RequirePermission("client", "read")).Get("/", h.Client.ListClients)
				cr.With(guard.RequirePermission("client", "read")).Get("/{id}", h.Client.GetClient)
				cr.With(guard.RequirePermission("client", "create")).Post("/", h.Client.CreateClient)
				cr.With(guard.RequirePermission("client", "update")).Put("/{id}", h.Client.UpdateClient)
				cr.With(guard.RequirePermission("client", "delete")).Delete("/{id}", h.Client.DeleteClient)
			})

			pr.Route("/expenses", func(er chi.Router) {
				er.With(guard.RequirePermission("expense", "create")).Post("/", h.Expense.SubmitExpense)
				er.With(guard.RequirePermission("expense", "read")).Get("/", h.Expense.ListExpenses)
				er.With(guard.RequirePermissionOn("expense", "read", "id")).Get("/{id}", h.Expense.GetExpense)
				er.With(guard.RequirePermissionOn("expense", "approve", "id")).Patch("/{id}/approve", h.Expense.ApproveExpense)
				er.With(guard.RequirePermissionOn("expense", "approve", "id")).Patch("/{id}/reject", h.Expense.RejectExpense)
			})

			pr.Route("/audit", func(ar chi.Router) {
				ar.With(guard.RequirePermission("audit", "read")).Get("/", h.Audit.List)
				ar.With(guard.RequirePermission("audit", "export")).Get("/export", h.Audit.Export)
			})
		})
	})
}
