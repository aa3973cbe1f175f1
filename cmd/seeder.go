package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/authz"
	authzpg "github.com/astarworks/astar-management/internal/authz/postgres"
	"github.com/astarworks/astar-management/internal/tenant"
	"github.com/astarworks/astar-management/internal/user"
	userpg "github.com/astarworks/astar-management/internal/user/postgres"
	"github.com/astarworks/astar-management/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample tenants, users, roles and grants for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			clearSeedData(gdb)
		}

		seedAll(gdb, cfg.Security.BCryptCost)
	},
}

// businessHours restricts a grant to weekday office hours.
const businessHours = `{"time_window":{"start":"09:00","end":"18:00"},"weekdays":["mon","tue","wed","thu","fri"]}`

func clearSeedData(gdb *gorm.DB) {
	// FK order: grants and assignments before roles, everything before tenants
	tables := []string{
		"audit_logs", "expenses", "matter_assignments", "matters", "clients",
		"role_permissions", "user_roles", "roles", "users", "tenants",
	}
	for _, table := range tables {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			log.Fatalf("failed to clear %s: %v", table, err)
		}
	}
	fmt.Println("Cleared existing data")
}

func seedAll(gdb *gorm.DB, bcryptCost int) {
	sysCtx := tenant.AsSystem(context.Background())

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcryptCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	tenants := []*tenant.Tenant{
		{Name: "Astar Legal", Slug: "astar-legal", IsActive: true},
		{Name: "Sakura Law Office", Slug: "sakura-law", IsActive: true},
	}
	for _, t := range tenants {
		var existing tenant.Tenant
		err := gdb.WithContext(sysCtx).Where("slug = ?", t.Slug).First(&existing).Error
		if err == nil {
			t.ID = existing.ID
			fmt.Printf("tenant %s already exists\n", t.Slug)
			continue
		}
		if err := gdb.WithContext(sysCtx).Create(t).Error; err != nil {
			log.Fatalf("failed to seed tenant %s: %v", t.Slug, err)
		}
		fmt.Printf("Seeded tenant: %s\n", t.Slug)
	}

	for _, t := range tenants {
		seedTenant(gdb, t, string(hash))
	}
}

func seedTenant(gdb *gorm.DB, t *tenant.Tenant, passwordHash string) {
	ctx := tenant.WithID(context.Background(), t.ID)
	lg := logger.LoggerWrapper()

	userRepo := userpg.NewUserRepository(gdb)
	users := []*user.User{
		{Email: "admin@" + t.Slug + ".jp", Name: "Admin", PasswordHash: passwordHash, Department: "management", IsActive: true},
		{Email: "partner@" + t.Slug + ".jp", Name: "Partner", PasswordHash: passwordHash, Department: "litigation", IsActive: true},
		{Email: "lawyer@" + t.Slug + ".jp", Name: "Lawyer", PasswordHash: passwordHash, Department: "litigation", IsActive: true},
		{Email: "clerk@" + t.Slug + ".jp", Name: "Clerk", PasswordHash: passwordHash, Department: "litigation", IsActive: true},
	}
	for _, u := range users {
		if err := userRepo.Create(ctx, u); err != nil {
			log.Fatalf("failed to seed user %s: %v", u.Email, err)
		}
	}
	admin, partner, lawyer, clerk := users[0], users[1], users[2], users[3]
	actor := &internal.Principal{UserID: admin.ID, TenantID: t.ID}

	authzRepo := authzpg.NewAuthzRepository(gdb)
	evaluator := authz.NewEvaluator(authzRepo, auditpg.NewAuditRepository(gdb), 0, 0, lg)
	svc := authz.NewService(authzRepo, evaluator, lg)

	adminRole, err := svc.CreateRole(ctx, actor, "admin", "firm administration", nil)
	if err != nil {
		log.Fatalf("failed to create admin role: %v", err)
	}
	lawyerRole, err := svc.CreateRole(ctx, actor, "lawyer", "practicing attorney", nil)
	if err != nil {
		log.Fatalf("failed to create lawyer role: %v", err)
	}
	partnerRole, err := svc.CreateRole(ctx, actor, "partner", "senior attorney, inherits lawyer", &lawyerRole.ID)
	if err != nil {
		log.Fatalf("failed to create partner role: %v", err)
	}
	clerkRole, err := svc.CreateRole(ctx, actor, "clerk", "case support staff", nil)
	if err != nil {
		log.Fatalf("failed to create clerk role: %v", err)
	}

	type seedGrant struct {
		roleID    int64
		resource  string
		action    string
		scope     authz.Scope
		condition []byte
	}
	grants := []seedGrant{
		// admin runs the whole tenant
		{adminRole.ID, "matter", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "matter", "create", authz.ScopeTenant, nil},
		{adminRole.ID, "matter", "update", authz.ScopeTenant, nil},
		{adminRole.ID, "matter", "assign", authz.ScopeTenant, nil},
		{adminRole.ID, "client", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "client", "create", authz.ScopeTenant, nil},
		{adminRole.ID, "client", "update", authz.ScopeTenant, nil},
		{adminRole.ID, "client", "delete", authz.ScopeTenant, nil},
		{adminRole.ID, "expense", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "user", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "user", "update", authz.ScopeTenant, nil},
		{adminRole.ID, "role", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "role", "create", authz.ScopeTenant, nil},
		{adminRole.ID, "role", "update", authz.ScopeTenant, nil},
		{adminRole.ID, "role", "grant", authz.ScopeTenant, nil},
		{adminRole.ID, "role", "assign", authz.ScopeTenant, nil},
		{adminRole.ID, "audit", "read", authz.ScopeTenant, nil},
		{adminRole.ID, "audit", "export", authz.ScopeTenant, nil},

		// lawyers work their department's matters and their own filings
		{lawyerRole.ID, "matter", "read", authz.ScopeDepartment, nil},
		{lawyerRole.ID, "matter", "create", authz.ScopeTenant, nil},
		{lawyerRole.ID, "matter", "update", authz.ScopeOwn, nil},
		{lawyerRole.ID, "client", "read", authz.ScopeTenant, nil},
		{lawyerRole.ID, "expense", "create", authz.ScopeTenant, nil},
		{lawyerRole.ID, "expense", "read", authz.ScopeOwn, nil},
		{lawyerRole.ID, "user", "read", authz.ScopeTenant, nil},

		// partners additionally assign staff and approve expenses, the
		// latter only during office hours
		{partnerRole.ID, "matter", "update", authz.ScopeDepartment, nil},
		{partnerRole.ID, "matter", "assign", authz.ScopeDepartment, nil},
		{partnerRole.ID, "expense", "read", authz.ScopeDepartment, nil},
		{partnerRole.ID, "expense", "approve", authz.ScopeDepartment, []byte(businessHours)},

		// clerks see only what they are assigned to
		{clerkRole.ID, "matter", "read", authz.ScopeAssigned, nil},
		{clerkRole.ID, "client", "read", authz.ScopeTenant, nil},
		{clerkRole.ID, "expense", "create", authz.ScopeTenant, nil},
		{clerkRole.ID, "expense", "read", authz.ScopeOwn, nil},
	}
	for _, g := range grants {
		if _, err := svc.GrantPermission(ctx, actor, g.roleID, g.resource, g.action, g.scope, g.condition, nil); err != nil {
			log.Fatalf("failed to grant %s/%s to role %d: %v", g.resource, g.action, g.roleID, err)
		}
	}

	assignments := map[int64]int64{
		admin.ID:   adminRole.ID,
		partner.ID: partnerRole.ID,
		lawyer.ID:  lawyerRole.ID,
		clerk.ID:   clerkRole.ID,
	}
	for userID, roleID := range assignments {
		if err := svc.AssignRole(ctx, actor, userID, roleID, nil); err != nil {
			log.Fatalf("failed to assign role %d to user %d: %v", roleID, userID, err)
		}
	}

	fmt.Printf("Seeded tenant %s: %d users, 4 roles, %d grants\n", t.Slug, len(users), len(grants))
}
