package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/astarworks/astar-management/internal"
	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/auth"
	authpg "github.com/astarworks/astar-management/internal/auth/postgres"
	"github.com/astarworks/astar-management/internal/authz"
	authzpg "github.com/astarworks/astar-management/internal/authz/postgres"
	"github.com/astarworks/astar-management/internal/client"
	clientpg "github.com/astarworks/astar-management/internal/client/postgres"
	"github.com/astarworks/astar-management/internal/core/events"
	"github.com/astarworks/astar-management/internal/expense"
	expensepg "github.com/astarworks/astar-management/internal/expense/postgres"
	"github.com/astarworks/astar-management/internal/matter"
	matterpg "github.com/astarworks/astar-management/internal/matter/postgres"
	"github.com/astarworks/astar-management/internal/tenant"
	tenantpg "github.com/astarworks/astar-management/internal/tenant/postgres"
	"github.com/astarworks/astar-management/internal/transport/rest"
	"github.com/astarworks/astar-management/internal/user"
	userpg "github.com/astarworks/astar-management/internal/user/postgres"
	"github.com/astarworks/astar-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	EventBus *events.EventBus
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.EventBus.Drain()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	log := deps.Logger
	gdb := deps.GormDB

	// repositories
	tenantRepo := tenantpg.NewTenantRepository(gdb)
	authRepo := authpg.NewRepository(gdb)
	userRepo := userpg.NewUserRepository(gdb)
	authzRepo := authzpg.NewAuthzRepository(gdb)
	auditRepo := auditpg.NewAuditRepository(gdb)
	matterRepo := matterpg.NewMatterRepository(gdb)
	clientRepo := clientpg.NewClientRepository(gdb)
	expenseRepo := expensepg.NewExpenseRepository(gdb)

	// authentication
	tokenGen := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authRepo, tokenGen, cfg.Security.BCryptCost)

	// tenant resolution
	tenantService := tenant.NewService(tenantRepo)
	resolver := tenant.NewResolver(tenantService, log)

	// authorization
	evaluator := authz.NewEvaluator(authzRepo, auditRepo, cfg.Authz.CacheTTL, cfg.Authz.CacheMaxUsers, log)
	evaluator.RegisterResolver("matter", matterRepo)
	evaluator.RegisterResolver("expense", expenseRepo)
	guard := authz.NewAuthorizer(evaluator, log)
	authzService := authz.NewService(authzRepo, evaluator, log)

	// domain services
	auditService := audit.NewService(auditRepo, log)
	userService := user.NewService(userRepo)
	matterService := matter.NewService(matterRepo, log)
	clientService := client.NewService(clientRepo, log)
	expenseService := expense.NewService(expenseRepo, matterRepo, deps.EventBus, log)

	handlers := rest.Handlers{
		Auth:    auth.NewHandler(authService),
		Authz:   authz.NewHandler(authzService),
		Audit:   audit.NewHandler(auditService),
		User:    user.NewHandler(userService),
		Matter:  matter.NewHandler(matterService),
		Client:  client.NewHandler(clientService),
		Expense: expense.NewHandler(expenseService),
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, handlers, resolver, guard)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWith(os.Getenv("APP_ENV"), config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	return &Dependencies{
		Config:   config,
		Logger:   log,
		DB:       db,
		GormDB:   gdb,
		Router:   chi.NewRouter(),
		EventBus: events.NewEventBus(log),
	}, nil
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the shared pgx pool and installs the tenant row filter.
// Every gorm session issued from this handle is tenant-constrained.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := tenant.RegisterCallbacks(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}
