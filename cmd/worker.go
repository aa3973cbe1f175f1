package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astarworks/astar-management/internal/audit"
	auditpg "github.com/astarworks/astar-management/internal/audit/postgres"
	"github.com/astarworks/astar-management/internal/client"
	"github.com/astarworks/astar-management/internal/core/events"
	"github.com/astarworks/astar-management/internal/expense"
	"github.com/astarworks/astar-management/internal/matter"
	"github.com/astarworks/astar-management/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers: audit retention, event observers.`,
}

var retentionWorkerCmd = &cobra.Command{
	Use:   "audit-retention",
	Short: "Start the audit retention worker",
	Long:  `Purge audit entries older than the configured retention window, in batches, across all tenants.`,
	Run: func(cmd *cobra.Command, args []string) {
		startRetentionWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start the domain event observer",
	Long:  `Subscribe to domain lifecycle events and log them for operators.`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	retentionDays  int
	purgeBatchSize int
	maxWorkers     int
	jobQueueSize   int
	sweepInterval  time.Duration
)

func startRetentionWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWith(os.Getenv("APP_ENV"), config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gdb, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	retentionConfig := audit.RetentionConfig{
		RetentionDays:  getIntFlag(retentionDays, config.Audit.RetentionDays),
		PurgeBatchSize: getIntFlag(purgeBatchSize, config.Audit.PurgeBatchSize),
		MaxWorkers:     getIntFlag(maxWorkers, config.Audit.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, config.Audit.JobQueueSize),
		SweepInterval:  sweepInterval,
	}

	log.Info("starting audit retention worker",
		"retention_days", retentionConfig.RetentionDays,
		"purge_batch_size", retentionConfig.PurgeBatchSize,
		"max_workers", retentionConfig.MaxWorkers,
		"sweep_interval", retentionConfig.SweepInterval)

	retention := audit.NewRetention(retentionConfig, auditpg.NewAuditRepository(gdb), log)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go retention.Run(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down retention worker", "signal", sig)
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		retention.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("retention worker shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}
}

func startEventWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWith(os.Getenv("APP_ENV"), config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.L()

	eventBus := events.NewEventBus(log)

	observer := events.LoggingSubscriber(eventBus)
	for _, eventType := range []string{
		expense.EventExpenseSubmit,
		expense.EventExpenseApprove,
		expense.EventExpenseReject,
		matter.EventMatterCreate,
		matter.EventMatterStatus,
		client.EventClientCreate,
	} {
		eventBus.Subscribe(eventType, observer)
	}

	log.Info("event observer started, waiting for events")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down event observer", "signal", sig)
	eventBus.Drain()
	log.Info("event observer shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	retentionWorkerCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Retention window in days (overrides config)")
	retentionWorkerCmd.Flags().IntVar(&purgeBatchSize, "purge-batch-size", 0, "Rows deleted per batch (overrides config)")
	retentionWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	retentionWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	retentionWorkerCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "Interval between purge sweeps")

	workerCmd.AddCommand(retentionWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
