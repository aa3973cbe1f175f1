package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astarworks/astar-management/internal/tenant"
)

// PurgeJob asks a worker to delete one batch of expired audit entries.
type PurgeJob struct {
	Cutoff    time.Time
	BatchSize int
}

type retentionWorker struct {
	ID         int
	WorkerPool chan chan PurgeJob
	JobChannel chan PurgeJob
	Logger     *slog.Logger
}

func newRetentionWorker(id int, workerPool chan chan PurgeJob, logger *slog.Logger) *retentionWorker {
	return &retentionWorker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan PurgeJob),
		Logger:     logger,
	}
}

func (w *retentionWorker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(PurgeJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("retention worker processing batch", "worker_id", w.ID, "cutoff", job.Cutoff)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("retention worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// RetentionConfig tunes the purge worker pool.
type RetentionConfig struct {
	RetentionDays  int
	PurgeBatchSize int
	MaxWorkers     int
	JobQueueSize   int
	SweepInterval  time.Duration
}

// Retention purges audit entries past the configured retention window. It
// is the only code path that deletes from audit_logs, and it runs under a
// cross-tenant system session -- never inside a request.
type Retention struct {
	repo   RepositoryAPI
	logger *slog.Logger

	retentionDays int
	batchSize     int
	sweepInterval time.Duration

	jobQueue   chan PurgeJob
	workerPool chan chan PurgeJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewRetention(cfg RetentionConfig, repo RepositoryAPI, logger *slog.Logger) *Retention {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	batchSize := cfg.PurgeBatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	r := &Retention{
		repo:          repo,
		logger:        logger,
		retentionDays: cfg.RetentionDays,
		batchSize:     batchSize,
		sweepInterval: sweepInterval,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan PurgeJob, jobQueueSize),
		workerPool: make(chan chan PurgeJob, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	r.startWorkerPool()

	return r
}

func (r *Retention) startWorkerPool() {
	r.once.Do(func() {
		for i := 0; i < r.maxWorkers; i++ {
			worker := newRetentionWorker(i, r.workerPool, r.logger)
			worker.Start(r.ctx, &r.wg, r.processPurgeJob)
		}

		go r.dispatch()

		r.logger.Info("audit retention worker pool started",
			"max_workers", r.maxWorkers,
			"retention_days", r.retentionDays,
			"queue_size", cap(r.jobQueue))
	})
}

func (r *Retention) dispatch() {
	r.wg.Add(1)
	defer r.wg.Done()

	for {
		select {
		case job := <-r.jobQueue:
			select {
			case jobChannel := <-r.workerPool:
				select {
				case jobChannel <- job:
				case <-r.ctx.Done():
					r.logger.Info("retention dispatcher shutting down")
					return
				}
			case <-r.ctx.Done():
				r.logger.Info("retention dispatcher shutting down")
				return
			}
		case <-r.ctx.Done():
			r.logger.Info("retention dispatcher shutting down")
			return
		}
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Retention) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.Sweep()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep enqueues one purge batch for the current cutoff.
func (r *Retention) Sweep() {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)
	select {
	case r.jobQueue <- PurgeJob{Cutoff: cutoff, BatchSize: r.batchSize}:
	default:
		r.logger.Warn("retention job queue full, skipping sweep")
	}
}

func (r *Retention) processPurgeJob(job PurgeJob) {
	ctx := tenant.AsSystem(r.ctx)

	for {
		purged, err := r.repo.PurgeBefore(ctx, job.Cutoff, job.BatchSize)
		if err != nil {
			r.logger.Error("audit purge batch failed", "error", err, "cutoff", job.Cutoff)
			return
		}
		if purged == 0 {
			return
		}
		r.logger.Info("purged expired audit entries", "count", purged, "cutoff", job.Cutoff)
		if purged < int64(job.BatchSize) {
			return
		}
	}
}

func (r *Retention) Shutdown() {
	r.logger.Info("shutting down audit retention")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("audit retention shutdown complete")
}
