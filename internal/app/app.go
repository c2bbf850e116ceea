// Package app assembles the sync engine from configuration: stores, source
// fetcher, event publisher, worker pool, job manager, scheduler and service.
// Both the HTTP server and the CLI build their engine through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/menusync/internal/config"
	"github.com/JonMunkholm/menusync/internal/core"
	"github.com/JonMunkholm/menusync/internal/events"
	"github.com/JonMunkholm/menusync/internal/source"
	"github.com/JonMunkholm/menusync/internal/store/memory"
	"github.com/JonMunkholm/menusync/internal/store/postgres"
	redisstore "github.com/JonMunkholm/menusync/internal/store/redis"
)

// cleanupInterval is how often expired job results are dropped.
const cleanupInterval = 5 * time.Minute

// App is a wired engine.
type App struct {
	Service   *core.Service
	Pool      *core.WorkerPool
	Jobs      *core.JobManager
	Scheduler *core.Scheduler
	Fetcher   *source.Fetcher

	// DB is nil unless a store is backed by postgres.
	DB *pgxpool.Pool

	closers []func() error
}

// New connects the configured backends and wires the engine. Nothing runs
// until Start. On error every backend opened so far is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.NeedsDatabase() {
		a.DB, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { a.DB.Close(); return nil })

		if cfg.Database.AutoMigrate {
			if err = postgres.Migrate(ctx, a.DB, "up"); err != nil {
				return nil, err
			}
		}
	}

	catalog, err := a.catalogStore(cfg)
	if err != nil {
		return nil, err
	}
	schedules, err := a.scheduleStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fetcherOpts := []source.Option{source.WithBaseDir(cfg.Sync.SourceDir)}
	if cfg.S3.Enabled {
		fetcherOpts = append(fetcherOpts, source.WithS3(source.NewS3Client(source.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})))
	}
	a.Fetcher = source.NewFetcher(cfg.Upload.MaxFileSize, fetcherOpts...)

	var publisher core.EventPublisher = core.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	syncer := core.NewSyncer(a.Fetcher, core.NewReconciler(catalog, core.NewTenantLocks()), core.SyncerConfig{
		MaxFileSize: cfg.Upload.MaxFileSize,
		JobTimeout:  cfg.Sync.JobTimeout,
		Parse:       core.ParseOptions{Sheet: cfg.Sync.SheetName},
	})

	a.Pool = core.NewWorkerPool(cfg.Sync.Workers, cfg.Sync.QueueSize, cfg.Sync.QueueWait)
	a.Jobs = core.NewJobManager(a.Pool, syncer, publisher, cfg.Sync.JobRetention)
	a.Scheduler = core.NewScheduler(schedules, a.Jobs, cfg.Sync.Location())
	a.Service = core.NewService(a.Jobs, a.Scheduler, cfg.Sync.WaitTimeout)

	slog.Info("sync engine configured",
		"catalog_store", cfg.Sync.CatalogStore,
		"schedule_store", cfg.Sync.ScheduleStore,
		"workers", cfg.Sync.Workers,
		"queue_size", cfg.Sync.QueueSize,
		"s3_enabled", cfg.S3.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled(),
	)
	return a, nil
}

func (a *App) catalogStore(cfg *config.Config) (core.CatalogStore, error) {
	switch cfg.Sync.CatalogStore {
	case config.BackendPostgres:
		return postgres.NewCatalog(a.DB), nil
	case config.BackendMemory:
		return memory.NewCatalog(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog store %q", cfg.Sync.CatalogStore)
	}
}

func (a *App) scheduleStore(ctx context.Context, cfg *config.Config) (core.ScheduleStore, error) {
	switch cfg.Sync.ScheduleStore {
	case config.BackendPostgres:
		return postgres.NewSchedules(a.DB), nil
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return redisstore.NewSchedules(client, cfg.Redis.KeyPrefix), nil
	case config.BackendMemory:
		return memory.NewSchedules(), nil
	default:
		return nil, fmt.Errorf("unsupported schedule store %q", cfg.Sync.ScheduleStore)
	}
}

// Start runs the worker pool, the expired-job cleanup and the scheduler.
// Jobs and cron fires use ctx.
func (a *App) Start(ctx context.Context) error {
	a.StartWorkers(ctx)
	go a.Jobs.StartCleanup(ctx, cleanupInterval)
	return a.Scheduler.Start(ctx)
}

// StartWorkers runs only the worker pool, for one-off syncs that must not
// fire persisted schedules.
func (a *App) StartWorkers(ctx context.Context) {
	a.Pool.Start(ctx)
}

// Drain stops the scheduler and waits until queued and running syncs finish
// or ctx ends. Uploads already accepted still complete.
func (a *App) Drain(ctx context.Context) error {
	a.Scheduler.Stop()

	status := a.Pool.Status()
	if status.Active > 0 || status.Queued > 0 {
		slog.Info("waiting for sync jobs to complete", "active", status.Active, "queued", status.Queued)
	}
	return a.Pool.WaitForDrain(ctx)
}

// Shutdown stops the scheduler, drains the pool within ctx and closes the
// backends.
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()

	var errs []error
	if err := a.Pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close releases backends in reverse order of opening.
func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
