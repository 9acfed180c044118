package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/crm-topology-worker/internal/config"
	"github.com/septivank/crm-topology-worker/internal/crm"
	"github.com/septivank/crm-topology-worker/internal/db"
	"github.com/septivank/crm-topology-worker/internal/guard"
	"github.com/septivank/crm-topology-worker/internal/metrics"
	"github.com/septivank/crm-topology-worker/internal/mq"
	"github.com/septivank/crm-topology-worker/internal/reconcile"
	"github.com/septivank/crm-topology-worker/internal/repository"
	"github.com/septivank/crm-topology-worker/internal/scheduler"
	"github.com/septivank/crm-topology-worker/internal/service"
	"github.com/septivank/crm-topology-worker/internal/topology"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const syncJobName = "crm-topology-sync"

func startScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	syncSvc *service.SyncService,
) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(logger, cfg.Sync.RunTimeout)

	job := scheduler.JobFunc(syncJobName, func(ctx context.Context) error {
		return syncSvc.RunWithRetry(ctx, service.TriggerSchedule)
	})
	if _, err := sched.Register(cfg.Sync.Schedule, job); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			sched.Start()
			if cfg.Sync.RunOnStart {
				sched.RunNow(scheduler.JobFunc(syncJobName, func(ctx context.Context) error {
					return syncSvc.RunWithRetry(ctx, service.TriggerStartup)
				}))
			}
			logger.Info("scheduler started",
				zap.String("schedule", cfg.Sync.Schedule),
				zap.Bool("run_on_start", cfg.Sync.RunOnStart))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			select {
			case <-sched.Stop().Done():
				logger.Info("scheduler stopped gracefully")
			case <-stopCtx.Done():
				logger.Warn("scheduler stop timed out with a run still active")
			}
			return nil
		},
	})

	return sched, nil
}

func startTriggerConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	syncSvc *service.SyncService,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Exchange:      cfg.RabbitMQ.TriggerExchange,
		Queue:         cfg.RabbitMQ.TriggerQueue,
		RoutingKey:    cfg.RabbitMQ.TriggerRoutingKey,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       syncSvc.HandleSyncRequest,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting sync trigger consumer",
				zap.String("queue", cfg.RabbitMQ.TriggerQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			return nil
		},
	})

	return consumer, nil
}

// ProvideCRMClient creates the CRM API client
func ProvideCRMClient(cfg *config.Config) *crm.Client {
	return crm.NewClient(cfg.CRM)
}

// ProvideReconciler creates the reconciler over the CRM client
func ProvideReconciler(client *crm.Client, cfg *config.Config, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.NewReconciler(client, logger, reconcile.WithConcurrency(cfg.Sync.Concurrency))
}

// ProvideRepository creates the topology repository and ensures its schema on start
func ProvideRepository(lc fx.Lifecycle, pool *pgxpool.Pool) *repository.TopologyRepository {
	repo := repository.NewTopologyRepository(pool)
	lc.Append(fx.Hook{
		OnStart: repo.EnsureSchema,
	})
	return repo
}

// ProvideShrinkGuard creates the shrink guard
func ProvideShrinkGuard(repo *repository.TopologyRepository, cfg *config.Config, logger *zap.Logger) *guard.ShrinkGuard {
	return guard.NewShrinkGuard(cfg.Sync.MaxShrinkRatio, repo, logger)
}

// ProvidePublisher creates a new publisher instance
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideSyncService creates the sync service; the guard runs before the store
func ProvideSyncService(
	reconciler *reconcile.Reconciler,
	shrinkGuard *guard.ShrinkGuard,
	repo *repository.TopologyRepository,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.SyncService {
	sinks := []topology.Sink{shrinkGuard, repo}
	return service.NewSyncService(reconciler, sinks, publisher, cfg, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideMetricsServer creates the /metrics and /healthz listener
func ProvideMetricsServer(
	lc fx.Lifecycle,
	logger *zap.Logger,
	cfg *config.Config,
	pool *pgxpool.Pool,
	conn *mq.Connection,
) *http.Server {
	return metrics.NewServer(lc, logger, cfg.ServicePort, map[string]metrics.HealthCheck{
		"database": pool.Ping,
		"rabbitmq": conn.Ping,
	})
}
