// Command worker is the control-plane process: it loads the account
// snapshot, wires C1-C8 behind internal/service, and drives every
// scheduled task (curve fitting, effect tracking, rollback evaluation,
// pacing, consistency checks) to completion. There is no HTTP layer —
// spec §1 scopes the RPC surface out; internal/service is the seam a
// future API would sit behind. Grounded on the teacher's
// tools/cmd/server/main.go composition root (patrickwarner-openadserve),
// minus the mux/http wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/analytics"
	"github.com/patrickwarner/bidops/internal/batch"
	"github.com/patrickwarner/bidops/internal/config"
	"github.com/patrickwarner/bidops/internal/coordinator"
	"github.com/patrickwarner/bidops/internal/curvefit"
	"github.com/patrickwarner/bidops/internal/dataplane"
	"github.com/patrickwarner/bidops/internal/db"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/patrickwarner/bidops/internal/ratelimit"
	"github.com/patrickwarner/bidops/internal/scheduler"
	"github.com/patrickwarner/bidops/internal/service"
	"github.com/patrickwarner/bidops/internal/tracking"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("worker error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	metrics := observability.NewPrometheusRegistry()

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	stream, err := analytics.InitClickHouse(cfg.ClickHouseDSN, metrics)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer stream.Close()

	store := models.NewInMemoryStore()
	if err := loadAccountSnapshot(ctx, pg, store, logger); err != nil {
		return fmt.Errorf("load account snapshot: %w", err)
	}

	plane := &dataplane.DataPlane{Report: pg, Stream: stream, Params: store.AlgorithmParams}
	checker := &dataplane.ConsistencyChecker{Plane: plane, Metrics: metrics, Logger: logger, AMSBackfillThreshold: 4 * time.Hour}

	coord := &coordinator.Coordinator{
		Locks:   coordinator.NewLockTable(),
		Params:  store.AlgorithmParams,
		Metrics: metrics,
		Logger:  logger,
	}

	curveFit := &curvefit.Engine{Data: plane, Logger: logger}

	dispatcher := &batch.Dispatcher{Store: store, Negatives: batch.NewNegativeKeywordStore()}
	batchMachine := &batch.Machine{
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		RollbackWindow: 24 * time.Hour,
	}

	tracker := &tracking.Tracker{Metrics: metrics, Logger: logger}

	svc := service.New(store, logger, metrics)
	svc.CurveFit = curveFit
	svc.Plane = plane
	svc.Checker = checker
	svc.Coord = coord
	svc.BatchMach = batchMachine
	svc.Tracker = tracker
	svc.Redis = redisStore
	svc.Postgres = pg
	svc.RateLimit = ratelimit.NewRegistry(cfg.RateLimitCapacity, cfg.RateLimitRefillRate, metrics)

	pool := scheduler.NewPool(logger, scheduler.PoolConfig{
		Name:        "control-plane",
		NumWorkers:  cfg.SchedulerWorkers,
		QueueSize:   cfg.SchedulerQueueDepth,
		TaskTimeout: cfg.TaskTimeout,
	})
	pool.Start()
	defer func() {
		if err := pool.Stop(5 * time.Second); err != nil {
			logger.Warn("scheduler pool shutdown", zap.Error(err))
		}
	}()

	sched := &scheduler.Scheduler{
		Pool:     pool,
		Metrics:  metrics,
		Logger:   logger,
		Handlers: taskHandlers(svc),
	}

	logger.Info("bidops control plane running")

	ticker := time.NewTicker(cfg.TaskTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			tasks := duePollTasks(store)
			sched.RunDue(ctx, tasks, time.Now().UTC())
			observability.LogSamplingStats(logger)
		}
	}
}

// taskHandlers maps every scheduled TaskType to the Service method that
// runs it (spec §5: "scheduler... drives ScheduledTasks to completion").
// Every handler draws from the rate-limit registry before running, per
// spec §5's "proposal sources and sync jobs draw from it".
func taskHandlers(svc *service.Service) map[models.TaskType]scheduler.Handler {
	handlers := map[models.TaskType]scheduler.Handler{
		models.TaskCurveFit: func(ctx context.Context, task models.ScheduledTask) error {
			_, err := svc.RunUnifiedOptimization(ctx, task.AccountID, service.OptimizationInput{CampaignIDs: task.Parameters.CampaignIDs})
			return err
		},
		models.TaskCoordinatorCycle: func(ctx context.Context, task models.ScheduledTask) error {
			_, err := svc.RunUnifiedOptimization(ctx, task.AccountID, service.OptimizationInput{CampaignIDs: task.Parameters.CampaignIDs})
			return err
		},
		models.TaskPacingCheck: func(ctx context.Context, task models.ScheduledTask) error {
			_, err := svc.CheckAllCampaignsPacing(ctx, task.AccountID)
			return err
		},
		models.TaskEffectTracking: func(ctx context.Context, task models.ScheduledTask) error {
			horizon := task.Parameters.TrackingHorizon
			if horizon == 0 {
				horizon = models.Horizon7Day
			}
			_, err := svc.RunEffectTrackingTask(ctx, horizon)
			return err
		},
		models.TaskRollbackEval: func(ctx context.Context, task models.ScheduledTask) error {
			svc.RunEvaluation(ctx, task.AccountID)
			return nil
		},
		models.TaskConsistencyCheck: func(ctx context.Context, task models.ScheduledTask) error {
			now := time.Now().UTC()
			_, err := svc.RunConsistencyCheck(ctx, task.AccountID, now.AddDate(0, 0, -7), now)
			return err
		},
	}
	for taskType, h := range handlers {
		handlers[taskType] = rateLimited(svc, taskType, h)
	}
	return handlers
}

// rateLimited wraps a task handler so it suspends on svc.RateLimit before
// running, keyed by its own task type as the apiFamily (spec §5).
func rateLimited(svc *service.Service, taskType models.TaskType, h scheduler.Handler) scheduler.Handler {
	return func(ctx context.Context, task models.ScheduledTask) error {
		if svc.RateLimit != nil {
			if err := svc.RateLimit.Wait(ctx, task.AccountID, string(taskType)); err != nil {
				return err
			}
		}
		return h(ctx, task)
	}
}

// duePollTasks builds the recurring task set this process drives every
// cycle, one per account currently loaded in the store. A future
// persistence layer for scheduled_tasks (already in the Postgres schema)
// would replace this with a real read of the scheduled_tasks table.
func duePollTasks(store models.Store) []models.ScheduledTask {
	now := time.Now().UTC()
	var tasks []models.ScheduledTask
	seen := make(map[string]bool)
	for _, t := range store.ListTargetsByAccount("") {
		seen[t.AccountID] = true
	}
	for accountID := range seen {
		for _, taskType := range []models.TaskType{
			models.TaskCoordinatorCycle,
			models.TaskPacingCheck,
			models.TaskEffectTracking,
			models.TaskRollbackEval,
			models.TaskConsistencyCheck,
		} {
			tasks = append(tasks, models.ScheduledTask{
				ID:        accountID + ":" + string(taskType),
				TaskType:  taskType,
				AccountID: accountID,
				Enabled:   true,
				NextRun:   now,
			})
		}
	}
	return tasks
}

func loadAccountSnapshot(ctx context.Context, pg *db.Postgres, store *models.InMemoryStore, logger *zap.Logger) error {
	params, ok, err := pg.LoadAlgorithmParams(ctx)
	if err != nil {
		return fmt.Errorf("load algorithm params: %w", err)
	}
	if ok {
		store.SetAlgorithmParams(params)
	} else {
		defaults := models.DefaultAlgorithmParams()
		if err := pg.SaveAlgorithmParams(ctx, defaults); err != nil {
			return fmt.Errorf("save default algorithm params: %w", err)
		}
		store.SetAlgorithmParams(defaults)
	}

	accountIDs, err := pg.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("list account ids: %w", err)
	}

	var allTargets []models.Target
	var allCampaigns []models.Campaign
	var allGroups []models.PerformanceGroup
	for _, accountID := range accountIDs {
		targets, err := pg.LoadTargets(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load targets for %s: %w", accountID, err)
		}
		campaigns, err := pg.LoadCampaigns(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load campaigns for %s: %w", accountID, err)
		}
		groups, err := pg.LoadPerformanceGroups(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load performance groups for %s: %w", accountID, err)
		}
		allTargets = append(allTargets, targets...)
		allCampaigns = append(allCampaigns, campaigns...)
		allGroups = append(allGroups, groups...)
	}

	if err := store.ReloadAll(allTargets, allCampaigns, allGroups); err != nil {
		return fmt.Errorf("reload account snapshot: %w", err)
	}
	logger.Info("loaded account snapshot",
		zap.Int("accounts", len(accountIDs)),
		zap.Int("targets", len(allTargets)),
		zap.Int("campaigns", len(allCampaigns)))
	return nil
}
