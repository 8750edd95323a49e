package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/feedrelay/internal/activity"
	"github.com/ricirt/feedrelay/internal/config"
	"github.com/ricirt/feedrelay/internal/db"
	"github.com/ricirt/feedrelay/internal/feed"
	"github.com/ricirt/feedrelay/internal/metrics"
	"github.com/ricirt/feedrelay/internal/publish"
	"github.com/ricirt/feedrelay/internal/ratelimiter"
	"github.com/ricirt/feedrelay/internal/service"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/worker"
)

// app holds every long-lived component of a running process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	activity  *activity.Log
	registry  *prometheus.Registry
	runtime   *config.RuntimeStore
	state     *store.State
	acquirer  *publish.Acquirer
	scheduler *worker.Scheduler
	service   *service.PipelineService
}

// loadConfig reads the environment config and applies the --runtime flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path, _ := cmd.Flags().GetString("runtime"); path != "" {
		cfg.RuntimeFile = path
	}
	return cfg, nil
}

// newLogger builds the production zap logger and tees it into the activity
// ring served by /api/v1/logs.
func newLogger(level string, ring *activity.Log) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, activity.NewCore(ring, zapcore.InfoLevel))
	})), nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ring := activity.New(cfg.LogBuffer)
	logger, err := newLogger(cfg.LogLevel, ring)
	if err != nil {
		return nil, err
	}

	// ---- runtime config (targets + policy) ----
	rt, err := config.NewRuntimeStore(cfg.RuntimeFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime config: %w", err)
	}

	// ---- durable document ----
	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	state, err := store.Open(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open pipeline state: %w", err)
	}
	logger.Info("pipeline state loaded",
		zap.String("store", cfg.StoreBackend),
		zap.Int("queued", len(state.Snapshot().Queue)))

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hooks := m.PipelineHooks()
	limiter := ratelimiter.New(cfg.FeedRatePerMinute, cfg.PublishRatePerMinute)

	source := feed.NewClient(feed.Config{
		BaseURL: cfg.FeedBaseURL,
		APIKey:  cfg.FeedAPIKey,
		Timeout: cfg.FeedTimeout,
	}, limiter)
	acquirer := publish.NewAcquirer(executorFactory(cfg, limiter, logger), logger)

	pipeline := worker.NewPipelineState()
	poller := worker.NewPoller(source, state, rt, pipeline, hooks, logger.Named("poller"))
	processor := worker.NewProcessor(state, rt, acquirer, pipeline, worker.ProcessorConfig{
		MaxAttempts:      cfg.MaxAttempts,
		DisabledDeferral: cfg.DisabledDeferral,
		PublishTimeout:   cfg.PublishTimeout,
	}, hooks, logger.Named("processor"))
	scheduler := worker.NewScheduler(poller, processor, pipeline,
		cfg.PollInterval, cfg.DrainInterval, hooks, logger.Named("scheduler"))

	svc := service.NewPipelineService(scheduler, pipeline, state, rt, ring, logger)

	return &app{
		cfg: cfg, logger: logger, activity: ring, registry: reg, runtime: rt,
		state: state, acquirer: acquirer, scheduler: scheduler, service: svc,
	}, nil
}

// close releases the executor and the store. Cycles must have finished.
func (a *app) close() {
	if err := a.acquirer.Close(); err != nil {
		a.logger.Warn("failed to close publish executor", zap.Error(err))
	}
	if err := a.state.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
		return store.NewPostgresStore(pool), nil
	case config.StoreMemory:
		logger.Warn("memory store selected: pipeline state is lost on exit")
		return store.NewMemoryStore(nil), nil
	default:
		s, err := store.NewFileStore(cfg.StatePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return s, nil
	}
}

// executorFactory builds the configured publish backend. It is invoked
// lazily by the acquirer, so credentials are re-checked after a reset.
func executorFactory(cfg *config.Config, limiter *ratelimiter.Limiters, logger *zap.Logger) publish.Factory {
	if cfg.PublishBackend == config.PublishBrowser {
		return func(ctx context.Context) (publish.Executor, error) {
			c, err := publish.OpenBrowser(ctx, publish.BrowserConfig{
				BaseURL:   cfg.BrowserBaseURL,
				AuthToken: cfg.BrowserAuthToken,
				RemoteURL: cfg.BrowserRemoteURL,
				Bin:       cfg.BrowserBin,
				Timeout:   cfg.PublishTimeout,
			}, logger.Named("browser"))
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return func(context.Context) (publish.Executor, error) {
		c, err := publish.NewRESTClient(publish.RESTConfig{
			BaseURL: cfg.PublishBaseURL,
			Token:   cfg.PublishToken,
			UserID:  cfg.PublishUserID,
			Timeout: cfg.PublishTimeout,
		}, limiter)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
