package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/config"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/email"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/health"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/memory"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/pipeline-scheduler/internal/log"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/metrics"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/pipeline"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/scheduler"
	httptransport "github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	reapInterval    = time.Hour
)

func newRunCmd(flags *flagOverrides) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and block until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := ctxlog.New(os.Stdout, cfg.JSONLogs(), cfg.SlogLevel())
	slog.SetDefault(logger)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	pipelines, err := pipeline.LoadFile(cfg.PipelinesFile)
	if err != nil {
		logger.Error("load pipelines", "file", cfg.PipelinesFile, "error", err)
		return err
	}

	// Run history
	var (
		runs repository.RunRepository
		db   health.Pinger
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect run history database", "error", err)
			return err
		}
		defer pool.Close()

		repo := postgres.NewRunRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("prepare run history schema", "error", err)
			return err
		}
		runs, db = repo, pool
		logger.Info("db connected")
	} else {
		runs = memory.NewRunRepository(cfg.HistorySize)
		logger.Info("run history kept in memory", "size", cfg.HistorySize)
	}

	sinks, closeSinks := openSinks(ctx, pipelines, logger)
	defer closeSinks()

	metrics.Register()

	loc := cfg.Location()
	clock := func() time.Time { return time.Now().In(loc) }

	// Pipelines that fail to build or register are skipped; the rest run.
	registry := scheduler.NewRegistry(scheduler.WithClock(clock))
	defs, err := pipelines.Definitions(&http.Client{}, sinks)
	if err != nil {
		logger.Error("some pipelines could not be built", "error", err)
	}
	for _, d := range defs {
		if err := registry.Register(d.JobID, d.CronExpr, d.Job, scheduler.WithRetryPolicy(d.Retry)); err != nil {
			logger.Error("skipping pipeline", "job_id", d.JobID, "error", err)
			continue
		}
		entry, _ := registry.Get(d.JobID)
		logger.Info("pipeline scheduled", "job_id", d.JobID, "cron_expr", d.CronExpr, "next_fire_at", entry.NextFireAt)
	}
	if registry.Len() == 0 {
		logger.Warn("no pipelines scheduled")
	}

	runnerOpts := []scheduler.RunnerOption{scheduler.WithRunRepository(runs)}
	if cfg.AlertEmailTo != "" {
		sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
		runnerOpts = append(runnerOpts, scheduler.WithFailureNotifier(email.NewFailureAlerter(sender, cfg.AlertEmailTo, cfg.AlertMaxPerHour)))
	}

	runner := scheduler.NewRunner(logger, cfg.RetryPolicy(), runnerOpts...)
	workers := scheduler.NewPool(runner, logger, cfg.WorkerCount)
	dispatcher := scheduler.NewDispatcher(registry, workers, logger, cfg.TickInterval(), scheduler.WithDispatcherClock(clock))
	coordinator := scheduler.NewCoordinator(dispatcher, workers, logger, cfg.DrainTimeout())

	checker := health.NewChecker(db, coordinator, logger, prometheus.DefaultRegisterer)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if cfg.RunRetentionHours > 0 {
		reaper := scheduler.NewReaper(runs, logger, reapInterval, cfg.RunRetention())
		go reaper.Start(bgCtx)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	adminSrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(
			logger,
			handler.NewScheduleHandler(registry, dispatcher, logger),
			handler.NewRunHandler(runs, logger),
			[]byte(cfg.AdminJWTSecret),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("admin server started", "port", cfg.Port, "auth", cfg.AdminJWTSecret != "")
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server", "error", err)
		}
	}()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	logger.Info("scheduler started", "schedules", registry.Len(), "timezone", loc.String(), "workers", cfg.WorkerCount)

	if err := coordinator.Start(ctx, signals); err != nil {
		logger.Warn("drain cut short, in-flight runs were cancelled", "error", err)
	}
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
	return nil
}

// openSinks connects every postgres target. A target that cannot be reached
// is logged and left out, which later skips the pipelines writing to it.
func openSinks(ctx context.Context, cfg *pipeline.Config, logger *slog.Logger) (map[string]pipeline.Sink, func()) {
	sinks := make(map[string]pipeline.Sink, len(cfg.Targets))
	var pools []*pgxpool.Pool

	for name, target := range cfg.Targets {
		pool, err := postgres.NewPool(ctx, target.URL, postgres.WithMaxConns(4))
		if err != nil {
			logger.Error("connect target", "target", name, "error", err)
			continue
		}
		pools = append(pools, pool)
		sinks[name] = postgres.NewSink(pool)
		logger.Info("target connected", "target", name)
	}

	return sinks, func() {
		for _, p := range pools {
			p.Close()
		}
	}
}
