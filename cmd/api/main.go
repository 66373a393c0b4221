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

	"mentor-training-platform/internal/audit"
	"mentor-training-platform/internal/auth"
	"mentor-training-platform/internal/config"
	"mentor-training-platform/internal/evaluation"
	"mentor-training-platform/internal/httpapi"
	"mentor-training-platform/internal/metrics"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
	"mentor-training-platform/internal/recording"
	"mentor-training-platform/internal/reporting"
	"mentor-training-platform/internal/scenario"
	"mentor-training-platform/internal/task"
	"mentor-training-platform/internal/voiceai"
	"mentor-training-platform/pkg/logger"
	"mentor-training-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := metrics.New()

	// Stores.
	calls := practicecall.NewPostgresStore(db)
	scenarios := scenario.NewPostgresStore(db)

	// Provider adapter.
	provider := voiceai.NewRinggProvider(cfg.Provider)
	if err := provider.HealthCheck(rootCtx); err != nil {
		// Degraded, not fatal: calls without an external bridge still work.
		log.Warn("voiceai provider unreachable at startup", "provider", provider.Name(), "err", err)
	}

	// Recording poller. Its context is detached from request lifecycles on
	// purpose: polls outlive the HTTP calls that trigger them. pollCancel
	// fires only after Drain, so interrupted loops persist their attempts.
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	scheduler := recording.NewScheduler(pollCtx, recording.SchedulerOptions{
		Store:    calls,
		Provider: provider,
		Locks:    recording.NewRedisLocker(rdb),
		Log:      log,
		Metrics:  reg,
		Tuning:   recording.TuningFromConfig(cfg.Poll),
	})

	// Evaluation orchestrator.
	evaluator := evaluation.NewService(evaluation.ServiceOptions{
		Store:        calls,
		Scorer:       evaluation.NewScorerFromConfig(cfg.LLM, log),
		Log:          log,
		Metrics:      reg,
		BatchWorkers: cfg.Task.SweepWorkers,
	})

	// Supporting services.
	quotaSvc := quota.NewService(db, cfg.Quota.MinBillableSeconds)
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	reports := reporting.NewService(reporting.NewPostgresRepo(calls, quotaSvc))

	catalog := scenario.NewCatalog(scenarios)
	pins := scenario.NewPinEngine(scenarios, catalog, scenario.AuditAdapter{Audit: auditSvc})
	resolver := scenario.NewResolver(pins, catalog, reporting.ProgressAdapter{Reports: reports}, log)

	// Scheduled sweeps.
	runner, err := task.NewRunner(task.Options{
		Evaluator: evaluator,
		Calls:     calls,
		Scheduler: scheduler,
		Cfg:       cfg.Task,
		Log:       log,
	})
	if err != nil {
		log.Error("task runner init failed", "err", err)
		os.Exit(1)
	}
	runner.Start()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:  cfg,
		auth: authManager,
		handlers: httpapi.Handlers{
			Auth:      authManager,
			Calls:     calls,
			Scheduler: scheduler,
			Evaluator: evaluator,
			Quota:     quotaSvc,
			Catalog:   catalog,
			Resolver:  resolver,
			Pins:      pins,
			Reports:   reports,
			Audit:     auditSvc,
		},
		provider:  provider,
		calls:     calls,
		scheduler: scheduler,
		quota:     quotaSvc,
		metrics:   reg,
		db:        db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Warn("task runner stop timed out", "err", err)
	}
	// In-flight polls persist their attempt counts; the stale-poll sweep
	// resumes them after restart.
	if err := scheduler.Drain(shutdownCtx); err != nil {
		log.Warn("recording polls still in flight at shutdown", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
