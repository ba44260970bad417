package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dealerhub/dealerhub/internal/app"
	"github.com/dealerhub/dealerhub/internal/auth"
	jobmetrics "github.com/dealerhub/dealerhub/internal/jobs"
	"github.com/dealerhub/dealerhub/internal/platform/cache"
	"github.com/dealerhub/dealerhub/internal/platform/db"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/jobs"
)

// sessionGrace keeps expired session rows around briefly for audit lookups.
const sessionGrace = time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	rbacService := rbac.NewService(rbac.NewRepository(pool), rbac.DefaultCatalog(), logger)
	authzCache := rbac.NewCache(redisClient, cfg.AuthzCacheTTL)
	catalogJob := jobs.NewCatalogSyncJob(rbacService, authzCache, logger, metrics)

	// Cleanup only touches session rows; no cookie sessions are served here.
	authService := auth.NewService(auth.NewRepository(pool), nil, logger)
	cleanupJob := jobs.NewSessionCleanupJob(authService, logger, metrics)

	catalogTask, err := jobs.NewCatalogSyncTask("cron")
	if err != nil {
		logger.Error("build catalog sync task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewSessionCleanupTask(sessionGrace)
	if err != nil {
		logger.Error("build session cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzCatalogSync, Handler: catalogJob.Handle},
			{Type: jobs.TaskAuthSessionCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AuthzCatalogSyncCron, Task: catalogTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.SessionCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
