package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dealerhub/dealerhub/internal/app"
	"github.com/dealerhub/dealerhub/internal/audit"
	audithttp "github.com/dealerhub/dealerhub/internal/audit/http"
	"github.com/dealerhub/dealerhub/internal/auth"
	"github.com/dealerhub/dealerhub/internal/observability"
	"github.com/dealerhub/dealerhub/internal/platform/cache"
	"github.com/dealerhub/dealerhub/internal/platform/db"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/roles"
	"github.com/dealerhub/dealerhub/internal/shared"
	"github.com/dealerhub/dealerhub/internal/users"
	"github.com/dealerhub/dealerhub/jobs"
)

const sweepInterval = time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "dealerhub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, sessionManager, logger)
	authHandler := auth.NewHandler(logger, authService, csrfManager)

	catalog := rbac.DefaultCatalog()
	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, catalog, logger)
	authzCache := rbac.NewCache(redisClient, cfg.AuthzCacheTTL)

	if err := syncCatalog(ctx, rbacService, metrics); err != nil {
		// The resolver works from the in-process catalog; only the admin
		// listing depends on the stored rows.
		logger.Warn("sync permission catalog", slog.Any("error", err))
	}

	loader := rbac.NewLoader(rbac.LoaderConfig{
		Store:    rbacRepo,
		Cache:    authzCache,
		Logger:   logger,
		Recorder: metrics,
		Timeout:  cfg.AuthzLoadTimeout,
	})
	registry := rbac.NewRegistry(loader, logger, metrics)
	unsubscribe := authService.OnSessionChange(registry.OnSessionEvent)
	defer unsubscribe()
	if err := registry.Listen(ctx, authzCache); err != nil {
		logger.Warn("subscribe authz invalidations", slog.Any("error", err))
	}
	go registry.Run(ctx, sweepInterval, cfg.AuthzIdleTTL)

	guard := rbac.Guard{
		Registry:     registry,
		Catalog:      catalog,
		Logger:       logger,
		Recorder:     metrics,
		SignInPath:   cfg.AuthzSignInPath,
		FallbackPath: cfg.AuthzFallbackPath,
		Wait:         cfg.AuthzGuardWait,
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	auditLogger := shared.NewAuditLogger(dbpool)

	authzHandler := rbac.NewHandler(logger, rbacService, guard).WithSyncTrigger(jobClient)

	rolesService := roles.NewService(roles.NewRepository(dbpool), catalog, authzCache, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	usersService := users.NewService(users.NewRepository(dbpool), catalog, authzCache, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, guard)

	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guard,
		AuthHandler:    authHandler,
		AuthzHandler:   authzHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	registry.Wait()
}

// syncCatalog runs the startup catalog sync under the job metrics so a
// failing boot sync shows up next to failing cron runs.
func syncCatalog(ctx context.Context, service *rbac.Service, metrics *observability.Metrics) (err error) {
	tracker := metrics.Jobs().Track(jobs.TaskAuthzCatalogSync)
	defer func() { err = tracker.End(err) }()
	n, err := service.SyncCatalog(ctx)
	tracker.Items(int64(n))
	return err
}
