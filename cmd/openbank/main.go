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
	"golang.org/x/sync/errgroup"

	"github.com/openbank-platform/openbank/internal/app"
	"github.com/openbank-platform/openbank/internal/audit"
	audithttp "github.com/openbank-platform/openbank/internal/audit/http"
	"github.com/openbank-platform/openbank/internal/auth"
	"github.com/openbank-platform/openbank/internal/observability"
	"github.com/openbank-platform/openbank/internal/platform/cache"
	"github.com/openbank-platform/openbank/internal/platform/db"
	"github.com/openbank-platform/openbank/internal/ratelimit"
	"github.com/openbank-platform/openbank/internal/rbac"
	"github.com/openbank-platform/openbank/internal/security"
	"github.com/openbank-platform/openbank/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()

	auditSink := audit.NewPostgresSink(pool)
	recorder := audit.NewRecorder(logger,
		auditSink,
		audit.NewRedisStreamSink(redisClient, "audit:events", 100_000),
		audit.SlogSink{Logger: logger},
	)

	engine := rbac.NewEngine(rbac.DefaultCatalog(), rbac.NewRedisStore(redisClient, "rbac"),
		rbac.WithFallbackRole(rbac.RoleReadOnly),
		rbac.WithLogger(logger),
	)
	rbacMiddleware := &rbac.Middleware{Engine: engine, Logger: logger, Recorder: recorder, Metrics: metrics}
	rbacHandler := rbac.NewHandler(logger, engine)

	limiter, err := ratelimit.New(cfg.RateLimit(), ratelimit.WithLogger(logger))
	if err != nil {
		logger.Error("init rate limiter", slog.Any("error", err))
		os.Exit(1)
	}
	limitMiddleware := &ratelimit.Middleware{Limiter: limiter, Logger: logger, Recorder: recorder, Metrics: metrics}

	securitySvc, err := security.NewService(cfg.Security(), security.WithLogger(logger))
	if err != nil {
		logger.Error("init security service", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, securitySvc, security.DefaultPasswordPolicy(), recorder, metrics, logger)
	authHandler := auth.NewHandler(logger, authService)

	auditHandler := audithttp.NewHandler(logger, auditSink)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		RBACHandler:  rbacHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		RateLimiter:  limitMiddleware,
		RBAC:         rbacMiddleware,
		Pool:         pool,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		limiter.RunSweeper(groupCtx, cfg.RateLimitSweepInterval)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
