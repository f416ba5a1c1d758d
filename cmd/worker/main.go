package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openbank-platform/openbank/internal/app"
	"github.com/openbank-platform/openbank/internal/audit"
	jobmetrics "github.com/openbank-platform/openbank/internal/jobs"
	"github.com/openbank-platform/openbank/internal/platform/db"
	"github.com/openbank-platform/openbank/jobs"
)

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

	auditSink := audit.NewPostgresSink(pool)
	jobMetrics := jobmetrics.NewMetrics(nil)
	retentionJob := jobs.NewAuditRetentionHandler(auditSink, cfg.AuditRetention, logger, jobMetrics)
	decayJob := jobs.NewSecurityScoreDecayHandler(pool, logger, jobMetrics)

	retentionTask, err := jobs.NewAuditRetentionTask(cfg.AuditRetention)
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}
	decayTask, err := jobs.NewSecurityScoreDecayTask(time.Now().UTC())
	if err != nil {
		logger.Error("build decay task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRetention, Handler: retentionJob.Handle},
			{Type: jobs.TaskSecurityScoreDecay, Handler: decayJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: decayTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
