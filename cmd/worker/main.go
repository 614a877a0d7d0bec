package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dspops/portal/internal/app"
	jobmetrics "github.com/dspops/portal/internal/jobs"
	"github.com/dspops/portal/internal/legal"
	"github.com/dspops/portal/internal/platform/db"
	"github.com/dspops/portal/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	library, err := legal.Load()
	if err != nil {
		logger.Error("load legal documents", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	mailer := jobs.LogMailer{Logger: logger}
	emailJob := &jobs.EmailJob{Mailer: mailer, From: cfg.MailFrom}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	outbox := jobs.NewClient(redisOpts)
	defer func() {
		if err := outbox.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	receiptJob := &jobs.AgreementReceiptJob{Documents: library, Outbox: outbox, Logger: logger, Metrics: metrics}
	purgeJob := &jobs.IdempotencyPurgeJob{DB: pool, Logger: logger, Metrics: metrics}

	purgeTask, err := jobs.NewIdempotencyPurgeTask(cfg.IdempotencyPurgeAge)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskTypeAgreementReceipt, Handler: receiptJob.Handle},
			{Type: jobs.TaskTypeIdempotencyPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IdempotencyPurgeCron, Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
