package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/praxishq/praxis/internal/app"
	"github.com/praxishq/praxis/internal/billing"
	"github.com/praxishq/praxis/internal/invoices"
	jobmetrics "github.com/praxishq/praxis/internal/jobs"
	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/platform/db"
	"github.com/praxishq/praxis/jobs"
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

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(nil)

	billingRepo := billing.NewRepository(pool)
	generator := billing.NewGenerator(billingRepo, logger, metrics)

	invoicesRepo := invoices.NewRepository(pool)
	controller := invoices.NewController(invoicesRepo, nil, logger, metrics)

	// Cron tasks are built once at startup; a zero AsOf makes each run
	// evaluate against its own pickup time.
	periodsTask, err := jobs.NewPeriodsGenerateTask(time.Time{})
	if err != nil {
		logger.Error("build periods task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewOverdueSweepTask(time.Time{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPeriodsGenerate, Handler: jobs.NewPeriodsGenerateHandler(generator, logger, jobMetrics)},
			{Type: jobs.TaskOverdueSweep, Handler: jobs.NewOverdueSweepHandler(controller, logger, jobMetrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PeriodsCron, Task: periodsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.OverdueCron, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
