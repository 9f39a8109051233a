package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/praxishq/praxis/internal/billing"
	"github.com/praxishq/praxis/internal/invoices"
	jobmetrics "github.com/praxishq/praxis/internal/jobs"
)

func decodeRun(t *asynq.Task) (RunPayload, error) {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return RunPayload{}, asynq.SkipRetry
	}
	if payload.AsOf.IsZero() {
		payload.AsOf = time.Now()
	}
	return payload, nil
}

// NewPeriodsGenerateHandler processes TaskPeriodsGenerate tasks.
func NewPeriodsGenerateHandler(generator *billing.Generator, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeRun(t)
		if err != nil {
			return err
		}
		tracker := metrics.Track("periods_generate")
		created, err := generator.GeneratePeriodsIfDue(ctx, payload.AsOf)
		if err != nil {
			logger.Error("period generation run failed",
				slog.String("run_id", payload.RunID.String()), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("period generation run finished",
			slog.String("run_id", payload.RunID.String()),
			slog.Int("created", created))
		return tracker.End(nil)
	}
}

// NewOverdueSweepHandler processes TaskOverdueSweep tasks.
func NewOverdueSweepHandler(controller *invoices.Controller, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeRun(t)
		if err != nil {
			return err
		}
		tracker := metrics.Track("overdue_sweep")
		swept, err := controller.SweepOverdue(ctx, payload.AsOf)
		if err != nil {
			logger.Error("overdue sweep run failed",
				slog.String("run_id", payload.RunID.String()), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("overdue sweep run finished",
			slog.String("run_id", payload.RunID.String()),
			slog.Int("swept", swept))
		return tracker.End(nil)
	}
}
