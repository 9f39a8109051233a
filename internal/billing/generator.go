package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/shared"
)

// maxCatchUpPeriods bounds backfill so a stale work can never trigger a
// runaway series of inserts in one call.
const maxCatchUpPeriods = 120

// Generator creates works and their billing periods.
type Generator struct {
	repo    Repository
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewGenerator builds a Generator instance.
func NewGenerator(repo Repository, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{repo: repo, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// CreateWork registers a work. A recurring work gets its first period
// (and any catch-up periods) synchronously in the same transaction; a
// non-recurring work gets the service task templates copied directly
// onto itself.
func (g *Generator) CreateWork(ctx context.Context, in WorkInput) (Work, error) {
	if in.CustomerID == 0 || in.ServiceID == 0 {
		return Work{}, fmt.Errorf("%w: customer and service required", shared.ErrInvalidInput)
	}
	if in.Recurring {
		if !in.Recurrence.Valid() {
			return Work{}, fmt.Errorf("%w: recurrence required for recurring work", shared.ErrInvalidInput)
		}
		if in.AnchorDay < 1 || in.AnchorDay > 31 {
			return Work{}, fmt.Errorf("%w: anchor day must be 1-31", shared.ErrInvalidInput)
		}
	}
	if in.StartDate.IsZero() {
		in.StartDate = DateOf(g.now())
	}
	var work Work
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		work, err = tx.InsertWork(ctx, in)
		if err != nil {
			return err
		}
		if work.Recurring {
			_, err = g.catchUpTx(ctx, tx, work, g.now())
			return err
		}
		return g.seedWorkTasks(ctx, tx, work)
	})
	if err != nil {
		return Work{}, err
	}
	return work, nil
}

// GeneratePeriodsIfDue walks every active recurring work and creates the
// periods whose time has come. Safe to call on a schedule and safe to
// call twice: an existing (work, due date) pair is a no-op, with the
// unique constraint as the final backstop against races.
func (g *Generator) GeneratePeriodsIfDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := g.repo.ListActiveRecurringWorkIDs(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, id := range ids {
		n := 0
		err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			work, err := tx.GetWorkForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !work.Active || !work.Recurring {
				return nil
			}
			n, err = g.catchUpTx(ctx, tx, work, now)
			return err
		})
		if err != nil {
			// One broken work must not starve the rest of the batch.
			g.logger.Error("period generation failed", slog.Int64("work_id", id), slog.Any("error", err))
			continue
		}
		created += n
	}
	return created, nil
}

// GenerateForWork runs catch-up generation for a single work on demand.
func (g *Generator) GenerateForWork(ctx context.Context, workID int64, now time.Time) (int, error) {
	created := 0
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		work, err := tx.GetWorkForUpdate(ctx, workID)
		if err != nil {
			return err
		}
		if !work.Recurring {
			return ErrNotRecurring
		}
		if !work.Active {
			return ErrWorkInactive
		}
		created, err = g.catchUpTx(ctx, tx, work, now)
		return err
	})
	return created, err
}

// catchUpTx ensures the work's period series exists through today: the
// first period if none exist, then one period per elapsed due date, plus
// the single upcoming period. Generation is bounded, never an unbounded
// future series.
func (g *Generator) catchUpTx(ctx context.Context, tx TxRepository, work Work, now time.Time) (int, error) {
	today := DateOf(now)
	created := 0

	last, err := tx.GetLastPeriod(ctx, work.ID)
	if err != nil {
		return 0, err
	}
	if last == nil {
		due := FirstDueDate(work.StartDate, work.Recurrence, work.AnchorDay)
		p, fresh, err := g.ensurePeriodTx(ctx, tx, work, due)
		if err != nil {
			return 0, err
		}
		if fresh {
			created++
		}
		last = &p
	}

	for i := 0; i < maxCatchUpPeriods; i++ {
		if !last.DueDate.Before(today) {
			break
		}
		due := NextDueDate(work.Recurrence, last.DueDate, work.AnchorDay)
		p, fresh, err := g.ensurePeriodTx(ctx, tx, work, due)
		if err != nil {
			return created, err
		}
		if fresh {
			created++
		}
		last = &p
	}
	return created, nil
}

// ensurePeriodTx creates the period for the due date unless it already
// exists; either way the period comes back. The second return reports
// whether a new row was inserted.
func (g *Generator) ensurePeriodTx(ctx context.Context, tx TxRepository, work Work, due time.Time) (Period, bool, error) {
	existing, err := tx.GetPeriodByDueDate(ctx, work.ID, due)
	if err != nil {
		return Period{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	start, end := PeriodBounds(work.Recurrence, due)
	period, err := tx.InsertPeriod(ctx, PeriodInput{
		WorkID:    work.ID,
		Name:      PeriodLabel(work.Recurrence, due),
		StartDate: start,
		EndDate:   end,
		DueDate:   due,
	})
	if err != nil {
		if errors.Is(err, ErrPeriodExists) {
			// Lost the race to a concurrent generator; fetch the winner.
			existing, ferr := tx.GetPeriodByDueDate(ctx, work.ID, due)
			if ferr != nil {
				return Period{}, false, ferr
			}
			if existing != nil {
				return *existing, false, nil
			}
		}
		return Period{}, false, err
	}

	if err := g.seedPeriod(ctx, tx, work, &period); err != nil {
		return Period{}, false, err
	}

	g.metrics.PeriodGenerated()
	g.logger.Info("period generated",
		slog.Int64("work_id", work.ID),
		slog.String("period", period.Name),
		slog.Time("due_date", period.DueDate))
	return period, true, nil
}

// seedPeriod copies the service's task and document templates onto a
// freshly created period.
func (g *Generator) seedPeriod(ctx context.Context, tx TxRepository, work Work, period *Period) error {
	templates, err := tx.ListTaskTemplates(ctx, work.ServiceID)
	if err != nil {
		return err
	}
	for _, t := range templates {
		if _, err := tx.InsertTask(ctx, TaskInput{
			WorkID:   work.ID,
			PeriodID: &period.ID,
			Title:    t.Title,
			Priority: t.Priority,
		}); err != nil {
			return err
		}
	}
	docs, err := tx.ListDocumentTemplates(ctx, work.ServiceID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := tx.InsertPeriodDocument(ctx, period.ID, d.Name); err != nil {
			return err
		}
	}
	if len(templates) > 0 {
		period.TotalTasks = len(templates)
		return tx.UpdatePeriodCounters(ctx, period.ID, CounterUpdate{
			Total:  len(templates),
			Status: StatusPending,
		})
	}
	return nil
}

// seedWorkTasks copies service task templates directly onto a
// non-recurring work.
func (g *Generator) seedWorkTasks(ctx context.Context, tx TxRepository, work Work) error {
	templates, err := tx.ListTaskTemplates(ctx, work.ServiceID)
	if err != nil {
		return err
	}
	for _, t := range templates {
		if _, err := tx.InsertTask(ctx, TaskInput{
			WorkID:   work.ID,
			Title:    t.Title,
			Priority: t.Priority,
		}); err != nil {
			return err
		}
	}
	if len(templates) > 0 {
		return tx.UpdateWorkCounters(ctx, work.ID, CounterUpdate{
			Total:  len(templates),
			Status: StatusPending,
		})
	}
	return nil
}

// SetWorkActive toggles the active flag; works are soft-deactivated,
// never deleted while periods reference them.
func (g *Generator) SetWorkActive(ctx context.Context, id int64, active bool) error {
	return g.repo.SetWorkActive(ctx, id, active)
}
