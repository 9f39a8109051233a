package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/shared"
)

// AuditPort records task and period mutations for operator visibility.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Tracker maintains task state and the derived completion state of the
// task's owner. It is the sole caller of the billing engine: a billing
// decision fires exactly when an owner crosses from not-all-done to
// all-done, never on re-marking an already completed task.
type Tracker struct {
	repo    Repository
	engine  *Engine
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewTracker builds a Tracker instance.
func NewTracker(repo Repository, engine *Engine, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	return &Tracker{repo: repo, engine: engine, audit: audit, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (t *Tracker) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// MarkTaskCompleted marks a task completed and refreshes its owner.
// Marking an already completed task again is a no-op.
func (t *Tracker) MarkTaskCompleted(ctx context.Context, taskID int64) (Task, error) {
	var task Task
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status == TaskCompleted {
			return nil
		}
		completedAt := t.now()
		var completedBy *int64
		if actor := shared.ActorFromContext(ctx); actor != 0 {
			completedBy = &actor
		}
		if err := tx.UpdateTaskStatus(ctx, taskID, TaskCompleted, &completedAt, completedBy); err != nil {
			return err
		}
		task.Status = TaskCompleted
		task.CompletedAt = &completedAt
		task.CompletedBy = completedBy
		return t.refreshOwner(ctx, tx, task.OwnerRef(), completedBy)
	})
	if err != nil {
		return Task{}, err
	}
	t.recordAudit(ctx, "billing.task.complete", "task", taskID)
	return task, nil
}

// MarkTaskPending reverts a task to pending and refreshes its owner.
// Reverting never undoes a billing decision: an invoice already emitted
// for the owner stays, and the billed flag stays with it.
func (t *Tracker) MarkTaskPending(ctx context.Context, taskID int64) (Task, error) {
	var task Task
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status == TaskPending {
			return nil
		}
		if err := tx.UpdateTaskStatus(ctx, taskID, TaskPending, nil, nil); err != nil {
			return err
		}
		task.Status = TaskPending
		task.CompletedAt = nil
		task.CompletedBy = nil
		return t.refreshOwner(ctx, tx, task.OwnerRef(), nil)
	})
	if err != nil {
		return Task{}, err
	}
	t.recordAudit(ctx, "billing.task.reopen", "task", taskID)
	return task, nil
}

// CreateTask adds an ad-hoc task to a period or directly to a work.
func (t *Tracker) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	if in.WorkID == 0 {
		return Task{}, fmt.Errorf("%w: work required", shared.ErrInvalidInput)
	}
	if in.Title == "" {
		return Task{}, fmt.Errorf("%w: title required", shared.ErrInvalidInput)
	}
	var task Task
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		task, err = tx.InsertTask(ctx, in)
		if err != nil {
			return err
		}
		return t.refreshOwner(ctx, tx, task.OwnerRef(), nil)
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task and refreshes its owner. Removing the last
// pending task can push the owner to all-done, which triggers the same
// billing decision a completion would.
func (t *Tracker) DeleteTask(ctx context.Context, taskID int64) error {
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		task, err := tx.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		return t.refreshOwner(ctx, tx, task.OwnerRef(), nil)
	})
	if err != nil {
		return err
	}
	t.recordAudit(ctx, "billing.task.delete", "task", taskID)
	return nil
}

// MarkPeriodCompleted completes a period explicitly. Every task must
// already be completed; a period with zero tasks only ever completes
// through this path, never implicitly.
func (t *Tracker) MarkPeriodCompleted(ctx context.Context, periodID int64) error {
	// Row locks are always taken work first, then period, matching the
	// period generator. The unlocked pre-read only resolves the work id.
	preread, err := t.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	err = t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		work, err := tx.GetWorkForUpdate(ctx, preread.WorkID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status == StatusCompleted {
			return nil
		}
		if period.CompletedTasks < period.TotalTasks {
			return fmt.Errorf("%w: %d of %d tasks done", ErrTasksOutstanding, period.CompletedTasks, period.TotalTasks)
		}
		completedAt := t.now()
		var completedBy *int64
		if actor := shared.ActorFromContext(ctx); actor != 0 {
			completedBy = &actor
		}
		if err := tx.UpdatePeriodCounters(ctx, periodID, CounterUpdate{
			Total:       period.TotalTasks,
			Completed:   period.CompletedTasks,
			AllDone:     true,
			Status:      StatusCompleted,
			CompletedAt: &completedAt,
			CompletedBy: completedBy,
		}); err != nil {
			return err
		}
		period.Status = StatusCompleted
		return t.engine.EvaluateTx(ctx, tx, BillingOwner{Work: work, Period: &period})
	})
	if err != nil {
		return err
	}
	t.recordAudit(ctx, "billing.period.complete", "period", periodID)
	return nil
}

// ReopenPeriod reverts an explicitly completed period to its derived
// status. Billing state is untouched.
func (t *Tracker) ReopenPeriod(ctx context.Context, periodID int64) error {
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusCompleted {
			return nil
		}
		return tx.UpdatePeriodCounters(ctx, periodID, CounterUpdate{
			Total:     period.TotalTasks,
			Completed: period.CompletedTasks,
			AllDone:   false,
			Status:    reopenedStatus(period.TotalTasks, period.CompletedTasks),
		})
	})
	if err != nil {
		return err
	}
	t.recordAudit(ctx, "billing.period.reopen", "period", periodID)
	return nil
}

// DeletePeriod removes a period together with its tasks and documents.
// A billed period is immutable until its invoice is deleted first.
func (t *Tracker) DeletePeriod(ctx context.Context, periodID int64) error {
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Billed {
			return fmt.Errorf("%w: delete invoice %d first", ErrPeriodBilled, derefInvoiceID(period.InvoiceID))
		}
		return tx.DeletePeriod(ctx, periodID)
	})
	if err != nil {
		return err
	}
	t.recordAudit(ctx, "billing.period.delete", "period", periodID)
	return nil
}

// refreshOwner recounts the owner's tasks from the task table and stores
// the derived counters and status. A full recount rather than an
// increment keeps the counters self-healing. When the recount crosses
// into all-done the billing engine runs in the same transaction.
//
// The work row lock comes before the period row lock, the same order the
// period generator uses, so concurrent catch-up and task mutations on
// one work queue instead of deadlocking.
func (t *Tracker) refreshOwner(ctx context.Context, tx TxRepository, ref OwnerRef, completedBy *int64) error {
	work, err := tx.GetWorkForUpdate(ctx, ref.WorkID)
	if err != nil {
		return err
	}
	total, completed, err := tx.RecountTasks(ctx, ref)
	if err != nil {
		return err
	}
	allDone := total > 0 && total == completed
	status := DeriveStatus(total, completed)

	if ref.IsPeriod() {
		period, err := tx.GetPeriodForUpdate(ctx, *ref.PeriodID)
		if err != nil {
			return err
		}
		wasDone := period.AllTasksCompleted
		update := CounterUpdate{Total: total, Completed: completed, AllDone: allDone, Status: status}
		if allDone && !wasDone {
			now := t.now()
			update.CompletedAt = &now
			update.CompletedBy = completedBy
		}
		if err := tx.UpdatePeriodCounters(ctx, *ref.PeriodID, update); err != nil {
			return err
		}
		if allDone && !wasDone {
			period.TotalTasks = total
			period.CompletedTasks = completed
			period.AllTasksCompleted = true
			period.Status = status
			return t.engine.EvaluateTx(ctx, tx, BillingOwner{Work: work, Period: &period})
		}
		return nil
	}

	wasDone := work.AllTasksCompleted
	update := CounterUpdate{Total: total, Completed: completed, AllDone: allDone, Status: status}
	if allDone && !wasDone {
		now := t.now()
		update.CompletedAt = &now
		update.CompletedBy = completedBy
	}
	if err := tx.UpdateWorkCounters(ctx, ref.WorkID, update); err != nil {
		return err
	}
	if allDone && !wasDone {
		work.TotalTasks = total
		work.CompletedTasks = completed
		work.AllTasksCompleted = true
		return t.engine.EvaluateTx(ctx, tx, BillingOwner{Work: work})
	}
	return nil
}

func (t *Tracker) recordAudit(ctx context.Context, action, entity string, id int64) {
	if t.audit == nil {
		return
	}
	err := t.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		At:       t.now(),
	})
	if err != nil {
		t.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func reopenedStatus(total, completed int) PeriodStatus {
	if total > 0 && total == completed {
		// Tasks are still all done; the period just lost its explicit
		// completed mark.
		return StatusInProgress
	}
	return DeriveStatus(total, completed)
}

func derefInvoiceID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
