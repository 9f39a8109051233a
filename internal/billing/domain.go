package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/praxishq/praxis/internal/shared"
)

// Recurrence enumerates supported billing cadences.
type Recurrence string

const (
	Monthly    Recurrence = "monthly"
	Quarterly  Recurrence = "quarterly"
	HalfYearly Recurrence = "half_yearly"
	Yearly     Recurrence = "yearly"
)

// Valid reports whether the recurrence is a known cadence.
func (r Recurrence) Valid() bool {
	switch r {
	case Monthly, Quarterly, HalfYearly, Yearly:
		return true
	}
	return false
}

// Months returns the length of one recurrence unit in months.
func (r Recurrence) Months() int {
	switch r {
	case Quarterly:
		return 3
	case HalfYearly:
		return 6
	case Yearly:
		return 12
	default:
		return 1
	}
}

// Work is a billable engagement. A recurring work spawns periods; a
// non-recurring work carries its tasks and billing state directly.
type Work struct {
	ID            int64
	CustomerID    int64
	ServiceID     int64
	Title         string
	Recurring     bool
	Recurrence    Recurrence
	AnchorDay     int
	BillingAmount *float64
	AutoBill      bool
	Active        bool
	StartDate     time.Time

	// Task state for non-recurring works.
	Status            PeriodStatus
	TotalTasks        int
	CompletedTasks    int
	AllTasksCompleted bool
	CompletedAt       *time.Time
	CompletedBy       *int64

	// Billing state for non-recurring works. For recurring works the
	// flags live on each period.
	Billed    bool
	InvoiceID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PeriodStatus enumerates stored period states. Overdue is derived at
// read time against a clock, never stored.
type PeriodStatus string

const (
	StatusPending    PeriodStatus = "pending"
	StatusInProgress PeriodStatus = "in_progress"
	StatusCompleted  PeriodStatus = "completed"
)

// DeriveStatus computes the owner status from task counters.
func DeriveStatus(total, completed int) PeriodStatus {
	switch {
	case total > 0 && total == completed:
		return StatusCompleted
	case completed > 0:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// Period is one billing interval of a recurring work.
type Period struct {
	ID        int64
	WorkID    int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	DueDate   time.Time
	Status    PeriodStatus

	TotalTasks        int
	CompletedTasks    int
	AllTasksCompleted bool
	CompletedAt       *time.Time
	CompletedBy       *int64

	BillingAmount *float64
	Billed        bool
	InvoiceID     *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overdue reports whether the period is past due and not completed.
func (p Period) Overdue(now time.Time) bool {
	return p.Status != StatusCompleted && p.DueDate.Before(now)
}

// TaskStatus enumerates task states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is a unit of work contributing to its owner's completion.
type Task struct {
	ID          int64
	WorkID      int64
	PeriodID    *int64
	Title       string
	Priority    string
	Status      TaskStatus
	AssigneeID  *int64
	DueDate     *time.Time
	CompletedAt *time.Time
	CompletedBy *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnerRef identifies the completion owner of a task: the period when
// PeriodID is set, otherwise the work itself.
func (t Task) OwnerRef() OwnerRef {
	return OwnerRef{WorkID: t.WorkID, PeriodID: t.PeriodID}
}

// OwnerRef points at a period or a non-recurring work.
type OwnerRef struct {
	WorkID   int64
	PeriodID *int64
}

// IsPeriod reports whether the owner is a period.
func (r OwnerRef) IsPeriod() bool {
	return r.PeriodID != nil
}

// PeriodDocument is a document requested from the customer for a period.
type PeriodDocument struct {
	ID        int64
	PeriodID  int64
	Name      string
	Status    string
	CreatedAt time.Time
}

var (
	// ErrPeriodExists indicates a period already exists for the
	// (work, due date) pair. Callers treat it as a successful no-op.
	ErrPeriodExists = errors.New("billing: period already exists for due date")
	// ErrNotRecurring indicates a period operation on a non-recurring work.
	ErrNotRecurring = fmt.Errorf("billing: work is not recurring: %w", shared.ErrInvalidInput)
	// ErrTasksOutstanding indicates an explicit completion attempt while
	// tasks remain open.
	ErrTasksOutstanding = fmt.Errorf("billing: period has outstanding tasks: %w", shared.ErrConflict)
	// ErrPeriodBilled indicates a delete attempt on a billed period.
	ErrPeriodBilled = fmt.Errorf("billing: period is billed, delete its invoice first: %w", shared.ErrConflict)
	// ErrWorkInactive indicates an operation on a deactivated work.
	ErrWorkInactive = fmt.Errorf("billing: work is inactive: %w", shared.ErrConflict)
)
