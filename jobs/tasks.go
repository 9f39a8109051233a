package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPeriodsGenerate creates due billing periods for recurring works.
	TaskPeriodsGenerate = "billing:periods_generate"
	// TaskOverdueSweep stamps sent invoices past due as overdue.
	TaskOverdueSweep = "invoices:overdue_sweep"
)

// RunPayload identifies one scheduled run. AsOf pins the clock for the
// whole run so a delayed pickup still evaluates the intended day.
type RunPayload struct {
	RunID uuid.UUID `json:"run_id"`
	AsOf  time.Time `json:"as_of"`
}

// NewPeriodsGenerateTask constructs a period-generation task.
func NewPeriodsGenerateTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(RunPayload{RunID: uuid.New(), AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPeriodsGenerate, data), nil
}

// NewOverdueSweepTask constructs an overdue-sweep task.
func NewOverdueSweepTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(RunPayload{RunID: uuid.New(), AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, data), nil
}
