package billing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/praxishq/praxis/internal/catalog"
	"github.com/praxishq/praxis/internal/invoices"
	"github.com/praxishq/praxis/internal/shared"
	_ "github.com/praxishq/praxis/testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRepo struct {
	works   map[int64]*Work
	periods map[int64]*Period
	tasks   map[int64]*Task
	docs    map[int64][]string

	taskTemplates map[int64][]catalog.TaskTemplate
	docTemplates  map[int64][]catalog.DocumentTemplate
	services      map[int64]ServiceBilling
	overrides     map[[2]int64]float64

	invoices map[int64]invoices.Invoice

	nextWorkID    int64
	nextPeriodID  int64
	nextTaskID    int64
	nextInvoiceID int64
	invoiceSeq    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		works:         make(map[int64]*Work),
		periods:       make(map[int64]*Period),
		tasks:         make(map[int64]*Task),
		docs:          make(map[int64][]string),
		taskTemplates: make(map[int64][]catalog.TaskTemplate),
		docTemplates:  make(map[int64][]catalog.DocumentTemplate),
		services:      make(map[int64]ServiceBilling),
		overrides:     make(map[[2]int64]float64),
		invoices:      make(map[int64]invoices.Invoice),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListActiveRecurringWorkIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= r.nextWorkID; id++ {
		if w, ok := r.works[id]; ok && w.Active && w.Recurring {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) ListWorks(ctx context.Context) ([]Work, error) {
	var out []Work
	for id := int64(1); id <= r.nextWorkID; id++ {
		if w, ok := r.works[id]; ok {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetWork(ctx context.Context, id int64) (Work, error) {
	w, ok := r.works[id]
	if !ok {
		return Work{}, shared.ErrNotFound
	}
	return *w, nil
}

func (r *memoryRepo) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memoryRepo) ListPeriods(ctx context.Context, workID int64) ([]Period, error) {
	var out []Period
	for id := int64(1); id <= r.nextPeriodID; id++ {
		if p, ok := r.periods[id]; ok && p.WorkID == workID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListTasks(ctx context.Context, ref OwnerRef) ([]Task, error) {
	var out []Task
	for id := int64(1); id <= r.nextTaskID; id++ {
		t, ok := r.tasks[id]
		if !ok {
			continue
		}
		if matchesOwner(*t, ref) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetWorkActive(ctx context.Context, id int64, active bool) error {
	w, ok := r.works[id]
	if !ok {
		return shared.ErrNotFound
	}
	w.Active = active
	return nil
}

func matchesOwner(t Task, ref OwnerRef) bool {
	if ref.IsPeriod() {
		return t.PeriodID != nil && *t.PeriodID == *ref.PeriodID
	}
	return t.WorkID == ref.WorkID && t.PeriodID == nil
}

func (tx *memoryTx) InsertWork(ctx context.Context, in WorkInput) (Work, error) {
	tx.repo.nextWorkID++
	w := &Work{
		ID:            tx.repo.nextWorkID,
		CustomerID:    in.CustomerID,
		ServiceID:     in.ServiceID,
		Title:         in.Title,
		Recurring:     in.Recurring,
		Recurrence:    in.Recurrence,
		AnchorDay:     in.AnchorDay,
		BillingAmount: in.BillingAmount,
		AutoBill:      in.AutoBill,
		Active:        true,
		StartDate:     in.StartDate,
		Status:        StatusPending,
	}
	tx.repo.works[w.ID] = w
	return *w, nil
}

func (tx *memoryTx) GetWorkForUpdate(ctx context.Context, id int64) (Work, error) {
	return tx.repo.GetWork(ctx, id)
}

func (tx *memoryTx) UpdateWorkCounters(ctx context.Context, id int64, u CounterUpdate) error {
	w, ok := tx.repo.works[id]
	if !ok {
		return shared.ErrNotFound
	}
	w.TotalTasks = u.Total
	w.CompletedTasks = u.Completed
	w.AllTasksCompleted = u.AllDone
	w.Status = u.Status
	w.CompletedAt = u.CompletedAt
	w.CompletedBy = u.CompletedBy
	return nil
}

func (tx *memoryTx) SetWorkBilled(ctx context.Context, id int64, invoiceID int64) error {
	w, ok := tx.repo.works[id]
	if !ok {
		return shared.ErrNotFound
	}
	w.Billed = true
	w.InvoiceID = &invoiceID
	return nil
}

func (tx *memoryTx) GetLastPeriod(ctx context.Context, workID int64) (*Period, error) {
	var last *Period
	for _, p := range tx.repo.periods {
		if p.WorkID != workID {
			continue
		}
		if last == nil || p.DueDate.After(last.DueDate) {
			last = p
		}
	}
	if last == nil {
		return nil, nil
	}
	out := *last
	return &out, nil
}

func (tx *memoryTx) GetPeriodByDueDate(ctx context.Context, workID int64, due time.Time) (*Period, error) {
	for _, p := range tx.repo.periods {
		if p.WorkID == workID && p.DueDate.Equal(due) {
			out := *p
			return &out, nil
		}
	}
	return nil, nil
}

func (tx *memoryTx) InsertPeriod(ctx context.Context, in PeriodInput) (Period, error) {
	for _, p := range tx.repo.periods {
		if p.WorkID == in.WorkID && p.DueDate.Equal(in.DueDate) {
			return Period{}, ErrPeriodExists
		}
	}
	tx.repo.nextPeriodID++
	p := &Period{
		ID:        tx.repo.nextPeriodID,
		WorkID:    in.WorkID,
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		DueDate:   in.DueDate,
		Status:    StatusPending,
	}
	tx.repo.periods[p.ID] = p
	return *p, nil
}

func (tx *memoryTx) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return tx.repo.GetPeriod(ctx, id)
}

func (tx *memoryTx) UpdatePeriodCounters(ctx context.Context, id int64, u CounterUpdate) error {
	p, ok := tx.repo.periods[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.TotalTasks = u.Total
	p.CompletedTasks = u.Completed
	p.AllTasksCompleted = u.AllDone
	p.Status = u.Status
	p.CompletedAt = u.CompletedAt
	p.CompletedBy = u.CompletedBy
	return nil
}

func (tx *memoryTx) SetPeriodBilled(ctx context.Context, id int64, invoiceID int64) error {
	p, ok := tx.repo.periods[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Billed = true
	p.InvoiceID = &invoiceID
	return nil
}

func (tx *memoryTx) DeletePeriod(ctx context.Context, id int64) error {
	if _, ok := tx.repo.periods[id]; !ok {
		return shared.ErrNotFound
	}
	for tid, t := range tx.repo.tasks {
		if t.PeriodID != nil && *t.PeriodID == id {
			delete(tx.repo.tasks, tid)
		}
	}
	delete(tx.repo.docs, id)
	delete(tx.repo.periods, id)
	return nil
}

func (tx *memoryTx) InsertTask(ctx context.Context, in TaskInput) (Task, error) {
	tx.repo.nextTaskID++
	t := &Task{
		ID:         tx.repo.nextTaskID,
		WorkID:     in.WorkID,
		PeriodID:   in.PeriodID,
		Title:      in.Title,
		Priority:   in.Priority,
		Status:     TaskPending,
		AssigneeID: in.AssigneeID,
		DueDate:    in.DueDate,
	}
	tx.repo.tasks[t.ID] = t
	return *t, nil
}

func (tx *memoryTx) GetTaskForUpdate(ctx context.Context, id int64) (Task, error) {
	t, ok := tx.repo.tasks[id]
	if !ok {
		return Task{}, shared.ErrNotFound
	}
	return *t, nil
}

func (tx *memoryTx) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, completedAt *time.Time, completedBy *int64) error {
	t, ok := tx.repo.tasks[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.Status = status
	t.CompletedAt = completedAt
	t.CompletedBy = completedBy
	return nil
}

func (tx *memoryTx) DeleteTask(ctx context.Context, id int64) error {
	if _, ok := tx.repo.tasks[id]; !ok {
		return shared.ErrNotFound
	}
	delete(tx.repo.tasks, id)
	return nil
}

func (tx *memoryTx) RecountTasks(ctx context.Context, ref OwnerRef) (int, int, error) {
	total, completed := 0, 0
	for _, t := range tx.repo.tasks {
		if !matchesOwner(*t, ref) {
			continue
		}
		total++
		if t.Status == TaskCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (tx *memoryTx) InsertPeriodDocument(ctx context.Context, periodID int64, name string) error {
	tx.repo.docs[periodID] = append(tx.repo.docs[periodID], name)
	return nil
}

func (tx *memoryTx) ListTaskTemplates(ctx context.Context, serviceID int64) ([]catalog.TaskTemplate, error) {
	return tx.repo.taskTemplates[serviceID], nil
}

func (tx *memoryTx) ListDocumentTemplates(ctx context.Context, serviceID int64) ([]catalog.DocumentTemplate, error) {
	return tx.repo.docTemplates[serviceID], nil
}

func (tx *memoryTx) GetServiceBilling(ctx context.Context, serviceID int64) (ServiceBilling, error) {
	s, ok := tx.repo.services[serviceID]
	if !ok {
		return ServiceBilling{}, shared.ErrNotFound
	}
	return s, nil
}

func (tx *memoryTx) GetOverridePrice(ctx context.Context, customerID, serviceID int64) (*float64, error) {
	if price, ok := tx.repo.overrides[[2]int64{customerID, serviceID}]; ok {
		return &price, nil
	}
	return nil, nil
}

func (tx *memoryTx) NextInvoiceNumber(ctx context.Context) (string, error) {
	tx.repo.invoiceSeq++
	return formatInvoiceNumber(2025, tx.repo.invoiceSeq), nil
}

func (tx *memoryTx) InsertInvoice(ctx context.Context, in invoices.InvoiceInput) (invoices.Invoice, error) {
	tx.repo.nextInvoiceID++
	inv := invoices.Invoice{
		ID:          tx.repo.nextInvoiceID,
		Number:      in.Number,
		CustomerID:  in.CustomerID,
		WorkID:      in.WorkID,
		PeriodID:    in.PeriodID,
		InvoiceDate: in.InvoiceDate,
		DueDate:     in.DueDate,
		Subtotal:    in.Subtotal,
		TaxAmount:   in.TaxAmount,
		Total:       in.Total,
		Status:      invoices.StatusDraft,
	}
	for _, line := range in.Lines {
		inv.Lines = append(inv.Lines, invoices.Line{
			InvoiceID:   inv.ID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	tx.repo.invoices[inv.ID] = inv
	return inv, nil
}
