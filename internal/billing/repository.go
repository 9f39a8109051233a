package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxishq/praxis/internal/catalog"
	"github.com/praxishq/praxis/internal/invoices"
	"github.com/praxishq/praxis/internal/platform/db"
	"github.com/praxishq/praxis/internal/shared"
)

// WorkInput groups fields to create a work.
type WorkInput struct {
	CustomerID    int64
	ServiceID     int64
	Title         string
	Recurring     bool
	Recurrence    Recurrence
	AnchorDay     int
	BillingAmount *float64
	AutoBill      bool
	StartDate     time.Time
}

// PeriodInput groups fields to create a period.
type PeriodInput struct {
	WorkID    int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	DueDate   time.Time
}

// TaskInput groups fields to create a task.
type TaskInput struct {
	WorkID     int64
	PeriodID   *int64
	Title      string
	Priority   string
	AssigneeID *int64
	DueDate    *time.Time
}

// ServiceBilling is the slice of the service record the billing engine
// needs: name, pricing defaults, tax and terms.
type ServiceBilling struct {
	Name         string
	DefaultPrice *float64
	TaxRate      *float64
	PaymentTerms catalog.PaymentTerms
}

// CounterUpdate carries recomputed task counters for an owner.
type CounterUpdate struct {
	Total       int
	Completed   int
	AllDone     bool
	Status      PeriodStatus
	CompletedAt *time.Time
	CompletedBy *int64
}

// Repository encapsulates DB operations for works, periods and tasks.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListActiveRecurringWorkIDs(ctx context.Context) ([]int64, error)
	ListWorks(ctx context.Context) ([]Work, error)
	GetWork(ctx context.Context, id int64) (Work, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, workID int64) ([]Period, error)
	ListTasks(ctx context.Context, ref OwnerRef) ([]Task, error)
	SetWorkActive(ctx context.Context, id int64, active bool) error
}

// TxRepository exposes operations available within one transaction. The
// task-completion chain (task update, recount, billing decision, invoice
// insert, billed flag) runs entirely against one of these so the whole
// transition commits or rolls back together.
//
// Catalog reads are duplicated here rather than routed through the
// catalog package because they must share the transaction.
type TxRepository interface {
	InsertWork(ctx context.Context, in WorkInput) (Work, error)
	GetWorkForUpdate(ctx context.Context, id int64) (Work, error)
	UpdateWorkCounters(ctx context.Context, id int64, u CounterUpdate) error
	SetWorkBilled(ctx context.Context, id int64, invoiceID int64) error

	GetLastPeriod(ctx context.Context, workID int64) (*Period, error)
	GetPeriodByDueDate(ctx context.Context, workID int64, due time.Time) (*Period, error)
	InsertPeriod(ctx context.Context, in PeriodInput) (Period, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	UpdatePeriodCounters(ctx context.Context, id int64, u CounterUpdate) error
	SetPeriodBilled(ctx context.Context, id int64, invoiceID int64) error
	DeletePeriod(ctx context.Context, id int64) error

	InsertTask(ctx context.Context, in TaskInput) (Task, error)
	GetTaskForUpdate(ctx context.Context, id int64) (Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, completedAt *time.Time, completedBy *int64) error
	DeleteTask(ctx context.Context, id int64) error
	RecountTasks(ctx context.Context, ref OwnerRef) (total, completed int, err error)

	InsertPeriodDocument(ctx context.Context, periodID int64, name string) error

	ListTaskTemplates(ctx context.Context, serviceID int64) ([]catalog.TaskTemplate, error)
	ListDocumentTemplates(ctx context.Context, serviceID int64) ([]catalog.DocumentTemplate, error)
	GetServiceBilling(ctx context.Context, serviceID int64) (ServiceBilling, error)
	GetOverridePrice(ctx context.Context, customerID, serviceID int64) (*float64, error)

	NextInvoiceNumber(ctx context.Context) (string, error)
	InsertInvoice(ctx context.Context, in invoices.InvoiceInput) (invoices.Invoice, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed billing repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const workColumns = `id, customer_id, service_id, title, recurring, recurrence, anchor_day, billing_amount, auto_bill, active, start_date,
status, total_tasks, completed_tasks, all_tasks_completed, completed_at, completed_by, is_billed, invoice_id, created_at, updated_at`

func scanWork(row pgx.Row) (Work, error) {
	var w Work
	var recurrence *string
	err := row.Scan(&w.ID, &w.CustomerID, &w.ServiceID, &w.Title, &w.Recurring, &recurrence, &w.AnchorDay, &w.BillingAmount, &w.AutoBill, &w.Active, &w.StartDate,
		&w.Status, &w.TotalTasks, &w.CompletedTasks, &w.AllTasksCompleted, &w.CompletedAt, &w.CompletedBy, &w.Billed, &w.InvoiceID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Work{}, err
	}
	if recurrence != nil {
		w.Recurrence = Recurrence(*recurrence)
	}
	return w, nil
}

func (r *repository) ListActiveRecurringWorkIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM works WHERE recurring AND active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) ListWorks(ctx context.Context) ([]Work, error) {
	rows, err := r.db.Query(ctx, `SELECT `+workColumns+` FROM works ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repository) GetWork(ctx context.Context, id int64) (Work, error) {
	w, err := scanWork(r.db.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Work{}, shared.ErrNotFound
	}
	return w, err
}

const periodColumns = `id, work_id, name, start_date, end_date, due_date, status, total_tasks, completed_tasks, all_tasks_completed,
completed_at, completed_by, billing_amount, is_billed, invoice_id, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.WorkID, &p.Name, &p.StartDate, &p.EndDate, &p.DueDate, &p.Status, &p.TotalTasks, &p.CompletedTasks, &p.AllTasksCompleted,
		&p.CompletedAt, &p.CompletedBy, &p.BillingAmount, &p.Billed, &p.InvoiceID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) ListPeriods(ctx context.Context, workID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE work_id=$1 ORDER BY due_date ASC`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const taskColumns = `id, work_id, period_id, title, priority, status, assignee_id, due_date, completed_at, completed_by, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.WorkID, &t.PeriodID, &t.Title, &t.Priority, &t.Status, &t.AssigneeID, &t.DueDate, &t.CompletedAt, &t.CompletedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *repository) ListTasks(ctx context.Context, ref OwnerRef) ([]Task, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ref.IsPeriod() {
		rows, err = r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE period_id=$1 ORDER BY id ASC`, *ref.PeriodID)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE work_id=$1 AND period_id IS NULL ORDER BY id ASC`, ref.WorkID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) SetWorkActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE works SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertWork(ctx context.Context, in WorkInput) (Work, error) {
	var recurrence *string
	if in.Recurring {
		s := string(in.Recurrence)
		recurrence = &s
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO works (customer_id, service_id, title, recurring, recurrence, anchor_day, billing_amount, auto_bill, active, start_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9,'pending') RETURNING `+workColumns, in.CustomerID, in.ServiceID, in.Title, in.Recurring, recurrence, in.AnchorDay, in.BillingAmount, in.AutoBill, in.StartDate)
	return scanWork(row)
}

func (r *txRepository) GetWorkForUpdate(ctx context.Context, id int64) (Work, error) {
	w, err := scanWork(r.tx.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Work{}, shared.ErrNotFound
	}
	return w, err
}

func (r *txRepository) UpdateWorkCounters(ctx context.Context, id int64, u CounterUpdate) error {
	_, err := r.tx.Exec(ctx, `UPDATE works SET total_tasks=$2, completed_tasks=$3, all_tasks_completed=$4, status=$5, completed_at=$6, completed_by=$7, updated_at=NOW() WHERE id=$1`,
		id, u.Total, u.Completed, u.AllDone, u.Status, u.CompletedAt, u.CompletedBy)
	return err
}

func (r *txRepository) SetWorkBilled(ctx context.Context, id int64, invoiceID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE works SET is_billed=TRUE, invoice_id=$2, updated_at=NOW() WHERE id=$1`, id, invoiceID)
	return err
}

func (r *txRepository) GetLastPeriod(ctx context.Context, workID int64) (*Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE work_id=$1 ORDER BY due_date DESC LIMIT 1`, workID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *txRepository) GetPeriodByDueDate(ctx context.Context, workID int64, due time.Time) (*Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE work_id=$1 AND due_date=$2`, workID, due))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *txRepository) InsertPeriod(ctx context.Context, in PeriodInput) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO periods (work_id, name, start_date, end_date, due_date, status)
VALUES ($1,$2,$3,$4,$5,'pending') RETURNING `+periodColumns, in.WorkID, in.Name, in.StartDate, in.EndDate, in.DueDate)
	p, err := scanPeriod(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Period{}, ErrPeriodExists
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrNotFound
	}
	return p, err
}

func (r *txRepository) UpdatePeriodCounters(ctx context.Context, id int64, u CounterUpdate) error {
	_, err := r.tx.Exec(ctx, `UPDATE periods SET total_tasks=$2, completed_tasks=$3, all_tasks_completed=$4, status=$5, completed_at=$6, completed_by=$7, updated_at=NOW() WHERE id=$1`,
		id, u.Total, u.Completed, u.AllDone, u.Status, u.CompletedAt, u.CompletedBy)
	return err
}

func (r *txRepository) SetPeriodBilled(ctx context.Context, id int64, invoiceID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE periods SET is_billed=TRUE, invoice_id=$2, updated_at=NOW() WHERE id=$1`, id, invoiceID)
	return err
}

func (r *txRepository) DeletePeriod(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM tasks WHERE period_id=$1`, id); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM period_documents WHERE period_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM periods WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertTask(ctx context.Context, in TaskInput) (Task, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO tasks (work_id, period_id, title, priority, status, assignee_id, due_date)
VALUES ($1,$2,$3,$4,'pending',$5,$6) RETURNING `+taskColumns, in.WorkID, in.PeriodID, in.Title, in.Priority, in.AssigneeID, in.DueDate)
	return scanTask(row)
}

func (r *txRepository) GetTaskForUpdate(ctx context.Context, id int64) (Task, error) {
	t, err := scanTask(r.tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, shared.ErrNotFound
	}
	return t, err
}

func (r *txRepository) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, completedAt *time.Time, completedBy *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE tasks SET status=$2, completed_at=$3, completed_by=$4, updated_at=NOW() WHERE id=$1`, id, status, completedAt, completedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteTask(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RecountTasks recomputes counters by full recount, not incremental
// delta, so a missed event can never leave the counters drifted.
func (r *txRepository) RecountTasks(ctx context.Context, ref OwnerRef) (int, int, error) {
	var total, completed int
	var err error
	if ref.IsPeriod() {
		err = r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status='completed') FROM tasks WHERE period_id=$1`, *ref.PeriodID).Scan(&total, &completed)
	} else {
		err = r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status='completed') FROM tasks WHERE work_id=$1 AND period_id IS NULL`, ref.WorkID).Scan(&total, &completed)
	}
	return total, completed, err
}

func (r *txRepository) InsertPeriodDocument(ctx context.Context, periodID int64, name string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO period_documents (period_id, name, status) VALUES ($1,$2,'pending')`, periodID, name)
	return err
}

func (r *txRepository) ListTaskTemplates(ctx context.Context, serviceID int64) ([]catalog.TaskTemplate, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, service_id, title, priority, estimated_hours, sort_order FROM service_task_templates WHERE service_id=$1 ORDER BY sort_order ASC, id ASC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.TaskTemplate
	for rows.Next() {
		var t catalog.TaskTemplate
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.Title, &t.Priority, &t.EstimatedHours, &t.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) ListDocumentTemplates(ctx context.Context, serviceID int64) ([]catalog.DocumentTemplate, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, service_id, name, sort_order FROM service_document_templates WHERE service_id=$1 ORDER BY sort_order ASC, id ASC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.DocumentTemplate
	for rows.Next() {
		var d catalog.DocumentTemplate
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.Name, &d.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *txRepository) GetServiceBilling(ctx context.Context, serviceID int64) (ServiceBilling, error) {
	var s ServiceBilling
	var terms *string
	err := r.tx.QueryRow(ctx, `SELECT name, default_price, tax_rate, payment_terms FROM services WHERE id=$1`, serviceID).
		Scan(&s.Name, &s.DefaultPrice, &s.TaxRate, &terms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceBilling{}, shared.ErrNotFound
		}
		return ServiceBilling{}, err
	}
	if terms != nil {
		s.PaymentTerms = catalog.PaymentTerms(*terms)
	}
	return s, nil
}

func (r *txRepository) GetOverridePrice(ctx context.Context, customerID, serviceID int64) (*float64, error) {
	var price float64
	err := r.tx.QueryRow(ctx, `SELECT price FROM customer_service_prices WHERE customer_id=$1 AND service_id=$2`, customerID, serviceID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func (r *txRepository) NextInvoiceNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	var year int
	if err := r.tx.QueryRow(ctx, `SELECT EXTRACT(YEAR FROM NOW())::int`).Scan(&year); err != nil {
		return "", err
	}
	return formatInvoiceNumber(year, n), nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, in invoices.InvoiceInput) (invoices.Invoice, error) {
	var inv invoices.Invoice
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, customer_id, work_id, period_id, invoice_date, due_date, subtotal, tax_amount, total, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'draft') RETURNING id, created_at, updated_at`,
		in.Number, in.CustomerID, in.WorkID, in.PeriodID, in.InvoiceDate, in.DueDate, in.Subtotal, in.TaxAmount, in.Total).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return invoices.Invoice{}, err
	}
	inv.Number = in.Number
	inv.CustomerID = in.CustomerID
	inv.WorkID = in.WorkID
	inv.PeriodID = in.PeriodID
	inv.InvoiceDate = in.InvoiceDate
	inv.DueDate = in.DueDate
	inv.Subtotal = in.Subtotal
	inv.TaxAmount = in.TaxAmount
	inv.Total = in.Total
	inv.Status = invoices.StatusDraft
	for _, line := range in.Lines {
		var l invoices.Line
		err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, amount) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			inv.ID, line.Description, line.Quantity, line.UnitPrice, line.Amount).Scan(&l.ID)
		if err != nil {
			return invoices.Invoice{}, err
		}
		l.InvoiceID = inv.ID
		l.Description = line.Description
		l.Quantity = line.Quantity
		l.UnitPrice = line.UnitPrice
		l.Amount = line.Amount
		inv.Lines = append(inv.Lines, l)
	}
	return inv, nil
}

func formatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}
