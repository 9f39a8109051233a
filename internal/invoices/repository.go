package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxishq/praxis/internal/catalog"
	"github.com/praxishq/praxis/internal/ledger"
	"github.com/praxishq/praxis/internal/platform/db"
	"github.com/praxishq/praxis/internal/shared"
)

// ListFilter narrows invoice listings.
type ListFilter struct {
	CustomerID int64
	Status     Status
}

// VoucherInput groups fields to create a receipt voucher.
type VoucherInput struct {
	Number    string
	InvoiceID int64
	Amount    float64
	Date      time.Time
}

// AgingBucket is one column of the receivables aging report.
type AgingBucket struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// AgingReport buckets unpaid invoices by days past due.
type AgingReport struct {
	AsOf    time.Time     `json:"as_of"`
	Buckets []AgingBucket `json:"buckets"`
}

// StatementRow is one line of a customer statement: an invoice charge or
// a receipt, with a running balance.
type StatementRow struct {
	Date    time.Time `json:"date"`
	Number  string    `json:"number"`
	Kind    string    `json:"kind"`
	Amount  float64   `json:"amount"`
	Balance float64   `json:"balance"`
}

// Repository encapsulates DB operations for invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	Vouchers(ctx context.Context, invoiceID int64) ([]ReceiptVoucher, error)
	Aging(ctx context.Context, asOf time.Time) (AgingReport, error)
	CustomerStatement(ctx context.Context, customerID int64) ([]StatementRow, error)
}

// TxRepository exposes invoice mutations within a transaction. Ledger()
// hands back a posting surface bound to the same transaction, so status
// changes and their ledger effects commit or roll back together.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	DeleteInvoice(ctx context.Context, id int64) error

	NextVoucherNumber(ctx context.Context) (string, error)
	InsertVoucher(ctx context.Context, in VoucherInput) (ReceiptVoucher, error)
	DeleteVouchersByInvoice(ctx context.Context, invoiceID int64) ([]string, error)

	ClearBillingFlags(ctx context.Context, invoiceID int64) error
	GetLedgerSettings(ctx context.Context) (catalog.LedgerSettings, bool, error)

	Ledger() ledger.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed invoices repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

const invoiceColumns = `id, number, customer_id, work_id, period_id, invoice_date, due_date, subtotal, tax_amount, total, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.WorkID, &inv.PeriodID, &inv.InvoiceDate, &inv.DueDate,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []any{}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(` AND customer_id=$%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	query += ` ORDER BY id DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, description, quantity, unit_price, amount FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &line.Quantity, &line.UnitPrice, &line.Amount); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

func (r *repository) Vouchers(ctx context.Context, invoiceID int64) ([]ReceiptVoucher, error) {
	rows, err := r.db.Query(ctx, `SELECT id, number, invoice_id, amount, voucher_date, status, created_at FROM receipt_vouchers WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceiptVoucher
	for rows.Next() {
		var v ReceiptVoucher
		if err := rows.Scan(&v.ID, &v.Number, &v.InvoiceID, &v.Amount, &v.Date, &v.Status, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var agingBounds = []struct {
	label    string
	from, to int
}{
	{"current", -1 << 30, 0},
	{"1-30", 1, 30},
	{"31-60", 31, 60},
	{"61-90", 61, 90},
	{"90+", 91, 1 << 30},
}

// Aging buckets open invoices (sent or overdue) by days past due as of
// the given date. Paid, draft and cancelled invoices are excluded.
func (r *repository) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	rows, err := r.db.Query(ctx, `SELECT due_date, total FROM invoices WHERE status IN ('sent','overdue')`)
	if err != nil {
		return AgingReport{}, err
	}
	defer rows.Close()
	report := AgingReport{AsOf: asOf, Buckets: make([]AgingBucket, len(agingBounds))}
	for i, b := range agingBounds {
		report.Buckets[i].Label = b.label
	}
	for rows.Next() {
		var due time.Time
		var total float64
		if err := rows.Scan(&due, &total); err != nil {
			return AgingReport{}, err
		}
		days := int(asOf.Sub(due).Hours() / 24)
		for i, b := range agingBounds {
			if days >= b.from && days <= b.to {
				report.Buckets[i].Count++
				report.Buckets[i].Total = shared.Round2(report.Buckets[i].Total + total)
				break
			}
		}
	}
	return report, rows.Err()
}

// CustomerStatement interleaves the customer's invoices and receipts in
// date order with a running balance. Draft and cancelled invoices carry
// no receivable and are excluded.
func (r *repository) CustomerStatement(ctx context.Context, customerID int64) ([]StatementRow, error) {
	rows, err := r.db.Query(ctx, `
SELECT i.invoice_date AS entry_date, i.number, 'invoice' AS kind, i.total AS amount
FROM invoices i
WHERE i.customer_id=$1 AND i.status IN ('sent','overdue','paid')
UNION ALL
SELECT v.voucher_date, v.number, 'receipt', -v.amount
FROM receipt_vouchers v
JOIN invoices i ON i.id = v.invoice_id
WHERE i.customer_id=$1
ORDER BY entry_date ASC, number ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatementRow
	balance := 0.0
	for rows.Next() {
		var row StatementRow
		if err := rows.Scan(&row.Date, &row.Number, &row.Kind, &row.Amount); err != nil {
			return nil, err
		}
		balance = shared.Round2(balance + row.Amount)
		row.Balance = balance
		out = append(out, row)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return r.ledger
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteInvoice(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) NextVoucherNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('receipt_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	var year int
	if err := r.tx.QueryRow(ctx, `SELECT EXTRACT(YEAR FROM NOW())::int`).Scan(&year); err != nil {
		return "", err
	}
	return fmt.Sprintf("RV-%d-%05d", year, n), nil
}

func (r *txRepository) InsertVoucher(ctx context.Context, in VoucherInput) (ReceiptVoucher, error) {
	var v ReceiptVoucher
	err := r.tx.QueryRow(ctx, `INSERT INTO receipt_vouchers (number, invoice_id, amount, voucher_date, status)
VALUES ($1,$2,$3,$4,'received') RETURNING id, number, invoice_id, amount, voucher_date, status, created_at`,
		in.Number, in.InvoiceID, in.Amount, in.Date).
		Scan(&v.ID, &v.Number, &v.InvoiceID, &v.Amount, &v.Date, &v.Status, &v.CreatedAt)
	return v, err
}

// DeleteVouchersByInvoice removes the invoice's vouchers and returns
// their numbers so the caller can unpost each one's cash entries.
func (r *txRepository) DeleteVouchersByInvoice(ctx context.Context, invoiceID int64) ([]string, error) {
	rows, err := r.tx.Query(ctx, `DELETE FROM receipt_vouchers WHERE invoice_id=$1 RETURNING number`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// ClearBillingFlags resets the billed mark on whatever owner references
// the invoice. The columns live in the billing tables; the update runs
// here so invoice deletion and flag reset share one transaction.
func (r *txRepository) ClearBillingFlags(ctx context.Context, invoiceID int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE periods SET is_billed=FALSE, invoice_id=NULL, updated_at=NOW() WHERE invoice_id=$1`, invoiceID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE works SET is_billed=FALSE, invoice_id=NULL, updated_at=NOW() WHERE invoice_id=$1`, invoiceID)
	return err
}

// GetLedgerSettings reads the posting account configuration inside the
// transaction. The second return is false when no settings row exists.
func (r *txRepository) GetLedgerSettings(ctx context.Context) (catalog.LedgerSettings, bool, error) {
	var s catalog.LedgerSettings
	err := r.tx.QueryRow(ctx, `SELECT receivable_account_id, income_account_id, cash_account_id, updated_at FROM ledger_settings WHERE singleton=TRUE`).
		Scan(&s.ReceivableAccountID, &s.IncomeAccountID, &s.CashAccountID, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.LedgerSettings{}, false, nil
	}
	if err != nil {
		return catalog.LedgerSettings{}, false, err
	}
	return s, true, nil
}
