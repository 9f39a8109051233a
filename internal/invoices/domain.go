package invoices

import (
	"fmt"
	"time"

	"github.com/praxishq/praxis/internal/shared"
)

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// posted reports whether this status carries receivable/income entries
// in the ledger. Overdue is sent that aged past its due date.
func (s Status) posted() bool {
	return s == StatusSent || s == StatusOverdue || s == StatusPaid
}

// Invoice is a billing document derived from exactly one period or one
// non-recurring work.
type Invoice struct {
	ID          int64
	Number      string
	CustomerID  int64
	WorkID      int64
	PeriodID    *int64
	InvoiceDate time.Time
	DueDate     time.Time
	Subtotal    float64
	TaxAmount   float64
	Total       float64
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []Line
}

// Line is one invoice line item.
type Line struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
}

// ReceiptVoucher records a received payment, created automatically when
// an invoice transitions to paid.
type ReceiptVoucher struct {
	ID        int64
	Number    string
	InvoiceID int64
	Amount    float64
	Date      time.Time
	Status    string
	CreatedAt time.Time
}

// LineInput is one line to create with an invoice.
type LineInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
}

// InvoiceInput groups fields required to create a draft invoice.
type InvoiceInput struct {
	Number      string
	CustomerID  int64
	WorkID      int64
	PeriodID    *int64
	InvoiceDate time.Time
	DueDate     time.Time
	Subtotal    float64
	TaxAmount   float64
	Total       float64
	Lines       []LineInput
}

// SourceKey returns the ledger source-document key for the invoice's
// own entries.
func (i Invoice) SourceKey() string {
	return InvoiceSourceKey(i.Number)
}

// InvoiceSourceKey builds the ledger key for an invoice number.
func InvoiceSourceKey(number string) string {
	return "INV:" + number
}

// VoucherSourceKey builds the ledger key for a receipt voucher number.
func VoucherSourceKey(number string) string {
	return "RCV:" + number
}

var (
	// ErrInvalidTransition indicates a status edge outside the table.
	ErrInvalidTransition = fmt.Errorf("invoices: invalid status transition: %w", shared.ErrConflict)
	// ErrUnknownStatus indicates an unrecognised status value.
	ErrUnknownStatus = fmt.Errorf("invoices: unknown status: %w", shared.ErrInvalidInput)
)
