package catalog

import "time"

// PaymentTerms enumerates supported invoice payment terms.
type PaymentTerms string

const (
	TermsNet15        PaymentTerms = "net_15"
	TermsNet30        PaymentTerms = "net_30"
	TermsNet45        PaymentTerms = "net_45"
	TermsNet60        PaymentTerms = "net_60"
	TermsDueOnReceipt PaymentTerms = "due_on_receipt"
)

// Valid reports whether the terms value is one of the known constants.
func (t PaymentTerms) Valid() bool {
	switch t {
	case TermsNet15, TermsNet30, TermsNet45, TermsNet60, TermsDueOnReceipt:
		return true
	}
	return false
}

// OffsetDays returns the number of days between invoice date and due date.
func (t PaymentTerms) OffsetDays() int {
	switch t {
	case TermsNet15:
		return 15
	case TermsNet45:
		return 45
	case TermsNet60:
		return 60
	case TermsDueOnReceipt:
		return 0
	default:
		// Unconfigured terms fall back to net 30. Business default, not
		// a technical necessity.
		return 30
	}
}

// DueFrom computes the due date for an invoice dated at the given day.
func (t PaymentTerms) DueFrom(invoiceDate time.Time) time.Time {
	return invoiceDate.AddDate(0, 0, t.OffsetDays())
}

// Customer is a billable client of the practice.
type Customer struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service is an offered engagement type with its pricing defaults.
type Service struct {
	ID           int64
	Name         string
	DefaultPrice *float64
	TaxRate      *float64
	PaymentTerms PaymentTerms
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskTemplate seeds the tasks of every new period of a service.
type TaskTemplate struct {
	ID             int64
	ServiceID      int64
	Title          string
	Priority       string
	EstimatedHours float64
	SortOrder      int
}

// DocumentTemplate seeds documents requested from the customer each period.
type DocumentTemplate struct {
	ID        int64
	ServiceID int64
	Name      string
	SortOrder int
}

// PriceOverride is a customer-specific price for a service. It wins over
// every other source in the billing engine's price resolution chain.
type PriceOverride struct {
	CustomerID int64
	ServiceID  int64
	Price      float64
	UpdatedAt  time.Time
}

// LedgerSettings maps the tenant's control accounts. CashAccountID may be
// unset, in which case receipt vouchers are skipped with a warning.
type LedgerSettings struct {
	ReceivableAccountID int64
	IncomeAccountID     int64
	CashAccountID       *int64
	UpdatedAt           time.Time
}
