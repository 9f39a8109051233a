package ledger

import "time"

// AccountType enumerates chart-of-accounts classifications.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountIncome    AccountType = "INCOME"
	AccountExpense   AccountType = "EXPENSE"
)

// Account is one ledger account.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	OpeningBalance float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Entry is one side of a double-entry posting. Exactly one of Debit and
// Credit is non-zero. SourceDoc is the idempotency and reversal key.
type Entry struct {
	ID        int64
	AccountID int64
	Debit     float64
	Credit    float64
	Date      time.Time
	SourceDoc string
	Memo      string
	CreatedAt time.Time
}

// AccountBalance is the running balance of one account.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Opening   float64
	Debits    float64
	Credits   float64
	Balance   float64
}

// TrialBalanceRow places an account's closing balance in the debit or
// credit column.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Debit     float64
	Credit    float64
}

// TrialBalance is the full trial balance. TotalDebit must equal
// TotalCredit on a consistent ledger.
type TrialBalance struct {
	Rows        []TrialBalanceRow
	TotalDebit  float64
	TotalCredit float64
}

// Balanced reports whether the trial balance reconciles.
func (tb TrialBalance) Balanced() bool {
	const epsilon = 0.005
	diff := tb.TotalDebit - tb.TotalCredit
	return diff < epsilon && diff > -epsilon
}
