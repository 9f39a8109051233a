package ledger

import "errors"

var (
	// ErrAlreadyPosted indicates a posting already exists for the source
	// document. Callers treat it as a successful no-op.
	ErrAlreadyPosted = errors.New("ledger: source document already posted")
	// ErrUnbalanced indicates total debits differ from total credits.
	ErrUnbalanced = errors.New("ledger: lines must balance")
	// ErrTooFewLines indicates a journal with less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrSourceRequired indicates a missing source document key.
	ErrSourceRequired = errors.New("ledger: source document required")
	// ErrAmountNotPositive indicates a zero or negative posting amount.
	ErrAmountNotPositive = errors.New("ledger: amount must be positive")
	// ErrSameAccount indicates debit and credit hit the same account.
	ErrSameAccount = errors.New("ledger: debit and credit accounts must differ")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
)
