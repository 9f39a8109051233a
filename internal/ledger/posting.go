package ledger

import (
	"fmt"
	"time"
)

// Posting describes one matched debit/credit pair tied to a source
// document. This is the only shape in which document-driven entries
// enter the ledger; one leg never exists without the other.
type Posting struct {
	SourceDoc     string
	Date          time.Time
	DebitAccount  int64
	CreditAccount int64
	Amount        float64
	Memo          string
}

// Validate ensures the posting can form a matched pair.
func (p Posting) Validate() error {
	if p.SourceDoc == "" {
		return ErrSourceRequired
	}
	if p.Amount <= 0 {
		return ErrAmountNotPositive
	}
	if p.DebitAccount == 0 || p.CreditAccount == 0 {
		return fmt.Errorf("ledger: posting %s missing account", p.SourceDoc)
	}
	if p.DebitAccount == p.CreditAccount {
		return ErrSameAccount
	}
	return nil
}

// JournalLineInput is one line of a manually constructed journal.
type JournalLineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

// JournalInput groups fields required to post a manual journal.
type JournalInput struct {
	SourceDoc string
	Date      time.Time
	Memo      string
	PostedBy  int64
	Lines     []JournalLineInput
}

// Validate ensures journal input meets the double-entry invariant.
func (in JournalInput) Validate() error {
	if in.SourceDoc == "" {
		return ErrSourceRequired
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	return nil
}
