package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxishq/praxis/internal/observability"
	"github.com/praxishq/praxis/internal/shared"
)

// AuditPort records ledger mutations for operator visibility.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles ledger business logic.
type Service struct {
	repo    Repository
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post appends a matched debit/credit pair for a source document.
// A pair already posted under the same key is a reported no-op.
func (s *Service) Post(ctx context.Context, p Posting) ([]Entry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = PostPairTx(ctx, tx, p)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyPosted) {
			s.metrics.DuplicatePostingSkipped()
			if s.logger != nil {
				s.logger.Warn("duplicate posting skipped", slog.String("source_doc", p.SourceDoc))
			}
		}
		return nil, err
	}
	return entries, nil
}

// Unpost removes every entry keyed by the source document and returns
// how many were removed. Amount equality plays no part in the match.
func (s *Service) Unpost(ctx context.Context, sourceDoc string) (int64, error) {
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = UnpostTx(ctx, tx, sourceDoc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PostJournal posts a manually constructed, multi-line journal. Rejected
// synchronously when the lines do not balance.
func (s *Service) PostJournal(ctx context.Context, in JournalInput) ([]Entry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ClaimSource(ctx, in.SourceDoc); err != nil {
			return err
		}
		inputs := make([]EntryInput, 0, len(in.Lines))
		for _, line := range in.Lines {
			inputs = append(inputs, EntryInput{
				AccountID: line.AccountID,
				Debit:     line.Debit,
				Credit:    line.Credit,
				Date:      date,
				SourceDoc: in.SourceDoc,
				Memo:      in.Memo,
			})
		}
		var err error
		entries, err = tx.InsertEntries(ctx, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.PostedBy,
			Action:   "ledger.journal.post",
			Entity:   "journal",
			EntityID: in.SourceDoc,
			Meta:     map[string]any{"lines": len(in.Lines)},
			At:       s.now(),
		})
	}
	return entries, nil
}

// CreateAccount registers a new ledger account.
func (s *Service) CreateAccount(ctx context.Context, in Account) (Account, error) {
	if in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("%w: account code and name required", shared.ErrInvalidInput)
	}
	switch in.Type {
	case AccountAsset, AccountLiability, AccountEquity, AccountIncome, AccountExpense:
	default:
		return Account{}, fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidInput, in.Type)
	}
	return s.repo.CreateAccount(ctx, in)
}

// Accounts lists the chart of accounts.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// Balance returns one account's running balance.
func (s *Service) Balance(ctx context.Context, accountID int64) (AccountBalance, error) {
	return s.repo.AccountBalance(ctx, accountID)
}

// TrialBalance computes the signed trial balance across all accounts.
func (s *Service) TrialBalance(ctx context.Context) (TrialBalance, error) {
	return s.repo.TrialBalance(ctx)
}

// EntriesBySource lists the entries tied to one source document.
func (s *Service) EntriesBySource(ctx context.Context, sourceDoc string) ([]Entry, error) {
	return s.repo.EntriesBySource(ctx, sourceDoc)
}

// Entries lists recent entries for one account.
func (s *Service) Entries(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
	return s.repo.ListEntries(ctx, accountID, limit)
}
