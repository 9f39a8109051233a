package ledger

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praxishq/praxis/internal/shared"
	_ "github.com/praxishq/praxis/testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRepo struct {
	accounts map[int64]*Account
	claimed  map[string]bool
	entries  []Entry

	nextAccountID int64
	nextEntryID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[int64]*Account),
		claimed:  make(map[string]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for id := int64(1); id <= r.nextAccountID; id++ {
		if a, ok := r.accounts[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (r *memoryRepo) CreateAccount(ctx context.Context, in Account) (Account, error) {
	r.nextAccountID++
	in.ID = r.nextAccountID
	r.accounts[in.ID] = &in
	return in, nil
}

func (r *memoryRepo) AccountBalance(ctx context.Context, accountID int64) (AccountBalance, error) {
	a, ok := r.accounts[accountID]
	if !ok {
		return AccountBalance{}, ErrAccountNotFound
	}
	b := AccountBalance{
		AccountID: a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Type:      a.Type,
		Opening:   a.OpeningBalance,
	}
	for _, e := range r.entries {
		if e.AccountID != accountID {
			continue
		}
		b.Debits += e.Debit
		b.Credits += e.Credit
	}
	b.Balance = shared.Round2(b.Opening + b.Debits - b.Credits)
	return b, nil
}

func (r *memoryRepo) TrialBalance(ctx context.Context) (TrialBalance, error) {
	var tb TrialBalance
	ids := make([]int64, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		bal, err := r.AccountBalance(ctx, id)
		if err != nil {
			return TrialBalance{}, err
		}
		row := TrialBalanceRow{AccountID: bal.AccountID, Code: bal.Code, Name: bal.Name}
		if bal.Balance >= 0 {
			row.Debit = bal.Balance
		} else {
			row.Credit = -bal.Balance
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit += row.Debit
		tb.TotalCredit += row.Credit
	}
	return tb, nil
}

func (r *memoryRepo) EntriesBySource(ctx context.Context, sourceDoc string) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.SourceDoc == sourceDoc {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) ClaimSource(ctx context.Context, sourceDoc string) error {
	if tx.repo.claimed[sourceDoc] {
		return ErrAlreadyPosted
	}
	tx.repo.claimed[sourceDoc] = true
	return nil
}

func (tx *memoryTx) ReleaseSource(ctx context.Context, sourceDoc string) error {
	delete(tx.repo.claimed, sourceDoc)
	return nil
}

func (tx *memoryTx) InsertEntries(ctx context.Context, inputs []EntryInput) ([]Entry, error) {
	var out []Entry
	for _, in := range inputs {
		tx.repo.nextEntryID++
		e := Entry{
			ID:        tx.repo.nextEntryID,
			AccountID: in.AccountID,
			Debit:     in.Debit,
			Credit:    in.Credit,
			Date:      in.Date,
			SourceDoc: in.SourceDoc,
			Memo:      in.Memo,
		}
		tx.repo.entries = append(tx.repo.entries, e)
		out = append(out, e)
	}
	return out, nil
}

func (tx *memoryTx) DeleteEntriesBySource(ctx context.Context, sourceDoc string) (int64, error) {
	var kept []Entry
	removed := int64(0)
	for _, e := range tx.repo.entries {
		if e.SourceDoc == sourceDoc {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	tx.repo.entries = kept
	return removed, nil
}

func seedAccounts(t *testing.T, repo *memoryRepo) (cash, receivable, income Account) {
	t.Helper()
	var err error
	cash, err = repo.CreateAccount(context.Background(), Account{Code: "1100", Name: "Cash", Type: AccountAsset})
	require.NoError(t, err)
	receivable, err = repo.CreateAccount(context.Background(), Account{Code: "1200", Name: "Accounts Receivable", Type: AccountAsset})
	require.NoError(t, err)
	income, err = repo.CreateAccount(context.Background(), Account{Code: "4100", Name: "Service Income", Type: AccountIncome})
	require.NoError(t, err)
	return cash, receivable, income
}

func TestPostWritesMatchedPair(t *testing.T) {
	repo := newMemoryRepo()
	_, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)

	entries, err := svc.Post(context.Background(), Posting{
		SourceDoc:     "INV:INV-2025-00001",
		Date:          time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
		DebitAccount:  receivable.ID,
		CreditAccount: income.ID,
		Amount:        1575,
		Memo:          "Invoice INV-2025-00001",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1575.0, entries[0].Debit)
	require.Equal(t, 0.0, entries[0].Credit)
	require.Equal(t, 1575.0, entries[1].Credit)
	require.Equal(t, entries[0].SourceDoc, entries[1].SourceDoc)
}

func TestPostIsIdempotentPerSourceDoc(t *testing.T) {
	repo := newMemoryRepo()
	_, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	p := Posting{
		SourceDoc:     "INV:INV-2025-00001",
		Date:          time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
		DebitAccount:  receivable.ID,
		CreditAccount: income.ID,
		Amount:        1575,
	}

	_, err := svc.Post(context.Background(), p)
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), p)
	require.ErrorIs(t, err, ErrAlreadyPosted)
	require.Len(t, repo.entries, 2)
}

func TestUnpostRemovesPairAndReleasesClaim(t *testing.T) {
	repo := newMemoryRepo()
	_, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	p := Posting{
		SourceDoc:     "INV:INV-2025-00001",
		Date:          time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
		DebitAccount:  receivable.ID,
		CreditAccount: income.ID,
		Amount:        1575,
	}

	_, err := svc.Post(context.Background(), p)
	require.NoError(t, err)

	removed, err := svc.Unpost(context.Background(), p.SourceDoc)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	require.Empty(t, repo.entries)

	// Reposting after unpost succeeds; the claim went with the entries.
	_, err = svc.Post(context.Background(), p)
	require.NoError(t, err)
}

func TestPostValidation(t *testing.T) {
	repo := newMemoryRepo()
	_, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, Posting{DebitAccount: receivable.ID, CreditAccount: income.ID, Amount: 10})
	require.ErrorIs(t, err, ErrSourceRequired)

	_, err = svc.Post(ctx, Posting{SourceDoc: "X:1", DebitAccount: receivable.ID, CreditAccount: income.ID, Amount: 0})
	require.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = svc.Post(ctx, Posting{SourceDoc: "X:1", DebitAccount: income.ID, CreditAccount: income.ID, Amount: 10})
	require.ErrorIs(t, err, ErrSameAccount)
}

func TestPostJournalRejectsUnbalancedLines(t *testing.T) {
	repo := newMemoryRepo()
	cash, receivable, _ := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.PostJournal(ctx, JournalInput{
		SourceDoc: "JRN:1",
		Lines: []JournalLineInput{
			{AccountID: cash.ID, Debit: 100},
			{AccountID: receivable.ID, Credit: 90},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)

	_, err = svc.PostJournal(ctx, JournalInput{
		SourceDoc: "JRN:1",
		Lines:     []JournalLineInput{{AccountID: cash.ID, Debit: 100}},
	})
	require.ErrorIs(t, err, ErrTooFewLines)

	require.Empty(t, repo.entries)
}

func TestPostJournalSplitsAcrossLines(t *testing.T) {
	repo := newMemoryRepo()
	cash, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	svc.WithNow(func() time.Time { return time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC) })

	entries, err := svc.PostJournal(context.Background(), JournalInput{
		SourceDoc: "JRN:2025-10-CLOSE",
		Memo:      "Month end",
		Lines: []JournalLineInput{
			{AccountID: cash.ID, Debit: 600},
			{AccountID: receivable.ID, Debit: 400},
			{AccountID: income.ID, Credit: 1000},
		},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.Equal(t, time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC), e.Date)
		require.Equal(t, "Month end", e.Memo)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, Account{Name: "Cash", Type: AccountAsset})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreateAccount(ctx, Account{Code: "9999", Name: "Mystery", Type: "CONTRA"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	a, err := svc.CreateAccount(ctx, Account{Code: "5100", Name: "Rent", Type: AccountExpense})
	require.NoError(t, err)
	require.NotZero(t, a.ID)
}

func TestTrialBalanceStaysBalanced(t *testing.T) {
	repo := newMemoryRepo()
	cash, receivable, income := seedAccounts(t, repo)
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()
	date := time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.Post(ctx, Posting{
		SourceDoc: "INV:INV-2025-00001", Date: date,
		DebitAccount: receivable.ID, CreditAccount: income.ID, Amount: 1575,
	})
	require.NoError(t, err)
	_, err = svc.Post(ctx, Posting{
		SourceDoc: "RCPT:RV-2025-00001", Date: date,
		DebitAccount: cash.ID, CreditAccount: receivable.ID, Amount: 1575,
	})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(ctx)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.Equal(t, tb.TotalDebit, tb.TotalCredit)

	bal, err := svc.Balance(ctx, receivable.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, bal.Balance)
	bal, err = svc.Balance(ctx, cash.ID)
	require.NoError(t, err)
	require.Equal(t, 1575.0, bal.Balance)
}
