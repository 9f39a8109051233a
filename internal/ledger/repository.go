package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxishq/praxis/internal/platform/db"
)

// EntryInput is one entry row to insert.
type EntryInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
	Date      time.Time
	SourceDoc string
	Memo      string
}

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	CreateAccount(ctx context.Context, in Account) (Account, error)
	AccountBalance(ctx context.Context, accountID int64) (AccountBalance, error)
	TrialBalance(ctx context.Context) (TrialBalance, error)
	EntriesBySource(ctx context.Context, sourceDoc string) ([]Entry, error)
	ListEntries(ctx context.Context, accountID int64, limit int) ([]Entry, error)
}

// TxRepository exposes posting operations within a transaction. The
// invoices lifecycle composes one of these inside its own transaction so
// ledger effects commit or roll back with the status change.
type TxRepository interface {
	ClaimSource(ctx context.Context, sourceDoc string) error
	ReleaseSource(ctx context.Context, sourceDoc string) error
	InsertEntries(ctx context.Context, entries []EntryInput) ([]Entry, error)
	DeleteEntriesBySource(ctx context.Context, sourceDoc string) (int64, error)
}

// PostPairTx posts a matched debit/credit pair inside an existing
// transaction. Returns ErrAlreadyPosted if the source document was
// posted before; nothing is inserted in that case.
func PostPairTx(ctx context.Context, tx TxRepository, p Posting) ([]Entry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := tx.ClaimSource(ctx, p.SourceDoc); err != nil {
		return nil, err
	}
	return tx.InsertEntries(ctx, []EntryInput{
		{AccountID: p.DebitAccount, Debit: p.Amount, Date: p.Date, SourceDoc: p.SourceDoc, Memo: p.Memo},
		{AccountID: p.CreditAccount, Credit: p.Amount, Date: p.Date, SourceDoc: p.SourceDoc, Memo: p.Memo},
	})
}

// UnpostTx removes every entry for the source document, regardless of
// amount, inside an existing transaction. Amounts may have drifted since
// posting; removal keys on the source document alone.
func UnpostTx(ctx context.Context, tx TxRepository, sourceDoc string) (int64, error) {
	if sourceDoc == "" {
		return 0, ErrSourceRequired
	}
	removed, err := tx.DeleteEntriesBySource(ctx, sourceDoc)
	if err != nil {
		return 0, err
	}
	if err := tx.ReleaseSource(ctx, sourceDoc); err != nil {
		return 0, err
	}
	return removed, nil
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, type, opening_balance, created_at, updated_at FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, code, name, type, opening_balance, created_at, updated_at FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) CreateAccount(ctx context.Context, in Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, opening_balance) VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`,
		in.Code, in.Name, in.Type, in.OpeningBalance).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return in, nil
}

func (r *repository) AccountBalance(ctx context.Context, accountID int64) (AccountBalance, error) {
	var b AccountBalance
	err := r.db.QueryRow(ctx, `SELECT a.id, a.code, a.name, a.type, a.opening_balance,
COALESCE(SUM(e.debit),0), COALESCE(SUM(e.credit),0)
FROM accounts a LEFT JOIN ledger_entries e ON e.account_id = a.id
WHERE a.id=$1 GROUP BY a.id`, accountID).
		Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Opening, &b.Debits, &b.Credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBalance{}, ErrAccountNotFound
		}
		return AccountBalance{}, err
	}
	b.Balance = b.Opening + b.Debits - b.Credits
	return b, nil
}

func (r *repository) TrialBalance(ctx context.Context) (TrialBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.opening_balance,
COALESCE(SUM(e.debit),0), COALESCE(SUM(e.credit),0)
FROM accounts a LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id ORDER BY a.code ASC`)
	if err != nil {
		return TrialBalance{}, err
	}
	defer rows.Close()
	var tb TrialBalance
	for rows.Next() {
		var (
			row              TrialBalanceRow
			opening, dr, cr  float64
		)
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &opening, &dr, &cr); err != nil {
			return TrialBalance{}, err
		}
		balance := opening + dr - cr
		if balance >= 0 {
			row.Debit = balance
		} else {
			row.Credit = -balance
		}
		tb.TotalDebit += row.Debit
		tb.TotalCredit += row.Credit
		tb.Rows = append(tb.Rows, row)
	}
	return tb, rows.Err()
}

func (r *repository) EntriesBySource(ctx context.Context, sourceDoc string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, account_id, debit, credit, date, source_doc, memo, created_at FROM ledger_entries WHERE source_doc=$1 ORDER BY id ASC`, sourceDoc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *repository) ListEntries(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, account_id, debit, credit, date, source_doc, memo, created_at FROM ledger_entries WHERE account_id=$1 ORDER BY date DESC, id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Debit, &e.Credit, &e.Date, &e.SourceDoc, &e.Memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a pgx transaction with ledger posting operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) ClaimSource(ctx context.Context, sourceDoc string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_sources (source_doc) VALUES ($1)`, sourceDoc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyPosted
		}
		return err
	}
	return nil
}

func (r *txRepository) ReleaseSource(ctx context.Context, sourceDoc string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM ledger_sources WHERE source_doc=$1`, sourceDoc)
	return err
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []EntryInput) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, in := range entries {
		var e Entry
		err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (account_id, debit, credit, date, source_doc, memo)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
			in.AccountID, in.Debit, in.Credit, in.Date, in.SourceDoc, in.Memo).Scan(&e.ID, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.AccountID = in.AccountID
		e.Debit = in.Debit
		e.Credit = in.Credit
		e.Date = in.Date
		e.SourceDoc = in.SourceDoc
		e.Memo = in.Memo
		out = append(out, e)
	}
	return out, nil
}

func (r *txRepository) DeleteEntriesBySource(ctx context.Context, sourceDoc string) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM ledger_entries WHERE source_doc=$1`, sourceDoc)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
