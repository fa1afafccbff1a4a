// Package pg is the Postgres implementation of ledger.Store. Postings run
// in a single transaction with account rows locked in sorted order, so two
// concurrent postings touching the same accounts serialize instead of
// deadlocking.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tezoro.org/internal/ledger"
	"tezoro.org/internal/money"
)

type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const accountColumns = `id, owner_id, number, currency, balance_minor, name, created_at`

func (s *Store) CreateAccount(ctx context.Context, acc ledger.Account) (ledger.Account, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts(id, owner_id, number, currency, balance_minor, name, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, acc.ID, acc.OwnerID, acc.Number, acc.Currency, acc.BalanceMinor, acc.Name, acc.CreatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) Account(ctx context.Context, id string) (ledger.Account, error) {
	var acc ledger.Account
	err := s.db.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts where id=$1
	`, id).Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.BalanceMinor, &acc.Name, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) Accounts(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+accountColumns+` from accounts
		where $1 = '' or owner_id = $1
		order by created_at asc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.Account
	for rows.Next() {
		var acc ledger.Account
		if err := rows.Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.BalanceMinor, &acc.Name, &acc.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, acc)
	}
	return res, rows.Err()
}

func (s *Store) AccountNumberTaken(ctx context.Context, number string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from accounts where number=$1)
	`, number).Scan(&taken)
	return taken, err
}

func (s *Store) RenameAccount(ctx context.Context, id, name string) (ledger.Account, error) {
	var acc ledger.Account
	err := s.db.QueryRowContext(ctx, `
		update accounts set name=$2 where id=$1
		returning `+accountColumns+`
	`, id, name).Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.BalanceMinor, &acc.Name, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) CategoryExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from categories where id=$1)
	`, id).Scan(&ok)
	return ok, err
}

// ApplyPosting writes the entries and their balance effects in one
// transaction. Funds are re-checked against the locked rows, so the
// engine's earlier check going stale cannot overdraw an account.
func (s *Store) ApplyPosting(ctx context.Context, entries []ledger.Entry) ([]ledger.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	balances := make(map[string]int64)
	for _, id := range lockOrder(entries) {
		var bal int64
		err := tx.QueryRowContext(ctx, `
			select balance_minor from accounts where id=$1 for update
		`, id).Scan(&bal)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		balances[id] = bal
	}

	for _, e := range entries {
		balances[e.AccountID] += e.AmountMinor
		if balances[e.AccountID] < 0 {
			return nil, ledger.ErrInsufficientFunds
		}
	}

	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			update accounts set balance_minor = balance_minor + $2 where id=$1
		`, e.AccountID, e.AmountMinor); err != nil {
			return nil, err
		}

		var fxRate sql.NullFloat64
		var fxBase, fxQuote sql.NullString
		if e.FX != nil {
			fxRate = sql.NullFloat64{Float64: e.FX.Rate, Valid: true}
			fxBase = sql.NullString{String: string(e.FX.Base), Valid: true}
			fxQuote = sql.NullString{String: string(e.FX.Quote), Valid: true}
		}
		if err := tx.QueryRowContext(ctx, `
			insert into entries(id, account_id, kind, amount_minor, currency, description,
				category_id, counterparty_account_id, fx_rate, fx_base, fx_quote, executed_at)
			values ($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11,$12)
			returning sequence
		`, e.ID, e.AccountID, e.Kind, e.AmountMinor, e.Currency, e.Description,
			e.CategoryID, e.CounterpartyID, fxRate, fxBase, fxQuote, e.ExecutedAt).Scan(&e.Sequence); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

const entryColumns = `
	e.id, e.account_id, e.kind, e.amount_minor, e.currency, e.description,
	coalesce(e.category_id,''), coalesce(e.counterparty_account_id,''),
	e.fx_rate, e.fx_base, e.fx_quote, e.executed_at, e.sequence`

func (s *Store) Entries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, uint64, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+entryColumns+`
		from entries e
		join accounts a on a.id = e.account_id
		left join accounts c on c.id = e.counterparty_account_id
		where e.sequence > $1
		  and ($2 = '' or a.owner_id = $2 or c.owner_id = $2)
		order by e.sequence asc
		limit $3
	`, f.AfterSeq, f.OwnerID, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []ledger.Entry
	var last uint64
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, e)
		last = e.Sequence
	}
	return res, last, rows.Err()
}

func (s *Store) Entry(ctx context.Context, id string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+entryColumns+`
		from entries e
		where e.id=$1
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	var fxRate sql.NullFloat64
	var fxBase, fxQuote sql.NullString
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.AmountMinor, &e.Currency, &e.Description,
		&e.CategoryID, &e.CounterpartyID, &fxRate, &fxBase, &fxQuote, &e.ExecutedAt, &e.Sequence)
	if err != nil {
		return ledger.Entry{}, err
	}
	if fxRate.Valid {
		e.FX = &ledger.FXInfo{
			Rate:  fxRate.Float64,
			Base:  money.Currency(fxBase.String),
			Quote: money.Currency(fxQuote.String),
		}
	}
	return e, nil
}

// lockOrder returns the distinct account ids of the posting sorted
// lexicographically. Stable ordering keeps concurrent postings over the
// same pair of accounts from deadlocking.
func lockOrder(entries []ledger.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.AccountID]; ok {
			continue
		}
		seen[e.AccountID] = struct{}{}
		ids = append(ids, e.AccountID)
	}
	sort.Strings(ids)
	return ids
}
