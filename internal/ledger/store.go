package ledger

import "context"

// Store owns account records and ledger entries. ApplyPosting is the only
// balance-mutating operation and must be atomic: all entries and all balance
// deltas commit together or not at all. Concurrent postings touching the
// same account serialize on that account.
type Store interface {
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	Account(ctx context.Context, id string) (Account, error)
	Accounts(ctx context.Context, ownerID string) ([]Account, error)
	AccountNumberTaken(ctx context.Context, number string) (bool, error)
	RenameAccount(ctx context.Context, id, name string) (Account, error)
	DeleteAccount(ctx context.Context, id string) error

	CategoryExists(ctx context.Context, id string) (bool, error)

	// ApplyPosting persists the given entries and applies each entry's
	// signed amount to its account balance in one atomic unit. It assigns
	// sequence numbers, re-checks sufficient funds under the account lock
	// and fails with ErrInsufficientFunds if any balance would go negative.
	ApplyPosting(ctx context.Context, entries []Entry) ([]Entry, error)

	Entries(ctx context.Context, f EntryFilter) ([]Entry, uint64, error)
	Entry(ctx context.Context, id string) (Entry, error)
}
