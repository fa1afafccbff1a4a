package ledger

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"strings"
	"time"

	"tezoro.org/internal/auth"
	"tezoro.org/internal/ids"
	"tezoro.org/internal/money"
)

var numberPrefix = map[money.Currency]string{
	money.RSD: "RS",
	money.EUR: "EU",
	money.USD: "US",
	money.CHF: "CH",
	money.JPY: "JP",
}

const numberAttempts = 5

// OpenAccount creates an empty account. Ordinary actors open accounts for
// themselves; admins may open on behalf of another owner.
func (e *Engine) OpenAccount(ctx context.Context, actor auth.Actor, req OpenAccountRequest) (Account, error) {
	if actor.UserID == "" {
		return Account{}, ErrUnauthenticated
	}
	if !money.Supported(req.Currency) {
		return Account{}, fmt.Errorf("%w: unsupported currency %q", ErrValidation, req.Currency)
	}

	owner := actor.UserID
	if req.OwnerID != "" && req.OwnerID != actor.UserID {
		if !actor.Admin {
			return Account{}, ErrForbidden
		}
		owner = req.OwnerID
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = string(req.Currency) + " Account"
	}

	number, err := e.generateNumber(ctx, req.Currency)
	if err != nil {
		return Account{}, err
	}

	return e.store.CreateAccount(ctx, Account{
		ID:        ids.New(),
		OwnerID:   owner,
		Number:    number,
		Currency:  req.Currency,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
}

// GetAccount returns the account if the actor owns it or is an admin.
func (e *Engine) GetAccount(ctx context.Context, actor auth.Actor, id string) (Account, error) {
	if actor.UserID == "" {
		return Account{}, ErrUnauthenticated
	}
	acc, err := e.store.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if !actor.Admin && acc.OwnerID != actor.UserID {
		return Account{}, ErrForbidden
	}
	return acc, nil
}

// ListAccounts returns the actor's accounts, or every account for admins.
func (e *Engine) ListAccounts(ctx context.Context, actor auth.Actor) ([]Account, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	owner := actor.UserID
	if actor.Admin {
		owner = ""
	}
	return e.store.Accounts(ctx, owner)
}

// RenameAccount changes the display name only.
func (e *Engine) RenameAccount(ctx context.Context, actor auth.Actor, id, name string) (Account, error) {
	if _, err := e.GetAccount(ctx, actor, id); err != nil {
		return Account{}, err
	}
	return e.store.RenameAccount(ctx, id, name)
}

// CloseAccount deletes an account; allowed only while the balance is
// exactly zero.
func (e *Engine) CloseAccount(ctx context.Context, actor auth.Actor, id string) error {
	acc, err := e.GetAccount(ctx, actor, id)
	if err != nil {
		return err
	}
	if acc.BalanceMinor != 0 {
		return ErrBalanceNotZero
	}
	return e.store.DeleteAccount(ctx, id)
}

// ListEntries returns ledger entries visible to the actor with a sequence
// cursor. Admins see all entries; owners see entries on their own accounts
// or where one of their accounts is the counterparty.
func (e *Engine) ListEntries(ctx context.Context, actor auth.Actor, limit int, afterSeq uint64) ([]Entry, uint64, error) {
	if actor.UserID == "" {
		return nil, 0, ErrUnauthenticated
	}
	owner := actor.UserID
	if actor.Admin {
		owner = ""
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return e.store.Entries(ctx, EntryFilter{OwnerID: owner, Limit: limit, AfterSeq: afterSeq})
}

// GetEntry returns a single entry if the actor owns either side of it or is
// an admin.
func (e *Engine) GetEntry(ctx context.Context, actor auth.Actor, id string) (Entry, error) {
	if actor.UserID == "" {
		return Entry{}, ErrUnauthenticated
	}
	entry, err := e.store.Entry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if actor.Admin {
		return entry, nil
	}
	if e.ownsAccount(ctx, actor, entry.AccountID) {
		return entry, nil
	}
	if entry.CounterpartyID != "" && e.ownsAccount(ctx, actor, entry.CounterpartyID) {
		return entry, nil
	}
	return Entry{}, ErrForbidden
}

func (e *Engine) ownsAccount(ctx context.Context, actor auth.Actor, id string) bool {
	acc, err := e.store.Account(ctx, id)
	return err == nil && acc.OwnerID == actor.UserID
}

// generateNumber produces a human-readable account number: currency prefix
// plus grouped digits. Candidates are checked for uniqueness with a bounded
// number of retries and a deterministic timestamp fallback.
func (e *Engine) generateNumber(ctx context.Context, c money.Currency) (string, error) {
	prefix := numberPrefix[c]
	for i := 0; i < numberAttempts; i++ {
		candidate := fmt.Sprintf("%s %s %s %s %s %s",
			prefix, digits(2), digits(4), digits(4), digits(4), digits(4))
		taken, err := e.store.AccountNumberTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s %d %s", prefix, time.Now().Unix(), digits(4)), nil
}

func digits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + mathrand.Intn(10)))
	}
	return b.String()
}
