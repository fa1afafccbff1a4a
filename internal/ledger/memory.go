package ledger

import (
	"context"
	"fmt"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. Used for
// tests and for running the API without Postgres.
type InMemory struct {
	mu         sync.RWMutex
	accts      map[string]*Account
	numbers    map[string]string // account number -> account id
	categories map[string]string // category id -> name
	entries    []Entry
	seq        uint64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		accts:      make(map[string]*Account),
		numbers:    make(map[string]string),
		categories: make(map[string]string),
	}
}

// AddCategory registers a category. Category CRUD is an external concern;
// this exists so the engine's existence check has something to consult.
func (s *InMemory) AddCategory(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[id] = name
}

func (s *InMemory) CreateAccount(ctx context.Context, acc Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accts[acc.ID]; ok {
		return Account{}, fmt.Errorf("account %s already exists", acc.ID)
	}
	if _, ok := s.numbers[acc.Number]; ok {
		return Account{}, fmt.Errorf("account number %s already taken", acc.Number)
	}
	cp := acc
	s.accts[acc.ID] = &cp
	s.numbers[acc.Number] = acc.ID
	return acc, nil
}

func (s *InMemory) Account(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (s *InMemory) Accounts(ctx context.Context, ownerID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Account
	for _, acc := range s.accts {
		if ownerID != "" && acc.OwnerID != ownerID {
			continue
		}
		out = append(out, *acc)
	}
	return out, nil
}

func (s *InMemory) AccountNumberTaken(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.numbers[number]
	return ok, nil
}

func (s *InMemory) RenameAccount(ctx context.Context, id, name string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	acc.Name = name
	return *acc, nil
}

func (s *InMemory) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accts[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.numbers, acc.Number)
	delete(s.accts, id)
	return nil
}

func (s *InMemory) CategoryExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.categories[id]
	return ok, nil
}

func (s *InMemory) ApplyPosting(ctx context.Context, entries []Entry) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching any balance so a failure leaves
	// no observable effect.
	pending := make(map[string]int64, len(entries))
	for _, e := range entries {
		acc, ok := s.accts[e.AccountID]
		if !ok {
			return nil, ErrNotFound
		}
		pending[e.AccountID] += e.AmountMinor
		if acc.BalanceMinor+pending[e.AccountID] < 0 {
			return nil, ErrInsufficientFunds
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		s.seq++
		e.Sequence = s.seq
		s.accts[e.AccountID].BalanceMinor += e.AmountMinor
		s.entries = append(s.entries, e)
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemory) Entries(ctx context.Context, f EntryFilter) ([]Entry, uint64, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Entry
	var last uint64
	for _, e := range s.entries {
		if e.Sequence <= f.AfterSeq {
			continue
		}
		if f.OwnerID != "" && !s.touchesOwner(e, f.OwnerID) {
			continue
		}
		res = append(res, e)
		last = e.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func (s *InMemory) Entry(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *InMemory) touchesOwner(e Entry, ownerID string) bool {
	if acc, ok := s.accts[e.AccountID]; ok && acc.OwnerID == ownerID {
		return true
	}
	if e.CounterpartyID != "" {
		if acc, ok := s.accts[e.CounterpartyID]; ok && acc.OwnerID == ownerID {
			return true
		}
	}
	return false
}
