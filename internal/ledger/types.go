// Package ledger is the transaction posting engine: it turns a requested
// monetary operation into one or two immutable ledger entries while
// atomically updating account balances.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tezoro.org/internal/money"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindDebit    EntryKind = "debit"
	KindCredit   EntryKind = "credit"
	KindTransfer EntryKind = "transfer"
)

func (k EntryKind) valid() bool {
	switch k {
	case KindDebit, KindCredit, KindTransfer:
		return true
	}
	return false
}

// Account holds an integer minor-unit balance in a single currency.
type Account struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Number       string         `json:"number"`
	Currency     money.Currency `json:"currency"`
	BalanceMinor int64          `json:"balance_minor"`
	Name         string         `json:"name"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FXInfo is the rate snapshot recorded on both legs of a cross-currency
// transfer. Immutable once written.
type FXInfo struct {
	Rate  float64        `json:"rate"`
	Base  money.Currency `json:"base"`
	Quote money.Currency `json:"quote"`
}

// Entry is one immutable ledger record. Amounts are signed minor units:
// negative for outflow, positive for inflow. Currency always matches the
// owning account's currency at write time.
type Entry struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"account_id"`
	Kind           EntryKind      `json:"kind"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       money.Currency `json:"currency"`
	Description    string         `json:"description"`
	CategoryID     string         `json:"category_id,omitempty"`
	CounterpartyID string         `json:"counterparty_account_id,omitempty"`
	FX             *FXInfo        `json:"fx,omitempty"`
	ExecutedAt     time.Time      `json:"executed_at"`
	Sequence       uint64         `json:"sequence"`
}

// Amount returns the signed major-unit display amount. Derived, not stored.
func (e Entry) Amount() decimal.Decimal {
	return money.ToMajor(e.AmountMinor, e.Currency)
}

// PostingRequest describes one requested monetary operation. CounterpartyID
// is required iff Kind is transfer and must differ from AccountID.
type PostingRequest struct {
	Kind           EntryKind
	AccountID      string
	CounterpartyID string
	AmountMajor    decimal.Decimal
	Description    string
	CategoryID     string
	ExecutedAt     time.Time
}

// PostingResult carries the created entries: one for debit/credit, the
// outbound then the inbound leg for transfers. Rate is set only when the
// transfer crossed currencies.
type PostingResult struct {
	Entries []Entry `json:"entries"`
	Rate    float64 `json:"rate,omitempty"`
}

// OpenAccountRequest opens an empty account. OwnerID may be set by admins
// only; ordinary actors always open accounts for themselves.
type OpenAccountRequest struct {
	OwnerID  string
	Currency money.Currency
	Name     string
}

// EntryFilter scopes entry listings. OwnerID limits visibility to entries
// touching that owner's accounts; empty means no owner scoping.
type EntryFilter struct {
	OwnerID  string
	Limit    int
	AfterSeq uint64
}

// Failure taxonomy. Every engine failure path resolves to one of these;
// unexpected storage errors propagate untranslated.
var (
	ErrUnauthenticated   = errors.New("ledger: unauthenticated")
	ErrForbidden         = errors.New("ledger: forbidden")
	ErrValidation        = errors.New("ledger: validation failed")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrRateUnavailable   = errors.New("ledger: exchange rate unavailable")
	ErrNotFound          = errors.New("ledger: not found")
	ErrBalanceNotZero    = errors.New("ledger: account balance is not zero")
)
