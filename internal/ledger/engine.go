package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tezoro.org/internal/auth"
	"tezoro.org/internal/ids"
	"tezoro.org/internal/money"
	"tezoro.org/internal/obs"
)

// RateSource resolves an exchange rate between two currencies. A failed
// lookup is a definite result the engine translates to ErrRateUnavailable;
// it is never substituted with a stale or default rate.
type RateSource interface {
	Rate(ctx context.Context, base, quote money.Currency) (float64, error)
}

// Engine validates posting requests against funds and ownership rules and
// writes their entries and balance effects through the Store as one atomic
// unit per request.
type Engine struct {
	store Store
	rates RateSource
}

func NewEngine(store Store, rates RateSource) *Engine {
	return &Engine{store: store, rates: rates}
}

// Post executes one posting request on behalf of actor.
func (e *Engine) Post(ctx context.Context, actor auth.Actor, req PostingRequest) (PostingResult, error) {
	start := time.Now()
	res, err := e.post(ctx, actor, req)
	obs.ObservePosting(string(req.Kind), postingStatus(err), time.Since(start))
	return res, err
}

func (e *Engine) post(ctx context.Context, actor auth.Actor, req PostingRequest) (PostingResult, error) {
	if actor.UserID == "" {
		return PostingResult{}, ErrUnauthenticated
	}
	if !req.Kind.valid() {
		return PostingResult{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, req.Kind)
	}
	if req.AmountMajor.Sign() <= 0 {
		return PostingResult{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.Kind == KindTransfer {
		if req.CounterpartyID == "" {
			return PostingResult{}, fmt.Errorf("%w: counterparty account is required for transfers", ErrValidation)
		}
		if req.CounterpartyID == req.AccountID {
			return PostingResult{}, fmt.Errorf("%w: counterparty must differ from source account", ErrValidation)
		}
	} else if req.CounterpartyID != "" {
		return PostingResult{}, fmt.Errorf("%w: counterparty is only valid for transfers", ErrValidation)
	}

	source, err := e.store.Account(ctx, req.AccountID)
	if err != nil {
		return PostingResult{}, err
	}

	// Authorization before any mutation: owner or admin; direct
	// debit/credit is admin-only.
	if !actor.Admin && source.OwnerID != actor.UserID {
		return PostingResult{}, ErrForbidden
	}
	if req.Kind != KindTransfer && !actor.Admin {
		return PostingResult{}, ErrForbidden
	}

	amountMinor, err := money.ToMinor(req.AmountMajor, source.Currency)
	if err != nil {
		return PostingResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if amountMinor <= 0 {
		return PostingResult{}, fmt.Errorf("%w: amount rounds to zero in %s", ErrValidation, source.Currency)
	}

	if req.CategoryID != "" {
		ok, err := e.store.CategoryExists(ctx, req.CategoryID)
		if err != nil {
			return PostingResult{}, err
		}
		if !ok {
			return PostingResult{}, fmt.Errorf("%w: category %s", ErrNotFound, req.CategoryID)
		}
	}

	executedAt := req.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	if req.Kind == KindTransfer {
		return e.postTransfer(ctx, req, source, amountMinor, executedAt)
	}

	// debit/credit: one signed entry, same signed delta on the balance.
	signed := amountMinor
	if req.Kind == KindDebit {
		if source.BalanceMinor < amountMinor {
			return PostingResult{}, ErrInsufficientFunds
		}
		signed = -amountMinor
	}
	entry := Entry{
		ID:          ids.New(),
		AccountID:   source.ID,
		Kind:        req.Kind,
		AmountMinor: signed,
		Currency:    source.Currency,
		Description: defaultDescription(req.Description, capitalize(string(req.Kind))),
		CategoryID:  req.CategoryID,
		ExecutedAt:  executedAt,
	}
	entries, err := e.store.ApplyPosting(ctx, []Entry{entry})
	if err != nil {
		return PostingResult{}, err
	}
	return PostingResult{Entries: entries}, nil
}

func (e *Engine) postTransfer(ctx context.Context, req PostingRequest, source Account, amountMinor int64, executedAt time.Time) (PostingResult, error) {
	dest, err := e.store.Account(ctx, req.CounterpartyID)
	if err != nil {
		return PostingResult{}, err
	}

	destMinor := amountMinor
	var fxInfo *FXInfo
	var rate float64
	if dest.Currency != source.Currency {
		rate, err = e.rates.Rate(ctx, source.Currency, dest.Currency)
		if err != nil || rate <= 0 {
			return PostingResult{}, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, source.Currency, dest.Currency)
		}
		destMinor = money.ConvertMinor(amountMinor, source.Currency, dest.Currency, rate)
		fxInfo = &FXInfo{Rate: rate, Base: source.Currency, Quote: dest.Currency}
	}

	// Funds are checked in source units, pre-conversion. The store
	// re-checks under the account lock so concurrent debits serialize.
	if source.BalanceMinor < amountMinor {
		return PostingResult{}, ErrInsufficientFunds
	}

	outDesc := defaultDescription(req.Description, transferDescription("to", dest.Name, fxInfo))
	inDesc := defaultDescription(req.Description, transferDescription("from", source.Name, fxInfo))

	out := Entry{
		ID:             ids.New(),
		AccountID:      source.ID,
		Kind:           KindTransfer,
		AmountMinor:    -amountMinor,
		Currency:       source.Currency,
		Description:    outDesc,
		CategoryID:     req.CategoryID,
		CounterpartyID: dest.ID,
		FX:             fxInfo,
		ExecutedAt:     executedAt,
	}
	in := Entry{
		ID:             ids.New(),
		AccountID:      dest.ID,
		Kind:           KindTransfer,
		AmountMinor:    destMinor,
		Currency:       dest.Currency,
		Description:    inDesc,
		CategoryID:     req.CategoryID,
		CounterpartyID: source.ID,
		FX:             fxInfo,
		ExecutedAt:     executedAt,
	}

	entries, err := e.store.ApplyPosting(ctx, []Entry{out, in})
	if err != nil {
		return PostingResult{}, err
	}
	return PostingResult{Entries: entries, Rate: rate}, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func defaultDescription(requested, fallback string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return fallback
}

func transferDescription(direction, name string, fxInfo *FXInfo) string {
	prefix := "Transfer"
	if fxInfo != nil {
		prefix = "FX Transfer"
	}
	return fmt.Sprintf("%s %s %s", prefix, direction, name)
}

func postingStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthenticated):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
