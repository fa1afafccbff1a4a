package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tezoro.org/internal/audit"
	"tezoro.org/internal/ledger"
)

type postingRequest struct {
	Kind           string          `json:"kind" validate:"required,oneof=debit credit transfer"`
	AccountID      string          `json:"account_id" validate:"required,max=64"`
	CounterpartyID string          `json:"counterparty_account_id" validate:"max=64"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=200"`
	CategoryID     string          `json:"category_id" validate:"max=64"`
	ExecutedAt     *time.Time      `json:"executed_at"`
}

type listEntriesResponse struct {
	Items     []ledger.Entry `json:"items"`
	NextAfter uint64         `json:"next_after"`
	AsOf      time.Time      `json:"as_of"`
}

func (a *API) createPosting(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "kind and account_id are required; kind must be debit, credit or transfer")
		return
	}

	preq := ledger.PostingRequest{
		Kind:           ledger.EntryKind(req.Kind),
		AccountID:      strings.TrimSpace(req.AccountID),
		CounterpartyID: strings.TrimSpace(req.CounterpartyID),
		AmountMajor:    req.Amount,
		Description:    req.Description,
		CategoryID:     strings.TrimSpace(req.CategoryID),
	}
	if req.ExecutedAt != nil {
		preq.ExecutedAt = req.ExecutedAt.UTC()
	}
	res, err := a.engine.Post(r.Context(), a.actor(r), preq)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	fields := map[string]any{
		"kind":       req.Kind,
		"account_id": req.AccountID,
		"amount":     req.Amount.String(),
		"entry_id":   res.Entries[0].ID,
	}
	if req.CounterpartyID != "" {
		fields["counterparty_account_id"] = req.CounterpartyID
	}
	if res.Rate != 0 {
		fields["rate"] = res.Rate
	}
	_ = audit.LogEvent(r.Context(), "posting.executed", fields)
	a.publishEntries(res.Entries, res.Rate)

	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listEntries(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = v
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = v
	}

	items, next, err := a.engine.ListEntries(r.Context(), a.actor(r), limit, after)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	if items == nil {
		items = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, listEntriesResponse{
		Items:     items,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := a.engine.GetEntry(r.Context(), a.actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
