package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tezoro.org/internal/audit"
	"tezoro.org/internal/ledger"
	"tezoro.org/internal/money"
)

type openAccountRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
	Name     string `json:"name" validate:"max=80"`
	OwnerID  string `json:"owner_id" validate:"max=64"`
}

type renameAccountRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type listAccountsResponse struct {
	Items []ledger.Account `json:"items"`
}

func (a *API) openAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "currency is required as a 3-letter code")
		return
	}

	acc, err := a.engine.OpenAccount(r.Context(), a.actor(r), ledger.OpenAccountRequest{
		OwnerID:  strings.TrimSpace(req.OwnerID),
		Currency: money.Currency(strings.ToUpper(req.Currency)),
		Name:     req.Name,
	})
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.opened", map[string]any{
		"account_id": acc.ID,
		"owner_id":   acc.OwnerID,
		"currency":   acc.Currency,
		"number":     acc.Number,
	})

	w.Header().Set("Location", "/v1/accounts/"+acc.ID)
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.engine.ListAccounts(r.Context(), a.actor(r))
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.Account{}
	}
	writeJSON(w, http.StatusOK, listAccountsResponse{Items: accounts})
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.engine.GetAccount(r.Context(), a.actor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) renameAccount(w http.ResponseWriter, r *http.Request) {
	var req renameAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	acc, err := a.engine.RenameAccount(r.Context(), a.actor(r), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) closeAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.engine.CloseAccount(r.Context(), a.actor(r), id); err != nil {
		handleLedgerError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.closed", map[string]any{
		"account_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
