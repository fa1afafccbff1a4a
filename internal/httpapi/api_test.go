package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tezoro.org/internal/auth"
	"tezoro.org/internal/fx"
	"tezoro.org/internal/ledger"
	"tezoro.org/internal/money"
	"tezoro.org/internal/stream"
)

type fixedRates struct {
	rate float64
	err  error
}

func (f fixedRates) Rate(ctx context.Context, base, quote money.Currency) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

type fixedDaily struct {
	snap fx.DailySnapshot
	err  error
}

func (f fixedDaily) Today(ctx context.Context) (fx.DailySnapshot, error) {
	return f.snap, f.err
}

type testAPI struct {
	api    *API
	store  *ledger.InMemory
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T, rates ledger.RateSource) testAPI {
	t.Helper()
	if rates == nil {
		rates = fixedRates{rate: 1}
	}
	store := ledger.NewInMemory()
	tokens, err := auth.NewTokens("test-secret-test-secret-test-secret")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	api := New(Options{
		Engine:  ledger.NewEngine(store, rates),
		Tokens:  tokens,
		Daily:   fixedDaily{snap: fx.DailySnapshot{Base: money.RSD, Date: "2025-09-04", Rates: map[money.Currency]float64{money.EUR: 117.18}}},
		Version: "test",
		IsAdmin: func(userID string) bool { return userID == "root" },
	})
	return testAPI{api: api, store: store, tokens: tokens}
}

func (ta testAPI) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (ta testAPI) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	token, err := ta.tokens.Generate(userID, admin, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndInfoArePublic(t *testing.T) {
	ta := newTestAPI(t, nil)
	if rec := ta.request(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := ta.request(t, http.MethodGet, "/v1/rates/today", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("rates status = %d", rec.Code)
	}
	// /v1/info requires a token.
	if rec := ta.request(t, http.MethodGet, "/v1/info", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("info without token status = %d", rec.Code)
	}
}

func TestIssueToken(t *testing.T) {
	ta := newTestAPI(t, nil)

	rec := ta.request(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["token"] == "" {
		t.Fatal("empty token")
	}
	if resp["admin"] != false {
		t.Fatal("alice must not be admin")
	}

	rec = ta.request(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": "root"})
	resp = decodeBody[map[string]any](t, rec)
	if resp["admin"] != true {
		t.Fatal("root must be admin")
	}

	rec = ta.request(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank user status = %d", rec.Code)
	}
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	ta := newTestAPI(t, nil)
	alice := ta.token(t, "alice", false)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "eur", "name": "Savings"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d body = %s", rec.Code, rec.Body.String())
	}
	acc := decodeBody[ledger.Account](t, rec)
	if acc.Currency != money.EUR || acc.Name != "Savings" {
		t.Fatalf("account = %+v", acc)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/accounts/"+acc.ID {
		t.Fatalf("location = %q", loc)
	}

	rec = ta.request(t, http.MethodGet, "/v1/accounts/"+acc.ID, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = ta.request(t, http.MethodPatch, "/v1/accounts/"+acc.ID, alice, map[string]any{"name": "Rainy Day"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}
	if got := decodeBody[ledger.Account](t, rec).Name; got != "Rainy Day" {
		t.Fatalf("renamed to %q", got)
	}

	rec = ta.request(t, http.MethodDelete, "/v1/accounts/"+acc.ID, alice, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = ta.request(t, http.MethodGet, "/v1/accounts/"+acc.ID, alice, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after close status = %d", rec.Code)
	}
}

func TestPostingOverHTTP(t *testing.T) {
	ta := newTestAPI(t, fixedRates{rate: 1.1})
	alice := ta.token(t, "alice", false)
	root := ta.token(t, "root", true)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "EUR"})
	src := decodeBody[ledger.Account](t, rec)
	rec = ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "USD"})
	dst := decodeBody[ledger.Account](t, rec)

	// Admin funds the source account.
	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": src.ID, "amount": "1000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = ta.request(t, http.MethodPost, "/v1/postings", alice, map[string]any{
		"kind": "transfer", "account_id": src.ID, "counterparty_account_id": dst.ID, "amount": "100",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[ledger.PostingResult](t, rec)
	if len(res.Entries) != 2 {
		t.Fatalf("transfer produced %d entries", len(res.Entries))
	}
	if res.Rate != 1.1 {
		t.Fatalf("rate = %v", res.Rate)
	}
	if res.Entries[1].AmountMinor != 11000 {
		t.Fatalf("inbound leg = %d", res.Entries[1].AmountMinor)
	}

	rec = ta.request(t, http.MethodGet, "/v1/postings?limit=10", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decodeBody[listEntriesResponse](t, rec)
	if len(list.Items) != 3 {
		t.Fatalf("listed %d entries, want 3", len(list.Items))
	}

	rec = ta.request(t, http.MethodGet, "/v1/postings/"+res.Entries[0].ID, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get entry status = %d", rec.Code)
	}
}

func TestPostingErrorStatuses(t *testing.T) {
	ta := newTestAPI(t, fixedRates{err: errors.New("provider down")})
	alice := ta.token(t, "alice", false)
	bob := ta.token(t, "bob", false)
	root := ta.token(t, "root", true)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "EUR"})
	src := decodeBody[ledger.Account](t, rec)
	rec = ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "USD"})
	dst := decodeBody[ledger.Account](t, rec)

	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": src.ID, "amount": "100",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d", rec.Code)
	}

	cases := []struct {
		name  string
		token string
		body  map[string]any
		want  int
	}{
		{"no token", "", map[string]any{"kind": "credit", "account_id": src.ID, "amount": "1"}, http.StatusUnauthorized},
		{"owner credit forbidden", alice, map[string]any{"kind": "credit", "account_id": src.ID, "amount": "1"}, http.StatusForbidden},
		{"foreign transfer forbidden", bob, map[string]any{"kind": "transfer", "account_id": src.ID, "counterparty_account_id": dst.ID, "amount": "1"}, http.StatusForbidden},
		{"negative amount", root, map[string]any{"kind": "credit", "account_id": src.ID, "amount": "-1"}, http.StatusUnprocessableEntity},
		{"unknown account", root, map[string]any{"kind": "credit", "account_id": "ghost", "amount": "1"}, http.StatusNotFound},
		{"insufficient funds", root, map[string]any{"kind": "debit", "account_id": src.ID, "amount": "5000"}, http.StatusConflict},
		{"rate unavailable", alice, map[string]any{"kind": "transfer", "account_id": src.ID, "counterparty_account_id": dst.ID, "amount": "1"}, http.StatusFailedDependency},
		{"bad kind", root, map[string]any{"kind": "withdrawal", "account_id": src.ID, "amount": "1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ta.request(t, http.MethodPost, "/v1/postings", tc.token, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestCloseFundedAccountConflicts(t *testing.T) {
	ta := newTestAPI(t, nil)
	alice := ta.token(t, "alice", false)
	root := ta.token(t, "root", true)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "RSD"})
	acc := decodeBody[ledger.Account](t, rec)
	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": acc.ID, "amount": "10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d", rec.Code)
	}

	rec = ta.request(t, http.MethodDelete, "/v1/accounts/"+acc.ID, alice, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("close funded status = %d", rec.Code)
	}
}

func TestDailyRatesUnavailable(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.api.daily = fixedDaily{err: fmt.Errorf("%w: timeout", fx.ErrUnavailable)}

	rec := ta.request(t, http.MethodGet, "/v1/rates/today", "", nil)
	if rec.Code != http.StatusFailedDependency {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPostingPublishesStreamEvents(t *testing.T) {
	ta := newTestAPI(t, nil)
	alice := ta.token(t, "alice", false)
	root := ta.token(t, "root", true)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "RSD"})
	acc := decodeBody[ledger.Account](t, rec)

	events, cancel := ta.api.stream.Subscribe()
	defer cancel()

	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": acc.ID, "amount": "10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit status = %d", rec.Code)
	}

	select {
	case ev := <-events:
		if ev.AccountID != acc.ID || ev.Kind != "credit" || ev.AmountMinor != 1000 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no stream event published")
	}
}

func TestPostingExecutedAtOverride(t *testing.T) {
	ta := newTestAPI(t, nil)
	alice := ta.token(t, "alice", false)
	root := ta.token(t, "root", true)

	rec := ta.request(t, http.MethodPost, "/v1/accounts", alice, map[string]any{"currency": "RSD"})
	acc := decodeBody[ledger.Account](t, rec)

	when := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": acc.ID, "amount": "10",
		"executed_at": when.Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	res := decodeBody[ledger.PostingResult](t, rec)
	if !res.Entries[0].ExecutedAt.Equal(when) {
		t.Fatalf("executed_at = %v, want %v", res.Entries[0].ExecutedAt, when)
	}

	// Omitting the field still stamps the entry with the current time.
	rec = ta.request(t, http.MethodPost, "/v1/postings", root, map[string]any{
		"kind": "credit", "account_id": acc.ID, "amount": "10",
	})
	res = decodeBody[ledger.PostingResult](t, rec)
	if res.Entries[0].ExecutedAt.IsZero() {
		t.Fatal("default executed_at not stamped")
	}
}

func TestStreamServesSSEThroughRouter(t *testing.T) {
	ta := newTestAPI(t, nil)
	root := ta.token(t, "root", true)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/postings/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+root)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ta.api.Handler().ServeHTTP(rec, req)
	}()

	// Wait for the handler to register its subscription before publishing.
	deadline := time.Now().Add(time.Second)
	for ta.api.stream.Subscribers() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	ta.api.stream.Publish(stream.Event{EntryID: "e1", AccountID: "a1", Kind: "credit", AmountMinor: 1000, Currency: "RSD"})

	// Give the handler a beat to write the event before tearing down.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after context cancel")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"account_id":"a1"`) {
		t.Fatalf("body %q missing published event", rec.Body.String())
	}
}

func TestStreamRequiresAdmin(t *testing.T) {
	ta := newTestAPI(t, nil)
	alice := ta.token(t, "alice", false)
	rec := ta.request(t, http.MethodGet, "/v1/postings/stream", alice, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestInvalidToken(t *testing.T) {
	ta := newTestAPI(t, nil)
	rec := ta.request(t, http.MethodGet, "/v1/accounts", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("basic auth status = %d", rec.Code)
	}
}
