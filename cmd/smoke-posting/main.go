// Command smoke-posting runs a small end-to-end scenario against a running
// API: obtains tokens, opens two accounts, funds one and transfers between
// them, then prints the resulting balances.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	log.SetFlags(0)
	base := os.Getenv("TEZORO_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	adminToken := token(client, base, "root")
	userToken := token(client, base, "smoke-user")

	var src, dst struct {
		ID       string `json:"id"`
		Number   string `json:"number"`
		Currency string `json:"currency"`
	}
	call(client, base, http.MethodPost, "/v1/accounts", userToken,
		map[string]any{"currency": "RSD", "name": "Smoke Source"}, &src)
	call(client, base, http.MethodPost, "/v1/accounts", userToken,
		map[string]any{"currency": "RSD", "name": "Smoke Destination"}, &dst)
	log.Printf("opened %s and %s", src.Number, dst.Number)

	call(client, base, http.MethodPost, "/v1/postings", adminToken, map[string]any{
		"kind": "credit", "account_id": src.ID, "amount": "100",
	}, nil)

	var result struct {
		Entries []struct {
			AccountID   string `json:"account_id"`
			AmountMinor int64  `json:"amount_minor"`
		} `json:"entries"`
	}
	call(client, base, http.MethodPost, "/v1/postings", userToken, map[string]any{
		"kind": "transfer", "account_id": src.ID, "counterparty_account_id": dst.ID,
		"amount": "42.50", "description": "smoke transfer",
	}, &result)
	for _, e := range result.Entries {
		log.Printf("entry: account=%s amount_minor=%d", e.AccountID, e.AmountMinor)
	}

	for _, id := range []string{src.ID, dst.ID} {
		var acc struct {
			Number       string `json:"number"`
			BalanceMinor int64  `json:"balance_minor"`
		}
		call(client, base, http.MethodGet, "/v1/accounts/"+id, userToken, nil, &acc)
		log.Printf("balance: %s = %d minor units", acc.Number, acc.BalanceMinor)
	}
	log.Print("OK")
}

func token(client *http.Client, base, userID string) string {
	var resp struct {
		Token string `json:"token"`
	}
	call(client, base, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": userID}, &resp)
	return resp.Token
}

func call(client *http.Client, base, method, path, token string, body, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, base+path, &buf)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var payload map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		log.Fatalf("%s %s: status %d: %v", method, path, resp.StatusCode, payload["error"])
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	fmt.Fprintf(os.Stderr, "%s %s -> %d\n", method, path, resp.StatusCode)
}
