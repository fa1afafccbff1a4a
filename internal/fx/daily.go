package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tezoro.org/internal/money"
)

const defaultDailyURL = "https://kurs.resenje.org/api/v1/rates/today"

// DailySnapshot holds today's middle rates against RSD for display. Posting
// never uses these; transfers always go through Provider.
type DailySnapshot struct {
	Base  money.Currency             `json:"base"`
	Date  string                     `json:"date"`
	Rates map[money.Currency]float64 `json:"rates"`
}

// DailyClient fetches the national-bank middle rates (no API key needed).
type DailyClient struct {
	httpClient *http.Client
	url        string
}

// DailyOption configures DailyClient.
type DailyOption func(*DailyClient)

// WithDailyURL overrides the endpoint, used by tests.
func WithDailyURL(url string) DailyOption {
	return func(c *DailyClient) {
		if url != "" {
			c.url = url
		}
	}
}

func NewDailyClient(opts ...DailyOption) *DailyClient {
	c := &DailyClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		url:        defaultDailyURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type dailyResponse struct {
	Rates []struct {
		Code           string  `json:"code"`
		Date           string  `json:"date"`
		ExchangeMiddle float64 `json:"exchange_middle"`
	} `json:"rates"`
}

// Today returns the current middle rates for EUR, USD, CHF and JPY vs RSD.
func (c *DailyClient) Today(ctx context.Context) (DailySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return DailySnapshot{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DailySnapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DailySnapshot{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload dailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return DailySnapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(payload.Rates) == 0 {
		return DailySnapshot{}, fmt.Errorf("%w: empty rates payload", ErrUnavailable)
	}

	snap := DailySnapshot{
		Base:  money.RSD,
		Date:  payload.Rates[0].Date,
		Rates: make(map[money.Currency]float64),
	}
	for _, row := range payload.Rates {
		code := money.Currency(row.Code)
		switch code {
		case money.EUR, money.USD, money.CHF, money.JPY:
			snap.Rates[code] = row.ExchangeMiddle
		}
	}
	if snap.Date == "" {
		snap.Date = time.Now().UTC().Format("2006-01-02")
	}
	return snap, nil
}
