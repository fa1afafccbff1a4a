package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tezoro.org/internal/money"
	"tezoro.org/internal/obs"
)

const (
	defaultBaseURL = "https://v6.exchangerate-api.com/v6"
	requestTimeout = 10 * time.Second
	maxRetries     = 2
	retryBackoff   = 250 * time.Millisecond
)

// errBadPayload marks a response that came back 200 but is unusable; the
// source will not return anything better on a retry.
var errBadPayload = errors.New("unusable payload")

// Client fetches pair rates from the exchangerate-api v6 endpoint. Transport
// failures and non-2xx responses are retried with a fixed backoff; a
// well-formed but unusable payload fails immediately.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the endpoint, used by tests.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pairResponse struct {
	Result             string  `json:"result"`
	ConversionRate     float64 `json:"conversion_rate"`
	TimeNextUpdateUnix int64   `json:"time_next_update_unix"`
}

// PairRate resolves the rate for one currency pair.
func (c *Client) PairRate(ctx context.Context, base, quote money.Currency) (Quote, error) {
	if c.apiKey == "" {
		return Quote{}, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	url := fmt.Sprintf("%s/%s/pair/%s/%s", c.baseURL, c.apiKey, base, quote)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				obs.CountFXLookup("error")
				return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(retryBackoff):
			}
		}

		q, err := c.fetch(ctx, url)
		if err == nil {
			obs.CountFXLookup("ok")
			return q, nil
		}
		lastErr = err
		if errors.Is(err, errBadPayload) {
			break
		}
	}

	obs.CountFXLookup("error")
	return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) fetch(ctx context.Context, url string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var payload pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if payload.Result != "success" {
		return Quote{}, fmt.Errorf("%w: result %q", errBadPayload, payload.Result)
	}
	if payload.ConversionRate <= 0 {
		return Quote{}, fmt.Errorf("%w: non-positive rate %v", errBadPayload, payload.ConversionRate)
	}

	q := Quote{Rate: payload.ConversionRate}
	if payload.TimeNextUpdateUnix > 0 {
		q.NextUpdate = time.Unix(payload.TimeNextUpdateUnix, 0).UTC()
	}
	return q, nil
}
