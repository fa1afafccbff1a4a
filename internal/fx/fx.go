// Package fx resolves exchange rates between supported currencies from an
// external source, with caching and expiry. A lookup either yields a usable
// positive rate or ErrUnavailable; there is no fabricated fallback rate.
package fx

import (
	"context"
	"errors"
	"time"

	"tezoro.org/internal/money"
	"tezoro.org/internal/obs"
)

// ErrUnavailable means the source exhausted its retries or returned an
// unusable quote. Callers treat it as a definite failure.
var ErrUnavailable = errors.New("fx: rate unavailable")

// Quote is one fetched rate: quote-currency units per unit of base.
type Quote struct {
	Rate       float64
	NextUpdate time.Time
}

// Source performs the external pair lookup.
type Source interface {
	PairRate(ctx context.Context, base, quote money.Currency) (Quote, error)
}

// Cache stores rates until their expiry. Implementations must tolerate a
// duplicate write on a cache-miss race.
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, rate float64, ttl time.Duration)
}

// DefaultTTL bounds a cached rate's lifetime when the source does not state
// its next update time.
const DefaultTTL = 6 * time.Hour

// Provider answers rate queries from the cache, falling back to the source
// on a miss. A same-currency pair is always 1.0 with no cache or network.
type Provider struct {
	source      Source
	cache       Cache
	fallbackTTL time.Duration
}

// ProviderOption configures Provider.
type ProviderOption func(*Provider)

// WithFallbackTTL overrides DefaultTTL for quotes without a stated next
// update time.
func WithFallbackTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		if ttl > 0 {
			p.fallbackTTL = ttl
		}
	}
}

func NewProvider(source Source, cache Cache, opts ...ProviderOption) *Provider {
	p := &Provider{source: source, cache: cache, fallbackTTL: DefaultTTL}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rate returns quote-units per unit of base.
func (p *Provider) Rate(ctx context.Context, base, quote money.Currency) (float64, error) {
	if base == quote {
		return 1.0, nil
	}

	key := cacheKey(base, quote)
	if rate, ok := p.cache.Get(ctx, key); ok {
		obs.CountFXCache("hit")
		return rate, nil
	}
	obs.CountFXCache("miss")

	q, err := p.source.PairRate(ctx, base, quote)
	if err != nil {
		return 0, err
	}

	ttl := time.Until(q.NextUpdate)
	if ttl <= 0 {
		ttl = p.fallbackTTL
	}
	p.cache.Set(ctx, key, q.Rate, ttl)

	return q.Rate, nil
}

func cacheKey(base, quote money.Currency) string {
	return "fx:" + string(base) + ":" + string(quote)
}
