package fx

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process rate cache.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(DefaultTTL, 10*time.Minute)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (float64, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, false
	}
	rate, ok := v.(float64)
	return rate, ok
}

func (m *MemoryCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	m.c.Set(key, rate, ttl)
}

// RedisCache shares the rate cache across API instances. Redis failures are
// treated as misses; the provider then just refetches.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) (float64, bool) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func (r *RedisCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	_ = r.rdb.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), ttl).Err()
}
