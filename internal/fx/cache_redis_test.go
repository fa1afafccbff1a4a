package fx

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisCacheSetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db)
	ctx := context.Background()

	mock.ExpectSet("fx:EUR:USD", "1.0842", time.Hour).SetVal("OK")
	c.Set(ctx, "fx:EUR:USD", 1.0842, time.Hour)

	mock.ExpectGet("fx:EUR:USD").SetVal("1.0842")
	rate, ok := c.Get(ctx, "fx:EUR:USD")
	assert.True(t, ok)
	assert.Equal(t, 1.0842, rate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheMissAndErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db)
	ctx := context.Background()

	mock.ExpectGet("fx:EUR:JPY").RedisNil()
	_, ok := c.Get(ctx, "fx:EUR:JPY")
	assert.False(t, ok)

	// garbage values are treated as misses
	mock.ExpectGet("fx:EUR:JPY").SetVal("not-a-number")
	_, ok = c.Get(ctx, "fx:EUR:JPY")
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
