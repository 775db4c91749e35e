package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/client"
	"suvidha-service/internal/ratelimit"
)

func newTestCache(t *testing.T) *RateLimitCache {
	t.Helper()
	s := miniredis.RunT(t)
	return NewRateLimitCache(client.NewRedisClientFromAddr(s.Addr()))
}

func TestRateLimitCache(t *testing.T) {
	ctx := context.Background()
	const phone = "9876543210"

	t.Run("unknown phone reads as zero counter", func(t *testing.T) {
		cache := newTestCache(t)
		c, err := cache.Get(ctx, phone)
		require.NoError(t, err)
		assert.Zero(t, c.FailureCount)
		assert.True(t, c.LastAttemptAt.IsZero())
		assert.True(t, c.BlockedUntil.IsZero())
	})

	t.Run("round trips a counter at second resolution", func(t *testing.T) {
		cache := newTestCache(t)
		now := time.Now().UTC().Truncate(time.Second)
		want := ratelimit.Counter{
			FailureCount:  3,
			LastAttemptAt: now,
			BlockedUntil:  now.Add(30 * time.Minute),
		}
		require.NoError(t, cache.Put(ctx, phone, want))

		got, err := cache.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, want.FailureCount, got.FailureCount)
		assert.True(t, want.LastAttemptAt.Equal(got.LastAttemptAt))
		assert.True(t, want.BlockedUntil.Equal(got.BlockedUntil))
	})

	t.Run("zero times survive the round trip as zero", func(t *testing.T) {
		cache := newTestCache(t)
		require.NoError(t, cache.Put(ctx, phone, ratelimit.Counter{FailureCount: 1}))

		got, err := cache.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 1, got.FailureCount)
		assert.True(t, got.BlockedUntil.IsZero())
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		cache := newTestCache(t)
		require.NoError(t, cache.Put(ctx, phone, ratelimit.Counter{FailureCount: 4}))
		require.NoError(t, cache.Reset(ctx, phone))

		got, err := cache.Get(ctx, phone)
		require.NoError(t, err)
		assert.Zero(t, got.FailureCount)
	})
}

func TestLimiterOverRedis(t *testing.T) {
	ctx := context.Background()
	const phone = "9876543210"

	cache := newTestCache(t)
	limiter := ratelimit.NewLimiter(cache, ratelimit.DefaultConfig())

	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.RecordOutcome(ctx, phone, false))
		require.NoError(t, limiter.CheckAllowed(ctx, phone))
	}
	require.NoError(t, limiter.RecordOutcome(ctx, phone, false))

	_, blocked := ratelimit.AsBlocked(limiter.CheckAllowed(ctx, phone))
	assert.True(t, blocked)

	// success clears the count but the block stays
	require.NoError(t, limiter.RecordOutcome(ctx, phone, true))
	c, err := cache.Get(ctx, phone)
	require.NoError(t, err)
	assert.Zero(t, c.FailureCount)
	assert.False(t, c.BlockedUntil.IsZero())
}
