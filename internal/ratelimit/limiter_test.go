package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingStore struct{}

func (failingStore) Get(ctx context.Context, phone string) (Counter, error) {
	return Counter{}, errors.New("store down")
}

func (failingStore) Put(ctx context.Context, phone string, c Counter) error {
	return errors.New("store down")
}

func newTestLimiter(t *testing.T) (*Limiter, *MemoryCounterStore, *fakeClock) {
	t.Helper()
	store := NewMemoryCounterStore()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	l := NewLimiter(store, DefaultConfig()).WithClock(clock)
	return l, store, clock
}

func TestLimiterBlocking(t *testing.T) {
	ctx := context.Background()
	const phone = "9876543210"

	t.Run("fifth failure blocks for thirty minutes", func(t *testing.T) {
		l, store, clock := newTestLimiter(t)

		for i := 0; i < 4; i++ {
			require.NoError(t, l.RecordOutcome(ctx, phone, false))
			assert.NoError(t, l.CheckAllowed(ctx, phone))
		}

		require.NoError(t, l.RecordOutcome(ctx, phone, false))
		err := l.CheckAllowed(ctx, phone)
		be, ok := AsBlocked(err)
		require.True(t, ok, "expected block, got %v", err)
		assert.Equal(t, clock.Now().Add(30*time.Minute), be.Until)

		c, err := store.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 5, c.FailureCount)
	})

	t.Run("block expires on its own", func(t *testing.T) {
		l, _, clock := newTestLimiter(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, l.RecordOutcome(ctx, phone, false))
		}
		require.Error(t, l.CheckAllowed(ctx, phone))

		clock.Advance(30*time.Minute + time.Second)
		assert.NoError(t, l.CheckAllowed(ctx, phone))
	})

	t.Run("success resets failures but not an active block", func(t *testing.T) {
		l, store, clock := newTestLimiter(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, l.RecordOutcome(ctx, phone, false))
		}
		blockedUntil := clock.Now().Add(30 * time.Minute)

		require.NoError(t, l.RecordOutcome(ctx, phone, true))

		c, err := store.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 0, c.FailureCount)
		assert.Equal(t, blockedUntil, c.BlockedUntil)

		// still blocked until the deadline passes
		_, ok := AsBlocked(l.CheckAllowed(ctx, phone))
		assert.True(t, ok)
	})

	t.Run("phones are counted independently", func(t *testing.T) {
		l, _, _ := newTestLimiter(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, l.RecordOutcome(ctx, "9000000001", false))
		}
		_, ok := AsBlocked(l.CheckAllowed(ctx, "9000000001"))
		assert.True(t, ok)
		assert.NoError(t, l.CheckAllowed(ctx, "9000000002"))
	})
}

func TestLimiterDecay(t *testing.T) {
	ctx := context.Background()
	const phone = "9876543210"

	t.Run("stale failures decay before counting", func(t *testing.T) {
		l, store, clock := newTestLimiter(t)
		for i := 0; i < 4; i++ {
			require.NoError(t, l.RecordOutcome(ctx, phone, false))
		}

		clock.Advance(time.Hour + time.Second)
		require.NoError(t, l.RecordOutcome(ctx, phone, false))

		c, err := store.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 1, c.FailureCount)
		assert.True(t, c.BlockedUntil.IsZero())
	})

	t.Run("failures exactly at the window do not decay", func(t *testing.T) {
		l, store, clock := newTestLimiter(t)
		for i := 0; i < 4; i++ {
			require.NoError(t, l.RecordOutcome(ctx, phone, false))
		}

		clock.Advance(time.Hour)
		require.NoError(t, l.RecordOutcome(ctx, phone, false))

		c, err := store.Get(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 5, c.FailureCount)
		assert.False(t, c.BlockedUntil.IsZero())
	})
}

func TestLimiterFailsClosed(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(failingStore{}, DefaultConfig())

	err := l.CheckAllowed(ctx, "9876543210")
	require.Error(t, err)
	_, ok := AsBlocked(err)
	assert.False(t, ok, "store failure is a denial, not a block")

	assert.Error(t, l.RecordOutcome(ctx, "9876543210", false))
}
