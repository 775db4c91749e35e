package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"suvidha-service/internal/util"
)

// Counter is the per-phone failure state. The zero value is a phone that
// has never failed.
type Counter struct {
	FailureCount  int       `json:"failure_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	BlockedUntil  time.Time `json:"blocked_until"`
}

// CounterStore persists counters keyed by phone number. Get on an unknown
// phone returns the zero Counter, not an error.
type CounterStore interface {
	Get(ctx context.Context, phone string) (Counter, error)
	Put(ctx context.Context, phone string, c Counter) error
}

// BlockedError denies a phone until the embedded deadline.
type BlockedError struct {
	Until time.Time
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.Until.Format(time.RFC3339))
}

// RetryAfter is the remaining block duration, floored at zero.
func (e *BlockedError) RetryAfter() time.Duration {
	d := time.Until(e.Until)
	if d < 0 {
		return 0
	}
	return d
}

// AsBlocked unwraps err into a BlockedError if it is one.
func AsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config is the blocking policy.
type Config struct {
	// MaxFailures is how many failures trigger a block.
	MaxFailures int
	// BlockDuration is how long a triggered block lasts.
	BlockDuration time.Duration
	// DecayWindow resets the failure count when the previous attempt is
	// older than this.
	DecayWindow time.Duration
}

// DefaultConfig is five failures, a thirty minute block, one hour decay.
func DefaultConfig() Config {
	return Config{
		MaxFailures:   5,
		BlockDuration: 30 * time.Minute,
		DecayWindow:   time.Hour,
	}
}

// Limiter tracks failures per phone number and blocks abusive phones.
// Reads are unguarded; updates serialize per phone so concurrent outcomes
// cannot lose counts.
type Limiter struct {
	store CounterStore
	cfg   Config
	clock Clock
	locks sync.Map // phone -> *sync.Mutex
}

func NewLimiter(store CounterStore, cfg Config) *Limiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 30 * time.Minute
	}
	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = time.Hour
	}
	return &Limiter{store: store, cfg: cfg, clock: systemClock{}}
}

// WithClock swaps the clock, for tests.
func (l *Limiter) WithClock(c Clock) *Limiter {
	l.clock = c
	return l
}

// CheckAllowed reports whether the phone may attempt an OTP operation.
// It never mutates state. A store failure denies: when the counters are
// unreadable the limiter fails closed.
func (l *Limiter) CheckAllowed(ctx context.Context, phone string) error {
	c, err := l.store.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("rate limit state unavailable: %w", err)
	}
	if !c.BlockedUntil.IsZero() && l.clock.Now().Before(c.BlockedUntil) {
		return &BlockedError{Until: c.BlockedUntil}
	}
	return nil
}

// RecordOutcome folds a verification or resend outcome into the counters.
//
// Success zeroes the failure count but leaves blockedUntil alone: a phone
// that verified during a block stays blocked for new issuance until the
// block expires on its own.
//
// Failure first decays a stale count (previous attempt older than the
// decay window), then increments, and sets a fresh block once the count
// reaches MaxFailures.
func (l *Limiter) RecordOutcome(ctx context.Context, phone string, success bool) error {
	mu := l.phoneLock(phone)
	mu.Lock()
	defer mu.Unlock()

	c, err := l.store.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("rate limit state unavailable: %w", err)
	}

	now := l.clock.Now()
	if success {
		c.FailureCount = 0
		c.LastAttemptAt = now
	} else {
		if !c.LastAttemptAt.IsZero() && now.Sub(c.LastAttemptAt) > l.cfg.DecayWindow {
			c.FailureCount = 0
		}
		c.FailureCount++
		c.LastAttemptAt = now
		if c.FailureCount >= l.cfg.MaxFailures {
			c.BlockedUntil = now.Add(l.cfg.BlockDuration)
			util.Warn("phone blocked by rate limiter",
				util.Int("failure_count", c.FailureCount),
				util.Time("blocked_until", c.BlockedUntil),
			)
		}
	}

	if err := l.store.Put(ctx, phone, c); err != nil {
		return fmt.Errorf("persisting rate limit state: %w", err)
	}
	return nil
}

func (l *Limiter) phoneLock(phone string) *sync.Mutex {
	v, _ := l.locks.LoadOrStore(phone, &sync.Mutex{})
	return v.(*sync.Mutex)
}
