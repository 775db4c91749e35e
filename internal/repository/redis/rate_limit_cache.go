package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"suvidha-service/internal/client"
	"suvidha-service/internal/ratelimit"
	"suvidha-service/internal/util"
)

const (
	rateLimitPrefix = "rate_limit:phone:"

	failureCountField = "failure_count"
	lastAttemptField  = "last_attempt"
	blockedUntilField = "blocked_until"

	// Idle counters disappear on their own well after the decay window
	// and any block have run out.
	counterTTL = 48 * time.Hour
)

// RateLimitCache stores per-phone failure counters in Redis hashes. It
// implements ratelimit.CounterStore so the limiter state survives restarts
// and is shared across instances.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

func (c *RateLimitCache) Get(ctx context.Context, phone string) (ratelimit.Counter, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, rateLimitPrefix+phone)
	if err != nil {
		util.Error("Failed to read rate limit counter",
			util.String("phone", phone),
			util.ErrorField(err))
		return ratelimit.Counter{}, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	// HGETALL on a missing key returns an empty map, which maps to the
	// zero counter.
	return counterFromFields(fields), nil
}

func (c *RateLimitCache) Put(ctx context.Context, phone string, counter ratelimit.Counter) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	key := rateLimitPrefix + phone
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		failureCountField, counter.FailureCount,
		lastAttemptField, unixOrZero(counter.LastAttemptAt),
		blockedUntilField, unixOrZero(counter.BlockedUntil),
	)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to write rate limit counter",
			util.String("phone", phone),
			util.Int("failure_count", counter.FailureCount),
			util.ErrorField(err))
		return fmt.Errorf("failed to write rate limit counter: %w", err)
	}

	util.Debug("Rate limit counter written",
		util.String("phone", phone),
		util.Int("failure_count", counter.FailureCount))
	return nil
}

// Reset clears a phone's counter entirely, an operator escape hatch.
func (c *RateLimitCache) Reset(ctx context.Context, phone string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, rateLimitPrefix+phone); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	util.Info("Rate limit counter reset", util.String("phone", phone))
	return nil
}

func counterFromFields(fields map[string]string) ratelimit.Counter {
	var counter ratelimit.Counter
	if v, ok := fields[failureCountField]; ok {
		counter.FailureCount, _ = strconv.Atoi(v)
	}
	if v, ok := fields[lastAttemptField]; ok {
		counter.LastAttemptAt = timeOrZero(v)
	}
	if v, ok := fields[blockedUntilField]; ok {
		counter.BlockedUntil = timeOrZero(v)
	}
	return counter
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
