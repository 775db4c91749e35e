package otp

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

type scriptedCodes struct {
	codes []string
	next  int
}

func (s *scriptedCodes) Code() (string, error) {
	code := s.codes[s.next%len(s.codes)]
	s.next++
	return code, nil
}

type fakeLimiter struct {
	denyWith error
	outcomes []bool
}

func (f *fakeLimiter) CheckAllowed(ctx context.Context, phone string) error {
	return f.denyWith
}

func (f *fakeLimiter) RecordOutcome(ctx context.Context, phone string, success bool) error {
	f.outcomes = append(f.outcomes, success)
	return nil
}

type fakeSender struct {
	ref  string
	err  error
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, phone, code string, expiry time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, code)
	return f.ref, nil
}

func newTestService(t *testing.T, sender Sender) (*Service, *MemoryStore, *fakeLimiter, *fakeClock, *scriptedCodes) {
	t.Helper()
	store := NewMemoryStore()
	limiter := &fakeLimiter{}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	codes := &scriptedCodes{codes: []string{"654321", "112233", "998877"}}
	svc := NewService(store, limiter, sender, DefaultConfig(), WithClock(clock), WithCodeSource(codes))
	return svc, store, limiter, clock, codes
}

func TestRequestOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("local mode discloses code when no sender configured", func(t *testing.T) {
		svc, store, _, clock, _ := newTestService(t, nil)

		issue, err := svc.RequestOTP(ctx, "234567890124", "9876543210")
		require.NoError(t, err)
		assert.Equal(t, ModeLocal, issue.Mode)
		assert.Equal(t, "654321", issue.Code)
		assert.Equal(t, clock.Now().Add(5*time.Minute), issue.ExpiresAt)

		rec, err := store.LatestUnverified(ctx, "234567890124", "9876543210")
		require.NoError(t, err)
		assert.Equal(t, issue.RecordID, rec.ID)
		assert.Equal(t, 0, rec.AttemptCount)
		assert.False(t, rec.Verified)
	})

	t.Run("sms mode withholds code and stores delivery ref", func(t *testing.T) {
		sender := &fakeSender{ref: "SM-42"}
		svc, store, _, _, _ := newTestService(t, sender)

		issue, err := svc.RequestOTP(ctx, "234567890124", "9876543210")
		require.NoError(t, err)
		assert.Equal(t, ModeSMS, issue.Mode)
		assert.Empty(t, issue.Code)
		assert.Equal(t, []string{"654321"}, sender.sent)

		rec, err := store.LatestUnverified(ctx, "234567890124", "9876543210")
		require.NoError(t, err)
		assert.Equal(t, "SM-42", rec.DeliveryRef)
	})

	t.Run("delivery failure persists nothing", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("gateway down")}
		svc, store, _, _, _ := newTestService(t, sender)

		_, err := svc.RequestOTP(ctx, "234567890124", "9876543210")
		var de *DeliveryError
		require.ErrorAs(t, err, &de)

		_, err = store.LatestUnverified(ctx, "234567890124", "9876543210")
		assert.ErrorIs(t, err, ErrNoRecord)
	})

	t.Run("limiter denial stops issuance", func(t *testing.T) {
		svc, store, limiter, _, _ := newTestService(t, nil)
		limiter.denyWith = errors.New("blocked")

		_, err := svc.RequestOTP(ctx, "234567890124", "9876543210")
		require.Error(t, err)

		_, err = store.LatestUnverified(ctx, "234567890124", "9876543210")
		assert.ErrorIs(t, err, ErrNoRecord)
	})
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()
	const identity = "234567890124"
	const phone = "9876543210"

	t.Run("malformed input short-circuits", func(t *testing.T) {
		svc, _, limiter, _, _ := newTestService(t, nil)

		for _, code := range []string{"", "12345", "1234567", "12a456", " 23456"} {
			err := svc.VerifyOTP(ctx, identity, phone, code)
			assert.ErrorIs(t, err, ErrMalformedCode, "code %q", code)
		}
		// malformed input never reaches the limiter
		assert.Empty(t, limiter.outcomes)
	})

	t.Run("no active code", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t, nil)
		err := svc.VerifyOTP(ctx, identity, phone, "654321")
		assert.ErrorIs(t, err, ErrNoActiveCode)
	})

	t.Run("correct code verifies and records success", func(t *testing.T) {
		svc, store, limiter, _, _ := newTestService(t, nil)
		issue, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)

		require.NoError(t, svc.VerifyOTP(ctx, identity, phone, issue.Code))
		assert.Equal(t, []bool{true}, limiter.outcomes)

		// the record is consumed
		_, err = store.LatestUnverified(ctx, identity, phone)
		assert.ErrorIs(t, err, ErrNoRecord)
		err = svc.VerifyOTP(ctx, identity, phone, issue.Code)
		assert.ErrorIs(t, err, ErrNoActiveCode)
	})

	t.Run("incorrect code counts down attempts", func(t *testing.T) {
		svc, _, limiter, _, _ := newTestService(t, nil)
		_, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)

		for want := 2; want >= 0; want-- {
			err := svc.VerifyOTP(ctx, identity, phone, "000000")
			ice, ok := AsIncorrect(err)
			require.True(t, ok, "expected incorrect code error, got %v", err)
			assert.Equal(t, want, ice.AttemptsRemaining)
		}
		assert.Equal(t, []bool{false, false, false}, limiter.outcomes)

		// budget spent: even the right code is refused, limiter untouched
		err = svc.VerifyOTP(ctx, identity, phone, "654321")
		assert.ErrorIs(t, err, ErrAttemptsExhausted)
		assert.Len(t, limiter.outcomes, 3)
	})

	t.Run("expired code refuses without spending attempts", func(t *testing.T) {
		svc, store, limiter, clock, _ := newTestService(t, nil)
		issue, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)

		clock.Advance(5*time.Minute + time.Second)
		err = svc.VerifyOTP(ctx, identity, phone, issue.Code)
		assert.ErrorIs(t, err, ErrCodeExpired)
		assert.Empty(t, limiter.outcomes)

		rec, err := store.LatestUnverified(ctx, identity, phone)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.AttemptCount)
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		svc, _, _, clock, _ := newTestService(t, nil)
		issue, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)

		clock.Advance(5 * time.Minute)
		err = svc.VerifyOTP(ctx, identity, phone, issue.Code)
		assert.ErrorIs(t, err, ErrCodeExpired)
	})
}

func TestResendOTP(t *testing.T) {
	ctx := context.Background()
	const identity = "234567890124"
	const phone = "9876543210"

	t.Run("resend supersedes the previous code", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t, nil)
		first, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)
		second, err := svc.ResendOTP(ctx, identity, phone)
		require.NoError(t, err)
		require.NotEqual(t, first.Code, second.Code)

		// the old code now fails against the newest record
		err = svc.VerifyOTP(ctx, identity, phone, first.Code)
		_, ok := AsIncorrect(err)
		assert.True(t, ok)

		assert.NoError(t, svc.VerifyOTP(ctx, identity, phone, second.Code))
	})

	t.Run("resend counts as a limiter failure even when delivery succeeds", func(t *testing.T) {
		sender := &fakeSender{ref: "SM-1"}
		svc, _, limiter, _, _ := newTestService(t, sender)
		_, err := svc.RequestOTP(ctx, identity, phone)
		require.NoError(t, err)
		assert.Empty(t, limiter.outcomes)

		_, err = svc.ResendOTP(ctx, identity, phone)
		require.NoError(t, err)
		assert.Equal(t, []bool{false}, limiter.outcomes)
	})

	t.Run("resend counts even when delivery fails", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("gateway down")}
		svc, _, limiter, _, _ := newTestService(t, sender)

		_, err := svc.ResendOTP(ctx, identity, phone)
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []bool{false}, limiter.outcomes)
	})

	t.Run("blocked resend records nothing", func(t *testing.T) {
		svc, _, limiter, _, _ := newTestService(t, nil)
		limiter.denyWith = errors.New("blocked")

		_, err := svc.ResendOTP(ctx, identity, phone)
		require.Error(t, err)
		assert.Empty(t, limiter.outcomes)
	})
}

func TestRandomCodeSource(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := RandomCodeSource.Code()
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}
