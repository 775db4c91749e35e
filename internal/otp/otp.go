package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// DeliveryMode says how an issued code reached the caller.
type DeliveryMode string

const (
	// ModeSMS means the code was handed to the SMS gateway.
	ModeSMS DeliveryMode = "sms"
	// ModeLocal means no gateway is configured and the code is returned
	// directly in the issue result.
	ModeLocal DeliveryMode = "local"
)

// Record is one issued verification code. Records are append-only: a resend
// creates a new record rather than mutating the old one.
type Record struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	Phone        string    `json:"phone"`
	Code         string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AttemptCount int       `json:"attempt_count"`
	Verified     bool      `json:"verified"`
	DeliveryRef  string    `json:"delivery_ref,omitempty"`
}

// ErrNoRecord is returned by RecordStore.LatestUnverified when the
// identity/phone pair has no unverified record.
var ErrNoRecord = errors.New("otp: no record")

// RecordStore persists issued codes. Implementations must make
// IncrementAttempt an atomic read-increment-write on the stored counter.
type RecordStore interface {
	Save(ctx context.Context, rec *Record) error
	// LatestUnverified returns the most recently issued unverified record
	// for the pair, expired or not. ErrNoRecord when none exists.
	LatestUnverified(ctx context.Context, identity, phone string) (*Record, error)
	// MarkVerified flips the verified flag. Marking an already verified
	// record is a no-op.
	MarkVerified(ctx context.Context, id string) error
	// IncrementAttempt bumps the attempt counter and returns the new value.
	IncrementAttempt(ctx context.Context, id string) (int, error)
}

// Clock abstracts time so expiry and decay behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// CodeSource produces verification codes.
type CodeSource interface {
	Code() (string, error)
}

type randomCodeSource struct{}

// Code draws uniformly from [100000, 999999] so the code is always six
// digits with no leading zero.
func (randomCodeSource) Code() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RandomCodeSource draws codes from crypto/rand.
var RandomCodeSource CodeSource = randomCodeSource{}

// Sender delivers a code to a phone number and returns a provider delivery
// reference. Errors mean the code was not delivered.
type Sender interface {
	Send(ctx context.Context, phone, code string, expiry time.Duration) (string, error)
}

// Limiter guards issuance and verification per phone number.
//
// CheckAllowed is a pure read: it returns nil when the phone may proceed and
// an error otherwise (a block or a store failure, both of which deny).
// RecordOutcome feeds a verification or resend outcome into the counters.
type Limiter interface {
	CheckAllowed(ctx context.Context, phone string) error
	RecordOutcome(ctx context.Context, phone string, success bool) error
}
