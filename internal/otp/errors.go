package otp

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCode rejects verification input that is not exactly six
	// ASCII digits. Malformed input never reaches the record store.
	ErrMalformedCode = errors.New("otp: code must be six digits")

	// ErrNoActiveCode means no unverified code exists for the pair.
	ErrNoActiveCode = errors.New("otp: no active code")

	// ErrCodeExpired means the latest unverified code is past its expiry.
	ErrCodeExpired = errors.New("otp: code expired")

	// ErrAttemptsExhausted means the record's attempt budget is spent.
	ErrAttemptsExhausted = errors.New("otp: attempts exhausted")
)

// DeliveryError wraps a hard SMS gateway failure. No record is persisted
// when issuance fails this way.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("otp: delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IncorrectCodeError reports a failed comparison along with how many
// attempts the active record has left.
type IncorrectCodeError struct {
	AttemptsRemaining int
}

func (e *IncorrectCodeError) Error() string {
	return fmt.Sprintf("otp: incorrect code, %d attempts remaining", e.AttemptsRemaining)
}

// AsIncorrect unwraps err into an IncorrectCodeError if it is one.
func AsIncorrect(err error) (*IncorrectCodeError, bool) {
	var ice *IncorrectCodeError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
