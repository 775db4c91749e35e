package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"suvidha-service/internal/util"
)

// Config carries the issuance policy.
type Config struct {
	// ExpiryWindow is how long an issued code stays valid.
	ExpiryWindow time.Duration
	// MaxAttempts is the per-record verification budget.
	MaxAttempts int
}

// DefaultConfig matches the deployed policy: five minute expiry, three
// attempts per code.
func DefaultConfig() Config {
	return Config{
		ExpiryWindow: 5 * time.Minute,
		MaxAttempts:  3,
	}
}

// Issue is the result of a successful RequestOTP or ResendOTP.
type Issue struct {
	RecordID  string       `json:"record_id"`
	Phone     string       `json:"phone"`
	Mode      DeliveryMode `json:"delivery_mode"`
	Code      string       `json:"code,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Service implements OTP issuance and verification over a RecordStore,
// a per-phone Limiter and an optional SMS Sender. A nil Sender selects
// local disclosure mode.
type Service struct {
	store   RecordStore
	limiter Limiter
	sender  Sender
	codes   CodeSource
	clock   Clock
	cfg     Config
}

// Option tweaks Service construction.
type Option func(*Service)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithCodeSource replaces the code generator, for tests.
func WithCodeSource(cs CodeSource) Option {
	return func(s *Service) { s.codes = cs }
}

func NewService(store RecordStore, limiter Limiter, sender Sender, cfg Config, opts ...Option) *Service {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	s := &Service{
		store:   store,
		limiter: limiter,
		sender:  sender,
		codes:   RandomCodeSource,
		clock:   SystemClock,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestOTP issues a fresh code for the identity/phone pair. The rate
// limiter is consulted first; a blocked or unreachable limiter denies
// issuance. Previously issued codes are left untouched, only the latest
// unverified record matters to verification.
func (s *Service) RequestOTP(ctx context.Context, identity, phone string) (*Issue, error) {
	if err := s.limiter.CheckAllowed(ctx, phone); err != nil {
		return nil, err
	}
	return s.issue(ctx, identity, phone)
}

// ResendOTP issues a replacement code. Every resend that passes the block
// check counts as a limiter failure, whether or not delivery succeeds, so
// repeated resends alone can trigger a block.
func (s *Service) ResendOTP(ctx context.Context, identity, phone string) (*Issue, error) {
	if err := s.limiter.CheckAllowed(ctx, phone); err != nil {
		return nil, err
	}
	if err := s.limiter.RecordOutcome(ctx, phone, false); err != nil {
		util.Warn("rate limit outcome not recorded on resend",
			util.String("phone", maskPhone(phone)),
			util.ErrorField(err),
		)
	}
	return s.issue(ctx, identity, phone)
}

func (s *Service) issue(ctx context.Context, identity, phone string) (*Issue, error) {
	code, err := s.codes.Code()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &Record{
		ID:        uuid.NewString(),
		Identity:  identity,
		Phone:     phone,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ExpiryWindow),
	}

	mode := ModeLocal
	if s.sender != nil {
		ref, err := s.sender.Send(ctx, phone, code, s.cfg.ExpiryWindow)
		if err != nil {
			return nil, &DeliveryError{Err: err}
		}
		rec.DeliveryRef = ref
		mode = ModeSMS
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving otp record: %w", err)
	}

	util.Info("otp issued",
		util.String("record_id", rec.ID),
		util.String("phone", maskPhone(phone)),
		util.String("mode", string(mode)),
		util.Time("expires_at", rec.ExpiresAt),
	)

	issue := &Issue{
		RecordID:  rec.ID,
		Phone:     phone,
		Mode:      mode,
		ExpiresAt: rec.ExpiresAt,
	}
	if mode == ModeLocal {
		issue.Code = code
	}
	return issue, nil
}

// VerifyOTP checks code against the latest unverified record for the pair.
// A nil return means verified. The checks run in a fixed order: input
// shape, record existence, expiry, attempt budget, then the comparison.
// Only the comparison outcome feeds the rate limiter.
func (s *Service) VerifyOTP(ctx context.Context, identity, phone, code string) error {
	if !isSixDigits(code) {
		return ErrMalformedCode
	}

	rec, err := s.store.LatestUnverified(ctx, identity, phone)
	if err != nil {
		if err == ErrNoRecord {
			return ErrNoActiveCode
		}
		return fmt.Errorf("loading otp record: %w", err)
	}

	if !s.clock.Now().Before(rec.ExpiresAt) {
		return ErrCodeExpired
	}

	if rec.AttemptCount >= s.cfg.MaxAttempts {
		return ErrAttemptsExhausted
	}

	if code == rec.Code {
		if err := s.store.MarkVerified(ctx, rec.ID); err != nil {
			return fmt.Errorf("marking otp verified: %w", err)
		}
		if err := s.limiter.RecordOutcome(ctx, phone, true); err != nil {
			util.Warn("rate limit outcome not recorded on success",
				util.String("phone", maskPhone(phone)),
				util.ErrorField(err),
			)
		}
		util.Info("otp verified",
			util.String("record_id", rec.ID),
			util.String("phone", maskPhone(phone)),
		)
		return nil
	}

	attempts, err := s.store.IncrementAttempt(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}
	if err := s.limiter.RecordOutcome(ctx, phone, false); err != nil {
		util.Warn("rate limit outcome not recorded on failure",
			util.String("phone", maskPhone(phone)),
			util.ErrorField(err),
		)
	}

	remaining := s.cfg.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return &IncorrectCodeError{AttemptsRemaining: remaining}
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
