package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"suvidha-service/internal/config"
	"suvidha-service/internal/encryption"
	"suvidha-service/internal/hashing"
	"suvidha-service/internal/model"
	"suvidha-service/internal/otp"
	redisrepo "suvidha-service/internal/repository/redis"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

// EventPublisher fans domain events out to the message bus. Nil when
// Kafka is disabled.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, key string, payload interface{}) error
}

// LoginRecorder receives login audit events. Nil when analytics is
// disabled.
type LoginRecorder interface {
	RecordLogin(event model.LoginEvent)
}

// LoginResult is a completed authentication: a signed token plus the
// citizen it belongs to.
type LoginResult struct {
	Token     string         `json:"token"`
	SessionID string         `json:"-"`
	ExpiresAt time.Time      `json:"expires_at"`
	Citizen   *model.Citizen `json:"citizen,omitempty"`
	Role      string         `json:"role"`
}

// AuthService runs the Aadhaar + OTP login flow and session lifecycle.
type AuthService struct {
	citizens  *sqlite.CitizenRepository
	otp       *otp.Service
	hasher    *hashing.Hasher
	crypto    *encryption.Manager
	sessions  *redisrepo.SessionCache
	tokens    *TokenManager
	events    EventPublisher
	analytics LoginRecorder
	cfg       *config.Config
}

func NewAuthService(
	citizens *sqlite.CitizenRepository,
	otpService *otp.Service,
	hasher *hashing.Hasher,
	crypto *encryption.Manager,
	sessions *redisrepo.SessionCache,
	tokens *TokenManager,
	events EventPublisher,
	analytics LoginRecorder,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		citizens:  citizens,
		otp:       otpService,
		hasher:    hasher,
		crypto:    crypto,
		sessions:  sessions,
		tokens:    tokens,
		events:    events,
		analytics: analytics,
		cfg:       cfg,
	}
}

// StartLogin validates the Aadhaar and phone, registers the citizen on
// first contact and issues an OTP. The returned Issue carries the code
// only in local delivery mode.
func (s *AuthService) StartLogin(ctx context.Context, aadhaar, phone, name string) (*otp.Issue, error) {
	aadhaar = strings.TrimSpace(aadhaar)
	phone = strings.TrimSpace(phone)

	if !util.ValidateAadhaar(aadhaar) {
		return nil, ErrInvalidAadhaar
	}
	if !util.ValidatePhone(phone) {
		return nil, ErrInvalidPhone
	}

	citizen, err := s.findOrRegister(ctx, aadhaar, phone, name)
	if err != nil {
		return nil, err
	}

	issue, err := s.otp.RequestOTP(ctx, citizen.CitizenID, phone)
	if err != nil {
		s.recordLogin(citizen.CitizenID, phone, false, "otp_request_failed")
		return nil, err
	}
	return issue, nil
}

// ResendLogin reissues the OTP for an already started login. The
// resend itself counts against the phone's failure budget.
func (s *AuthService) ResendLogin(ctx context.Context, aadhaar, phone string) (*otp.Issue, error) {
	aadhaar = strings.TrimSpace(aadhaar)
	phone = strings.TrimSpace(phone)

	if !util.ValidateAadhaar(aadhaar) {
		return nil, ErrInvalidAadhaar
	}
	if !util.ValidatePhone(phone) {
		return nil, ErrInvalidPhone
	}

	citizen, err := s.citizens.FindByAadhaarHash(ctx, s.hasher.LookupHash(aadhaar))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}

	return s.otp.ResendOTP(ctx, citizen.CitizenID, phone)
}

// CompleteLogin verifies the OTP and opens a session. Verification
// errors from the OTP core pass through untouched so callers can map
// them precisely.
func (s *AuthService) CompleteLogin(ctx context.Context, aadhaar, phone, code string) (*LoginResult, error) {
	aadhaar = strings.TrimSpace(aadhaar)
	phone = strings.TrimSpace(phone)

	if !util.ValidateAadhaar(aadhaar) {
		return nil, ErrInvalidAadhaar
	}
	if !util.ValidatePhone(phone) {
		return nil, ErrInvalidPhone
	}

	citizen, err := s.citizens.FindByAadhaarHash(ctx, s.hasher.LookupHash(aadhaar))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}

	if err := s.otp.VerifyOTP(ctx, citizen.CitizenID, phone, code); err != nil {
		s.recordLogin(citizen.CitizenID, phone, false, err.Error())
		return nil, err
	}

	result, err := s.openSession(ctx, citizen.CitizenID, RoleCitizen, phone)
	if err != nil {
		return nil, err
	}
	result.Citizen = citizen

	now := time.Now().UTC()
	if err := s.citizens.TouchLastLogin(ctx, citizen.CitizenID, now); err != nil {
		util.Warn("Failed to record last login", util.ErrorField(err))
	}

	s.recordLogin(citizen.CitizenID, phone, true, "")
	s.publish(ctx, "citizen.login", citizen.CitizenID, map[string]interface{}{
		"citizen_id": citizen.CitizenID,
		"logged_at":  now,
	})

	util.Info("Citizen login completed", util.String("citizen_id", citizen.CitizenID))
	return result, nil
}

// GuestLogin opens a limited session without Aadhaar verification.
func (s *AuthService) GuestLogin(ctx context.Context) (*LoginResult, error) {
	guestID := "GUEST" + uuid.NewString()[:8]
	result, err := s.openSession(ctx, guestID, RoleGuest, "")
	if err != nil {
		return nil, err
	}
	util.Info("Guest session opened", util.String("guest_id", guestID))
	return result, nil
}

// AdminLogin authenticates the helpdesk operator account.
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if username != s.cfg.Auth.AdminUsername || s.cfg.Auth.AdminPasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.VerifyPassword(password, s.cfg.Auth.AdminPasswordHash)
	if err != nil || !ok {
		s.recordLogin(username, "", false, "admin_password_mismatch")
		return nil, ErrInvalidCredentials
	}

	result, err := s.openSession(ctx, username, RoleAdmin, "")
	if err != nil {
		return nil, err
	}
	s.recordLogin(username, "", true, "admin")
	util.Info("Admin login completed", util.String("username", username))
	return result, nil
}

// Authenticate resolves a bearer token to its live session. A token
// whose session was displaced by a newer login is rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*SessionClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		current, err := s.sessions.IsCurrent(ctx, claims.Subject, claims.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session lookup failed: %w", err)
		}
		if !current {
			return nil, ErrSessionExpired
		}
	}

	return claims, nil
}

// Logout drops the active session for the subject.
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.InvalidateSession(ctx, subject)
}

// Profile returns the citizen bound to a session subject.
func (s *AuthService) Profile(ctx context.Context, citizenID string) (*model.Citizen, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return citizen, nil
}

// UpdateProfile changes the citizen's contact fields. Identity fields
// are immutable.
func (s *AuthService) UpdateProfile(ctx context.Context, citizenID string, name, email, address, pincode, language string) (*model.Citizen, error) {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = util.SanitizeInput(name)
	}
	if email != "" {
		updates["email"] = util.SanitizeInput(email)
	}
	if address != "" {
		updates["address"] = util.SanitizeInput(address)
	}
	if pincode != "" {
		updates["pincode"] = pincode
	}
	if language != "" {
		updates["language"] = language
	}
	if len(updates) == 0 {
		return s.Profile(ctx, citizenID)
	}

	if err := s.citizens.UpdateProfile(ctx, citizenID, updates); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return s.Profile(ctx, citizenID)
}

func (s *AuthService) findOrRegister(ctx context.Context, aadhaar, phone, name string) (*model.Citizen, error) {
	lookupHash := s.hasher.LookupHash(aadhaar)

	citizen, err := s.citizens.FindByAadhaarHash(ctx, lookupHash)
	if err == nil {
		return citizen, nil
	}
	if !errors.Is(err, sqlite.ErrNotFound) {
		return nil, err
	}

	encrypted, err := s.crypto.EncryptField(ctx, aadhaar)
	if err != nil {
		return nil, fmt.Errorf("failed to protect aadhaar: %w", err)
	}

	now := time.Now().UTC()
	citizen = &model.Citizen{
		CitizenID:        model.NewCitizenID(now),
		AadhaarHash:      lookupHash,
		AadhaarEncrypted: encrypted,
		Name:             util.SanitizeInput(name),
		Phone:            phone,
		Language:         "en",
	}
	if err := s.citizens.Create(ctx, citizen); err != nil {
		return nil, err
	}

	s.publish(ctx, "citizen.registered", citizen.CitizenID, map[string]interface{}{
		"citizen_id":    citizen.CitizenID,
		"registered_at": now,
	})

	util.Info("Citizen registered", util.String("citizen_id", citizen.CitizenID))
	return citizen, nil
}

func (s *AuthService) openSession(ctx context.Context, subject, role, phone string) (*LoginResult, error) {
	now := time.Now().UTC()
	sessionID := uuid.NewString()

	if s.sessions != nil {
		sess := redisrepo.Session{
			SessionID: sessionID,
			CitizenID: subject,
			Role:      role,
			Phone:     phone,
			IssuedAt:  now,
		}
		if err := s.sessions.SetActiveSession(ctx, sess, s.cfg.Auth.SessionTTL); err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
	}

	token, err := s.tokens.Issue(subject, role, sessionID, now)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: now.Add(s.cfg.Auth.SessionTTL),
		Role:      role,
	}, nil
}

func (s *AuthService) recordLogin(subject, phone string, success bool, detail string) {
	if s.analytics == nil {
		return
	}
	s.analytics.RecordLogin(model.LoginEvent{
		EventType:  "login",
		CitizenID:  subject,
		Phone:      phone,
		Success:    success,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *AuthService) publish(ctx context.Context, eventType, key string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, key, payload); err != nil {
		util.Warn("Failed to publish event",
			util.String("event_type", eventType),
			util.ErrorField(err),
		)
	}
}
