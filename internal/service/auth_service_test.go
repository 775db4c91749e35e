package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/client"
	"suvidha-service/internal/config"
	"suvidha-service/internal/encryption"
	"suvidha-service/internal/hashing"
	"suvidha-service/internal/otp"
	"suvidha-service/internal/ratelimit"
	redisrepo "suvidha-service/internal/repository/redis"
	"suvidha-service/internal/repository/sqlite"
)

// A 12-digit number whose final digit satisfies the weighted checksum.
const testAadhaar = "234567890125"
const testPhone = "9876543210"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Hashing: config.HashingConfig{
			Memory:      64 * 1024,
			Iterations:  3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			Pepper:      "test-pepper",
		},
		OTP: config.OTPConfig{
			ExpiryWindow:  5 * time.Minute,
			MaxAttempts:   3,
			MaxFailures:   5,
			BlockDuration: 30 * time.Minute,
			DecayWindow:   time.Hour,
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			SessionTTL:    24 * time.Hour,
			AdminUsername: "operator",
		},
		Bucketing: config.BucketingConfig{PhoneBuckets: 64, EventBuckets: 16},
	}
}

func newTestFactory(t *testing.T) (*ServiceFactory, *config.Config) {
	t.Helper()

	cfg := testConfig()
	hasher := hashing.NewHasher(cfg)

	adminHash, err := hasher.HashPassword("correct horse battery")
	require.NoError(t, err)
	cfg.Auth.AdminPasswordHash = adminHash

	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisClient := client.NewRedisClientFromAddr(mr.Addr())
	sessions := redisrepo.NewSessionCache(redisClient)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounterStore(), ratelimit.Config{
		MaxFailures:   cfg.OTP.MaxFailures,
		BlockDuration: cfg.OTP.BlockDuration,
		DecayWindow:   cfg.OTP.DecayWindow,
	})
	otpSvc := otp.NewService(otp.NewMemoryStore(), limiter, nil, otp.Config{
		ExpiryWindow: cfg.OTP.ExpiryWindow,
		MaxAttempts:  cfg.OTP.MaxAttempts,
	})

	factory := NewServiceFactory(cfg, FactoryDeps{
		DB:       db,
		OTP:      otpSvc,
		Hasher:   hasher,
		Crypto:   encryption.NewManager(cfg, nil),
		Buckets:  bucketing.NewManager(cfg),
		Sessions: sessions,
	})
	return factory, cfg
}

func TestLoginFlow(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha Verma")
	require.NoError(t, err)
	require.Equal(t, otp.ModeLocal, issue.Mode)
	require.NotEmpty(t, issue.Code)

	result, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotNil(t, result.Citizen)
	assert.Equal(t, RoleCitizen, result.Role)
	assert.Equal(t, "Asha Verma", result.Citizen.Name)

	claims, err := auth.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Citizen.CitizenID, claims.Subject)
	assert.Equal(t, RoleCitizen, claims.Role)

	profile, err := auth.Profile(ctx, claims.Subject)
	require.NoError(t, err)
	assert.NotNil(t, profile.LastLoginAt)
}

func TestLoginValidation(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	_, err := auth.StartLogin(ctx, "234567890124", testPhone, "")
	assert.ErrorIs(t, err, ErrInvalidAadhaar, "bad checksum digit")

	_, err = auth.StartLogin(ctx, "12345", testPhone, "")
	assert.ErrorIs(t, err, ErrInvalidAadhaar)

	_, err = auth.StartLogin(ctx, testAadhaar, "1234567890", "")
	assert.ErrorIs(t, err, ErrInvalidPhone, "mobile numbers start with 6-9")

	_, err = auth.CompleteLogin(ctx, testAadhaar, testPhone, "123456")
	assert.ErrorIs(t, err, ErrCitizenNotFound, "no login was started")
}

func TestLoginWrongCode(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha")
	require.NoError(t, err)

	// Issued codes are always >= 100000, so this can never collide.
	_, err = auth.CompleteLogin(ctx, testAadhaar, testPhone, "000000")
	incorrect, ok := otp.AsIncorrect(err)
	require.True(t, ok)
	assert.Equal(t, 2, incorrect.AttemptsRemaining)

	// The right code still works afterwards.
	result, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestSecondLoginDisplacesSession(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha")
	require.NoError(t, err)
	first, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)

	issue2, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha")
	require.NoError(t, err)
	second, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue2.Code)
	require.NoError(t, err)

	_, err = auth.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = auth.Authenticate(ctx, second.Token)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha")
	require.NoError(t, err)
	result, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)

	claims, err := auth.Authenticate(ctx, result.Token)
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, claims.Subject))

	_, err = auth.Authenticate(ctx, result.Token)
	assert.Error(t, err)
}

func TestGuestLogin(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	result, err := auth.GuestLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, result.Role)

	claims, err := auth.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, claims.Role)
}

func TestAdminLogin(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	_, err := auth.AdminLogin(ctx, "operator", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.AdminLogin(ctx, "intruder", "correct horse battery")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	result, err := auth.AdminLogin(ctx, "operator", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, result.Role)
}

func TestUpdateProfile(t *testing.T) {
	factory, _ := newTestFactory(t)
	auth := factory.AuthService()
	ctx := context.Background()

	issue, err := auth.StartLogin(ctx, testAadhaar, testPhone, "Asha")
	require.NoError(t, err)
	result, err := auth.CompleteLogin(ctx, testAadhaar, testPhone, issue.Code)
	require.NoError(t, err)

	updated, err := auth.UpdateProfile(ctx, result.Citizen.CitizenID, "", "asha@example.com", "12 MG Road", "110001", "hi")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", updated.Email)
	assert.Equal(t, "hi", updated.Language)
	assert.Equal(t, "Asha", updated.Name, "name untouched when not provided")
}

func TestTokenManager(t *testing.T) {
	cfg := testConfig()
	tokens := NewTokenManager(cfg)
	now := time.Now().UTC()

	signed, err := tokens.Issue("USER123", RoleCitizen, "sess-1", now)
	require.NoError(t, err)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "USER123", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)

	// Tokens signed with a different secret are rejected.
	other := NewTokenManager(&config.Config{Auth: config.AuthConfig{JWTSecret: "other", SessionTTL: time.Hour}})
	forged, err := other.Issue("USER123", RoleAdmin, "sess-2", now)
	require.NoError(t, err)
	_, err = tokens.Parse(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
