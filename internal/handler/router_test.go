package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
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
	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

const testAadhaar = "234567890125"
const testPhone = "9876543210"

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	cfg := &config.Config{
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

	hasher := hashing.NewHasher(cfg)
	adminHash, err := hasher.HashPassword("operator password")
	require.NoError(t, err)
	cfg.Auth.AdminPasswordHash = adminHash

	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	sessions := redisrepo.NewSessionCache(client.NewRedisClientFromAddr(mr.Addr()))

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounterStore(), ratelimit.Config{
		MaxFailures:   cfg.OTP.MaxFailures,
		BlockDuration: cfg.OTP.BlockDuration,
		DecayWindow:   cfg.OTP.DecayWindow,
	})
	otpSvc := otp.NewService(otp.NewMemoryStore(), limiter, nil, otp.Config{
		ExpiryWindow: cfg.OTP.ExpiryWindow,
		MaxAttempts:  cfg.OTP.MaxAttempts,
	})

	factory := service.NewServiceFactory(cfg, service.FactoryDeps{
		DB:       db,
		OTP:      otpSvc,
		Hasher:   hasher,
		Crypto:   encryption.NewManager(cfg, nil),
		Buckets:  bucketing.NewManager(cfg),
		Sessions: sessions,
	})

	return NewRouter(cfg, factory, util.Get())
}

func doJSON(t *testing.T, router chi.Router, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

// citizenToken runs the full login flow and returns a bearer token.
func citizenToken(t *testing.T, router chi.Router) string {
	t.Helper()

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"aadhaar": testAadhaar,
		"phone":   testPhone,
		"name":    "Asha Verma",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	issue := resp.Data.(map[string]interface{})
	require.Equal(t, "local", issue["delivery_mode"], "no SMS gateway configured, code is disclosed")
	code := issue["code"].(string)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"aadhaar": testAadhaar,
		"phone":   testPhone,
		"code":    code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := resp.Data.(map[string]interface{})
	return result["token"].(string)
}

func adminToken(t *testing.T, router chi.Router) string {
	t.Helper()
	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/admin/login", "", map[string]string{
		"username": "operator",
		"password": "operator password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return resp.Data.(map[string]interface{})["token"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestLoginOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := citizenToken(t, router)
	require.NotEmpty(t, token)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := resp.Data.(map[string]interface{})
	assert.Equal(t, "Asha Verma", profile["name"])
}

func TestLoginRejectsWrongCode(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"aadhaar": testAadhaar,
		"phone":   testPhone,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"aadhaar": testAadhaar,
		"phone":   testPhone,
		"code":    "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["attempts_remaining"])
}

func TestLoginValidationOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"aadhaar": "123",
		"phone":   testPhone,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed code shape is rejected before any lookup.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"aadhaar": testAadhaar,
		"phone":   testPhone,
		"code":    "12ab56",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "citizen was never registered")
}

func TestRequestFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := citizenToken(t, router)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/requests", token, map[string]string{
		"department":   "water",
		"service_type": "Leakage Complaint",
		"description":  "Pipe burst near the market",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := resp.Data.(map[string]interface{})
	requestID := created["request_id"].(string)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/requests", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/requests/"+requestID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Notifications recorded the submission.
	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), inbox["unread_count"])
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/requests", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestCannotFileRequests(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/guest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := resp.Data.(map[string]interface{})["token"].(string)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/requests", token, map[string]string{
		"department":   "water",
		"service_type": "Leak",
		"description":  "x",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Guests can still browse the public directory.
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/departments", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	citizen := citizenToken(t, router)
	admin := adminToken(t, router)

	// Citizens cannot reach the operator console.
	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/admin/dashboard", citizen, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/requests", citizen, map[string]string{
		"department":   "gas",
		"service_type": "Cylinder Booking",
		"description":  "Need a refill",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	requestID := resp.Data.(map[string]interface{})["request_id"].(string)

	rec, _ = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/admin/requests/%s/status", requestID), admin, map[string]string{
		"status":  "Resolved",
		"comment": "Cylinder delivered",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), metrics["total_requests"])
	assert.Equal(t, float64(1), metrics["resolved_requests"])
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	citizen := citizenToken(t, router)
	admin := adminToken(t, router)

	// Fetch the citizen ID for bill creation.
	_, resp := doJSON(t, router, http.MethodGet, "/api/v1/auth/profile", citizen, nil)
	citizenID := resp.Data.(map[string]interface{})["citizen_id"].(string)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/admin/bills", admin, map[string]interface{}{
		"citizen_id":  citizenID,
		"bill_type":   "electricity",
		"bill_number": "EB-4411",
		"amount":      1240.50,
		"due_date":    time.Now().UTC().Add(7 * 24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paymentID := resp.Data.(map[string]interface{})["payment_id"].(string)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/v1/payments/pending", citizen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data.([]interface{}), 1)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/payments/"+paymentID+"/pay", citizen, map[string]string{
		"method": "upi",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, receipt["transaction_id"])
}

func TestAdminSettings(t *testing.T) {
	router := newTestRouter(t)
	admin := adminToken(t, router)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/admin/settings", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, resp.Data)

	rec, _ = doJSON(t, router, http.MethodPut, "/api/v1/admin/settings/default_language", admin, map[string]string{
		"value": "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/admin/settings", admin, nil)
	found := false
	for _, raw := range resp.Data.([]interface{}) {
		setting := raw.(map[string]interface{})
		if setting["key"] == "default_language" {
			assert.Equal(t, "hi", setting["value"])
			found = true
		}
	}
	assert.True(t, found)
}

func TestEmergencyEndpointsArePublic(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/emergency/contacts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp.Data)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/emergency/report", "", map[string]string{
		"type":           "fire",
		"location":       "Sector 12 market",
		"reporter_name":  "Passerby",
		"reporter_phone": "9123456780",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUnknownEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
