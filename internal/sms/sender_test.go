package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/config"
)

func TestNewGatewaySender(t *testing.T) {
	assert.Nil(t, NewGatewaySender(config.SMSConfig{}), "no gateway URL means local disclosure mode")
	assert.NotNil(t, NewGatewaySender(config.SMSConfig{GatewayURL: "http://sms.local/send"}))
}

func TestGatewaySenderSend(t *testing.T) {
	t.Run("posts code and returns message id", func(t *testing.T) {
		var got sendRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(sendResponse{MessageID: "SM-7", Status: "queued"})
		}))
		defer srv.Close()

		sender := NewGatewaySender(config.SMSConfig{
			GatewayURL: srv.URL,
			APIKey:     "secret",
			SenderID:   "SUVIDHA",
		})

		ref, err := sender.Send(context.Background(), "9876543210", "654321", 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "SM-7", ref)
		assert.Equal(t, "+919876543210", got.To)
		assert.Contains(t, got.Message, "654321")
		assert.Contains(t, got.Message, "5 minutes")
	})

	t.Run("gateway error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "out of credit", http.StatusPaymentRequired)
		}))
		defer srv.Close()

		sender := NewGatewaySender(config.SMSConfig{GatewayURL: srv.URL})
		_, err := sender.Send(context.Background(), "9876543210", "654321", 5*time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "402")
	})
}
