package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"suvidha-service/internal/config"
	"suvidha-service/internal/util"
)

// GatewaySender delivers verification codes through an HTTP SMS gateway.
// It satisfies the otp.Sender contract.
type GatewaySender struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

type sendRequest struct {
	To       string `json:"to"`
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// NewGatewaySender returns nil when no gateway URL is configured, which
// callers treat as local disclosure mode.
func NewGatewaySender(cfg config.SMSConfig) *GatewaySender {
	if cfg.GatewayURL == "" {
		return nil
	}
	return &GatewaySender{
		url:      cfg.GatewayURL,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the code to the gateway and returns the provider message ID.
func (s *GatewaySender) Send(ctx context.Context, phone, code string, expiry time.Duration) (string, error) {
	body, err := json.Marshal(sendRequest{
		To:       "+91" + phone,
		SenderID: s.senderID,
		Message: fmt.Sprintf("Your SUVIDHA verification code is %s. Valid for %d minutes. Do not share it with anyone.",
			code, int(expiry.Minutes())),
	})
	if err != nil {
		return "", fmt.Errorf("encoding sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// delivery was accepted even if the body is unreadable
		util.Warn("sms gateway response unreadable", util.ErrorField(err))
		return "", nil
	}

	util.Debug("sms accepted by gateway",
		util.String("message_id", out.MessageID),
		util.String("status", out.Status),
	)
	return out.MessageID, nil
}
