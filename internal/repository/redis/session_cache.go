package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"suvidha-service/internal/client"
	"suvidha-service/internal/util"
)

const (
	activeSessionPrefix = "session:active:"
	sessionDataPrefix   = "session:data:"
)

// Session is what the API layer needs to know about an authenticated
// caller between requests.
type Session struct {
	SessionID string    `json:"session_id"`
	CitizenID string    `json:"citizen_id"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// SessionCache keeps one active session per citizen in Redis. Issuing a
// new session displaces the previous one, so a JWT alone is not enough:
// the session it names must still be current.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

// SetActiveSession installs sess as the citizen's only session and stores
// its payload, both under the same TTL.
func (c *SessionCache) SetActiveSession(ctx context.Context, sess Session, ttl time.Duration) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, activeSessionPrefix+sess.CitizenID, sess.SessionID, ttl)
	pipe.Set(ctx, sessionDataPrefix+sess.SessionID, string(payload), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to set active session",
			util.String("citizen_id", sess.CitizenID),
			util.String("session_id", sess.SessionID),
			util.ErrorField(err))
		return fmt.Errorf("failed to set active session: %w", err)
	}

	util.Debug("Active session set",
		util.String("citizen_id", sess.CitizenID),
		util.String("session_id", sess.SessionID),
		util.Duration("ttl", ttl))
	return nil
}

// GetSession loads a session payload by session ID. Expired or displaced
// sessions return an error.
func (c *SessionCache) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, sessionDataPrefix+sessionID)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// IsCurrent reports whether sessionID is still the citizen's active
// session.
func (c *SessionCache) IsCurrent(ctx context.Context, citizenID, sessionID string) (bool, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	current, err := c.client.Get(ctx, activeSessionPrefix+citizenID)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check active session: %w", err)
	}
	return current == sessionID, nil
}

// InvalidateSession removes the citizen's active session and its payload.
func (c *SessionCache) InvalidateSession(ctx context.Context, citizenID string) error {
	ctx, cancel := c.client.WithContext(ctx, 10*time.Second)
	defer cancel()

	sessionID, err := c.client.Get(ctx, activeSessionPrefix+citizenID)
	if err != nil && !strings.Contains(err.Error(), "key not found") {
		return fmt.Errorf("failed to look up active session: %w", err)
	}

	keys := []string{activeSessionPrefix + citizenID}
	if sessionID != "" {
		keys = append(keys, sessionDataPrefix+sessionID)
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to invalidate session",
			util.String("citizen_id", citizenID),
			util.ErrorField(err))
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	util.Info("Session invalidated",
		util.String("citizen_id", citizenID),
		util.String("session_id", sessionID))
	return nil
}

// RefreshSession extends a live session's TTL.
func (c *SessionCache) RefreshSession(ctx context.Context, sess *Session, ttl time.Duration) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.Expire(ctx, activeSessionPrefix+sess.CitizenID, ttl)
	pipe.Expire(ctx, sessionDataPrefix+sess.SessionID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	util.Debug("Session refreshed",
		util.String("session_id", sess.SessionID),
		util.Duration("ttl", ttl))
	return nil
}
