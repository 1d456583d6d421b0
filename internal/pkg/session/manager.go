// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tourism-portal/internal/domain/auth"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager keeps live sessions in Redis, with the database as the source of
// truth when the cache misses.
type Manager struct {
	client *redis.Client
	repo   Repository
	logger *zap.Logger
}

func NewManager(client *redis.Client, repo Repository, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		repo:   repo,
		logger: logger,
	}
}

// CreateSession stores a new session in Redis and touches the DB row
func (m *Manager) CreateSession(ctx context.Context, s *SessionData) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := m.client.Set(ctx, m.sessionKey(s.IdentityID, s.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}

	if s.SessionID > 0 && m.repo != nil {
		if err := m.repo.UpdateSessionActivity(ctx, s.SessionID); err != nil {
			m.logger.Warn("failed to update DB session activity", zap.Int64("session_id", s.SessionID), zap.Error(err))
		}
	}

	return nil
}

// GetSession retrieves a session from Redis, falling back to the database
func (m *Manager) GetSession(ctx context.Context, identityID int64, jti string) (*SessionData, error) {
	data, err := m.client.Get(ctx, m.sessionKey(identityID, jti)).Bytes()
	if err == nil {
		var s SessionData
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return &s, nil
	}

	if !errors.Is(err, redis.Nil) {
		m.logger.Warn("redis error, falling back to DB", zap.Error(err))
	}
	if m.repo == nil {
		return nil, fmt.Errorf("session not found")
	}

	dbSession, dbErr := m.repo.FindSessionByToken(ctx, jti)
	if dbErr != nil {
		return nil, fmt.Errorf("session not found: %w", dbErr)
	}
	if dbSession.IdentityID != identityID {
		return nil, fmt.Errorf("session identity mismatch")
	}
	if dbSession.Status != "active" || !dbSession.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session is no longer active")
	}

	s := fromDB(jti, dbSession)
	if err := m.CreateSession(ctx, s); err != nil {
		m.logger.Warn("failed to restore session to redis", zap.String("jti", jti), zap.Error(err))
	}
	return s, nil
}

// Touch updates the last activity timestamp without changing the TTL
func (m *Manager) Touch(ctx context.Context, identityID int64, jti string) error {
	key := m.sessionKey(identityID, jti)

	data, err := m.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil // expired or never cached
	}

	var s SessionData
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s.LastActivityAt = time.Now()

	updated, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, key, updated, redis.KeepTTL).Err()
}

// InvalidateSession removes a session from Redis and marks the DB row revoked
func (m *Manager) InvalidateSession(ctx context.Context, identityID int64, jti string) error {
	if err := m.client.Del(ctx, m.sessionKey(identityID, jti)).Err(); err != nil {
		m.logger.Warn("failed to delete session from redis", zap.String("jti", jti), zap.Error(err))
	}

	if m.repo == nil {
		return nil
	}
	dbSession, err := m.repo.FindSessionByToken(ctx, jti)
	if err != nil {
		return nil
	}
	if err := m.repo.InvalidateSession(ctx, dbSession.ID); err != nil {
		return fmt.Errorf("failed to invalidate DB session: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token is blacklisted
func (m *Manager) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := m.client.Exists(ctx, m.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistToken adds a token to the blacklist until it would have expired anyway
func (m *Manager) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return m.client.Set(ctx, m.blacklistKey(jti), "1", ttl).Err()
}

// GetUserActiveSessions returns all cached sessions for a user
func (m *Manager) GetUserActiveSessions(ctx context.Context, identityID int64) ([]*SessionData, error) {
	pattern := fmt.Sprintf("session:%d:*", identityID)

	var sessions []*SessionData
	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		data, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}

		var s SessionData
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		sessions = append(sessions, &s)
	}

	return sessions, iter.Err()
}

func (m *Manager) sessionKey(identityID int64, jti string) string {
	return fmt.Sprintf("session:%d:%s", identityID, jti)
}

func (m *Manager) blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

func fromDB(jti string, s *auth.Session) *SessionData {
	return &SessionData{
		JTI:            jti,
		IdentityID:     s.IdentityID,
		SessionID:      s.ID,
		Device:         s.DeviceID.String,
		IPAddress:      s.IPAddress.String,
		UserAgent:      s.UserAgent.String,
		Provider:       s.Provider,
		RememberMe:     s.RememberMe,
		LoginAt:        s.LoginAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		IsActive:       true,
	}
}
