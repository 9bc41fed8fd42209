// Package session keeps server-side operator sessions so logout and manager
// overrides can revoke a token before it expires.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists serialized sessions. *redis.Client satisfies it, and
// MemoryStore covers registers running without Redis.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SessionKey(registerID, sessionID string) string
}

// Record is what a session remembers about its operator.
type Record struct {
	OperatorID string    `json:"operatorId"`
	Role       string    `json:"role"`
	StartedAt  time.Time `json:"startedAt"`
}

// Manager handles session creation, lookup and revocation for one register.
type Manager struct {
	store      Store
	registerID string
	ttl        time.Duration
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

func NewManager(store Store, registerID string, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if strings.TrimSpace(registerID) == "" {
		return nil, fmt.Errorf("register id is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Manager{store: store, registerID: registerID, ttl: ttl}, nil
}

// Start stores rec under sessionID for the configured TTL.
func (m *Manager) Start(ctx context.Context, sessionID string, rec Record) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.store.Set(ctx, m.key(sessionID), string(raw), m.ttl)
}

// Lookup returns the session or ErrSessionNotFound.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := m.store.Get(ctx, m.key(sessionID))
	if err != nil {
		return nil, wrapNotFound(err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// End revokes the session.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return m.store.Del(ctx, m.key(sessionID))
}

// HasSession reports whether the session is still active.
func (m *Manager) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if _, err := m.Lookup(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewSessionID produces the identifier used as the JWT jti and store key.
func NewSessionID() string {
	return uuid.NewString()
}

func (m *Manager) key(sessionID string) string {
	return m.store.SessionKey(m.registerID, sessionID)
}

func wrapNotFound(err error) error {
	if errors.Is(err, redislib.Nil) {
		return ErrSessionNotFound
	}
	return err
}
