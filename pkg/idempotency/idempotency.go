// Package idempotency lets several ledger replicas agree on which one is
// applying an operation key right now.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the redis surface a Manager needs. *redis.Client satisfies it.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Manager claims `pos:idempotency:op:<resource>:<key>` entries tagged with
// this process's owner id. A claim expires after the TTL, and a Release only
// removes claims this process still owns.
type Manager struct {
	store Store
	ttl   time.Duration
	owner string
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("claim ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl, owner: uuid.NewString()}, nil
}

// Claim reports true when someone else already holds the key; otherwise it
// takes the claim and reports false.
func (m *Manager) Claim(ctx context.Context, resource, key string) (bool, error) {
	storeKey, err := m.claimKey(resource, key)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, storeKey, m.owner, m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (m *Manager) Release(ctx context.Context, resource, key string) error {
	storeKey, err := m.claimKey(resource, key)
	if err != nil {
		return err
	}
	_, err = m.store.DeleteIfValue(ctx, storeKey, m.owner)
	return err
}

func (m *Manager) claimKey(resource, key string) (string, error) {
	resource, key = strings.TrimSpace(resource), strings.TrimSpace(key)
	if resource == "" {
		return "", errors.New("resource name is required")
	}
	if key == "" {
		return "", errors.New("operation key is required")
	}
	return m.store.IdempotencyKey("op:"+resource, key), nil
}
