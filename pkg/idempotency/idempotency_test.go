package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.failSet != nil {
		return false, s.failSet
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	s.ttls[key] = ttl
	return true, nil
}

func (s *memStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if s.values[key] != value {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "pos:idempotency:" + scope + ":" + id
}

func TestClaimThenConflict(t *testing.T) {
	store := newMemStore()
	a, err := NewManager(store, 30*time.Second)
	require.NoError(t, err)
	b, err := NewManager(store, 30*time.Second)
	require.NoError(t, err)

	txID := uuid.NewString()
	held, err := a.Claim(context.Background(), "transactions", txID)
	require.NoError(t, err)
	assert.False(t, held)

	key := "pos:idempotency:op:transactions:" + txID
	assert.Equal(t, 30*time.Second, store.ttls[key])

	held, err = b.Claim(context.Background(), "transactions", txID)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestReleaseOnlyDropsOwnClaim(t *testing.T) {
	store := newMemStore()
	a, _ := NewManager(store, time.Minute)
	b, _ := NewManager(store, time.Minute)
	ctx := context.Background()

	_, err := a.Claim(ctx, "voids", "txn-1")
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx, "voids", "txn-1"))
	held, err := b.Claim(ctx, "voids", "txn-1")
	require.NoError(t, err)
	assert.True(t, held, "b must not free a's claim")

	require.NoError(t, a.Release(ctx, "voids", "txn-1"))
	held, err = b.Claim(ctx, "voids", "txn-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestClaimErrors(t *testing.T) {
	store := newMemStore()
	m, err := NewManager(store, time.Minute)
	require.NoError(t, err)

	_, err = m.Claim(context.Background(), "", "abc")
	assert.Error(t, err)
	_, err = m.Claim(context.Background(), "customers", " ")
	assert.Error(t, err)

	store.failSet = errors.New("boom")
	_, err = m.Claim(context.Background(), "customers", "c-1")
	assert.EqualError(t, err, "boom")
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Minute)
	assert.Error(t, err)
	_, err = NewManager(newMemStore(), 0)
	assert.Error(t, err)
}
