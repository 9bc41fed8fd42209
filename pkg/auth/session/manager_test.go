package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(NewMemoryStore(), "reg-01", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	id := NewSessionID()
	started := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	if err := manager.Start(ctx, id, Record{OperatorID: "op-1", Role: "cashier", StartedAt: started}); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec, err := manager.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.OperatorID != "op-1" || rec.Role != "cashier" || !rec.StartedAt.Equal(started) {
		t.Fatalf("unexpected record %+v", rec)
	}

	ok, err := manager.HasSession(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected active session, got %v %v", ok, err)
	}

	if err := manager.End(ctx, id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := manager.Lookup(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after end, got %v", err)
	}
	ok, err = manager.HasSession(ctx, id)
	if err != nil || ok {
		t.Fatalf("expected no session, got %v %v", ok, err)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	manager, err := NewManager(store, "reg-01", time.Minute)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Start(ctx, "s1", Record{OperatorID: "op-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := manager.HasSession(ctx, "s1"); ok {
		t.Fatal("expected session to expire")
	}
}

func TestSessionsAreScopedByRegister(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, _ := NewManager(store, "reg-01", time.Hour)
	b, _ := NewManager(store, "reg-02", time.Hour)

	if err := a.Start(ctx, "s1", Record{OperatorID: "op-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ok, _ := b.HasSession(ctx, "s1"); ok {
		t.Fatal("session leaked across registers")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, "reg-01", time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(NewMemoryStore(), "", time.Hour); err == nil {
		t.Fatal("expected error for missing register")
	}
	if _, err := NewManager(NewMemoryStore(), "reg-01", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
