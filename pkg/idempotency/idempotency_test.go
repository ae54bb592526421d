package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "of:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestClaim_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	claimed, err := manager.Claim(context.Background(), "seller-transfers", " key-1 ")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}
	if store.lastKey != "of:idempotency:req:seller-transfers:key-1" {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestClaim_AlreadyClaimed(t *testing.T) {
	manager, err := NewManager(&fakeStore{setNXResult: false}, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	claimed, err := manager.Claim(context.Background(), "seller-transfers", "key-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected replayed key to be rejected")
	}
}

func TestClaim_Errors(t *testing.T) {
	manager, err := NewManager(&fakeStore{setNXError: errors.New("boom")}, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.Claim(context.Background(), "seller-transfers", "key-1"); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.Claim(context.Background(), "seller-transfers", "  "); err == nil {
		t.Fatal("expected blank key error")
	}
	if _, err := manager.Claim(context.Background(), "", "key-1"); err == nil {
		t.Fatal("expected blank scope error")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Release(context.Background(), "seller-transfers", "key-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.lastDeleted != "of:idempotency:req:seller-transfers:key-1" {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
