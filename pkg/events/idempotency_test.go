package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
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
	return "stl:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewIdempotencyManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIdempotencyManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "earnings-worker", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if already {
		t.Fatalf("expected first call to return false, got true")
	}

	expectedKey := "stl:idempotency:evt:processed:earnings-worker:" + eventID.String()
	if store.lastKey != expectedKey {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestCheckAndMarkProcessed_AlreadyProcessed(t *testing.T) {
	store := &fakeStore{setNXResult: false}
	manager, err := NewIdempotencyManager(store, 12*time.Hour)
	if err != nil {
		t.Fatalf("NewIdempotencyManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "earnings-worker", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !already {
		t.Fatalf("expected already processed, got false")
	}
}

func TestCheckAndMarkProcessed_StoreError(t *testing.T) {
	boom := errors.New("redis down")
	store := &fakeStore{setNXError: boom}
	manager, err := NewIdempotencyManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewIdempotencyManager: %v", err)
	}

	if _, err := manager.CheckAndMarkProcessed(context.Background(), "earnings-worker", uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestDeleteReleasesMark(t *testing.T) {
	store := &fakeStore{}
	manager, err := NewIdempotencyManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewIdempotencyManager: %v", err)
	}

	eventID := uuid.New()
	if err := manager.Delete(context.Background(), "earnings-worker", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	expectedKey := "stl:idempotency:evt:processed:earnings-worker:" + eventID.String()
	if store.lastDeleted != expectedKey {
		t.Fatalf("unexpected deleted key: %q", store.lastDeleted)
	}
}

func TestManagerValidation(t *testing.T) {
	if _, err := NewIdempotencyManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
	manager, _ := NewIdempotencyManager(&fakeStore{}, time.Hour)
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected empty consumer to be rejected")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "earnings-worker", uuid.Nil); err == nil {
		t.Fatal("expected nil event id to be rejected")
	}
}
