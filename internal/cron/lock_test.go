package cron

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLockStore) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockSingleHolder(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{values: map[string]string{}}
	a, err := NewRedisLock(store, "sc:lock:cron", "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	b, _ := NewRedisLock(store, "sc:lock:cron", "worker-b", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected a to acquire, got %v %v", ok, err)
	}
	if !strings.HasPrefix(store.values["sc:lock:cron"], "worker-a/") {
		t.Fatalf("lock value should name the holder, got %q", store.values["sc:lock:cron"])
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("b must not acquire a held lock")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release without holding: %v", err)
	}
	if _, held := store.values["sc:lock:cron"]; !held {
		t.Fatal("b released a lock it never held")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("b should acquire after a released")
	}
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{values: map[string]string{}}
	a, _ := NewRedisLock(store, "k", "worker-a", time.Minute)
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	store.values["k"] = "worker-b/after-expiry"

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "worker-b/after-expiry" {
		t.Fatal("stale holder deleted the new holder's lock")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", "h", time.Minute); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", "h", time.Minute); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "k", "h", 0); err == nil {
		t.Fatal("expected ttl error")
	}
}
