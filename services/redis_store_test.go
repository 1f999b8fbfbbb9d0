package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRedisStore(t *testing.T) *RedisSecurityStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping Redis integration test")
	}
	store, err := NewRedisSecurityStore(context.Background(), url, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisSecurityStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisSecurityStore(t *testing.T) {
	store := newTestRedisStore(t)
	user := "test-" + uuid.NewString()
	t.Cleanup(func() {
		store.client.Del(context.Background(), trustedDevicesKey(user), lastCountryKey(user))
	})

	if !store.IsConnected(context.Background()) {
		t.Fatal("IsConnected() = false")
	}
	exerciseSecurityStore(t, store, user)

	ttl, err := store.client.TTL(context.Background(), trustedDevicesKey(user)).Result()
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Errorf("trusted device TTL = %v, %v; want within an hour", ttl, err)
	}
}

func TestNewRedisSecurityStoreBadURL(t *testing.T) {
	if _, err := NewRedisSecurityStore(context.Background(), "not a url", 0); err == nil {
		t.Error("expected an error for an unparsable URL")
	}
}
