package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSecurityStore keeps trusted devices, last-seen countries and revoked
// credentials in Redis so they survive restarts and are shared between
// instances.
type RedisSecurityStore struct {
	client    *redis.Client
	deviceTTL time.Duration
}

// NewRedisSecurityStore connects to redisURL and verifies the connection.
// deviceTTL of zero keeps trusted devices forever.
func NewRedisSecurityStore(ctx context.Context, redisURL string, deviceTTL time.Duration) (*RedisSecurityStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSecurityStoreFromClient(client, deviceTTL), nil
}

func NewRedisSecurityStoreFromClient(client *redis.Client, deviceTTL time.Duration) *RedisSecurityStore {
	return &RedisSecurityStore{client: client, deviceTTL: deviceTTL}
}

func trustedDevicesKey(userID string) string { return fmt.Sprintf("trusted_devices:%s", userID) }
func lastCountryKey(userID string) string    { return fmt.Sprintf("last_country:%s", userID) }
func revokedKey(tokenID string) string       { return fmt.Sprintf("revoked:%s", tokenID) }

func (s *RedisSecurityStore) IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, trustedDevicesKey(userID), fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check trusted device: %w", err)
	}
	return ok, nil
}

// Remember adds the fingerprint and, when a TTL is configured, refreshes the
// expiry of the whole set.
func (s *RedisSecurityStore) Remember(ctx context.Context, userID, fingerprint string) error {
	key := trustedDevicesKey(userID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, fingerprint)
	if s.deviceTTL > 0 {
		pipe.Expire(ctx, key, s.deviceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remember trusted device: %w", err)
	}
	return nil
}

func (s *RedisSecurityStore) LastCountry(ctx context.Context, userID string) (string, bool, error) {
	country, err := s.client.Get(ctx, lastCountryKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil // Cache miss
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get last country: %w", err)
	}
	return country, true, nil
}

func (s *RedisSecurityStore) SetLastCountry(ctx context.Context, userID, country string) error {
	if err := s.client.Set(ctx, lastCountryKey(userID), country, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last country: %w", err)
	}
	return nil
}

// Revoke stores the token id for ttl; Redis drops the key afterwards.
func (s *RedisSecurityStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(tokenID), "true", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token in Redis: %w", err)
	}
	return nil
}

func (s *RedisSecurityStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSecurityStore) IsConnected(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

// Close closes the Redis connection
func (s *RedisSecurityStore) Close() error {
	return s.client.Close()
}
