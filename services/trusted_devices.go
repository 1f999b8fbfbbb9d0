package services

import (
	"context"
	"sync"
	"time"

	"hrsecurity/utils"
)

// TrustedDeviceStore holds the fingerprints previously associated with
// successful, unflagged sign-ins of an identity. Membership is one risk
// input and never an authentication factor on its own.
type TrustedDeviceStore interface {
	IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error)
	Remember(ctx context.Context, userID, fingerprint string) error
}

// CountryCache keeps the last-seen country per identity.
type CountryCache interface {
	LastCountry(ctx context.Context, userID string) (string, bool, error)
	SetLastCountry(ctx context.Context, userID, country string) error
}

// RevocationList tracks credentials revoked before their natural expiry.
type RevocationList interface {
	// Revoke keeps tokenID revoked for ttl; a non-positive ttl is a no-op.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemorySecurityStore is the in-process implementation of TrustedDeviceStore,
// CountryCache and RevocationList, used when no Redis URL is configured.
type MemorySecurityStore struct {
	mu        sync.RWMutex
	devices   map[string]map[string]struct{}
	countries map[string]string
	revoked   map[string]time.Time
	clock     utils.Clock
}

// NewMemorySecurityStore expires revocations against clock; nil means the
// wall clock.
func NewMemorySecurityStore(clock utils.Clock) *MemorySecurityStore {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &MemorySecurityStore{
		devices:   make(map[string]map[string]struct{}),
		countries: make(map[string]string),
		revoked:   make(map[string]time.Time),
		clock:     clock,
	}
}

func (s *MemorySecurityStore) IsTrusted(_ context.Context, userID, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[userID][fingerprint]
	return ok, nil
}

func (s *MemorySecurityStore) Remember(_ context.Context, userID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.devices[userID]
	if !ok {
		set = make(map[string]struct{})
		s.devices[userID] = set
	}
	set[fingerprint] = struct{}{}
	return nil
}

func (s *MemorySecurityStore) LastCountry(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.countries[userID]
	return c, ok, nil
}

func (s *MemorySecurityStore) SetLastCountry(_ context.Context, userID, country string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countries[userID] = country
	return nil
}

func (s *MemorySecurityStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = s.clock.Now().Add(ttl)
	return nil
}

func (s *MemorySecurityStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !s.clock.Now().Before(until) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
