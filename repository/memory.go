package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hrsecurity/model"
)

// MemorySessionStore keeps session records in process. Records are copied on
// the way in and out so callers never share state with the store.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.Session)}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, session *model.Session) error {
	if session == nil || session.SessionID == "" || session.UserID == "" {
		return fmt.Errorf("invalid session data: missing required fields")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.SessionID]; ok {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	s.sessions[session.SessionID] = *session
	return nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) UpdateActivity(_ context.Context, sessionID string, at time.Time, increment int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive {
		return ErrSessionNotFound
	}
	if at.After(session.LastActivityAt) {
		session.LastActivityAt = at
	}
	session.ActivityCount += increment
	s.sessions[sessionID] = session
	return nil
}

func (s *MemorySessionStore) EndSession(_ context.Context, sessionID, reason string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !session.IsActive {
		return nil
	}
	session.IsActive = false
	session.LogoutReason = reason
	session.EndedAt = endedAt
	s.sessions[sessionID] = session
	return nil
}

func (s *MemorySessionStore) ActiveForUser(_ context.Context, userID string, now time.Time) ([]*model.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := []*model.Session{}
	for _, session := range s.sessions {
		if session.UserID == userID && session.ActiveAt(now) {
			session := session
			sessions = append(sessions, &session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

func (s *MemorySessionStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if session.IsActive && now.After(session.ExpiresAt) {
			session.IsActive = false
			session.LogoutReason = model.LogoutReasonExpired
			session.EndedAt = now
			s.sessions[id] = session
			n++
		}
	}
	return n, nil
}

// MemoryEventStore is an append-only in-process event store.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []model.SecurityEvent
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) InsertEvent(_ context.Context, event *model.SecurityEvent) error {
	if event == nil || event.EventID == "" {
		return fmt.Errorf("invalid event data: missing event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryEventStore) ListUserEvents(_ context.Context, userID string, limit int64) ([]model.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := []model.SecurityEvent{}
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].UserID != userID {
			continue
		}
		events = append(events, s.events[i])
		if limit > 0 && int64(len(events)) == limit {
			break
		}
	}
	return events, nil
}

// MemoryIdentityStore holds identities for development and tests.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]model.Identity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{identities: make(map[string]model.Identity)}
}

func (s *MemoryIdentityStore) AddIdentity(_ context.Context, identity *model.Identity) error {
	if identity.UserID == "" || identity.Username == "" || identity.PasswordHash == "" {
		return errors.New("user id, username and password required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Username == identity.Username {
			return fmt.Errorf("username %s already taken", identity.Username)
		}
	}
	s.identities[identity.UserID] = *identity
	return nil
}

func (s *MemoryIdentityStore) FindIdentityByID(_ context.Context, userID string) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[userID]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (s *MemoryIdentityStore) FindIdentityByUsername(_ context.Context, username string) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if identity.Username == username {
			identity := identity
			return &identity, nil
		}
	}
	return nil, nil
}

func (s *MemoryIdentityStore) RecordLoginFailure(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[userID]
	if !ok {
		return nil
	}
	identity.FailedAttempts++
	s.identities[userID] = identity
	return nil
}

func (s *MemoryIdentityStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[userID]
	if !ok {
		return nil
	}
	identity.FailedAttempts = 0
	identity.LastLoginAt = at
	s.identities[userID] = identity
	return nil
}
