// Package memory provides an in-memory session store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gitfolio/github-connect/sessions"
)

type entry struct {
	userID    string
	expiresAt time.Time
}

// Store is an in-memory implementation of sessions.Store.
// Safe for concurrent use. Expired sessions are dropped lazily on Load.
type Store struct {
	mu       sync.Mutex
	sessions map[string]entry
}

var _ sessions.Store = (*Store)(nil)

// New creates an empty in-memory session store.
func New() *Store {
	return &Store{sessions: make(map[string]entry)}
}

// Save stores a session for the given user with a TTL.
func (s *Store) Save(_ context.Context, sessionID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = entry{
		userID:    userID,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Load returns the user ID for a session, or sessions.ErrNotFound.
func (s *Store) Load(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return "", sessions.ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		delete(s.sessions, sessionID)
		return "", sessions.ErrNotFound
	}
	return e.userID, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
