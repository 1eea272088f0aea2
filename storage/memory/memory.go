// Package memory provides an in-memory ConnectionStore implementation.
// It is safe for concurrent use and suitable for tests, examples, and
// single-process deployments where connections may be re-established on
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gitfolio/github-connect/storage"
)

// Compile-time check that Store implements storage.ConnectionStore.
var _ storage.ConnectionStore = (*Store)(nil)

// Store is an in-memory implementation of storage.ConnectionStore.
type Store struct {
	mu          sync.RWMutex
	connections map[connectionKey]*storage.Connection
}

type connectionKey struct {
	userID   string
	provider string
}

// New creates a new in-memory connection store.
func New() *Store {
	return &Store{
		connections: make(map[connectionKey]*storage.Connection),
	}
}

// Upsert creates or replaces the connection for (conn.UserID, conn.Provider).
// The map write happens under a single lock, so callers never observe a
// partially updated row.
func (s *Store) Upsert(_ context.Context, conn *storage.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connectionKey{userID: conn.UserID, provider: conn.Provider}
	now := time.Now()

	stored := *conn
	stored.UpdatedAt = now
	if existing, ok := s.connections[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}

	s.connections[key] = &stored
	return nil
}

// Find retrieves the connection for (userID, provider).
// Returns a copy so callers cannot mutate stored state.
func (s *Store) Find(_ context.Context, userID, provider string) (*storage.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[connectionKey{userID: userID, provider: provider}]
	if !ok {
		return nil, storage.ErrNotFound
	}

	found := *conn
	return &found, nil
}

// Delete removes the connection for (userID, provider). Idempotent.
func (s *Store) Delete(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connectionKey{userID: userID, provider: provider})
	return nil
}

// Len reports the number of stored connections. Intended for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
