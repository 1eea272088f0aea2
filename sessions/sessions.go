// Package sessions provides the signed-in-user lookup that the connect flow
// depends on. It is a small cookie-based session layer: opaque session IDs in
// an HttpOnly cookie, resolved against a pluggable Store.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "gitfolio_session"

	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = 7 * 24 * time.Hour
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists session ID to user ID mappings.
type Store interface {
	// Save stores a session for the given user with a TTL.
	Save(ctx context.Context, sessionID, userID string, ttl time.Duration) error

	// Load returns the user ID for a session, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (string, error)

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Config holds session manager configuration.
type Config struct {
	// CookieName overrides the session cookie name.
	CookieName string

	// TTL is the session lifetime. Defaults to DefaultTTL.
	TTL time.Duration

	// Secure marks the session cookie as HTTPS-only.
	Secure bool

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Manager issues and resolves cookie-backed sessions.
type Manager struct {
	store  Store
	name   string
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewManager creates a session manager backed by the given store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  store,
		name:   name,
		ttl:    ttl,
		secure: cfg.Secure,
		logger: logger,
	}, nil
}

// Issue creates a session for userID and sets the session cookie.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	sessionID := uuid.NewString()
	if err := m.store.Save(r.Context(), sessionID, userID, m.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// UserID resolves the signed-in user for a request. The second return value
// is false when no valid session is present.
func (m *Manager) UserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	userID, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("Session lookup failed", "error", err)
		}
		return "", false
	}

	return userID, true
}

// Destroy removes the session for the request and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(m.name)
	if err == nil && cookie.Value != "" {
		if err := m.store.Delete(r.Context(), cookie.Value); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}
