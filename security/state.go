package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
)

const (
	// StateCookieName carries the anti-forgery state across the
	// authorize/callback round trip.
	StateCookieName = "github_connect_state"

	// stateLength is the entropy of the state value in bytes.
	stateLength = 32

	// StateCookieMaxAge bounds the replay window: long enough for a human
	// consent flow, short enough to limit reuse.
	StateCookieMaxAge = 600 // seconds
)

// StateGuard mints and validates the one-time anti-forgery state token bound
// to a short-lived cookie. The state is never persisted server-side; a fresh
// value is issued per authorize request and the cookie is cleared on every
// terminal callback path so it is never reused.
type StateGuard struct {
	secure bool
	path   string
}

// NewStateGuard creates a state guard. Set secure for production deployments
// so the cookie is only sent over HTTPS.
func NewStateGuard(secure bool) *StateGuard {
	return &StateGuard{secure: secure, path: "/"}
}

// Issue mints a fresh random state value and the cookie that carries it.
func (g *StateGuard) Issue() (string, *http.Cookie, error) {
	buf := make([]byte, stateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	return state, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     g.path,
		MaxAge:   StateCookieMaxAge,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Validate checks the state echoed by the provider against the cookie value.
// Fails closed: an absent cookie, an absent echoed value, or any mismatch is
// invalid. The comparison is constant-time, matching how other secrets are
// compared in this package.
func (g *StateGuard) Validate(echoed, cookieValue string) bool {
	if echoed == "" || cookieValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(echoed), []byte(cookieValue)) == 1
}

// Clear returns an expired cookie that removes the state from the browser.
// Set it on both success and failure paths.
func (g *StateGuard) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     g.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
