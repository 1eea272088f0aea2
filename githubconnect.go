// Package githubconnect implements the GitHub account connect flow for a
// portfolio application: an authenticated user links their GitHub account via
// the OAuth web flow, the granted tokens are encrypted with AES-256-GCM before
// they touch storage, and a disconnect removes the stored connection after a
// best-effort provider-side revocation.
//
// The package is transport-complete: RegisterRoutes mounts the connect and
// callback endpoints on a standard http.ServeMux. Persistence and session
// resolution are pluggable through storage.ConnectionStore and SessionReader.
package githubconnect

import (
	"fmt"
	"net/http"

	"github.com/gitfolio/github-connect/providers/github"
	"github.com/gitfolio/github-connect/security"
	"github.com/gitfolio/github-connect/server"
	"github.com/gitfolio/github-connect/storage"
)

// SessionReader resolves the signed-in user for a request. The host
// application owns authentication; the connect flow only needs to know who is
// asking. sessions.Manager implements this interface.
type SessionReader interface {
	// UserID returns the signed-in user's ID, or false when the request
	// carries no valid session.
	UserID(r *http.Request) (string, bool)
}

// New composes a connect Handler from configuration, a connection store, and
// a session reader.
func New(cfg *Config, connections storage.ConnectionStore, sessions SessionReader) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if connections == nil {
		return nil, fmt.Errorf("connection store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session reader is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := github.NewProvider(&github.Config{
		ClientID:     cfg.GitHubAuth.ClientID,
		ClientSecret: cfg.GitHubAuth.ClientSecret,
		RedirectURL:  cfg.GitHubAuth.RedirectURL,
		Scopes:       cfg.GitHubAuth.Scopes,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	encryptor, err := security.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	if !encryptor.Enabled() {
		cfg.Logger.Warn("Token encryption key not configured, connects will fail at the encrypt step")
	}

	srv, err := server.New(provider, connections, encryptor, cfg.Logger)
	if err != nil {
		return nil, err
	}

	auditor := security.NewAuditor(cfg.Logger, cfg.Security.EnableAuditLogging)
	srv.SetAuditor(auditor)

	if cfg.Instrumentation != nil {
		srv.SetInstrumentation(cfg.Instrumentation)
	}

	var limiter *security.RateLimiter
	if cfg.RateLimit.Rate > 0 {
		limiter = security.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.Logger)
	}

	return newHandler(srv, sessions, auditor, limiter, cfg), nil
}
