package githubconnect

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gitfolio/github-connect/instrumentation"
	"github.com/gitfolio/github-connect/security"
)

// Environment variable names read by FromEnv.
const (
	EnvClientID      = "GITHUB_REPO_CLIENT_ID"
	EnvClientSecret  = "GITHUB_REPO_CLIENT_SECRET"
	EnvEncryptionKey = "GITHUB_TOKEN_ENCRYPTION_KEY"
	EnvAppBaseURL    = "APP_BASE_URL"
)

// Default locations relative to the application base URL.
const (
	defaultAppBaseURL = "http://localhost:3000"
	callbackPath      = "/api/connect/github/callback"
	defaultSignInPath = "/signin"
	defaultDashboard  = "/dashboard"
)

// Config holds the connect handler configuration.
// Structured using composition for better organization and maintainability.
type Config struct {
	// GitHub OAuth app credentials and settings
	GitHubAuth GitHubAuthConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Locations the handler redirects to
	Locations LocationsConfig

	// Instrumentation is the optional OpenTelemetry wiring. Nil disables
	// metric and trace recording entirely.
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for provider requests.
	// If not provided, uses the default HTTP client.
	HTTPClient *http.Client
}

// GitHubAuthConfig holds GitHub OAuth app configuration.
type GitHubAuthConfig struct {
	// ClientID is the GitHub OAuth app client ID (required).
	ClientID string

	// ClientSecret is the GitHub OAuth app client secret (required).
	ClientSecret string

	// RedirectURL is where GitHub redirects after authorization.
	RedirectURL string

	// Scopes are the requested OAuth scopes. Defaults to repo and read:user.
	Scopes []string
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	// EncryptionKey is the 32-byte AES-256 key for token encryption at rest.
	// Leaving it unset disables encryption: connects then fail loudly at the
	// encrypt step rather than silently storing plaintext.
	EncryptionKey []byte

	// SecureCookies marks the state cookie as HTTPS-only.
	// Enable in production.
	SecureCookies bool

	// EnableAuditLogging turns on security event logging with hashed user IDs.
	EnableAuditLogging bool
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool
}

// LocationsConfig holds the redirect targets of the connect flow.
type LocationsConfig struct {
	// SignInURL is where unauthenticated users are sent.
	SignInURL string

	// DashboardURL is where the flow lands after success or failure.
	// Failures carry an ?error= tag.
	DashboardURL string
}

// FromEnv builds a Config from environment variables. The encryption key is
// expected base64-encoded in GITHUB_TOKEN_ENCRYPTION_KEY; an unset key leaves
// encryption disabled, a malformed key is an error.
func FromEnv() (*Config, error) {
	base := strings.TrimSuffix(os.Getenv(EnvAppBaseURL), "/")
	if base == "" {
		base = defaultAppBaseURL
	}

	cfg := &Config{
		GitHubAuth: GitHubAuthConfig{
			ClientID:     os.Getenv(EnvClientID),
			ClientSecret: os.Getenv(EnvClientSecret),
			RedirectURL:  base + callbackPath,
		},
		Locations: LocationsConfig{
			SignInURL:    base + defaultSignInPath,
			DashboardURL: base + defaultDashboard,
		},
	}

	if encoded := os.Getenv(EnvEncryptionKey); encoded != "" {
		key, err := security.KeyFromBase64(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvEncryptionKey, err)
		}
		cfg.Security.EncryptionKey = key
	}

	return cfg, nil
}

// Validate checks that required configuration is present and applies defaults.
func (c *Config) Validate() error {
	if c.GitHubAuth.ClientID == "" {
		return fmt.Errorf("GitHub client ID is required")
	}
	if c.GitHubAuth.ClientSecret == "" {
		return fmt.Errorf("GitHub client secret is required")
	}
	if c.GitHubAuth.RedirectURL == "" {
		c.GitHubAuth.RedirectURL = defaultAppBaseURL + callbackPath
	}
	if c.Locations.SignInURL == "" {
		c.Locations.SignInURL = defaultAppBaseURL + defaultSignInPath
	}
	if c.Locations.DashboardURL == "" {
		c.Locations.DashboardURL = defaultAppBaseURL + defaultDashboard
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
