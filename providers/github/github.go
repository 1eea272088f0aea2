// Package github implements the providers.Provider interface for GitHub
// OAuth Apps: authorize URL construction, code-for-token exchange, identity
// lookup, and application-grant revocation.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/gitfolio/github-connect/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// providerName is the name returned by Provider.Name().
const providerName = "github"

const (
	defaultAPIBaseURL = "https://api.github.com"

	// acceptGitHubJSON is GitHub's versioned media type for API responses.
	acceptGitHubJSON = "application/vnd.github+json"
)

// Provider implements the providers.Provider interface for GitHub OAuth.
type Provider struct {
	*oauth2.Config
	apiBaseURL     string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// Config holds GitHub OAuth configuration.
type Config struct {
	// ClientID is the GitHub OAuth App client ID.
	ClientID string

	// ClientSecret is the GitHub OAuth App client secret.
	ClientSecret string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to ["repo", "read:user"]).
	Scopes []string

	// AuthBaseURL overrides the GitHub web origin (https://github.com).
	// Intended for tests and GitHub Enterprise deployments.
	AuthBaseURL string

	// APIBaseURL overrides the GitHub API origin (https://api.github.com).
	APIBaseURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for GitHub API calls (default: 10s).
	RequestTimeout time.Duration
}

// NewProvider creates a new GitHub OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	// Default scopes if none provided. "repo" grants repository listing for
	// the dashboard; "read:user" covers the identity lookup.
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"repo", "read:user"}
	}
	scopesCopy := make([]string, len(scopes))
	copy(scopesCopy, scopes)
	scopes = scopesCopy

	endpoint := oauthgithub.Endpoint
	if cfg.AuthBaseURL != "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  cfg.AuthBaseURL + "/login/oauth/authorize",
			TokenURL: cfg.AuthBaseURL + "/login/oauth/access_token",
		}
	}

	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		apiBaseURL:     apiBaseURL,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL generates the GitHub OAuth authorization URL carrying the
// anti-forgery state. Pure construction, no I/O.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

// ensureContextTimeout ensures the context has a deadline, adding one if
// needed. If the context already has a deadline, returns the original context
// with a no-op cancel.
func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// ExchangeCode exchanges an authorization code for tokens by posting
// form-encoded credentials to GitHub's token endpoint with
// "Accept: application/json".
//
// The exchange fails when the HTTP response is not successful, when the
// parsed body carries an explicit error field (GitHub returns HTTP 200 with
// an error payload for e.g. bad_verification_code), or when the body lacks an
// access token; all three are checked by the underlying oauth2 transport and
// wrapped in providers.ErrTokenExchange. Note: GitHub OAuth Apps issue
// non-expiring access tokens and usually omit the refresh token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(providers.ErrTokenExchange, err)
	}

	return token, nil
}

// FetchIdentity looks up the connecting account on GitHub's /user endpoint
// with a bearer credential.
func (p *Provider) FetchIdentity(ctx context.Context, accessToken string) (*providers.Identity, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, errors.Join(providers.ErrIdentityLookup, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", acceptGitHubJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(providers.ErrIdentityLookup, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(providers.ErrIdentityLookup, fmt.Errorf("user request failed with status %d", resp.StatusCode))
	}

	var ghUser struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, errors.Join(providers.ErrIdentityLookup, fmt.Errorf("decode user: %w", err))
	}

	return &providers.Identity{
		ID:    ghUser.ID,
		Login: ghUser.Login,
	}, nil
}

// RevokeGrant revokes an OAuth App token via GitHub's applications API:
// DELETE /applications/{client_id}/token with client-credential basic auth
// and the token in a JSON body. GitHub responds 204 on success and 404 when
// the token is already gone; both count as revoked.
func (p *Provider) RevokeGrant(ctx context.Context, accessToken string) error {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return errors.Join(providers.ErrRevocation, fmt.Errorf("encode body: %w", err))
	}

	url := fmt.Sprintf("%s/applications/%s/token", p.apiBaseURL, p.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(providers.ErrRevocation, fmt.Errorf("create request: %w", err))
	}

	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Accept", acceptGitHubJSON)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Join(providers.ErrRevocation, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		// 404 means the grant no longer exists; the desired end state holds.
		return nil
	default:
		return errors.Join(providers.ErrRevocation, fmt.Errorf("revocation request failed with status %d", resp.StatusCode))
	}
}
