package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gitfolio/github-connect/providers"
)

func newTestProvider(t *testing.T, authBaseURL, apiBaseURL string) *Provider {
	t.Helper()
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://app.example.com/api/connect/github/callback",
		AuthBaseURL:  authBaseURL,
		APIBaseURL:   apiBaseURL,
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return provider
}

func TestNewProvider_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     &Config{ClientID: "id", ClientSecret: "secret"},
			wantErr: false,
		},
		{
			name:    "missing client ID",
			cfg:     &Config{ClientSecret: "secret"},
			wantErr: true,
		},
		{
			name:    "missing client secret",
			cfg:     &Config{ClientID: "id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	provider := newTestProvider(t, "", "")

	raw := provider.AuthorizationURL("state-token-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizationURL() produced unparsable URL: %v", err)
	}

	if !strings.HasPrefix(raw, "https://github.com/login/oauth/authorize") {
		t.Errorf("URL = %q, want github.com authorize endpoint", raw)
	}

	q := u.Query()
	if got := q.Get("client_id"); got != "test-client-id" {
		t.Errorf("client_id = %q, want %q", got, "test-client-id")
	}
	if got := q.Get("state"); got != "state-token-123" {
		t.Errorf("state = %q, want %q", got, "state-token-123")
	}
	if got := q.Get("redirect_uri"); got != "https://app.example.com/api/connect/github/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := q.Get("scope"); got != "repo read:user" {
		t.Errorf("scope = %q, want %q", got, "repo read:user")
	}
}

func TestExchangeCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		wantToken string
		wantScope string
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"access_token":"abc123","token_type":"bearer","scope":"repo,read:user"}`,
			wantToken: "abc123",
			wantScope: "repo,read:user",
		},
		{
			name:    "HTTP 200 with error payload",
			status:  http.StatusOK,
			body:    `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`,
			wantErr: true,
		},
		{
			name:    "missing access token",
			status:  http.StatusOK,
			body:    `{"token_type":"bearer"}`,
			wantErr: true,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error":"server_error"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/login/oauth/access_token" {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPost {
					t.Errorf("token endpoint method = %s, want POST", r.Method)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := newTestProvider(t, server.URL, server.URL)

			token, err := provider.ExchangeCode(context.Background(), "some-code")
			if tt.wantErr {
				if err == nil {
					t.Fatal("ExchangeCode() error = nil, want error")
				}
				if !errors.Is(err, providers.ErrTokenExchange) {
					t.Errorf("ExchangeCode() error = %v, want wrapped providers.ErrTokenExchange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExchangeCode() error = %v", err)
			}
			if token.AccessToken != tt.wantToken {
				t.Errorf("AccessToken = %q, want %q", token.AccessToken, tt.wantToken)
			}
			if got := providers.TokenScope(token); got != tt.wantScope {
				t.Errorf("TokenScope() = %q, want %q", got, tt.wantScope)
			}
		})
	}
}

func TestFetchIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc123" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer abc123")
		}
		if got := r.Header.Get("Accept"); got != acceptGitHubJSON {
			t.Errorf("Accept = %q, want %q", got, acceptGitHubJSON)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 12345, "login": "alice"})
	}))
	defer server.Close()

	provider := newTestProvider(t, "", server.URL)

	identity, err := provider.FetchIdentity(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchIdentity() error = %v", err)
	}
	if identity.Login != "alice" {
		t.Errorf("Login = %q, want %q", identity.Login, "alice")
	}
	if identity.ID != 12345 {
		t.Errorf("ID = %d, want 12345", identity.ID)
	}
}

func TestFetchIdentity_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := newTestProvider(t, "", server.URL)

	_, err := provider.FetchIdentity(context.Background(), "expired-token")
	if !errors.Is(err, providers.ErrIdentityLookup) {
		t.Errorf("FetchIdentity() error = %v, want wrapped providers.ErrIdentityLookup", err)
	}
}

func TestRevokeGrant(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "revoked", status: http.StatusNoContent, wantErr: false},
		{name: "already gone", status: http.StatusNotFound, wantErr: false},
		{name: "provider failure", status: http.StatusUnprocessableEntity, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("method = %s, want DELETE", r.Method)
				}
				if r.URL.Path != "/applications/test-client-id/token" {
					t.Errorf("path = %q, want /applications/test-client-id/token", r.URL.Path)
				}
				user, pass, ok := r.BasicAuth()
				if !ok || user != "test-client-id" || pass != "test-client-secret" {
					t.Error("missing or wrong client-credential basic auth")
				}
				var body struct {
					AccessToken string `json:"access_token"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccessToken != "abc123" {
					t.Errorf("body access_token = %q (err %v), want %q", body.AccessToken, err, "abc123")
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			provider := newTestProvider(t, "", server.URL)

			err := provider.RevokeGrant(context.Background(), "abc123")
			if tt.wantErr {
				if !errors.Is(err, providers.ErrRevocation) {
					t.Errorf("RevokeGrant() error = %v, want wrapped providers.ErrRevocation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("RevokeGrant() error = %v", err)
			}
		})
	}
}

func TestRevokeGrant_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse all connections

	provider := newTestProvider(t, "", server.URL)

	err := provider.RevokeGrant(context.Background(), "abc123")
	if !errors.Is(err, providers.ErrRevocation) {
		t.Errorf("RevokeGrant() error = %v, want wrapped providers.ErrRevocation", err)
	}
}
