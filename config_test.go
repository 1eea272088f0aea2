package githubconnect

import (
	"testing"

	"github.com/gitfolio/github-connect/security"
)

func TestFromEnv(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	t.Setenv(EnvClientID, "client-id")
	t.Setenv(EnvClientSecret, "client-secret")
	t.Setenv(EnvEncryptionKey, security.KeyToBase64(key))
	t.Setenv(EnvAppBaseURL, "https://portfolio.example.com/")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.GitHubAuth.ClientID != "client-id" {
		t.Errorf("ClientID = %q", cfg.GitHubAuth.ClientID)
	}
	if cfg.GitHubAuth.RedirectURL != "https://portfolio.example.com/api/connect/github/callback" {
		t.Errorf("RedirectURL = %q", cfg.GitHubAuth.RedirectURL)
	}
	if cfg.Locations.SignInURL != "https://portfolio.example.com/signin" {
		t.Errorf("SignInURL = %q", cfg.Locations.SignInURL)
	}
	if cfg.Locations.DashboardURL != "https://portfolio.example.com/dashboard" {
		t.Errorf("DashboardURL = %q", cfg.Locations.DashboardURL)
	}
	if len(cfg.Security.EncryptionKey) != 32 {
		t.Errorf("EncryptionKey length = %d, want 32", len(cfg.Security.EncryptionKey))
	}
}

func TestFromEnv_MalformedKey(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "not-base64!!")

	if _, err := FromEnv(); err == nil {
		t.Error("FromEnv() error = nil for malformed encryption key")
	}
}

func TestFromEnv_NoKey(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "")
	t.Setenv(EnvAppBaseURL, "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Security.EncryptionKey != nil {
		t.Error("EncryptionKey set without env var")
	}
	if cfg.GitHubAuth.RedirectURL != "http://localhost:3000/api/connect/github/callback" {
		t.Errorf("RedirectURL = %q, want localhost default", cfg.GitHubAuth.RedirectURL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				GitHubAuth: GitHubAuthConfig{ClientID: "id", ClientSecret: "secret"},
			},
		},
		{
			name:    "missing client ID",
			cfg:     Config{GitHubAuth: GitHubAuthConfig{ClientSecret: "secret"}},
			wantErr: true,
		},
		{
			name:    "missing client secret",
			cfg:     Config{GitHubAuth: GitHubAuthConfig{ClientID: "id"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if tt.cfg.Locations.DashboardURL == "" {
					t.Error("Validate() did not default DashboardURL")
				}
				if tt.cfg.Logger == nil {
					t.Error("Validate() did not default Logger")
				}
			}
		})
	}
}
