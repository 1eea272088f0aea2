// Package valkey provides a Valkey-backed session store for production
// deployments where sessions must survive restarts and be shared across
// replicas.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/gitfolio/github-connect/sessions"
)

const (
	// DefaultKeyPrefix is the default prefix for all session keys.
	DefaultKeyPrefix = "gitfolio:"

	// connectionVerifyTimeout is the timeout for initial connection verification.
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey session backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "gitfolio:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of sessions.Store.
// Session expiry is enforced server-side via key TTLs.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ sessions.Store = (*Store)(nil)

// New creates a new Valkey-backed session store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey session storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey session storage connection closed")
}

// sessionKey returns the key for a session: {prefix}session:{sessionID}
func (s *Store) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, sessionID)
}

// Save stores a session for the given user with a TTL.
func (s *Store) Save(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(s.sessionKey(sessionID)).Value(userID).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the user ID for a session, or sessions.ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(sessionID)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return "", sessions.ErrNotFound
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return userID, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
