// Package postgres provides a PostgreSQL-backed ConnectionStore built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitfolio/github-connect/storage"
)

// Compile-time check that Store implements storage.ConnectionStore.
var _ storage.ConnectionStore = (*Store)(nil)

// schema creates the connections table. The unique index on
// (user_id, provider) backs the single-statement upsert in Upsert.
const schema = `
CREATE TABLE IF NOT EXISTS connected_repos (
	user_id       TEXT        NOT NULL,
	provider      TEXT        NOT NULL,
	username      TEXT        NOT NULL DEFAULT '',
	access_token  TEXT        NOT NULL,
	refresh_token TEXT        NOT NULL DEFAULT '',
	scope         TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, provider)
)`

// Store is a PostgreSQL implementation of storage.ConnectionStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a connection store backed by the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres: pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the connections table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Upsert creates or replaces the connection for (conn.UserID, conn.Provider).
// A single INSERT ... ON CONFLICT statement keeps the replacement atomic.
func (s *Store) Upsert(ctx context.Context, conn *storage.Connection) error {
	const query = `
		INSERT INTO connected_repos (user_id, provider, username, access_token, refresh_token, scope)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			username      = EXCLUDED.username,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope         = EXCLUDED.scope,
			updated_at    = now()`

	if _, err := s.pool.Exec(ctx, query,
		conn.UserID, conn.Provider, conn.Username, conn.AccessToken, conn.RefreshToken, conn.Scope,
	); err != nil {
		return fmt.Errorf("postgres: upsert connection: %w", err)
	}

	s.logger.Debug("Saved connection", "provider", conn.Provider)
	return nil
}

// Find retrieves the connection for (userID, provider).
func (s *Store) Find(ctx context.Context, userID, provider string) (*storage.Connection, error) {
	const query = `
		SELECT user_id, provider, username, access_token, refresh_token, scope, created_at, updated_at
		FROM connected_repos
		WHERE user_id = $1 AND provider = $2`

	var conn storage.Connection
	err := s.pool.QueryRow(ctx, query, userID, provider).Scan(
		&conn.UserID, &conn.Provider, &conn.Username,
		&conn.AccessToken, &conn.RefreshToken, &conn.Scope,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find connection: %w", err)
	}

	return &conn, nil
}

// Delete removes the connection for (userID, provider). Idempotent: deleting
// zero rows is a success.
func (s *Store) Delete(ctx context.Context, userID, provider string) error {
	const query = `DELETE FROM connected_repos WHERE user_id = $1 AND provider = $2`

	if _, err := s.pool.Exec(ctx, query, userID, provider); err != nil {
		return fmt.Errorf("postgres: delete connection: %w", err)
	}
	return nil
}
