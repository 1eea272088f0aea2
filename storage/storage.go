// Package storage defines the interface for persisting provider connections.
// It supports various backend implementations including in-memory and PostgreSQL.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no connection exists for a (user, provider) pair.
var ErrNotFound = errors.New("storage: connection not found")

// Connection is a user's link to an external provider account.
// At most one connection exists per (UserID, Provider) pair; Upsert enforces
// this by replacing any existing row for the same key.
//
// AccessToken and RefreshToken hold the ciphertext envelopes produced by
// security.Encryptor. Rows written before encryption was introduced may still
// hold plaintext tokens; security.Encryptor.Decrypt handles both forms.
type Connection struct {
	// UserID is the owning account identifier, issued by the host application.
	UserID string

	// Provider is the external provider tag (e.g. "github").
	Provider string

	// Username is the provider-reported handle, display-only.
	Username string

	// AccessToken is the encrypted access token envelope.
	AccessToken string

	// RefreshToken is the encrypted refresh token envelope, empty when the
	// provider did not issue one.
	RefreshToken string

	// Scope is the provider-reported space-delimited scope string,
	// informational only.
	Scope string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectionStore persists provider connections keyed by (UserID, Provider).
// All methods accept context.Context for tracing and cancellation.
type ConnectionStore interface {
	// Upsert creates or replaces the connection for (conn.UserID, conn.Provider).
	// The operation is atomic from the caller's perspective: no partial-write
	// state is ever observable.
	Upsert(ctx context.Context, conn *Connection) error

	// Find retrieves the connection for (userID, provider).
	// Returns ErrNotFound when none exists.
	Find(ctx context.Context, userID, provider string) (*Connection, error)

	// Delete removes the connection for (userID, provider). Deleting a
	// connection that does not exist is not an error.
	Delete(ctx context.Context, userID, provider string) error
}
