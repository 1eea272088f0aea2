package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gitfolio/github-connect/providers"
	"github.com/gitfolio/github-connect/storage"
)

// CompleteConnect runs the back half of the connect flow after the callback
// passed anti-forgery validation: exchange the code, look up the identity,
// encrypt the tokens, and persist the connection.
//
// Errors keep their provider sentinel (ErrTokenExchange, ErrIdentityLookup)
// so callers can classify the failure; everything else is a token-stage
// failure.
func (s *Server) CompleteConnect(ctx context.Context, userID, code string) (*storage.Connection, error) {
	token, err := s.provider.ExchangeCode(ctx, code)
	s.metrics.RecordProviderAPICall(ctx, s.provider.Name(), "exchange", err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCodeExchange(ctx, s.provider.Name())

	identity, err := s.provider.FetchIdentity(ctx, token.AccessToken)
	s.metrics.RecordProviderAPICall(ctx, s.provider.Name(), "identity", err)
	if err != nil {
		return nil, err
	}

	encryptedAccess, err := s.Encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	s.metrics.RecordEncryptionOperation(ctx, "encrypt")

	var encryptedRefresh string
	if token.RefreshToken != "" {
		encryptedRefresh, err = s.Encryptor.Encrypt(token.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		s.metrics.RecordEncryptionOperation(ctx, "encrypt")
	}

	now := time.Now()
	conn := &storage.Connection{
		UserID:       userID,
		Provider:     s.provider.Name(),
		Username:     identity.Login,
		AccessToken:  encryptedAccess,
		RefreshToken: encryptedRefresh,
		Scope:        providers.TokenScope(token),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	start := time.Now()
	err = s.connections.Upsert(ctx, conn)
	s.metrics.RecordStorageOperation(ctx, "upsert", storageResult(err), durationMs(start))
	if err != nil {
		return nil, fmt.Errorf("failed to persist connection: %w", err)
	}

	s.Logger.Info("Provider connection persisted",
		"provider", conn.Provider,
		"username", conn.Username,
		"scope", conn.Scope)

	return conn, nil
}

// RevocationOutcome reports what happened to the provider-side grant during a
// disconnect. It is diagnostic only; the local row is removed regardless.
type RevocationOutcome struct {
	Attempted bool
	Revoked   bool
	Reason    string
}

// Disconnect removes a user's connection. The provider-side revocation is
// best-effort: its failure is logged and audited but never blocks the local
// delete, so a disconnect always leaves the user disconnected locally.
//
// Disconnecting a user with no connection is a no-op.
func (s *Server) Disconnect(ctx context.Context, userID string) (RevocationOutcome, error) {
	start := time.Now()
	conn, err := s.connections.Find(ctx, userID, s.provider.Name())
	s.metrics.RecordStorageOperation(ctx, "find", storageResult(err), durationMs(start))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return RevocationOutcome{}, nil
		}
		return RevocationOutcome{}, fmt.Errorf("failed to load connection: %w", err)
	}

	outcome := s.revokeGrant(ctx, userID, conn)

	start = time.Now()
	err = s.connections.Delete(ctx, userID, s.provider.Name())
	s.metrics.RecordStorageOperation(ctx, "delete", storageResult(err), durationMs(start))
	if err != nil {
		return outcome, fmt.Errorf("failed to delete connection: %w", err)
	}

	s.metrics.RecordConnectionRemoved(ctx, s.provider.Name())
	s.Logger.Info("Provider connection removed",
		"provider", conn.Provider,
		"revoked", outcome.Revoked)

	return outcome, nil
}

// revokeGrant attempts the provider-side revocation for a stored connection.
// Stored tokens may be encrypted envelopes or legacy plaintext rows; the
// decrypt passthrough hands either form to the provider.
func (s *Server) revokeGrant(ctx context.Context, userID string, conn *storage.Connection) RevocationOutcome {
	result := s.Encryptor.Decrypt(conn.AccessToken)
	s.metrics.RecordEncryptionOperation(ctx, "decrypt")
	if result.Legacy {
		s.metrics.RecordLegacyToken(ctx, result.Reason)
		s.Logger.Debug("Stored access token handled as legacy plaintext", "reason", result.Reason)
	}

	err := s.provider.RevokeGrant(ctx, result.Value)
	s.metrics.RecordProviderAPICall(ctx, s.provider.Name(), "revoke", err)
	s.metrics.RecordGrantRevocation(ctx, s.provider.Name(), err == nil)
	if err != nil {
		s.Logger.Warn("Provider-side revocation failed, removing connection anyway", "error", err)
		s.Auditor.LogRevocationFailed(userID, err.Error())
		return RevocationOutcome{Attempted: true, Reason: err.Error()}
	}

	return RevocationOutcome{Attempted: true, Revoked: true}
}

func storageResult(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
