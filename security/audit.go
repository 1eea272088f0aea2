package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// User identifiers are hashed before logging so audit trails can be
// correlated without exposing account IDs.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogConnectStarted logs the start of a provider connect flow.
func (a *Auditor) LogConnectStarted(userID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "connect_started",
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// LogStateMismatch logs an anti-forgery state failure on the callback.
// Always treated as hostile or expired, never retried.
func (a *Auditor) LogStateMismatch(userID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "state_mismatch",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"severity": "critical",
		},
	})
}

// LogConnectFailed logs a failed connect flow with the reason tag.
func (a *Auditor) LogConnectFailed(userID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "connect_failed",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogConnectionCreated logs a persisted provider connection.
// The provider handle is display data the user chose to link; the granted
// scope is recorded for forensics.
func (a *Auditor) LogConnectionCreated(userID, ipAddress, username, scope string) {
	a.LogEvent(Event{
		Type:      "connection_created",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"username": username,
			"scope":    scope,
		},
	})
}

// LogConnectionRemoved logs a disconnect.
func (a *Auditor) LogConnectionRemoved(userID, ipAddress string, revoked bool) {
	a.LogEvent(Event{
		Type:      "connection_removed",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"provider_grant_revoked": revoked,
		},
	})
}

// LogRevocationFailed logs a failed best-effort provider-side revocation.
// Never surfaced to the user; the local disconnect proceeds regardless.
func (a *Auditor) LogRevocationFailed(userID, reason string) {
	a.LogEvent(Event{
		Type:   "revocation_failed",
		UserID: userID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress, userID string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// hashForLogging produces a short SHA-256 prefix of a sensitive value so
// events for the same user can be correlated without logging the value.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
