// Package server implements the provider connect logic independent of HTTP.
// It coordinates the code exchange, identity lookup, token encryption, and
// connection persistence using a Provider and a ConnectionStore.
package server

import (
	"fmt"
	"log/slog"

	"github.com/gitfolio/github-connect/instrumentation"
	"github.com/gitfolio/github-connect/providers"
	"github.com/gitfolio/github-connect/security"
	"github.com/gitfolio/github-connect/storage"
)

// Server coordinates the connect flow for a single provider.
type Server struct {
	provider    providers.Provider
	connections storage.ConnectionStore
	Encryptor   *security.Encryptor
	Auditor     *security.Auditor
	Logger      *slog.Logger

	metrics *instrumentation.Metrics
}

// New creates a new connect server.
func New(
	provider providers.Provider,
	connections storage.ConnectionStore,
	encryptor *security.Encryptor,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if connections == nil {
		return nil, fmt.Errorf("connection store is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		provider:    provider,
		connections: connections,
		Encryptor:   encryptor,
		Logger:      logger,
	}, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation wires metric recording into the connect flow.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		s.metrics = inst.Metrics()
	}
}

// Provider returns the configured provider.
func (s *Server) Provider() providers.Provider {
	return s.provider
}
