// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// github-connect library.
//
// This package enables observability across all library layers through:
// - Metrics: counters and histograms for connect flow operations
// - Traces: distributed tracing for request flows across components
//
// # Quick Start
//
//	import "github.com/gitfolio/github-connect/instrumentation"
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-portfolio-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// HTTP layer:
//   - connect.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - connect.http.request.duration{endpoint} - Request duration in milliseconds
//
// Connect flow:
//   - connect.flow.started{provider} - Connect flows started
//   - connect.callback.processed{provider, success} - Provider callbacks processed
//   - connect.code.exchanged{provider} - Authorization codes exchanged
//   - connect.connection.removed{provider} - Connections removed
//   - connect.grant.revoked{provider, success} - Provider grant revocations attempted
//
// Security:
//   - connect.rate_limit.exceeded{limiter_type} - Rate limit violations
//   - connect.state.mismatch - Anti-forgery state validation failures
//   - connect.encryption.operations.total{operation} - Encryption/decryption operations
//   - connect.encryption.legacy_observed{reason} - Legacy plaintext tokens observed
//
// Storage:
//   - connect.storage.operation.total{operation, result} - Storage operations
//   - connect.storage.operation.duration{operation} - Operation duration in milliseconds
//
// Provider:
//   - connect.provider.api.calls.total{provider, operation} - Provider API calls
//   - connect.provider.api.errors.total{provider, operation} - Provider API errors
//
// # Privacy
//
// User identifiers are hashed before being attached to spans or audit events.
// Raw tokens, codes, and secrets are never recorded.
package instrumentation
