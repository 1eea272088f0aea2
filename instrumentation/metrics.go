package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the connect flow.
type Metrics struct {
	// HTTP layer metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Connect flow metrics
	ConnectStarted    metric.Int64Counter
	CallbackProcessed metric.Int64Counter
	CodeExchanged     metric.Int64Counter
	ConnectionRemoved metric.Int64Counter
	GrantRevoked      metric.Int64Counter

	// Security metrics
	RateLimitExceeded   metric.Int64Counter
	StateMismatch       metric.Int64Counter
	EncryptionOpsTotal  metric.Int64Counter
	LegacyTokenObserved metric.Int64Counter

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Provider metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIErrors     metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"connect.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"connect.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.ConnectStarted, err = serverMeter.Int64Counter(
		"connect.flow.started",
		metric.WithDescription("Number of connect flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.started counter: %w", err)
	}

	m.CallbackProcessed, err = serverMeter.Int64Counter(
		"connect.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.processed counter: %w", err)
	}

	m.CodeExchanged, err = serverMeter.Int64Counter(
		"connect.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.ConnectionRemoved, err = serverMeter.Int64Counter(
		"connect.connection.removed",
		metric.WithDescription("Number of connections removed"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection.removed counter: %w", err)
	}

	m.GrantRevoked, err = serverMeter.Int64Counter(
		"connect.grant.revoked",
		metric.WithDescription("Number of provider grants revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant.revoked counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"connect.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.StateMismatch, err = securityMeter.Int64Counter(
		"connect.state.mismatch",
		metric.WithDescription("Number of anti-forgery state validation failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.mismatch counter: %w", err)
	}

	m.EncryptionOpsTotal, err = securityMeter.Int64Counter(
		"connect.encryption.operations.total",
		metric.WithDescription("Total number of encryption/decryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.operations.total counter: %w", err)
	}

	m.LegacyTokenObserved, err = securityMeter.Int64Counter(
		"connect.encryption.legacy_observed",
		metric.WithDescription("Number of stored tokens observed in legacy plaintext form"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.legacy_observed counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"connect.storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"connect.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"connect.provider.api.calls.total",
		metric.WithDescription("Total number of provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIErrors, err = providerMeter.Int64Counter(
		"connect.provider.api.errors.total",
		metric.WithDescription("Total number of provider API errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.errors.total counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns. All are nil-safe so
// callers can hold a nil *Metrics when instrumentation is not configured.

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordConnectStarted records the start of a connect flow.
func (m *Metrics) RecordConnectStarted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.ConnectStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordCallbackProcessed records a provider callback processing.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, success bool) {
	if m == nil {
		return
	}
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// RecordCodeExchange records an authorization code exchange.
func (m *Metrics) RecordCodeExchange(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordConnectionRemoved records a connection removal.
func (m *Metrics) RecordConnectionRemoved(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.ConnectionRemoved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordGrantRevocation records an attempted revocation of a provider grant.
func (m *Metrics) RecordGrantRevocation(ctx context.Context, provider string, success bool) {
	if m == nil {
		return
	}
	m.GrantRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// RecordRateLimitExceeded records a rate limit violation.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordStateMismatch records an anti-forgery state validation failure.
func (m *Metrics) RecordStateMismatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.StateMismatch.Add(ctx, 1)
}

// RecordEncryptionOperation records an encryption or decryption operation.
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.EncryptionOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordLegacyToken records an observation of a legacy plaintext stored token.
func (m *Metrics) RecordLegacyToken(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.LegacyTokenObserved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordStorageOperation records a storage operation.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a provider API call.
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	}

	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil {
		m.ProviderAPIErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
