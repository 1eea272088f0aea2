package githubconnect

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gitfolio/github-connect/instrumentation"
	"github.com/gitfolio/github-connect/security"
	"github.com/gitfolio/github-connect/server"
)

// Route paths mounted by RegisterRoutes.
const (
	// ConnectPath handles GET (start the flow) and DELETE (disconnect).
	ConnectPath = "/api/connect/github"

	// CallbackPath is where GitHub redirects after authorization.
	CallbackPath = "/api/connect/github/callback"
)

// Handler is a thin HTTP adapter for the connect Server.
// It handles HTTP requests and delegates to the Server for flow logic.
type Handler struct {
	server     *server.Server
	sessions   SessionReader
	stateGuard *security.StateGuard
	auditor    *security.Auditor
	limiter    *security.RateLimiter
	logger     *slog.Logger

	tracer  trace.Tracer
	metrics *instrumentation.Metrics

	signInURL    string
	dashboardURL string
	trustProxy   bool
}

func newHandler(srv *server.Server, sessions SessionReader, auditor *security.Auditor, limiter *security.RateLimiter, cfg *Config) *Handler {
	h := &Handler{
		server:       srv,
		sessions:     sessions,
		stateGuard:   security.NewStateGuard(cfg.Security.SecureCookies),
		auditor:      auditor,
		limiter:      limiter,
		logger:       cfg.Logger,
		signInURL:    cfg.Locations.SignInURL,
		dashboardURL: cfg.Locations.DashboardURL,
		trustProxy:   cfg.RateLimit.TrustProxy,
	}

	if cfg.Instrumentation != nil {
		h.tracer = cfg.Instrumentation.Tracer("http")
		h.metrics = cfg.Instrumentation.Metrics()
	}

	return h
}

// RegisterRoutes mounts the connect endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(ConnectPath, h.withRequestID(http.HandlerFunc(h.ServeConnect)))
	mux.Handle(CallbackPath, h.withRequestID(http.HandlerFunc(h.ServeCallback)))
}

// Close releases handler resources. Call when tearing the handler down.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// withRequestID ensures every request carries a request ID, echoed in the
// response header and attached to the context for log correlation.
func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := security.EnsureRequestID(r)
		w.Header().Set(security.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(security.WithRequestID(r.Context(), id)))
	})
}

// ServeConnect dispatches the connect endpoint: GET starts the flow,
// DELETE disconnects.
func (h *Handler) ServeConnect(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleAuthorize(w, r)
	case http.MethodDelete:
		h.handleDisconnect(w, r)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		h.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAuthorize starts the connect flow: it requires a signed-in user,
// issues the anti-forgery state cookie, and redirects to GitHub.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "connect.authorize")
	defer h.endSpan(span)

	clientIP := security.ClientIP(r, h.trustProxy)
	if h.rateLimited(w, clientIP, "authorize") {
		h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limited")
		return
	}

	userID, ok := h.sessions.UserID(r)
	if !ok {
		h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusFound, startTime)
		http.Redirect(w, r, h.signInURL, http.StatusFound)
		return
	}

	state, cookie, err := h.stateGuard.Issue()
	if err != nil {
		h.logger.Error("Failed to issue state", "error", err)
		h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to start connect flow")
		return
	}
	http.SetCookie(w, cookie)

	h.auditor.LogConnectStarted(userID, clientIP)
	h.metrics.RecordConnectStarted(ctx, h.server.Provider().Name())
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrProvider, h.server.Provider().Name()))
	instrumentation.SetSpanSuccess(span)

	h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusFound, startTime)
	http.Redirect(w, r, h.server.Provider().AuthorizationURL(state), http.StatusFound)
}

// ServeCallback finishes the connect flow after GitHub redirects back.
// Every terminal path clears the state cookie; failures land on the dashboard
// with an ?error= tag instead of an error page.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "connect.callback")
	defer h.endSpan(span)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		h.recordHTTPMetrics("callback", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	clientIP := security.ClientIP(r, h.trustProxy)
	if h.rateLimited(w, clientIP, "callback") {
		h.recordHTTPMetrics("callback", http.MethodGet, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limited")
		return
	}

	userID, ok := h.sessions.UserID(r)
	if !ok {
		http.SetCookie(w, h.stateGuard.Clear())
		h.recordHTTPMetrics("callback", http.MethodGet, http.StatusFound, startTime)
		http.Redirect(w, r, h.signInURL, http.StatusFound)
		return
	}

	query := r.URL.Query()

	// GitHub reports user denial and app misconfiguration via ?error=.
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("Provider returned error on callback", "error", providerErr)
		h.auditor.LogConnectFailed(userID, clientIP, providerErr)
		h.failCallback(w, r, span, startTime, ErrorTagOAuth)
		return
	}

	var cookieState string
	if cookie, err := r.Cookie(security.StateCookieName); err == nil {
		cookieState = cookie.Value
	}
	if !h.stateGuard.Validate(query.Get("state"), cookieState) {
		h.logger.Warn("State mismatch on callback, possible CSRF", "ip", clientIP)
		h.auditor.LogStateMismatch(userID, clientIP)
		h.metrics.RecordStateMismatch(ctx)
		h.failCallback(w, r, span, startTime, ErrorTagOAuth)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.auditor.LogConnectFailed(userID, clientIP, "missing_code")
		h.failCallback(w, r, span, startTime, ErrorTagOAuth)
		return
	}

	conn, err := h.server.CompleteConnect(ctx, userID, code)
	if err != nil {
		tag := TagForError(err)
		h.logger.Error("Connect flow failed", "error", err, "tag", tag)
		h.auditor.LogConnectFailed(userID, clientIP, tag)
		instrumentation.RecordError(span, err)
		h.failCallback(w, r, span, startTime, tag)
		return
	}

	h.auditor.LogConnectionCreated(userID, clientIP, conn.Username, conn.Scope)
	h.metrics.RecordCallbackProcessed(ctx, conn.Provider, true)
	instrumentation.AddConnectFlowAttributes(span, conn.Provider, "", conn.Scope)
	instrumentation.SetSpanSuccess(span)

	http.SetCookie(w, h.stateGuard.Clear())
	h.recordHTTPMetrics("callback", http.MethodGet, http.StatusFound, startTime)
	http.Redirect(w, r, h.dashboardURL, http.StatusFound)
}

// handleDisconnect removes the caller's GitHub connection.
func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "connect.disconnect")
	defer h.endSpan(span)

	clientIP := security.ClientIP(r, h.trustProxy)
	if h.rateLimited(w, clientIP, "disconnect") {
		h.recordHTTPMetrics("disconnect", http.MethodDelete, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limited")
		return
	}

	userID, ok := h.sessions.UserID(r)
	if !ok {
		h.recordHTTPMetrics("disconnect", http.MethodDelete, http.StatusUnauthorized, startTime)
		h.writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	outcome, err := h.server.Disconnect(ctx, userID)
	if err != nil {
		h.logger.Error("Disconnect failed", "error", err)
		instrumentation.RecordError(span, err)
		h.recordHTTPMetrics("disconnect", http.MethodDelete, http.StatusInternalServerError, startTime)
		h.writeJSONError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}

	if outcome.Attempted {
		h.auditor.LogConnectionRemoved(userID, clientIP, outcome.Revoked)
	}
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrRevoked, outcome.Revoked))
	instrumentation.SetSpanSuccess(span)

	h.recordHTTPMetrics("disconnect", http.MethodDelete, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// failCallback clears the state cookie and sends the user back to the
// dashboard with an error tag.
func (h *Handler) failCallback(w http.ResponseWriter, r *http.Request, span trace.Span, startTime time.Time, tag string) {
	h.metrics.RecordCallbackProcessed(r.Context(), h.server.Provider().Name(), false)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrErrorTag, tag))

	http.SetCookie(w, h.stateGuard.Clear())
	h.recordHTTPMetrics("callback", http.MethodGet, http.StatusFound, startTime)

	target, err := url.Parse(h.dashboardURL)
	if err != nil {
		http.Redirect(w, r, h.dashboardURL, http.StatusFound)
		return
	}
	q := target.Query()
	q.Set("error", tag)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// rateLimited applies IP rate limiting and writes the 429 response when the
// request is over the limit.
func (h *Handler) rateLimited(w http.ResponseWriter, clientIP, endpoint string) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	h.auditor.LogRateLimitExceeded(clientIP, "")
	h.metrics.RecordRateLimitExceeded(context.Background(), endpoint)
	h.writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	return true
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, nil
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	duration := time.Since(startTime).Seconds() * 1000
	h.metrics.RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}
