package githubconnect

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/gitfolio/github-connect/providers"
	"github.com/gitfolio/github-connect/security"
	"github.com/gitfolio/github-connect/server"
	"github.com/gitfolio/github-connect/storage/memory"
)

const (
	testSignInURL    = "https://app.example.com/signin"
	testDashboardURL = "https://app.example.com/dashboard"
)

// staticSessions resolves every request to a fixed user, or to nobody when
// userID is empty.
type staticSessions struct {
	userID string
}

func (s staticSessions) UserID(*http.Request) (string, bool) {
	return s.userID, s.userID != ""
}

type fakeProvider struct {
	exchangeErr error
	identityErr error
	revokeErr   error
}

func (f *fakeProvider) Name() string { return "github" }

func (f *fakeProvider) AuthorizationURL(state string) string {
	return "https://github.com/login/oauth/authorize?client_id=test&state=" + url.QueryEscape(state)
}

func (f *fakeProvider) ExchangeCode(_ context.Context, _ string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, errors.Join(providers.ErrTokenExchange, f.exchangeErr)
	}
	token := &oauth2.Token{AccessToken: "gho_testtoken"}
	return token.WithExtra(map[string]any{"scope": "repo,read:user"}), nil
}

func (f *fakeProvider) FetchIdentity(_ context.Context, _ string) (*providers.Identity, error) {
	if f.identityErr != nil {
		return nil, errors.Join(providers.ErrIdentityLookup, f.identityErr)
	}
	return &providers.Identity{ID: 1, Login: "alice"}, nil
}

func (f *fakeProvider) RevokeGrant(_ context.Context, _ string) error {
	if f.revokeErr != nil {
		return errors.Join(providers.ErrRevocation, f.revokeErr)
	}
	return nil
}

type handlerFixture struct {
	handler  *Handler
	store    *memory.Store
	provider *fakeProvider
}

func newFixture(t *testing.T, sessions SessionReader) *handlerFixture {
	t.Helper()

	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	store := memory.New()
	provider := &fakeProvider{}
	srv, err := server.New(provider, store, enc, slog.Default())
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}

	cfg := &Config{
		Logger: slog.Default(),
		Locations: LocationsConfig{
			SignInURL:    testSignInURL,
			DashboardURL: testDashboardURL,
		},
	}

	auditor := security.NewAuditor(slog.Default(), false)
	srv.SetAuditor(auditor)

	return &handlerFixture{
		handler:  newHandler(srv, sessions, auditor, nil, cfg),
		store:    store,
		provider: provider,
	}
}

// startFlow runs the authorize step and returns the issued state value and
// its cookie.
func (f *handlerFixture) startFlow(t *testing.T) (string, *http.Cookie) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, ConnectPath, nil)
	f.handler.ServeConnect(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, want 302", rec.Code)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.StateCookieName {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("authorize did not set the state cookie")
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("unparsable redirect location: %v", err)
	}
	return loc.Query().Get("state"), stateCookie
}

func callbackURL(state, code string) string {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	return CallbackPath + "?" + q.Encode()
}

func assertErrorRedirect(t *testing.T, rec *httptest.ResponseRecorder, wantTag string) {
	t.Helper()

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("unparsable redirect location: %v", err)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), testDashboardURL) {
		t.Errorf("redirect = %q, want dashboard", rec.Header().Get("Location"))
	}
	if got := loc.Query().Get("error"); got != wantTag {
		t.Errorf("error tag = %q, want %q", got, wantTag)
	}
	assertStateCookieCleared(t, rec)
}

func assertStateCookieCleared(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.StateCookieName && c.MaxAge < 0 {
			return
		}
	}
	t.Error("state cookie was not cleared")
}

func TestAuthorize_RequiresSession(t *testing.T) {
	f := newFixture(t, staticSessions{})

	rec := httptest.NewRecorder()
	f.handler.ServeConnect(rec, httptest.NewRequest(http.MethodGet, ConnectPath, nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != testSignInURL {
		t.Errorf("redirect = %q, want sign-in", got)
	}
}

func TestAuthorize_RedirectsToProvider(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})

	state, cookie := f.startFlow(t)
	if state == "" {
		t.Fatal("authorize redirect carries no state")
	}
	if state != cookie.Value {
		t.Error("redirect state and cookie state differ")
	}
	if !cookie.HttpOnly {
		t.Error("state cookie is not HttpOnly")
	}
	if cookie.MaxAge != security.StateCookieMaxAge {
		t.Errorf("state cookie MaxAge = %d, want %d", cookie.MaxAge, security.StateCookieMaxAge)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Error("state cookie is not SameSite=Lax")
	}
}

func TestCallback_Success(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	state, cookie := f.startFlow(t)

	req := httptest.NewRequest(http.MethodGet, callbackURL(state, "code-abc"), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != testDashboardURL {
		t.Errorf("redirect = %q, want dashboard without error tag", got)
	}
	assertStateCookieCleared(t, rec)

	conn, err := f.store.Find(context.Background(), "user-1", "github")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if conn.Username != "alice" {
		t.Errorf("Username = %q, want %q", conn.Username, "alice")
	}
	if conn.AccessToken == "gho_testtoken" {
		t.Error("access token stored as plaintext")
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	_, cookie := f.startFlow(t)

	// Echo a different state than the cookie holds.
	req := httptest.NewRequest(http.MethodGet, callbackURL("forged-state", "code-abc"), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, req)

	assertErrorRedirect(t, rec, ErrorTagOAuth)
	if f.store.Len() != 0 {
		t.Error("connection stored despite state mismatch")
	}
}

func TestCallback_MissingStateCookie(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	state, _ := f.startFlow(t)

	req := httptest.NewRequest(http.MethodGet, callbackURL(state, "code-abc"), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, req)

	assertErrorRedirect(t, rec, ErrorTagOAuth)
}

func TestCallback_ProviderError(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	_, cookie := f.startFlow(t)

	req := httptest.NewRequest(http.MethodGet, CallbackPath+"?error=access_denied", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, req)

	assertErrorRedirect(t, rec, ErrorTagOAuth)
}

func TestCallback_MissingCode(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	state, cookie := f.startFlow(t)

	req := httptest.NewRequest(http.MethodGet, callbackURL(state, ""), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, req)

	assertErrorRedirect(t, rec, ErrorTagOAuth)
}

func TestCallback_FailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*fakeProvider)
		wantTag string
	}{
		{
			name:    "exchange failure",
			prepare: func(p *fakeProvider) { p.exchangeErr = errors.New("bad_verification_code") },
			wantTag: ErrorTagToken,
		},
		{
			name:    "identity failure",
			prepare: func(p *fakeProvider) { p.identityErr = errors.New("401") },
			wantTag: ErrorTagUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, staticSessions{userID: "user-1"})
			tt.prepare(f.provider)
			state, cookie := f.startFlow(t)

			req := httptest.NewRequest(http.MethodGet, callbackURL(state, "code-abc"), nil)
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			f.handler.ServeCallback(rec, req)

			assertErrorRedirect(t, rec, tt.wantTag)
			if f.store.Len() != 0 {
				t.Error("connection stored despite failure")
			}
		})
	}
}

func TestCallback_RequiresSession(t *testing.T) {
	f := newFixture(t, staticSessions{})

	rec := httptest.NewRecorder()
	f.handler.ServeCallback(rec, httptest.NewRequest(http.MethodGet, callbackURL("s", "c"), nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != testSignInURL {
		t.Errorf("redirect = %q, want sign-in", got)
	}
}

func TestDisconnect_RequiresSession(t *testing.T) {
	f := newFixture(t, staticSessions{})

	rec := httptest.NewRecorder()
	f.handler.ServeConnect(rec, httptest.NewRequest(http.MethodDelete, ConnectPath, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "Unauthorized" {
		t.Errorf(`body error = %v, want "Unauthorized"`, body["error"])
	}
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})
	state, cookie := f.startFlow(t)

	req := httptest.NewRequest(http.MethodGet, callbackURL(state, "code-abc"), nil)
	req.AddCookie(cookie)
	f.handler.ServeCallback(httptest.NewRecorder(), req)
	if f.store.Len() != 1 {
		t.Fatal("connect flow did not store a connection")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeConnect(rec, httptest.NewRequest(http.MethodDelete, ConnectPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf(`body = %v, want {"ok":true}`, body)
	}
	if f.store.Len() != 0 {
		t.Error("connection still present after disconnect")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})

	rec := httptest.NewRecorder()
	f.handler.ServeConnect(rec, httptest.NewRequest(http.MethodDelete, ConnectPath, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for disconnect with no connection", rec.Code)
	}
}

func TestConnect_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})

	rec := httptest.NewRecorder()
	f.handler.ServeConnect(rec, httptest.NewRequest(http.MethodPost, ConnectPath, nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET, DELETE" {
		t.Errorf("Allow = %q, want %q", got, "GET, DELETE")
	}
}

func TestRegisterRoutes_RequestID(t *testing.T) {
	f := newFixture(t, staticSessions{userID: "user-1"})

	mux := http.NewServeMux()
	f.handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ConnectPath, nil))

	if rec.Header().Get(security.RequestIDHeader) == "" {
		t.Error("response missing request ID header")
	}
}
