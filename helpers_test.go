package siteauth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/stores/fs"
)

const (
	testBaseURL = "http://localhost:3000"
	testAuthURL = testBaseURL + "/api/auth"
)

// =============================================================================
// Clock
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// Mock OAuth 2 provider
// =============================================================================

// mockProvider serves /token and /userinfo and records what it was sent
type mockProvider struct {
	*httptest.Server

	mu           sync.Mutex
	tokenForm    url.Values
	tokenHeader  http.Header
	profileQuery url.Values
	profileHdr   http.Header

	// TokenBody and TokenContentType are returned from /token
	TokenBody        string
	TokenContentType string
	TokenStatus      int

	// Profile is returned from /userinfo as JSON
	Profile       map[string]any
	ProfileBody   string
	ProfileStatus int
}

func newMockProvider(t *testing.T) *mockProvider {
	m := &mockProvider{
		TokenBody:        `{"access_token":"provider-access","refresh_token":"provider-refresh","token_type":"bearer","expires_in":3600}`,
		TokenContentType: "application/json",
		TokenStatus:      http.StatusOK,
		Profile:          map[string]any{"id": 12345, "name": "Alice", "email": "Alice@Example.com"},
		ProfileStatus:    http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		m.mu.Lock()
		m.tokenForm = r.PostForm
		m.tokenHeader = r.Header.Clone()
		body, ctype, status := m.TokenBody, m.TokenContentType, m.TokenStatus
		m.mu.Unlock()
		w.Header().Set("Content-Type", ctype)
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.profileQuery = r.URL.Query()
		m.profileHdr = r.Header.Clone()
		profile, raw, status := m.Profile, m.ProfileBody, m.ProfileStatus
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if raw != "" {
			io.WriteString(w, raw)
			return
		}
		json.NewEncoder(w).Encode(profile)
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *mockProvider) setProfile(profile map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Profile = profile
}

func (m *mockProvider) lastTokenRequest() (url.Values, http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenForm, m.tokenHeader
}

func (m *mockProvider) lastProfileRequest() (url.Values, http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileQuery, m.profileHdr
}

// provider returns an oauth2 provider pointing at the mock
func (m *mockProvider) provider(id string) sa.Provider {
	return sa.Provider{
		ID:               id,
		Name:             "Mock " + id,
		Type:             sa.ProviderTypeOAuth2,
		ClientID:         "client-" + id,
		ClientSecret:     "secret-" + id,
		Scopes:           []string{"openid", "email"},
		AuthorizationURL: m.URL + "/authorize",
		AccessTokenURL:   m.URL + "/token",
		ProfileURL:       m.URL + "/userinfo",
		Checks:           []sa.Check{sa.CheckState},
	}
}

// =============================================================================
// Test environment
// =============================================================================

type recordingMailer struct {
	mu   sync.Mutex
	sent []sa.VerificationRequest
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, req sa.VerificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, req)
	return nil
}

func (m *recordingMailer) last() (sa.VerificationRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sa.VerificationRequest{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type testEnv struct {
	Auth    *sa.SiteAuth
	Adapter *fs.FSAdapter
	Mailer  *recordingMailer
	Clock   *testClock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds a SiteAuth over a temporary fs adapter. configure may
// adjust the config before New.
func newTestEnv(t *testing.T, configure func(*sa.Config), providers ...sa.Provider) *testEnv {
	t.Helper()
	env := &testEnv{
		Adapter: fs.NewFSAdapter(t.TempDir()),
		Mailer:  &recordingMailer{},
		Clock:   newTestClock(),
	}
	cfg := sa.Config{
		BaseURL:   testBaseURL,
		Secret:    "test-secret",
		Providers: providers,
		Adapter:   env.Adapter,
		Mailer:    env.Mailer,
		Logger:    quietLogger(),
		Now:       env.Clock.Now,
	}
	if configure != nil {
		configure(&cfg)
	}
	auth, err := sa.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env.Auth = auth
	return env
}

// =============================================================================
// Browser
// =============================================================================

// browser drives a handler like a user agent with a cookie jar. It ignores
// cookie paths and domains.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, handler: h, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, target string, form url.Values) *http.Response {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
		} else {
			b.cookies[c.Name] = c
		}
	}
	return resp
}

func (b *browser) get(target string) *http.Response {
	b.t.Helper()
	return b.do(http.MethodGet, target, nil)
}

func (b *browser) post(target string, form url.Values) *http.Response {
	b.t.Helper()
	return b.do(http.MethodPost, target, form)
}

func (b *browser) cookie(name string) string {
	if c, ok := b.cookies[name]; ok {
		return c.Value
	}
	return ""
}

// csrfToken fetches the csrf token, which also sets the csrf cookie
func (b *browser) csrfToken() string {
	b.t.Helper()
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	decodeJSON(b.t, b.get(testAuthURL+"/csrf"), &out)
	return out.CSRFToken
}

func (b *browser) session() sa.SessionView {
	b.t.Helper()
	var view sa.SessionView
	decodeJSON(b.t, b.get(testAuthURL+"/session"), &view)
	return view
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location %q: %v", resp.Header.Get("Location"), err)
	}
	return u
}

func expectErrorRedirect(t *testing.T, resp *http.Response, code sa.ErrorCode) {
	t.Helper()
	u := location(t, resp)
	if !strings.HasSuffix(u.Path, "/error") {
		t.Fatalf("expected redirect to error page, got %s", u)
	}
	if got := u.Query().Get("error"); got != string(code) {
		t.Fatalf("expected error=%s, got %s", code, got)
	}
}
