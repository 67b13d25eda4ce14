package siteauth_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sa "github.com/panyam/siteauth"
)

// =============================================================================
// User Journey Tests
// These drive the mounted handler the way a browser would.
// =============================================================================

// =============================================================================
// Journey 1: Anonymous endpoints
// =============================================================================

func TestJourney1_CSRFTokenIsStable(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	b := newBrowser(t, env.Auth.Handler())

	first := b.csrfToken()
	if !hex64.MatchString(first) {
		t.Fatalf("csrf token should be 64 hex chars, got %q", first)
	}
	cookieName := env.Auth.CookieNames().CSRFToken
	if !strings.HasPrefix(b.cookie(cookieName), first+"|") {
		t.Fatalf("csrf cookie should carry the token, got %q", b.cookie(cookieName))
	}

	resp := b.get(testAuthURL + "/csrf")
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			t.Error("a trusted csrf cookie must not be replaced")
		}
	}
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	decodeJSON(t, resp, &out)
	if out.CSRFToken != first {
		t.Errorf("repeated call should return the same token, got %q want %q", out.CSRFToken, first)
	}

	// a forged cookie is replaced
	b.cookies[cookieName].Value = strings.Repeat("a", 64) + "|" + strings.Repeat("b", 64)
	if got := b.csrfToken(); got == first || got == strings.Repeat("a", 64) {
		t.Errorf("forged cookie should yield a fresh token, got %q", got)
	}
}

func TestJourney1_ProvidersAndEmptySession(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, nil, m.provider("mock"), sa.Provider{ID: "email", Name: "Email", Type: sa.ProviderTypeEmail})
	b := newBrowser(t, env.Auth.Handler())

	var providers map[string]sa.ProviderInfo
	decodeJSON(t, b.get(testAuthURL+"/providers"), &providers)
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %v", providers)
	}
	mock := providers["mock"]
	if mock.Type != sa.ProviderTypeOAuth2 || mock.SigninURL != testAuthURL+"/signin/mock" || mock.CallbackURL != testAuthURL+"/callback/mock" {
		t.Errorf("unexpected provider info %+v", mock)
	}

	resp := b.get(testAuthURL + "/session")
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "{}" {
		t.Errorf("anonymous session should be {}, got %s", body)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Error("session responses must not be cached")
	}
}

func TestJourney1_UnsupportedActions(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	h := env.Auth.Handler()

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/auth/nope", http.StatusNotFound},
		{http.MethodGet, "/api/auth/signin/email/extra", http.StatusNotFound},
		{http.MethodPost, "/api/auth/csrf", http.StatusBadRequest},
		{http.MethodDelete, "/api/auth/session", http.StatusBadRequest},
		{http.MethodPut, "/api/auth/signout", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Errorf("%s %s: got %d want %d", tc.method, tc.path, rec.Code, tc.status)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("%s %s: unsupported requests must have no side effects", tc.method, tc.path)
		}
	}
}

// =============================================================================
// Journey 2: OAuth 2 sign-in, session, sign-out
// =============================================================================

// oauthSignIn runs the redirect round trip and returns the final response
func oauthSignIn(t *testing.T, b *browser, providerID, callbackURL string) *http.Response {
	t.Helper()
	target := testAuthURL + "/signin/" + providerID
	if callbackURL != "" {
		target += "?callbackUrl=" + url.QueryEscape(callbackURL)
	}
	authorize := location(t, b.get(target))
	state := authorize.Query().Get("state")
	return b.get(testAuthURL + "/callback/" + providerID + "?code=abc&state=" + url.QueryEscape(state))
}

func TestJourney2_OAuthSignInAndOut(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, nil, m.provider("mock"))
	b := newBrowser(t, env.Auth.Handler())

	authorize := location(t, b.get(testAuthURL+"/signin/mock?callbackUrl=/dashboard"))
	q := authorize.Query()
	if authorize.Path != "/authorize" || q.Get("client_id") != "client-mock" || q.Get("redirect_uri") != testAuthURL+"/callback/mock" {
		t.Fatalf("unexpected authorize redirect %s", authorize)
	}
	if q.Get("response_type") != "code" || q.Get("scope") != "openid email" {
		t.Errorf("unexpected authorize params %v", q)
	}
	csrfValue, _, _ := strings.Cut(b.cookie(env.Auth.CookieNames().CSRFToken), "|")
	if q.Get("state") != sa.StateForCSRF(csrfValue) {
		t.Fatal("state should be derived from this browser's csrf token")
	}

	done := location(t, b.get(testAuthURL+"/callback/mock?code=abc&state="+q.Get("state")))
	if done.String() != "/dashboard" {
		t.Errorf("should return to the captured callback url, got %s", done)
	}
	if b.cookie(env.Auth.CookieNames().SessionToken) == "" {
		t.Fatal("session cookie should be set")
	}

	view := b.session()
	if view.User == nil || view.User.Email != "alice@example.com" || view.User.Name != "Alice" {
		t.Fatalf("unexpected session view %+v", view)
	}
	if view.Expires == "" || view.AccessToken == "" {
		t.Errorf("database session view should carry expiry and access token, got %+v", view)
	}
	if again := b.session(); again.User == nil || again.User.Email != view.User.Email {
		t.Error("reading the session twice yields the same user")
	}

	out := location(t, b.post(testAuthURL+"/signout", url.Values{"csrfToken": {b.csrfToken()}, "callbackUrl": {"/bye"}}))
	if out.String() != "/bye" {
		t.Errorf("signout should redirect to callbackUrl, got %s", out)
	}
	if b.cookie(env.Auth.CookieNames().SessionToken) != "" {
		t.Error("signout should clear the session cookie")
	}
	if view := b.session(); view.User != nil {
		t.Error("session should be gone after signout")
	}
}

func TestJourney2_TokenSessionMode(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, func(c *sa.Config) { c.SessionMode = sa.SessionModeToken }, m.provider("mock"))
	b := newBrowser(t, env.Auth.Handler())

	location(t, oauthSignIn(t, b, "mock", ""))
	first := b.cookie(env.Auth.CookieNames().SessionToken)
	if strings.Count(first, ".") != 2 {
		t.Fatalf("token mode cookie should be a JWT, got %q", first)
	}
	env.Clock.Advance(time.Minute)
	view := b.session()
	if view.User == nil || view.User.Email != "alice@example.com" {
		t.Fatalf("unexpected view %+v", view)
	}
	if b.cookie(env.Auth.CookieNames().SessionToken) == first {
		t.Error("reading a token session re-issues the cookie with a later expiry")
	}
}

func TestJourney2_StateFromAnotherBrowserRejected(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, nil, m.provider("mock"))
	attacker := newBrowser(t, env.Auth.Handler())
	victim := newBrowser(t, env.Auth.Handler())

	authorize := location(t, attacker.get(testAuthURL+"/signin/mock"))
	resp := victim.get(testAuthURL + "/callback/mock?code=attacker-code&state=" + authorize.Query().Get("state"))
	expectErrorRedirect(t, resp, sa.ErrCodeOAuthCallback)
	if victim.cookie(env.Auth.CookieNames().SessionToken) != "" {
		t.Error("a forged callback must not sign anyone in")
	}
	if form, _ := m.lastTokenRequest(); form != nil {
		t.Error("the code must not be exchanged when state fails")
	}

	missing := victim.get(testAuthURL + "/callback/mock?code=abc")
	expectErrorRedirect(t, missing, sa.ErrCodeOAuthCallback)
}

func TestJourney2_AccountNotLinked(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, nil, m.provider("mock"), m.provider("other"))

	location(t, oauthSignIn(t, newBrowser(t, env.Auth.Handler()), "mock", ""))

	// same email, different provider, fresh browser
	m.setProfile(map[string]any{"id": "other-1", "email": "alice@example.com"})
	b := newBrowser(t, env.Auth.Handler())
	expectErrorRedirect(t, oauthSignIn(t, b, "other", ""), sa.ErrCodeAccountNotLinked)
	if b.cookie(env.Auth.CookieNames().SessionToken) != "" {
		t.Error("no session after AccountNotLinked")
	}
}

func TestJourney2_TokenExchangeFailure(t *testing.T) {
	m := newMockProvider(t)
	m.TokenStatus = http.StatusUnauthorized
	env := newTestEnv(t, nil, m.provider("mock"))
	expectErrorRedirect(t, oauthSignIn(t, newBrowser(t, env.Auth.Handler()), "mock", ""), sa.ErrCodeOAuthCallback)
}

func TestJourney2_NewUserPage(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, func(c *sa.Config) { c.Pages.NewUser = "/welcome" }, m.provider("mock"))

	first := location(t, oauthSignIn(t, newBrowser(t, env.Auth.Handler()), "mock", "/home"))
	if first.Path != "/welcome" || first.Query().Get("callbackUrl") != "/home" {
		t.Errorf("first sign-in should land on the new user page, got %s", first)
	}
	second := location(t, oauthSignIn(t, newBrowser(t, env.Auth.Handler()), "mock", "/home"))
	if second.String() != "/home" {
		t.Errorf("returning users go straight to the callback url, got %s", second)
	}
}

func TestJourney2_OffSiteCallbackURLIgnored(t *testing.T) {
	m := newMockProvider(t)
	env := newTestEnv(t, nil, m.provider("mock"))
	done := location(t, oauthSignIn(t, newBrowser(t, env.Auth.Handler()), "mock", "https://evil.example/steal"))
	if done.String() != testBaseURL {
		t.Errorf("off-site callback urls fall back to the site, got %s", done)
	}
}

func TestJourney2_FormPostCallback(t *testing.T) {
	m := newMockProvider(t)
	p := m.provider("apple")
	p.Checks = nil
	p.FormPost = true
	env := newTestEnv(t, nil, p)

	// a cross-site POST carries no cookies at all
	resp := newBrowser(t, env.Auth.Handler()).post(testAuthURL+"/callback/apple", url.Values{"code": {"abc"}})
	if location(t, resp).String() != testBaseURL {
		t.Fatalf("form_post callback should complete, got %s", resp.Header.Get("Location"))
	}

	m.setProfile(map[string]any{"id": "second", "name": "Second"})
	b := newBrowser(t, env.Auth.Handler())
	expectErrorRedirect(t, b.get(testAuthURL+"/callback/apple?code=abc"), sa.ErrCodeOAuthCallback)
	expectErrorRedirect(t, b.post(testAuthURL+"/callback/apple?code=abc", url.Values{}), sa.ErrCodeOAuthCallback)
	if acct, _ := env.Adapter.FindAccountByProvider(context.Background(), "apple", "second"); acct != nil {
		t.Error("a form_post provider must only accept the code from the POST body")
	}
}

func TestJourney2_UnboundCallbackNeverLinksToSignedInUser(t *testing.T) {
	ctx := context.Background()
	m := newMockProvider(t)
	apple := m.provider("apple")
	apple.Checks = nil
	apple.FormPost = true
	nostate := m.provider("nostate")
	nostate.Checks = nil
	env := newTestEnv(t, nil, m.provider("mock"), apple, nostate)

	victim := newBrowser(t, env.Auth.Handler())
	location(t, oauthSignIn(t, victim, "mock", ""))
	owned, _ := env.Adapter.FindAccountByProvider(ctx, "mock", "12345")
	if owned == nil {
		t.Fatal("victim should be signed in")
	}

	// the victim follows links carrying the attacker's authorization code
	m.setProfile(map[string]any{"id": "attacker-1", "name": "Mallory"})
	expectErrorRedirect(t, victim.get(testAuthURL+"/callback/apple?code=attacker-code"), sa.ErrCodeOAuthCallback)
	if acct, _ := env.Adapter.FindAccountByProvider(ctx, "apple", "attacker-1"); acct != nil {
		t.Fatal("a GET form_post callback must not link anything")
	}
	if view := victim.session(); view.User == nil || view.User.Email != "alice@example.com" {
		t.Fatalf("victim session should be untouched, got %+v", view)
	}

	location(t, victim.get(testAuthURL+"/callback/nostate?code=attacker-code"))
	acct, _ := env.Adapter.FindAccountByProvider(ctx, "nostate", "attacker-1")
	if acct == nil {
		t.Fatal("the callback signs in the identity it carries")
	}
	if acct.UserID == owned.UserID {
		t.Fatal("an identity from a callback without state must not be linked to the signed-in user")
	}

	// the attacker signing in later does not reach the victim's account
	attacker := newBrowser(t, env.Auth.Handler())
	location(t, attacker.post(testAuthURL+"/callback/apple", url.Values{"code": {"attacker-code"}}))
	if view := attacker.session(); view.User == nil || view.User.Email == "alice@example.com" {
		t.Fatalf("attacker must not be signed in as the victim, got %+v", view)
	}
}

// =============================================================================
// Journey 3: OAuth 1.0a
// =============================================================================

func newMockOAuth1(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/request_token", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true")
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_verifier="the-verifier"`) {
			http.Error(w, "missing verifier", http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "oauth_token=access-token&oauth_token_secret=access-secret")
	})
	mux.HandleFunc("/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `oauth_token="access-token"`) {
			http.Error(w, "unsigned", http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"id_str":"tw-1","screen_name":"grace","name":"Grace"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestJourney3_OAuth1(t *testing.T) {
	srv := newMockOAuth1(t)
	env := newTestEnv(t, nil, sa.Provider{
		ID: "twitter", Name: "Twitter", Type: sa.ProviderTypeOAuth,
		ClientID: "ck", ClientSecret: "cs",
		RequestTokenURL:  srv.URL + "/request_token",
		AuthorizationURL: srv.URL + "/authorize",
		AccessTokenURL:   srv.URL + "/access_token",
		ProfileURL:       srv.URL + "/verify_credentials",
		Profile: func(raw map[string]any) (*sa.Profile, error) {
			return &sa.Profile{ID: sa.StringClaim(raw, "id_str"), Name: sa.StringClaim(raw, "name")}, nil
		},
	})
	b := newBrowser(t, env.Auth.Handler())

	authorize := location(t, b.get(testAuthURL+"/signin/twitter"))
	if authorize.Query().Get("oauth_token") != "req-token" {
		t.Fatalf("should redirect with the request token, got %s", authorize)
	}
	done := b.get(testAuthURL + "/callback/twitter?oauth_token=req-token&oauth_verifier=the-verifier")
	if location(t, done).String() != testBaseURL {
		t.Fatalf("oauth1 sign-in should complete, got %s", done.Header.Get("Location"))
	}
	acct, _ := env.Adapter.FindAccountByProvider(context.Background(), "twitter", "tw-1")
	if acct == nil || acct.AccessToken != "access-token" || acct.RefreshToken != "access-secret" {
		t.Fatalf("oauth1 account should keep token and secret, got %+v", acct)
	}
	if view := b.session(); view.User == nil || view.User.Name != "Grace" {
		t.Errorf("unexpected session %+v", view)
	}

	// the request token was consumed by the first callback
	expectErrorRedirect(t, b.get(testAuthURL+"/callback/twitter?oauth_token=req-token&oauth_verifier=the-verifier"), sa.ErrCodeOAuthCallback)
}

func TestJourney3_OAuth1CallbackFromAnotherBrowser(t *testing.T) {
	srv := newMockOAuth1(t)
	env := newTestEnv(t, nil, sa.Provider{
		ID: "twitter", Name: "Twitter", Type: sa.ProviderTypeOAuth,
		ClientID: "ck", ClientSecret: "cs",
		RequestTokenURL:  srv.URL + "/request_token",
		AuthorizationURL: srv.URL + "/authorize",
		AccessTokenURL:   srv.URL + "/access_token",
		ProfileURL:       srv.URL + "/verify_credentials",
	})
	attacker := newBrowser(t, env.Auth.Handler())
	location(t, attacker.get(testAuthURL+"/signin/twitter"))

	victim := newBrowser(t, env.Auth.Handler())
	resp := victim.get(testAuthURL + "/callback/twitter?oauth_token=req-token&oauth_verifier=the-verifier")
	expectErrorRedirect(t, resp, sa.ErrCodeOAuthCallback)
	if victim.cookie(env.Auth.CookieNames().SessionToken) != "" {
		t.Error("a callback this browser did not start must not sign it in")
	}
	if acct, _ := env.Adapter.FindAccountByProvider(context.Background(), "twitter", "tw-1"); acct != nil {
		t.Error("no account should be linked")
	}
}

// =============================================================================
// Journey 4: Email sign-in
// =============================================================================

func TestJourney4_EmailSignIn(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	b := newBrowser(t, env.Auth.Handler())

	resp := b.post(testAuthURL+"/signin/email", url.Values{
		"csrfToken":   {b.csrfToken()},
		"email":       {" Eve@Example.com "},
		"callbackUrl": {"/inbox"},
	})
	verify := location(t, resp)
	if !strings.HasSuffix(verify.Path, "/verify-request") || verify.Query().Get("provider") != "email" {
		t.Fatalf("should redirect to the verify-request page, got %s", verify)
	}
	mail, ok := env.Mailer.last()
	if !ok || mail.To != "eve@example.com" {
		t.Fatalf("link should be mailed to the normalized address, got %+v", mail)
	}
	link, _ := url.Parse(mail.URL)
	if !strings.HasPrefix(mail.URL, testAuthURL+"/callback/email?") || !hex64.MatchString(link.Query().Get("token")) {
		t.Fatalf("unexpected link %s", mail.URL)
	}

	if got := location(t, b.get(mail.URL)); got.String() != "/inbox" {
		t.Errorf("should return to the captured callback url, got %s", got)
	}
	if view := b.session(); view.User == nil || view.User.Email != "eve@example.com" {
		t.Fatalf("unexpected session %+v", view)
	}

	// links are single use
	expectErrorRedirect(t, newBrowser(t, env.Auth.Handler()).get(mail.URL), sa.ErrCodeVerification)
}

func TestJourney4_EmailLinkExpires(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail, MaxAge: time.Hour})
	b := newBrowser(t, env.Auth.Handler())
	location(t, b.post(testAuthURL+"/signin/email", url.Values{"csrfToken": {b.csrfToken()}, "email": {"eve@example.com"}}))
	mail, _ := env.Mailer.last()

	env.Clock.Advance(time.Hour)
	expectErrorRedirect(t, b.get(mail.URL), sa.ErrCodeVerification)
}

func TestJourney4_EmailErrors(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	b := newBrowser(t, env.Auth.Handler())

	expectErrorRedirect(t, b.post(testAuthURL+"/signin/email", url.Values{"csrfToken": {b.csrfToken()}, "email": {"not-an-email"}}), sa.ErrCodeEmailSignin)
	expectErrorRedirect(t, b.post(testAuthURL+"/signin/email", url.Values{"csrfToken": {b.csrfToken()}, "email": {"  "}}), sa.ErrCodeEmailSignin)

	// no csrf token: nothing is sent
	resp := b.post(testAuthURL+"/signin/email", url.Values{"email": {"eve@example.com"}})
	if u := location(t, resp); u.Query().Get("csrf") != "true" {
		t.Errorf("unverified POST should bounce to the sign-in page, got %s", u)
	}
	if _, sent := env.Mailer.last(); sent {
		t.Error("an unverified POST must not send mail")
	}

	env.Mailer.err = errors.New("smtp down")
	expectErrorRedirect(t, b.post(testAuthURL+"/signin/email", url.Values{"csrfToken": {b.csrfToken()}, "email": {"eve@example.com"}}), sa.ErrCodeEmailSignin)

	expectErrorRedirect(t, b.get(testAuthURL+"/callback/email?email=eve@example.com&token=guess"), sa.ErrCodeVerification)
	expectErrorRedirect(t, b.get(testAuthURL+"/callback/email"), sa.ErrCodeVerification)
}

// =============================================================================
// Journey 5: Credentials
// =============================================================================

func credentialsProvider(t *testing.T) sa.Provider {
	hash, err := sa.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	return sa.Provider{
		ID:   "creds",
		Type: sa.ProviderTypeCredentials,
		Fields: []sa.CredentialField{
			{Name: "username", Label: "Username", Type: "text"},
			{Name: "password", Label: "Password", Type: "password"},
		},
		Authorize: sa.BcryptAuthorizer(func(ctx context.Context, username string) (string, *sa.Profile, error) {
			if username != "heidi" {
				return "", nil, nil
			}
			return hash, &sa.Profile{ID: "local-heidi", Name: "Heidi", Email: "Heidi@Example.com"}, nil
		}),
	}
}

func TestJourney5_Credentials(t *testing.T) {
	env := newTestEnv(t, nil, credentialsProvider(t))
	b := newBrowser(t, env.Auth.Handler())

	resp := b.post(testAuthURL+"/callback/creds", url.Values{
		"csrfToken":   {b.csrfToken()},
		"username":    {"heidi"},
		"password":    {"correct horse"},
		"callbackUrl": {"/home"},
	})
	if got := location(t, resp); got.String() != "/home" {
		t.Fatalf("credentials sign-in should succeed, got %s", got)
	}
	if view := b.session(); view.User == nil || view.User.Email != "heidi@example.com" {
		t.Fatalf("unexpected session %+v", view)
	}

	other := newBrowser(t, env.Auth.Handler())
	expectErrorRedirect(t, other.post(testAuthURL+"/callback/creds", url.Values{
		"csrfToken": {other.csrfToken()}, "username": {"heidi"}, "password": {"wrong"},
	}), sa.ErrCodeSignin)
	expectErrorRedirect(t, other.post(testAuthURL+"/callback/creds", url.Values{
		"csrfToken": {other.csrfToken()}, "username": {"mallory"}, "password": {"x"},
	}), sa.ErrCodeSignin)

	// without csrf the password is never checked
	if u := location(t, other.post(testAuthURL+"/callback/creds", url.Values{"username": {"heidi"}, "password": {"correct horse"}})); u.Query().Get("csrf") != "true" {
		t.Errorf("unverified credentials POST should bounce, got %s", u)
	}
	if other.cookie(env.Auth.CookieNames().SessionToken) != "" {
		t.Error("no session without a verified POST")
	}
}

// =============================================================================
// Journey 6: Sign-out and pages
// =============================================================================

func TestJourney6_SignoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	b := newBrowser(t, env.Auth.Handler())
	resp := b.post(testAuthURL+"/signout", url.Values{"csrfToken": {b.csrfToken()}})
	if location(t, resp).String() != testBaseURL {
		t.Errorf("signout without a session should still redirect, got %s", resp.Header.Get("Location"))
	}
	cleared := false
	for _, c := range resp.Cookies() {
		if c.Name == env.Auth.CookieNames().SessionToken && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("signout should clear the session cookie")
	}
}

func TestJourney6_SignoutRequiresCSRF(t *testing.T) {
	env := newTestEnv(t, nil, credentialsProvider(t))
	b := newBrowser(t, env.Auth.Handler())
	location(t, b.post(testAuthURL+"/callback/creds", url.Values{
		"csrfToken": {b.csrfToken()}, "username": {"heidi"}, "password": {"correct horse"},
	}))

	u := location(t, b.post(testAuthURL+"/signout", url.Values{"csrfToken": {"forged"}}))
	if !strings.HasSuffix(u.Path, "/signout") {
		t.Errorf("unverified signout should show the signout page, got %s", u)
	}
	if view := b.session(); view.User == nil {
		t.Error("an unverified signout must not end the session")
	}
}

func TestJourney6_SignoutIgnoresControlCharacterCallback(t *testing.T) {
	env := newTestEnv(t, nil, credentialsProvider(t))
	b := newBrowser(t, env.Auth.Handler())
	resp := b.post(testAuthURL+"/signout", url.Values{"csrfToken": {b.csrfToken()}, "callbackUrl": {"/\t/evil.example/x"}})
	if got := resp.Header.Get("Location"); got != testBaseURL {
		t.Errorf("a callback url with control characters falls back to the site, got %q", got)
	}
}

func TestJourney6_RejectionsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	env := newTestEnv(t, func(c *sa.Config) {
		c.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	}, credentialsProvider(t))
	b := newBrowser(t, env.Auth.Handler())

	expectErrorRedirect(t, b.get(testAuthURL+"/signin/nope"), sa.ErrCodeSignin)
	expectErrorRedirect(t, b.get(testAuthURL+"/callback/nope"), sa.ErrCodeCallback)
	if !strings.Contains(logs.String(), sa.ErrProviderNotFound.Error()) {
		t.Errorf("unknown providers should be logged, got %s", logs.String())
	}

	logs.Reset()
	b.post(testAuthURL+"/callback/creds", url.Values{"csrfToken": {"forged"}, "username": {"heidi"}, "password": {"correct horse"}})
	b.post(testAuthURL+"/signout", url.Values{})
	if n := strings.Count(logs.String(), sa.ErrCSRFMismatch.Error()); n != 2 {
		t.Errorf("both unverified posts should be logged, got %d in %s", n, logs.String())
	}
}

func TestJourney6_Pages(t *testing.T) {
	env := newTestEnv(t, nil, credentialsProvider(t), sa.Provider{ID: "email", Type: sa.ProviderTypeEmail})
	h := env.Auth.Handler()

	cases := []struct {
		path     string
		status   int
		contains string
	}{
		{"/api/auth/signin", http.StatusOK, `name="password"`},
		{"/api/auth/signin?error=AccountNotLinked", http.StatusOK, "same account you used originally"},
		{"/api/auth/signout", http.StatusOK, `name="csrfToken"`},
		{"/api/auth/verify-request", http.StatusOK, "Check your email"},
		{"/api/auth/error?error=Verification", http.StatusForbidden, "no longer valid"},
		{"/api/auth/error?error=Configuration", http.StatusInternalServerError, "server configuration"},
		{"/api/auth/error?error=%3Cscript%3E", http.StatusOK, "Unable to sign in."},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Errorf("%s: got %d want %d", tc.path, rec.Code, tc.status)
		}
		if !strings.Contains(rec.Body.String(), tc.contains) {
			t.Errorf("%s: body should contain %q", tc.path, tc.contains)
		}
		if strings.Contains(rec.Body.String(), "<script>") {
			t.Errorf("%s: query text must never be echoed", tc.path)
		}
	}
}

func TestJourney6_CustomPages(t *testing.T) {
	env := newTestEnv(t, func(c *sa.Config) {
		c.Pages.Error = "/oops"
		c.Pages.SignIn = "/login"
	}, credentialsProvider(t))
	b := newBrowser(t, env.Auth.Handler())

	expectCustom := func(resp *http.Response, path string) {
		t.Helper()
		if u := location(t, resp); u.Path != path {
			t.Errorf("expected redirect to %s, got %s", path, u)
		}
	}
	expectCustom(b.get(testAuthURL+"/signin/nope"), "/oops")
	expectCustom(b.get(testAuthURL+"/signin"), "/login")
	expectCustom(b.post(testAuthURL+"/callback/creds", url.Values{"username": {"x"}}), "/login")
}

// =============================================================================
// Journey 7: Application middleware
// =============================================================================

func TestJourney7_Middleware(t *testing.T) {
	env := newTestEnv(t, nil, credentialsProvider(t))
	protected := env.Auth.Middleware().EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello "+sa.SessionFromContext(r.Context()).User.Name+" "+sa.UserIDFromContext(r.Context()))
	}))
	mux := http.NewServeMux()
	mux.Handle("/api/auth/", env.Auth.Handler())
	mux.Handle("/account", protected)
	b := newBrowser(t, mux)

	u := location(t, b.get(testBaseURL+"/account"))
	if u.Path != "/api/auth/signin" || u.Query().Get("callbackUrl") != "/account" {
		t.Errorf("anonymous GET should redirect to sign in, got %s", u)
	}
	if resp := b.post(testBaseURL+"/account", url.Values{}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous POST should get 401, got %d", resp.StatusCode)
	}

	location(t, b.post(testAuthURL+"/callback/creds", url.Values{
		"csrfToken": {b.csrfToken()}, "username": {"heidi"}, "password": {"correct horse"},
	}))
	resp := b.get(testBaseURL + "/account")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "hello Heidi ") {
		t.Errorf("signed-in request should pass, got %d %q", resp.StatusCode, body)
	}

	// bearer tokens work for API clients
	token := b.cookie(env.Auth.CookieNames().SessionToken)
	req := httptest.NewRequest(http.MethodPost, "/account", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer session should pass, got %d", rec.Code)
	}
}

// =============================================================================
// Configuration
// =============================================================================

func TestNewRejectsIncompleteConfig(t *testing.T) {
	email := sa.Provider{ID: "email", Type: sa.ProviderTypeEmail}
	cases := map[string]sa.Config{
		"database without adapter": {BaseURL: testBaseURL, Secret: "s", SessionMode: sa.SessionModeDatabase, Providers: []sa.Provider{credentialsProvider(t)}},
		"email without mailer":     {BaseURL: testBaseURL, Secret: "s", Providers: []sa.Provider{email}, Adapter: newTestEnv(t, nil, email).Adapter},
		"oauth without adapter":    {BaseURL: testBaseURL, Secret: "s", Providers: []sa.Provider{newMockProvider(t).provider("m")}},
		"relative base url":        {BaseURL: "example.com", Secret: "s", Providers: []sa.Provider{email}},
	}
	for name, cfg := range cases {
		cfg.Logger = quietLogger()
		_, err := sa.New(cfg)
		var ce *sa.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected ConfigError, got %v", name, err)
		}
	}
}

func TestValidateCallbackURL(t *testing.T) {
	cases := map[string]bool{
		"/dashboard":                      true,
		"/a/b?c=d":                        true,
		"http://localhost:3000/x":         true,
		"//evil.example":                  false,
		"/\\evil.example":                 false,
		"/\t/evil.example/x":              false,
		"/\r\n/evil.example":              false,
		"/a\x00b":                         false,
		"/a\x7fb":                         false,
		"https://localhost:3000/x":        false,
		"http://localhost:3001/x":         false,
		"http://evil.example/x":           false,
		"http://user@localhost:3000/x":    false,
		"javascript:alert(1)":             false,
		"":                                false,
		"dashboard":                       false,
	}
	for raw, ok := range cases {
		_, err := sa.ValidateCallbackURL(testBaseURL, raw)
		if ok && err != nil {
			t.Errorf("%q should be accepted: %v", raw, err)
		}
		if !ok && !errors.Is(err, sa.ErrInvalidCallbackURL) {
			t.Errorf("%q should be rejected, got %v", raw, err)
		}
	}
}

func TestSecureCookieNames(t *testing.T) {
	names := sa.NewCookieNames(true)
	if names.SessionToken != "__Secure-siteauth.session-token" || names.CSRFToken != "__Host-siteauth.csrf-token" {
		t.Errorf("unexpected secure names %+v", names)
	}
	if plain := sa.NewCookieNames(false); plain.CallbackURL != "siteauth.callback-url" {
		t.Errorf("unexpected plain names %+v", plain)
	}
}
