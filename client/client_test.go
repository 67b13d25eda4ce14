package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/client"
	"github.com/panyam/siteauth/stores/fs"
)

// newSite serves a SiteAuth with one credentials provider plus a protected
// /api/me route that echoes the signed-in user id.
func newSite(t *testing.T) (*httptest.Server, *sa.SiteAuth) {
	t.Helper()
	hash, err := sa.HashPassword("correct horse")
	require.NoError(t, err)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	auth, err := sa.New(sa.Config{
		BaseURL: srv.URL,
		Secret:  "client-test-secret",
		Adapter: fs.NewFSAdapter(t.TempDir()),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Providers: []sa.Provider{{
			ID:   "creds",
			Name: "Password",
			Type: sa.ProviderTypeCredentials,
			Authorize: sa.BcryptAuthorizer(func(ctx context.Context, username string) (string, *sa.Profile, error) {
				if username != "heidi" {
					return "", nil, nil
				}
				return hash, &sa.Profile{ID: "local-heidi", Name: "Heidi", Email: "Heidi@Example.com"}, nil
			}),
		}},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/api/auth/", auth.Handler())
	mux.Handle("/api/me", auth.Middleware().EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sa.UserIDFromContext(r.Context()))
	})))
	handler = mux
	return srv, auth
}

func sessionCookie(t *testing.T, c *client.Client, auth *sa.SiteAuth) string {
	t.Helper()
	u, err := url.Parse(c.BaseURL)
	require.NoError(t, err)
	for _, cookie := range c.HTTPClient.Jar.Cookies(u) {
		if cookie.Name == auth.CookieNames().SessionToken {
			return cookie.Value
		}
	}
	return ""
}

func TestClientCSRFAndProviders(t *testing.T) {
	srv, _ := newSite(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	first, err := c.CSRFToken(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := c.CSRFToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the jar keeps the csrf cookie, so the token is stable")

	providers, err := c.Providers(ctx)
	require.NoError(t, err)
	require.Contains(t, providers, "creds")
	assert.Equal(t, sa.ProviderTypeCredentials, providers["creds"].Type)
	assert.Equal(t, srv.URL+"/api/auth/callback/creds", providers["creds"].CallbackURL)
}

func TestClientCredentialsSessionLifecycle(t *testing.T) {
	srv, auth := newSite(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	session, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session, "signed out at first")

	session, err = c.SignInWithCredentials(ctx, "creds", map[string]string{"username": "heidi", "password": "correct horse"})
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.Equal(t, "Heidi", session.User.Name)
	assert.Equal(t, "heidi@example.com", session.User.Email)
	assert.NotEmpty(t, session.AccessToken)

	// the session token works as a bearer credential for app routes
	token := sessionCookie(t, c, auth)
	require.NotEmpty(t, token)
	api := client.New(srv.URL, client.WithSessionToken(token))
	resp, err := api.HTTPClient.Get(srv.URL + "/api/me")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, string(body))

	require.NoError(t, c.SignOut(ctx))
	session, err = c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	require.NoError(t, c.SignOut(ctx), "signing out twice is fine")
}

func TestClientForwardsBrowserCookie(t *testing.T) {
	srv, auth := newSite(t)
	ctx := context.Background()

	browser := client.New(srv.URL)
	_, err := browser.SignInWithCredentials(ctx, "creds", map[string]string{"username": "heidi", "password": "correct horse"})
	require.NoError(t, err)
	token := sessionCookie(t, browser, auth)

	server := client.New(srv.URL)
	session, err := server.Session(ctx, &http.Cookie{Name: auth.CookieNames().SessionToken, Value: token})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Heidi", session.User.Name)
}

func TestClientRejectedCredentials(t *testing.T) {
	srv, _ := newSite(t)
	c := client.New(srv.URL)

	_, err := c.SignInWithCredentials(context.Background(), "creds", map[string]string{"username": "heidi", "password": "wrong"})
	var signInErr *client.SignInError
	require.True(t, errors.As(err, &signInErr), "expected SignInError, got %v", err)
	assert.Equal(t, sa.ErrCodeSignin, signInErr.Code)
}

func TestClientUnknownBasePath(t *testing.T) {
	srv, _ := newSite(t)
	c := client.New(srv.URL, client.WithBasePath("/auth"))

	_, err := c.Providers(context.Background())
	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestAuthTransportSetsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: client.NewAuthTransport(nil, srv.URL, "tok-1")}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer tok-1", got)
	assert.Empty(t, req.Header.Get("Authorization"), "the caller's request is not mutated")
}

func TestAuthTransportStaysOnSite(t *testing.T) {
	var got []string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
	}))
	defer other.Close()

	transport := client.NewAuthTransport(nil, "https://auth.example.com", "tok-1")
	resp, err := (&http.Client{Transport: transport}).Get(other.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{""}, got, "the token is only sent to the site's host")

	calls := 0
	dynamic := &client.AuthTransport{Token: func() string {
		calls++
		return fmt.Sprintf("tok-%d", calls)
	}}
	for i := 0; i < 2; i++ {
		resp, err := (&http.Client{Transport: dynamic}).Get(other.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, []string{"", "Bearer tok-1", "Bearer tok-2"}, got)
}
