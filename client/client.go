// Package client talks to a siteauth deployment over HTTP, the way a
// browser-side session hook would: it fetches the CSRF token, the provider
// list and the current session, and signs out. A cookie jar carries the
// CSRF double-submit cookie and the session cookie between calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	sa "github.com/panyam/siteauth"
)

// DefaultTimeout bounds each request made with the default HTTP client
const DefaultTimeout = 10 * time.Second

// Client calls the auth endpoints of one site
type Client struct {
	// BaseURL is the site origin, e.g. "https://example.com"
	BaseURL string

	// BasePath is where the auth routes are mounted. Defaults to "/api/auth".
	BasePath string

	// HTTPClient must have a cookie jar for CSRF-protected calls
	HTTPClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBasePath sets a custom auth mount path
func WithBasePath(path string) ClientOption {
	return func(c *Client) {
		c.BasePath = path
	}
}

// WithHTTPClient sets the HTTP client. A client without a jar gets a fresh one.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// WithSessionToken sends token as a bearer credential on requests to the
// site, for servers that protect their own API routes with siteauth
// middleware. Pass it after WithHTTPClient.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) {
		base := c.HTTPClient.Transport
		copied := *c.HTTPClient
		copied.Transport = NewAuthTransport(base, c.BaseURL, token)
		c.HTTPClient = &copied
	}
}

// New creates a client for the site at baseURL
func New(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		BasePath:   "/api/auth",
		HTTPClient: &http.Client{Timeout: DefaultTimeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTPClient.Jar == nil {
		copied := *c.HTTPClient
		copied.Jar = jar
		c.HTTPClient = &copied
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	return c
}

// StatusError is returned for unexpected HTTP responses
type StatusError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Action, e.StatusCode, e.Body)
}

// SignInError is returned when the server redirects a sign-in to its error page
type SignInError struct {
	Code sa.ErrorCode
}

func (e *SignInError) Error() string {
	return "sign-in failed: " + string(e.Code)
}

func (c *Client) actionURL(action string) string {
	return c.BaseURL + c.BasePath + "/" + action
}

// noRedirect returns the HTTP client with redirects disabled, sharing the jar
func (c *Client) noRedirect() *http.Client {
	copied := *c.HTTPClient
	copied.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &copied
}

func (c *Client) getJSON(ctx context.Context, action string, out any, cookies ...*http.Cookie) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.actionURL(action), nil)
	if err != nil {
		return err
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Action: action, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", action, err)
	}
	return nil
}

// postForm submits a CSRF-protected form and returns the redirect target
func (c *Client) postForm(ctx context.Context, action string, form url.Values) (*url.URL, error) {
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return nil, err
	}
	form.Set("csrfToken", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusFound {
		return nil, &StatusError{Action: action, StatusCode: resp.StatusCode}
	}
	return resp.Location()
}

// CSRFToken returns the token to echo in POST bodies. The matching cookie
// lands in the jar as a side effect.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.getJSON(ctx, "csrf", &out); err != nil {
		return "", err
	}
	return out.CSRFToken, nil
}

// Providers returns the configured providers keyed by id
func (c *Client) Providers(ctx context.Context) (map[string]sa.ProviderInfo, error) {
	out := map[string]sa.ProviderInfo{}
	if err := c.getJSON(ctx, "providers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session returns the current session, or nil when signed out. Extra
// cookies are sent along, which lets a server forward a browser's session
// cookie.
func (c *Client) Session(ctx context.Context, cookies ...*http.Cookie) (*sa.SessionView, error) {
	var out sa.SessionView
	if err := c.getJSON(ctx, "session", &out, cookies...); err != nil {
		return nil, err
	}
	if out.User == nil && out.Expires == "" {
		return nil, nil
	}
	return &out, nil
}

// SignInWithCredentials posts fields to a credentials provider's callback
// and returns the new session.
func (c *Client) SignInWithCredentials(ctx context.Context, providerID string, fields map[string]string) (*sa.SessionView, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	loc, err := c.postForm(ctx, "callback/"+url.PathEscape(providerID), form)
	if err != nil {
		return nil, err
	}
	if code := loc.Query().Get("error"); code != "" {
		return nil, &SignInError{Code: sa.ErrorCode(code)}
	}
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &SignInError{Code: sa.ErrCodeSignin}
	}
	return session, nil
}

// SignOut ends the current session. Signing out while signed out is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	loc, err := c.postForm(ctx, "signout", url.Values{})
	if err != nil {
		return err
	}
	if strings.HasSuffix(loc.Path, c.BasePath+"/signout") {
		return fmt.Errorf("signout: csrf check failed")
	}
	return nil
}
