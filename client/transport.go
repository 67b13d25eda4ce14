package client

import (
	"net/http"
	"net/url"
)

// AuthTransport adds "Authorization: Bearer <session token>" to requests
// bound for one host. Requests to any other host pass through untouched, so
// following an off-site redirect does not leak the session.
type AuthTransport struct {
	Base http.RoundTripper

	// Host is matched against req.URL.Host. Empty matches every host.
	Host string

	// Token returns the current session token; "" sends no header
	Token func() string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Host != "" && req.URL.Host != t.Host {
		return base.RoundTrip(req)
	}
	if token := t.Token(); token != "" {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return base.RoundTrip(req)
}

// NewAuthTransport sends a fixed session token to the host of siteURL
func NewAuthTransport(base http.RoundTripper, siteURL, token string) *AuthTransport {
	t := &AuthTransport{Base: base, Token: func() string { return token }}
	if u, err := url.Parse(siteURL); err == nil {
		t.Host = u.Host
	}
	return t
}
