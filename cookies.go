package siteauth

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieNames are the cookies this package reads and writes
type CookieNames struct {
	SessionToken string
	CSRFToken    string
	CallbackURL  string
}

// NewCookieNames returns the cookie names, with the browser-enforced
// prefixes when secure is set.
func NewCookieNames(secure bool) CookieNames {
	prefix, hostPrefix := "", ""
	if secure {
		prefix, hostPrefix = "__Secure-", "__Host-"
	}
	return CookieNames{
		SessionToken: prefix + "siteauth.session-token",
		CSRFToken:    hostPrefix + "siteauth.csrf-token",
		CallbackURL:  prefix + "siteauth.callback-url",
	}
}

func (a *SiteAuth) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   a.cfg.UseSecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *SiteAuth) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := a.cookie(a.cookies.SessionToken, token)
	c.Expires = expires
	http.SetCookie(w, c)
}

func (a *SiteAuth) clearSessionCookie(w http.ResponseWriter) {
	c := a.cookie(a.cookies.SessionToken, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (a *SiteAuth) setCSRFCookie(w http.ResponseWriter, token CSRFToken) {
	c := a.cookie(a.cookies.CSRFToken, token.CookieValue())
	// __Host- cookies may not carry a domain
	c.Domain = ""
	http.SetCookie(w, c)
}

func (a *SiteAuth) setCallbackURLCookie(w http.ResponseWriter, target string) {
	c := a.cookie(a.cookies.CallbackURL, target)
	c.HttpOnly = false
	http.SetCookie(w, c)
}

func (a *SiteAuth) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(a.cookies.SessionToken); err == nil {
		return c.Value
	}
	return ""
}

// ValidateCallbackURL accepts rooted relative paths and absolute URLs on the
// same origin as baseURL. Everything else is ErrInvalidCallbackURL.
func ValidateCallbackURL(baseURL, raw string) (string, error) {
	if raw == "" || strings.Contains(raw, `\`) || hasControlChar(raw) {
		return "", ErrInvalidCallbackURL
	}
	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") {
			return "", ErrInvalidCallbackURL
		}
		return raw, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", ErrInvalidCallbackURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != base.Scheme || u.Host != base.Host || u.User != nil {
		return "", ErrInvalidCallbackURL
	}
	return u.String(), nil
}

// hasControlChar reports ASCII controls. Browsers drop tab, CR and LF from
// URLs, which would turn "/\t/host" into "//host".
func hasControlChar(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

// captureCallbackURL remembers a valid callbackUrl param for after the provider round trip
func (a *SiteAuth) captureCallbackURL(w http.ResponseWriter, r *http.Request) {
	if target, err := ValidateCallbackURL(a.cfg.BaseURL, r.FormValue("callbackUrl")); err == nil {
		a.setCallbackURLCookie(w, target)
	}
}

// callbackURL picks the post sign-in target: param, then cookie, then the site root
func (a *SiteAuth) callbackURL(r *http.Request) string {
	if target, err := ValidateCallbackURL(a.cfg.BaseURL, r.FormValue("callbackUrl")); err == nil {
		return target
	}
	if c, err := r.Cookie(a.cookies.CallbackURL); err == nil {
		if target, err := ValidateCallbackURL(a.cfg.BaseURL, c.Value); err == nil {
			return target
		}
	}
	return a.cfg.BaseURL
}
