package siteauth

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Pages overrides the URLs of the built-in pages. Empty entries use the
// built-in page under BasePath.
type Pages struct {
	SignIn        string
	SignOut       string
	Error         string
	VerifyRequest string
	// NewUser, when set, is where a first sign-in lands instead of the callback URL
	NewUser string
}

// Config is everything New needs. It is read once; changing it afterwards
// has no effect.
type Config struct {
	// BaseURL is the site origin, e.g. "https://example.com". Falls back to SITEAUTH_URL.
	BaseURL string

	// BasePath is where the auth routes are mounted. Defaults to "/api/auth".
	BasePath string

	// Secret keys every signature. Falls back to SITEAUTH_SECRET.
	Secret string

	Providers []Provider
	Adapter   Adapter
	Mailer    Mailer
	Renderer  Renderer

	// SessionMode defaults to SessionModeToken, or SessionModeDatabase when an Adapter is set
	SessionMode   SessionMode
	SessionMaxAge time.Duration

	Pages Pages

	// UseSecureCookies prefixes cookie names and marks them Secure.
	// Always on for https BaseURLs.
	UseSecureCookies bool
	CookieDomain     string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// EnsureDefaults fills unset fields
func (c *Config) EnsureDefaults() *Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.BaseURL == "" {
		c.BaseURL = strings.TrimSpace(os.Getenv("SITEAUTH_URL"))
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:3000"
		}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.BasePath == "" {
		c.BasePath = "/api/auth"
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.Secret == "" {
		c.Secret = strings.TrimSpace(os.Getenv("SITEAUTH_SECRET"))
	}
	if c.Secret == "" {
		// Stable across restarts for the same provider setup, but guessable by
		// anyone who knows it. Only fit for development.
		c.Secret = c.derivedSecret()
		c.Logger.Warn("no secret configured, deriving one from provider config; set SITEAUTH_SECRET in production")
	}
	if c.SessionMode == "" {
		c.SessionMode = SessionModeToken
		if c.Adapter != nil {
			c.SessionMode = SessionModeDatabase
		}
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = DefaultSessionMaxAge
	}
	if strings.HasPrefix(c.BaseURL, "https://") {
		c.UseSecureCookies = true
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Renderer == nil {
		c.Renderer = NewTemplateRenderer()
	}
	return c
}

func (c *Config) validate(registry *Registry) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "BaseURL", Reason: "must be an absolute URL"}
	}
	switch c.SessionMode {
	case SessionModeToken:
	case SessionModeDatabase:
		if c.Adapter == nil {
			return &ConfigError{Field: "Adapter", Reason: "required for database sessions"}
		}
	default:
		return &ConfigError{Field: "SessionMode", Reason: "must be jwt or database"}
	}
	if registry.HasType(ProviderTypeEmail) {
		if c.Adapter == nil {
			return &ConfigError{Field: "Adapter", Reason: "required for email sign-in"}
		}
		if c.Mailer == nil {
			return &ConfigError{Field: "Mailer", Reason: "required for email sign-in"}
		}
	}
	if c.Adapter == nil && (registry.HasType(ProviderTypeOAuth) || registry.HasType(ProviderTypeOAuth2) || registry.HasType(ProviderTypeCredentials)) {
		return &ConfigError{Field: "Adapter", Reason: "required to link accounts"}
	}
	return nil
}

func (c *Config) derivedSecret() string {
	h := sha256.New()
	for _, p := range c.Providers {
		io.WriteString(h, p.ID+"|"+p.ClientID+"|"+p.ClientSecret+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// deriveKey expands the configured secret into an independent key per use
func deriveKey(secret, label string) []byte {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("siteauth "+label))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255 blocks of output
		panic(err)
	}
	return key
}
