// Package grpc carries siteauth sessions into gRPC services. The
// interceptors read the session token a client sent in metadata, resolve it
// and make the signed-in user id available to handlers.
package grpc

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	sa "github.com/panyam/siteauth"
)

// Default metadata keys the session token is read from
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <session token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyCookie carries the browser's Cookie header, as grpc-gateway forwards it
	DefaultMetadataKeyCookie = "cookie"
)

// SessionResolver resolves a raw session token. *siteauth.SiteAuth
// implements it. Resolving never extends the session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*sa.IssuedSession, error)
}

var _ SessionResolver = (*sa.SiteAuth)(nil)

// Config holds the metadata keys used to find the session token.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization"
	MetadataKeyAuthorization string

	// MetadataKeyCookie defaults to "cookie"
	MetadataKeyCookie string

	// CookieName is the session cookie looked up in the cookie metadata.
	// Defaults to the non-secure siteauth session cookie name.
	CookieName string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyCookie:        DefaultMetadataKeyCookie,
		CookieName:               sa.NewCookieNames(false).SessionToken,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyCookie == "" {
		c.MetadataKeyCookie = DefaultMetadataKeyCookie
	}
	if c.CookieName == "" {
		c.CookieName = sa.NewCookieNames(false).SessionToken
	}
}

// TokenFromContext returns the session token in the incoming metadata,
// preferring a bearer token over the session cookie. Returns "" if neither
// is present.
func TokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok && token != "" {
			return token
		}
	}
	for _, v := range md.Get(config.MetadataKeyCookie) {
		cookies, err := http.ParseCookie(v)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == config.CookieName && c.Value != "" {
				return c.Value
			}
		}
	}
	return ""
}

type sessionKey struct{}

// ContextWithSession returns ctx carrying the resolved session
func ContextWithSession(ctx context.Context, session *sa.IssuedSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session the interceptor resolved, or nil
func SessionFromContext(ctx context.Context) *sa.IssuedSession {
	s, _ := ctx.Value(sessionKey{}).(*sa.IssuedSession)
	return s
}

// UserIDFromContext returns the signed-in user id, or "" when the call is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if s := SessionFromContext(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a session token as a bearer credential to outgoing calls.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}
