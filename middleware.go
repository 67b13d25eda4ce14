package siteauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type sessionContextKey struct{}

// Middleware makes the signed-in user available to application handlers.
type Middleware struct {
	auth *SiteAuth

	// AuthTokenHeaderName is checked for "Bearer <session token>" when no cookie is sent
	AuthTokenHeaderName string

	// SignInURL is where EnsureUser sends anonymous GET requests. Defaults to the sign-in page.
	SignInURL string
}

// Middleware returns request middleware bound to this instance
func (a *SiteAuth) Middleware() *Middleware {
	return &Middleware{
		auth:                a,
		AuthTokenHeaderName: "Authorization",
		SignInURL:           a.pageURL(a.cfg.Pages.SignIn, "/signin"),
	}
}

// UserIDFromContext returns the signed-in user's id, or ""
func UserIDFromContext(ctx context.Context) string {
	if s := sessionFromContext(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// SessionFromContext returns the signed-in user's session view, or nil
func SessionFromContext(ctx context.Context) *SessionView {
	if s := sessionFromContext(ctx); s != nil {
		return s.View
	}
	return nil
}

func sessionFromContext(ctx context.Context) *IssuedSession {
	s, _ := ctx.Value(sessionContextKey{}).(*IssuedSession)
	return s
}

// ContextWithSession returns ctx carrying session, as ExtractUser does
func ContextWithSession(ctx context.Context, session *IssuedSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func (m *Middleware) resolve(r *http.Request) *IssuedSession {
	token := m.auth.sessionToken(r)
	if token == "" {
		if h := r.Header.Get(m.AuthTokenHeaderName); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return nil
	}
	s, err := m.auth.ResolveSession(r.Context(), token)
	if err != nil {
		m.auth.logger.Warn("error resolving session", "error", err)
		return nil
	}
	return s
}

// ExtractUser loads the session, if any, into the request context. It never
// rejects a request; use EnsureUser for that.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := m.resolve(r); s != nil {
			r = r.WithContext(ContextWithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser requires a session. Anonymous GETs are redirected to sign in
// with a callbackUrl back to the original page; anything else gets a 401.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.resolve(r)
		if s == nil {
			if r.Method == http.MethodGet && m.SignInURL != "" {
				http.Redirect(w, r, m.SignInURL+"?callbackUrl="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
			http.Error(w, "Login Required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
	})
}
