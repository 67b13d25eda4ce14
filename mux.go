package siteauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// SiteAuth dispatches the auth actions under Config.BasePath and owns every
// cookie they read or write.
type SiteAuth struct {
	cfg       Config
	registry  *Registry
	csrf      *CSRFGuard
	sessions  *SessionManager
	linker    *AccountLinker
	verifyKey []byte
	cookies   CookieNames
	logger    *slog.Logger

	// oauth1 request token secrets live in a short-lived server-side session
	oauth1Session *scs.SessionManager

	router *mux.Router
}

type requestStateKey struct{}

type requestState struct {
	csrf    CSRFToken
	trusted bool
}

// New validates cfg and builds the handler
func New(cfg Config) (*SiteAuth, error) {
	cfg.EnsureDefaults()
	registry, err := NewRegistry(cfg.BaseURL+cfg.BasePath, cfg.Providers...)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(registry); err != nil {
		return nil, err
	}

	a := &SiteAuth{
		cfg:       cfg,
		registry:  registry,
		csrf:      NewCSRFGuard(deriveKey(cfg.Secret, "csrf")),
		verifyKey: deriveKey(cfg.Secret, "email verification"),
		cookies:   NewCookieNames(cfg.UseSecureCookies),
		logger:    cfg.Logger,
	}
	a.sessions = NewSessionManager(cfg.SessionMode, deriveKey(cfg.Secret, "session"), cfg.SessionMaxAge, cfg.Adapter, cfg.Now)
	a.linker = NewAccountLinker(cfg.Adapter, a.sessions, cfg.Now, cfg.Logger)

	a.oauth1Session = scs.New()
	a.oauth1Session.Lifetime = 10 * time.Minute
	a.oauth1Session.Cookie.Name = "siteauth.oauth1"
	a.oauth1Session.Cookie.Path = cfg.BasePath
	a.oauth1Session.Cookie.Secure = cfg.UseSecureCookies
	a.oauth1Session.Cookie.SameSite = http.SameSiteLaxMode

	a.setupRoutes()
	return a, nil
}

// Handler serves every auth action. Mount it so that requests keep their
// full path, e.g. mux.Handle("/api/auth/", a.Handler()).
func (a *SiteAuth) Handler() http.Handler {
	return a.oauth1Session.LoadAndSave(a.router)
}

// Registry returns the configured providers
func (a *SiteAuth) Registry() *Registry { return a.registry }

// Sessions returns the session manager
func (a *SiteAuth) Sessions() *SessionManager { return a.sessions }

// CookieNames returns the cookie names in use
func (a *SiteAuth) CookieNames() CookieNames { return a.cookies }

// ResolveSession validates a raw session token without refreshing it
func (a *SiteAuth) ResolveSession(ctx context.Context, token string) (*IssuedSession, error) {
	return a.sessions.Resolve(ctx, token)
}

func (a *SiteAuth) setupRoutes() {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(a.notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(a.badMethod)

	r := root.PathPrefix(a.cfg.BasePath).Subrouter()
	r.NotFoundHandler = root.NotFoundHandler
	r.MethodNotAllowedHandler = root.MethodNotAllowedHandler
	r.Use(a.withCSRF)

	r.HandleFunc("/csrf", a.onCSRF).Methods(http.MethodGet)
	r.HandleFunc("/providers", a.onProviders).Methods(http.MethodGet)
	r.HandleFunc("/session", a.onSession).Methods(http.MethodGet)
	r.HandleFunc("/signin", a.onSigninPage).Methods(http.MethodGet)
	r.HandleFunc("/signin/{provider}", a.onSignin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/callback/{provider}", a.onCallback).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/signout", a.onSignoutPage).Methods(http.MethodGet)
	r.HandleFunc("/signout", a.onSignout).Methods(http.MethodPost)
	r.HandleFunc("/error", a.onErrorPage).Methods(http.MethodGet)
	r.HandleFunc("/verify-request", a.onVerifyRequestPage).Methods(http.MethodGet)
	a.router = root
}

// withCSRF runs on every routed request. An untrusted cookie is replaced
// before the action runs; POST handlers check the body token themselves.
func (a *SiteAuth) withCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := ""
		if c, err := r.Cookie(a.cookies.CSRFToken); err == nil {
			value = c.Value
		}
		token, trusted, err := a.csrf.Verify(value)
		if err != nil {
			a.logger.Error("minting csrf token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !trusted {
			a.setCSRFCookie(w, token)
		}
		ctx := context.WithValue(r.Context(), requestStateKey{}, &requestState{csrf: token, trusted: trusted})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stateFrom(r *http.Request) *requestState {
	if st, ok := r.Context().Value(requestStateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// verifyPost checks that r is a POST carrying the csrf token of its own cookie
func (a *SiteAuth) verifyPost(r *http.Request) error {
	if r.Method != http.MethodPost {
		return fmt.Errorf("%w: %s request", ErrCSRFMismatch, r.Method)
	}
	st := stateFrom(r)
	if !a.csrf.CheckPost(st.csrf, st.trusted, r.PostFormValue("csrfToken")) {
		return ErrCSRFMismatch
	}
	return nil
}

// provider looks up the {provider} path variable
func (a *SiteAuth) provider(r *http.Request) (*Provider, error) {
	id := mux.Vars(r)["provider"]
	p, ok := a.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, id)
	}
	return p, nil
}

func (a *SiteAuth) notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "unknown auth action", http.StatusNotFound)
}

func (a *SiteAuth) badMethod(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "unsupported method for auth action", http.StatusBadRequest)
}

func (a *SiteAuth) onCSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"csrfToken": stateFrom(r).csrf.Value})
}

// ProviderInfo is the public description of a provider
type ProviderInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        ProviderType `json:"type"`
	SigninURL   string       `json:"signinUrl"`
	CallbackURL string       `json:"callbackUrl"`
}

func (a *SiteAuth) onProviders(w http.ResponseWriter, r *http.Request) {
	out := map[string]ProviderInfo{}
	for _, p := range a.registry.List() {
		out[p.ID] = ProviderInfo{ID: p.ID, Name: p.Name, Type: p.Type, SigninURL: p.SigninURL, CallbackURL: p.CallbackURL}
	}
	writeJSON(w, out)
}

func (a *SiteAuth) onSession(w http.ResponseWriter, r *http.Request) {
	token := a.sessionToken(r)
	if token == "" {
		writeJSON(w, struct{}{})
		return
	}
	session, err := a.sessions.Read(r.Context(), token)
	if err != nil {
		// Storage trouble is not proof the session is gone; keep the cookie
		a.logger.Error("reading session", "error", err)
		writeJSON(w, struct{}{})
		return
	}
	if session == nil {
		a.clearSessionCookie(w)
		writeJSON(w, struct{}{})
		return
	}
	a.setSessionCookie(w, session.Token, session.Expires)
	writeJSON(w, session.View)
}

func (a *SiteAuth) onSignout(w http.ResponseWriter, r *http.Request) {
	if err := a.verifyPost(r); err != nil {
		a.logger.Warn("sign-out rejected", "error", err)
		http.Redirect(w, r, a.pageURL(a.cfg.Pages.SignOut, "/signout"), http.StatusFound)
		return
	}
	if token := a.sessionToken(r); token != "" {
		if err := a.sessions.Destroy(r.Context(), token); err != nil {
			a.logger.Error("destroying session", "error", err)
		}
	}
	a.clearSessionCookie(w)
	a.logger.Info("signed out")
	http.Redirect(w, r, a.callbackURL(r), http.StatusFound)
}

// pageURL returns the custom page if configured, else the built-in one
func (a *SiteAuth) pageURL(custom, builtin string) string {
	if custom != "" {
		return custom
	}
	return a.cfg.BaseURL + a.cfg.BasePath + builtin
}

func (a *SiteAuth) redirectError(w http.ResponseWriter, r *http.Request, code ErrorCode) {
	http.Redirect(w, r, a.pageURL(a.cfg.Pages.Error, "/error")+"?error="+string(code), http.StatusFound)
}

// fail logs a flow error and redirects to the error page with its code
func (a *SiteAuth) fail(w http.ResponseWriter, r *http.Request, p *Provider, err error) {
	code := CodeFor(err, p.Type)
	if code == ErrCodeCallback || code == ErrCodeOAuthCreateAccount || code == ErrCodeEmailCreateAccount {
		a.logger.Error("sign-in failed", "provider", p.ID, "code", code, "error", err)
	} else {
		a.logger.Warn("sign-in rejected", "provider", p.ID, "code", code, "error", err)
	}
	a.redirectError(w, r, code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(v)
}
