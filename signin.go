package siteauth

import (
	"context"
	"errors"
	"net/http"
)

// scsRequestSecrets stores oauth1 request token secrets in the scs session
// loaded for the current request.
type scsRequestSecrets struct {
	a *SiteAuth
}

func (s scsRequestSecrets) PutRequestSecret(ctx context.Context, requestToken, secret string) {
	s.a.oauth1Session.Put(ctx, "oauth1:"+requestToken, secret)
}

func (s scsRequestSecrets) TakeRequestSecret(ctx context.Context, requestToken string) string {
	return s.a.oauth1Session.PopString(ctx, "oauth1:"+requestToken)
}

func (a *SiteAuth) exchangerFor(p *Provider) (Exchanger, error) {
	return ExchangerFor(p, a.cfg.HTTPClient, scsRequestSecrets{a})
}

func (a *SiteAuth) onSignin(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.logger.Warn("sign-in rejected", "error", err)
		a.redirectError(w, r, ErrCodeSignin)
		return
	}
	if r.Method == http.MethodPost {
		if err := a.verifyPost(r); err != nil {
			a.logger.Warn("sign-in rejected", "provider", p.ID, "error", err)
			http.Redirect(w, r, a.pageURL(a.cfg.Pages.SignIn, "/signin")+"?csrf=true", http.StatusFound)
			return
		}
	}
	a.captureCallbackURL(w, r)

	switch p.Type {
	case ProviderTypeOAuth2:
		http.Redirect(w, r, AuthorizationURL(p, stateFrom(r).csrf.Value), http.StatusFound)
	case ProviderTypeOAuth:
		x, err := a.exchangerFor(p)
		if err != nil {
			a.fail(w, r, p, err)
			return
		}
		target, err := x.(*oauth1Exchanger).Begin(r.Context())
		if err != nil {
			a.fail(w, r, p, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	case ProviderTypeEmail:
		if r.Method != http.MethodPost {
			a.onSigninPage(w, r)
			return
		}
		a.emailSignin(w, r, p)
	case ProviderTypeCredentials:
		// Credentials are submitted to the callback; show the form
		a.onSigninPage(w, r)
	}
}

func (a *SiteAuth) onCallback(w http.ResponseWriter, r *http.Request) {
	p, err := a.provider(r)
	if err != nil {
		a.logger.Warn("callback rejected", "error", err)
		a.redirectError(w, r, ErrCodeCallback)
		return
	}

	switch p.Type {
	case ProviderTypeOAuth, ProviderTypeOAuth2:
		if p.FormPost && r.Method != http.MethodPost {
			a.fail(w, r, p, oauthErr(OAuthTokenResponse, p.ID, errors.New("callback must be a form POST")))
			return
		}
		if err := VerifyCallback(p, stateFrom(r).csrf.Value, r.FormValue("state")); err != nil {
			a.fail(w, r, p, err)
			return
		}
		x, err := a.exchangerFor(p)
		if err != nil {
			a.fail(w, r, p, err)
			return
		}
		result, err := Exchange(r.Context(), r, x, p)
		if err != nil {
			a.fail(w, r, p, err)
			return
		}
		a.completeSignin(w, r, p, result.Profile, result.Account)
	case ProviderTypeEmail:
		a.emailCallback(w, r, p)
	case ProviderTypeCredentials:
		a.credentialsCallback(w, r, p)
	}
}

// linkingSession returns the session a callback may link a new identity to.
// An OAuth 2 callback without a state check could have been started by
// anyone, so it is handled as if no one were signed in.
func (a *SiteAuth) linkingSession(r *http.Request, p *Provider) string {
	if p.Type == ProviderTypeOAuth2 && !p.HasCheck(CheckState) {
		return ""
	}
	return a.sessionToken(r)
}

// completeSignin hands a verified identity to the linker and sets the session cookie
func (a *SiteAuth) completeSignin(w http.ResponseWriter, r *http.Request, p *Provider, profile *Profile, account *ProviderAccount) {
	result, err := a.linker.Handle(r.Context(), a.linkingSession(r, p), profile, account)
	if err != nil {
		a.fail(w, r, p, err)
		return
	}
	if !result.Resumed {
		a.setSessionCookie(w, result.Session.Token, result.Session.Expires)
	}
	a.logger.Info("signed in", "provider", p.ID, "user", result.User.ID, "new", result.IsNewAccount)

	target := a.callbackURL(r)
	if result.IsNewAccount && a.cfg.Pages.NewUser != "" {
		target = a.cfg.Pages.NewUser + "?callbackUrl=" + queryEscape(target)
	}
	http.Redirect(w, r, target, http.StatusFound)
}
