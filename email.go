package siteauth

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VerificationRequest is a sign-in link to deliver
type VerificationRequest struct {
	To        string
	URL       string
	Provider  string
	ExpiresAt time.Time
}

// Mailer delivers sign-in links. A returned error aborts the sign-in with EmailSignin.
type Mailer interface {
	Send(ctx context.Context, req VerificationRequest) error
}

// MailerFunc adapts a function to Mailer
type MailerFunc func(ctx context.Context, req VerificationRequest) error

func (f MailerFunc) Send(ctx context.Context, req VerificationRequest) error { return f(ctx, req) }

// ConsoleMailer is a development implementation that logs links to the console
type ConsoleMailer struct{}

func (c *ConsoleMailer) Send(ctx context.Context, req VerificationRequest) error {
	log.Printf("\n=== EMAIL: Sign in ===")
	log.Printf("To: %s", req.To)
	log.Printf("Subject: Sign in to your account")
	log.Printf("Body: Sign in by clicking: %s (valid until %s)", req.URL, req.ExpiresAt.Format(time.RFC1123))
	log.Printf("======================\n")
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

func (a *SiteAuth) verificationHash(token string) string {
	return hmacHex(a.verifyKey, token)
}

func (a *SiteAuth) emailSignin(w http.ResponseWriter, r *http.Request, p *Provider) {
	email := normalizeEmail(r.PostFormValue("email"))
	if email == "" || !strings.Contains(email, "@") {
		a.redirectError(w, r, ErrCodeEmailSignin)
		return
	}
	token, err := GenerateSecureToken()
	if err != nil {
		a.logger.Error("generating verification token", "error", err)
		a.redirectError(w, r, ErrCodeEmailSignin)
		return
	}
	now := a.cfg.Now()
	vt := &VerificationToken{
		Identifier: email,
		TokenHash:  a.verificationHash(token),
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.MaxAge),
	}
	if err := a.cfg.Adapter.CreateEmailVerificationToken(r.Context(), vt); err != nil {
		a.logger.Error("storing verification token", "provider", p.ID, "error", err)
		a.redirectError(w, r, ErrCodeEmailSignin)
		return
	}
	link := p.CallbackURL + "?" + url.Values{"email": {email}, "token": {token}}.Encode()
	if err := a.cfg.Mailer.Send(r.Context(), VerificationRequest{To: email, URL: link, Provider: p.ID, ExpiresAt: vt.ExpiresAt}); err != nil {
		a.logger.Error("sending verification email", "provider", p.ID, "error", err)
		a.redirectError(w, r, ErrCodeEmailSignin)
		return
	}
	http.Redirect(w, r, a.pageURL(a.cfg.Pages.VerifyRequest, "/verify-request")+"?provider="+queryEscape(p.ID), http.StatusFound)
}

func (a *SiteAuth) emailCallback(w http.ResponseWriter, r *http.Request, p *Provider) {
	email := normalizeEmail(r.FormValue("email"))
	token := r.FormValue("token")
	if email == "" || token == "" {
		a.redirectError(w, r, ErrCodeVerification)
		return
	}
	vt, err := a.cfg.Adapter.ConsumeEmailVerificationToken(r.Context(), email, a.verificationHash(token))
	if err != nil {
		a.logger.Error("consuming verification token", "provider", p.ID, "error", err)
		a.redirectError(w, r, ErrCodeCallback)
		return
	}
	if vt == nil || vt.IsExpired(a.cfg.Now()) {
		a.fail(w, r, p, ErrVerificationExpired)
		return
	}
	profile := &Profile{ID: email, Email: email}
	account := &ProviderAccount{ProviderID: p.ID, ProviderType: ProviderTypeEmail, ProviderAccountID: email}
	a.completeSignin(w, r, p, profile, account)
}
