package siteauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// PasswordLookup finds the bcrypt hash and profile for a username. It
// returns ("", nil, nil) when the user does not exist.
type PasswordLookup func(ctx context.Context, username string) (passwordHash string, profile *Profile, err error)

// BcryptAuthorizer builds an AuthorizeFunc that checks the "username" and
// "password" fields against a bcrypt hash.
func BcryptAuthorizer(lookup PasswordLookup) AuthorizeFunc {
	return func(ctx context.Context, credentials map[string]string) (*Profile, error) {
		username, password := credentials["username"], credentials["password"]
		if username == "" || password == "" {
			return nil, nil
		}
		passwordHash, profile, err := lookup(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", username, err)
		}
		if profile == nil || passwordHash == "" {
			return nil, nil
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return nil, nil
			}
			return nil, err
		}
		return profile, nil
	}
}

// HashPassword hashes a password for use with BcryptAuthorizer
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (a *SiteAuth) credentialsCallback(w http.ResponseWriter, r *http.Request, p *Provider) {
	if err := a.verifyPost(r); err != nil {
		a.logger.Warn("credentials sign-in rejected", "provider", p.ID, "error", err)
		http.Redirect(w, r, a.pageURL(a.cfg.Pages.SignIn, "/signin")+"?csrf=true", http.StatusFound)
		return
	}
	credentials := map[string]string{}
	for k := range r.PostForm {
		if k == "csrfToken" || k == "callbackUrl" {
			continue
		}
		credentials[k] = r.PostForm.Get(k)
	}
	profile, err := p.Authorize(r.Context(), credentials)
	if err != nil {
		a.logger.Error("authorizing credentials", "provider", p.ID, "error", err)
		a.redirectError(w, r, ErrCodeSignin)
		return
	}
	if profile == nil || profile.ID == "" {
		a.logger.Warn("credentials rejected", "provider", p.ID)
		a.redirectError(w, r, ErrCodeSignin)
		return
	}
	profile.Email = normalizeEmail(profile.Email)
	account := &ProviderAccount{ProviderID: p.ID, ProviderType: ProviderTypeCredentials, ProviderAccountID: profile.ID}
	a.completeSignin(w, r, p, profile, account)
}
