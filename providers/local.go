package providers

import (
	sa "github.com/panyam/siteauth"
)

// Email signs in with a one-time link sent by the configured Mailer
func Email(opts sa.Provider) sa.Provider {
	return sa.Resolve(sa.Provider{
		ID:     "email",
		Name:   "Email",
		Type:   sa.ProviderTypeEmail,
		MaxAge: sa.DefaultVerificationMaxAge,
	}, opts)
}

// Credentials signs in with a form checked by opts.Authorize. The default
// form asks for a username and password, matching sa.BcryptAuthorizer.
func Credentials(opts sa.Provider) sa.Provider {
	return sa.Resolve(sa.Provider{
		ID:   "credentials",
		Name: "Credentials",
		Type: sa.ProviderTypeCredentials,
		Fields: []sa.CredentialField{
			{Name: "username", Label: "Username", Type: "text"},
			{Name: "password", Label: "Password", Type: "password"},
		},
	}, opts)
}
