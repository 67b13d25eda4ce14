package providers

import (
	"strings"

	sa "github.com/panyam/siteauth"
)

// Okta signs in against an Okta authorization server. opts.Issuer is
// required, e.g. "https://dev-123.okta.com/oauth2/default".
func Okta(opts sa.Provider) sa.Provider {
	issuer := strings.TrimSuffix(opts.Issuer, "/")
	return preset("okta", sa.Provider{
		ID:               "okta",
		Name:             "Okta",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"openid", "profile", "email"},
		AuthorizationURL: issuer + "/v1/authorize",
		AccessTokenURL:   issuer + "/v1/token",
		ProfileURL:       issuer + "/v1/userinfo",
		JWKSURL:          issuer + "/v1/keys",
		// Okta rejects token requests carrying the code as a bearer header
		DisableTokenAuthHeader: true,
		Checks:                 []sa.Check{sa.CheckState},
	}, opts)
}

// Auth0 signs in against an Auth0 tenant. opts.Issuer is the tenant URL,
// e.g. "https://example.eu.auth0.com".
func Auth0(opts sa.Provider) sa.Provider {
	issuer := strings.TrimSuffix(opts.Issuer, "/")
	return preset("auth0", sa.Provider{
		ID:               "auth0",
		Name:             "Auth0",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"openid", "email", "profile"},
		AuthorizationURL: issuer + "/authorize",
		AccessTokenURL:   issuer + "/oauth/token",
		ProfileURL:       issuer + "/userinfo",
		JWKSURL:          issuer + "/.well-known/jwks.json",
		Checks:           []sa.Check{sa.CheckState},
	}, opts)
}

// IdentityServer4 signs in against an IdentityServer4 instance. opts.Issuer
// is its base URL, e.g. "https://demo.identityserver.io".
func IdentityServer4(opts sa.Provider) sa.Provider {
	issuer := strings.TrimSuffix(opts.Issuer, "/")
	return preset("identity_server4", sa.Provider{
		ID:               "identity-server4",
		Name:             "IdentityServer4",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"openid", "profile", "email"},
		AuthorizationURL: issuer + "/connect/authorize",
		AccessTokenURL:   issuer + "/connect/token",
		ProfileURL:       issuer + "/connect/userinfo",
		JWKSURL:          issuer + "/.well-known/openid-configuration/jwks",
		Checks:           []sa.Check{sa.CheckState},
	}, opts)
}
