package providers

import (
	sa "github.com/panyam/siteauth"
	"golang.org/x/oauth2/google"
)

// Google signs in with a Google account
func Google(opts sa.Provider) sa.Provider {
	return preset("google", sa.Provider{
		ID:   "google",
		Name: "Google",
		Type: sa.ProviderTypeOAuth2,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		AuthorizationURL: google.Endpoint.AuthURL,
		AccessTokenURL:   google.Endpoint.TokenURL,
		ProfileURL:       "https://www.googleapis.com/oauth2/v2/userinfo",
		Checks:           []sa.Check{sa.CheckState},
		Profile:          googleProfile,
	}, opts)
}

func googleProfile(raw map[string]any) (*sa.Profile, error) {
	return sa.DefaultProfile(raw)
}
