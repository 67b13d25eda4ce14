package providers

import (
	"fmt"

	sa "github.com/panyam/siteauth"
	"golang.org/x/oauth2/github"
)

// GitHub signs in with a GitHub account. GitHub answers the token request
// form encoded unless asked for JSON, which the exchange handles either way.
func GitHub(opts sa.Provider) sa.Provider {
	return preset("github", sa.Provider{
		ID:               "github",
		Name:             "GitHub",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"read:user", "user:email"},
		AuthorizationURL: github.Endpoint.AuthURL,
		AccessTokenURL:   github.Endpoint.TokenURL,
		ProfileURL:       "https://api.github.com/user",
		Headers:          map[string]string{"Accept": "application/json"},
		Checks:           []sa.Check{sa.CheckState},
		Profile:          githubProfile,
	}, opts)
}

func githubProfile(raw map[string]any) (*sa.Profile, error) {
	id := sa.StringClaim(raw, "id")
	if id == "" {
		return nil, fmt.Errorf("github profile has no id")
	}
	return &sa.Profile{
		ID:    id,
		Name:  sa.StringClaim(raw, "name", "login"),
		Email: sa.StringClaim(raw, "email"),
		Image: sa.StringClaim(raw, "avatar_url"),
	}, nil
}
