package providers

import (
	"fmt"

	sa "github.com/panyam/siteauth"
)

// Twitter signs in over OAuth 1.0a
func Twitter(opts sa.Provider) sa.Provider {
	return preset("twitter", sa.Provider{
		ID:               "twitter",
		Name:             "Twitter",
		Type:             sa.ProviderTypeOAuth,
		RequestTokenURL:  "https://api.twitter.com/oauth/request_token",
		AuthorizationURL: "https://api.twitter.com/oauth/authenticate",
		AccessTokenURL:   "https://api.twitter.com/oauth/access_token",
		ProfileURL:       "https://api.twitter.com/1.1/account/verify_credentials.json?include_email=true",
		Profile:          twitterProfile,
	}, opts)
}

func twitterProfile(raw map[string]any) (*sa.Profile, error) {
	id := sa.StringClaim(raw, "id_str", "id")
	if id == "" {
		return nil, fmt.Errorf("twitter profile has no id")
	}
	return &sa.Profile{
		ID:    id,
		Name:  sa.StringClaim(raw, "name", "screen_name"),
		Email: sa.StringClaim(raw, "email"),
		Image: sa.StringClaim(raw, "profile_image_url_https"),
	}, nil
}
