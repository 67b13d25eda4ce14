package providers

import (
	"fmt"

	sa "github.com/panyam/siteauth"
)

// Twitch signs in with a Twitch account. Helix requires a Client-ID header
// next to the bearer token.
func Twitch(opts sa.Provider) sa.Provider {
	return preset("twitch", sa.Provider{
		ID:               "twitch",
		Name:             "Twitch",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"user:read:email"},
		AuthorizationURL: "https://id.twitch.tv/oauth2/authorize",
		AccessTokenURL:   "https://id.twitch.tv/oauth2/token",
		ProfileURL:       "https://api.twitch.tv/helix/users",
		ClientIDHeader:   true,
		Checks:           []sa.Check{sa.CheckState},
		Profile:          twitchProfile,
	}, opts)
}

// twitchProfile unwraps {"data": [user]}
func twitchProfile(raw map[string]any) (*sa.Profile, error) {
	data, _ := raw["data"].([]any)
	if len(data) == 0 {
		return nil, fmt.Errorf("twitch profile has no data")
	}
	user, _ := data[0].(map[string]any)
	id := sa.StringClaim(user, "id")
	if id == "" {
		return nil, fmt.Errorf("twitch profile has no id")
	}
	return &sa.Profile{
		ID:    id,
		Name:  sa.StringClaim(user, "display_name", "login"),
		Email: sa.StringClaim(user, "email"),
		Image: sa.StringClaim(user, "profile_image_url"),
	}, nil
}
