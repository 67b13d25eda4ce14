package providers

import (
	"fmt"

	sa "github.com/panyam/siteauth"
)

// Discord signs in with a Discord account
func Discord(opts sa.Provider) sa.Provider {
	return preset("discord", sa.Provider{
		ID:               "discord",
		Name:             "Discord",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"identify", "email"},
		AuthorizationURL: "https://discord.com/api/oauth2/authorize",
		AccessTokenURL:   "https://discord.com/api/oauth2/token",
		ProfileURL:       "https://discord.com/api/users/@me",
		Checks:           []sa.Check{sa.CheckState},
		Profile:          discordProfile,
	}, opts)
}

func discordProfile(raw map[string]any) (*sa.Profile, error) {
	id := sa.StringClaim(raw, "id")
	if id == "" {
		return nil, fmt.Errorf("discord profile has no id")
	}
	p := &sa.Profile{
		ID:    id,
		Name:  sa.StringClaim(raw, "global_name", "username"),
		Email: sa.StringClaim(raw, "email"),
	}
	if avatar := sa.StringClaim(raw, "avatar"); avatar != "" {
		p.Image = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", id, avatar)
	}
	return p, nil
}
