package providers

import (
	"fmt"

	sa "github.com/panyam/siteauth"
)

// Slack signs in with Slack's identity scopes
func Slack(opts sa.Provider) sa.Provider {
	return preset("slack", sa.Provider{
		ID:               "slack",
		Name:             "Slack",
		Type:             sa.ProviderTypeOAuth2,
		Scopes:           []string{"identity.basic", "identity.email", "identity.avatar"},
		AuthorizationURL: "https://slack.com/oauth/authorize",
		AccessTokenURL:   "https://slack.com/api/oauth.access",
		ProfileURL:       "https://slack.com/api/users.identity",
		Checks:           []sa.Check{sa.CheckState},
		Profile:          slackProfile,
	}, opts)
}

// users.identity wraps the user in {"ok": true, "user": {...}}
func slackProfile(raw map[string]any) (*sa.Profile, error) {
	user, _ := raw["user"].(map[string]any)
	id := sa.StringClaim(user, "id")
	if id == "" {
		return nil, fmt.Errorf("slack identity has no user id (error=%q)", sa.StringClaim(raw, "error"))
	}
	return &sa.Profile{
		ID:    id,
		Name:  sa.StringClaim(user, "name"),
		Email: sa.StringClaim(user, "email"),
		Image: sa.StringClaim(user, "image_512", "image_192", "image_72"),
	}, nil
}
