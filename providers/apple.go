package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	sa "github.com/panyam/siteauth"
)

const appleAudience = "https://appleid.apple.com"

// Apple signs in with an Apple ID. The profile comes from the id_token and
// the callback arrives as a cross-site form POST, which carries no cookies,
// so state cannot be checked. Pass AppleClientSecret as ClientSecretFunc.
func Apple(opts sa.Provider) sa.Provider {
	return preset("apple", sa.Provider{
		ID:                  "apple",
		Name:                "Apple",
		Type:                sa.ProviderTypeOAuth2,
		Scopes:              []string{"name", "email"},
		AuthorizationURL:    appleAudience + "/auth/authorize",
		AccessTokenURL:      appleAudience + "/auth/token",
		AuthorizationParams: map[string]string{"response_mode": "form_post"},
		IDToken:             true,
		Issuer:              appleAudience,
		JWKSURL:             appleAudience + "/auth/keys",
		FormPost:            true,
		Checks:              []sa.Check{},
		Profile:             appleProfile,
	}, opts)
}

func appleProfile(raw map[string]any) (*sa.Profile, error) {
	id := sa.StringClaim(raw, "sub")
	if id == "" {
		return nil, fmt.Errorf("apple id token has no sub")
	}
	// Apple only sends the name on the first authorization, outside the token
	return &sa.Profile{ID: id, Email: sa.StringClaim(raw, "email")}, nil
}

// AppleClientSecret signs the short-lived ES256 client secret Apple expects
// in place of a static one. privateKeyPEM is the .p8 key downloaded from the
// developer portal.
func AppleClientSecret(teamID, keyID string, privateKeyPEM []byte, lifetime time.Duration) (sa.ClientSecretFunc, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing apple private key: %w", err)
	}
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	return func(ctx context.Context, p *sa.Provider) (string, error) {
		now := time.Now()
		tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
			Issuer:    teamID,
			Subject:   p.ClientID,
			Audience:  jwt.ClaimStrings{appleAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		})
		tok.Header["kid"] = keyID
		return tok.SignedString(key)
	}, nil
}
