package siteauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxResponseBytes caps every provider response body we read
const maxResponseBytes = 1 << 20

// TokenResult is what a provider returned from its token endpoint
type TokenResult struct {
	Token   *oauth2.Token
	IDToken string
	// Secret is the OAuth 1.0a access token secret
	Secret string
	Raw    map[string]any
}

// ExchangeResult is the provider-agnostic outcome of a successful callback
type ExchangeResult struct {
	Profile    *Profile
	Account    *ProviderAccount
	RawProfile map[string]any
}

// Exchanger performs one protocol variant of the callback exchange
type Exchanger interface {
	FetchToken(ctx context.Context, r *http.Request) (*TokenResult, error)
	FetchProfile(ctx context.Context, token *TokenResult) (map[string]any, error)
}

// RequestSecretStore keeps OAuth 1.0a request token secrets between the
// sign-in redirect and the callback.
type RequestSecretStore interface {
	PutRequestSecret(ctx context.Context, requestToken, secret string)
	TakeRequestSecret(ctx context.Context, requestToken string) string
}

// ExchangerFor selects the strategy for a provider from its capability flags
func ExchangerFor(p *Provider, client *http.Client, secrets RequestSecretStore) (Exchanger, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch {
	case p.Type == ProviderTypeOAuth:
		return &oauth1Exchanger{provider: p, client: client, secrets: secrets}, nil
	case p.Type == ProviderTypeOAuth2 && p.IDToken:
		return &idTokenExchanger{oauth2Exchanger{provider: p, client: client}}, nil
	case p.Type == ProviderTypeOAuth2:
		return &oauth2Exchanger{provider: p, client: client}, nil
	}
	return nil, &ConfigError{Field: fmt.Sprintf("providers[%s].Type", p.ID), Reason: "not an oauth provider"}
}

// Exchange runs the callback for an OAuth provider: token, then profile, then
// the provider's profile mapping.
func Exchange(ctx context.Context, r *http.Request, x Exchanger, p *Provider) (*ExchangeResult, error) {
	tok, err := x.FetchToken(ctx, r)
	if err != nil {
		return nil, err
	}
	raw, err := x.FetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}
	profile, err := p.Profile(raw)
	if err != nil {
		return nil, oauthErr(OAuthProfileParse, p.ID, err)
	}
	if profile == nil || profile.ID == "" {
		return nil, oauthErr(OAuthProfileParse, p.ID, fmt.Errorf("profile mapping returned no id"))
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))

	account := &ProviderAccount{
		ProviderID:        p.ID,
		ProviderType:      p.Type,
		ProviderAccountID: profile.ID,
	}
	if tok.Token != nil {
		account.AccessToken = tok.Token.AccessToken
		account.RefreshToken = tok.Token.RefreshToken
		if !tok.Token.Expiry.IsZero() {
			exp := tok.Token.Expiry
			account.AccessTokenExpires = &exp
		}
	}
	if p.Type == ProviderTypeOAuth {
		// 1.0a has no refresh token; the token secret is what a client needs to
		// sign further requests.
		account.RefreshToken = tok.Secret
	}
	return &ExchangeResult{Profile: profile, Account: account, RawProfile: raw}, nil
}

// decodePayload parses a JSON object. A JSON string holding an object is
// unwrapped, since some providers double encode.
func decodePayload(body []byte) (map[string]any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		return decodePayload([]byte(t))
	}
	return nil, fmt.Errorf("payload is %T, not an object", v)
}

func readLimited(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func getJSON(ctx context.Context, client *http.Client, providerID string, req *http.Request) (map[string]any, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, oauthErr(OAuthProfileFetch, providerID, err)
	}
	defer resp.Body.Close()
	body, err := readLimited(resp)
	if err != nil {
		return nil, oauthErr(OAuthProfileFetch, providerID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, oauthErr(OAuthProfileFetch, providerID, fmt.Errorf("profile endpoint returned %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	raw, err := decodePayload(body)
	if err != nil {
		return nil, oauthErr(OAuthProfileParse, providerID, err)
	}
	return raw, nil
}

func expiryFrom(raw map[string]any, now time.Time) time.Time {
	secs := StringClaim(raw, "expires_in")
	if secs == "" {
		return time.Time{}
	}
	var n float64
	if _, err := fmt.Sscan(secs, &n); err != nil || n <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(n * float64(time.Second)))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
