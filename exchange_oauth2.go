package siteauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// AuthorizationURL builds the provider's authorization redirect for an OAuth
// 2 provider, carrying the state derived from csrfValue when the provider
// checks state.
func AuthorizationURL(p *Provider, csrfValue string) string {
	cfg := oauth2.Config{
		ClientID:    p.ClientID,
		RedirectURL: p.CallbackURL,
		Scopes:      p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizationURL,
			TokenURL: p.AccessTokenURL,
		},
	}
	var opts []oauth2.AuthCodeOption
	for k, v := range p.AuthorizationParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(SigninParams(p, csrfValue)["state"], opts...)
}

type oauth2Exchanger struct {
	provider *Provider
	client   *http.Client
}

func (x *oauth2Exchanger) FetchToken(ctx context.Context, r *http.Request) (*TokenResult, error) {
	p := x.provider
	code := r.FormValue("code")
	if p.FormPost {
		code = r.PostFormValue("code")
	}
	if code == "" {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("no authorization code in callback (error=%q)", r.FormValue("error")))
	}

	form, err := x.tokenParams(ctx, code)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.AccessTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, oauthErr(OAuthTokenTransport, p.ID, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if !p.DisableTokenAuthHeader {
		req.Header.Set("Authorization", "Bearer "+code)
	}
	if p.ClientIDHeader {
		req.Header.Set("Client-ID", p.ClientID)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, oauthErr(OAuthTokenTransport, p.ID, err)
	}
	defer resp.Body.Close()
	body, err := readLimited(resp)
	if err != nil {
		return nil, oauthErr(OAuthTokenTransport, p.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	raw, err := parseTokenBody(body)
	if err != nil {
		return nil, oauthErr(OAuthTokenResponse, p.ID, err)
	}
	if e := StringClaim(raw, "error"); e != "" {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("%s: %s", e, StringClaim(raw, "error_description")))
	}

	result := &TokenResult{
		Token: (&oauth2.Token{
			AccessToken:  StringClaim(raw, "access_token"),
			RefreshToken: StringClaim(raw, "refresh_token"),
			TokenType:    StringClaim(raw, "token_type"),
			Expiry:       expiryFrom(raw, time.Now()),
		}).WithExtra(raw),
		IDToken: StringClaim(raw, "id_token"),
		Raw:     raw,
	}
	if result.Token.AccessToken == "" && !p.IDToken {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("token response has no access_token"))
	}
	return result, nil
}

// tokenParams applies provider overrides first, then fills the computed
// defaults they left unset.
func (x *oauth2Exchanger) tokenParams(ctx context.Context, code string) (url.Values, error) {
	p := x.provider
	form := url.Values{}
	for k, v := range p.Params {
		form.Set(k, v)
	}
	setDefault := func(k, v string) {
		if v != "" && !form.Has(k) {
			form.Set(k, v)
		}
	}
	setDefault("grant_type", "authorization_code")
	codeParam := "code"
	if form.Get("grant_type") == "refresh_token" {
		codeParam = "refresh_token"
	}
	setDefault(codeParam, code)
	setDefault("client_id", p.ClientID)

	secret := p.ClientSecret
	if p.ClientSecretFunc != nil {
		s, err := p.ClientSecretFunc(ctx, p)
		if err != nil {
			return nil, oauthErr(OAuthTokenTransport, p.ID, fmt.Errorf("computing client secret: %w", err))
		}
		secret = s
	}
	setDefault("client_secret", secret)
	setDefault("redirect_uri", p.CallbackURL)
	return form, nil
}

// parseTokenBody reads JSON, falling back to form encoding for providers
// that answer with application/x-www-form-urlencoded.
func parseTokenBody(body []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		return raw, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("token response is neither json nor form encoded: %w", err)
	}
	raw = make(map[string]any, len(values))
	for k := range values {
		raw[k] = values.Get(k)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty token response")
	}
	return raw, nil
}

func (x *oauth2Exchanger) FetchProfile(ctx context.Context, tok *TokenResult) (map[string]any, error) {
	p := x.provider
	profileURL := p.ProfileURL
	if p.ProfileTokenInQuery {
		u, err := url.Parse(profileURL)
		if err != nil {
			return nil, oauthErr(OAuthProfileFetch, p.ID, err)
		}
		q := u.Query()
		q.Set("access_token", tok.Token.AccessToken)
		u.RawQuery = q.Encode()
		profileURL = u.String()
	}
	req, err := http.NewRequest(http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, oauthErr(OAuthProfileFetch, p.ID, err)
	}
	if !p.ProfileTokenInQuery {
		req.Header.Set("Authorization", "Bearer "+tok.Token.AccessToken)
	}
	if p.ClientIDHeader {
		req.Header.Set("Client-ID", p.ClientID)
	}
	req.Header.Set("Accept", "application/json")
	return getJSON(ctx, x.client, p.ID, req)
}

// idTokenExchanger shares the token request with oauth2Exchanger but takes
// the profile from the id_token claims.
type idTokenExchanger struct {
	oauth2Exchanger
}

func (x *idTokenExchanger) FetchProfile(ctx context.Context, tok *TokenResult) (map[string]any, error) {
	p := x.provider
	if tok.IDToken == "" {
		return nil, oauthErr(OAuthMissingIDToken, p.ID, nil)
	}
	if p.verifier != nil {
		verified, err := p.verifier.Verify(ctx, tok.IDToken)
		if err != nil {
			return nil, oauthErr(OAuthProfileParse, p.ID, fmt.Errorf("id token verification: %w", err))
		}
		claims := map[string]any{}
		if err := verified.Claims(&claims); err != nil {
			return nil, oauthErr(OAuthProfileParse, p.ID, err)
		}
		return claims, nil
	}

	// Claims are trusted as delivered over the TLS token response; no
	// signature check happens unless VerifyIDToken is set.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.IDToken, claims); err != nil {
		return nil, oauthErr(OAuthProfileParse, p.ID, fmt.Errorf("decoding id token: %w", err))
	}
	return map[string]any(claims), nil
}
