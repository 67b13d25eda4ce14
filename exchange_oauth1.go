package siteauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
)

type oauth1Exchanger struct {
	provider *Provider
	client   *http.Client
	secrets  RequestSecretStore
}

func (x *oauth1Exchanger) config() *oauth1.Config {
	p := x.provider
	return &oauth1.Config{
		ConsumerKey:    p.ClientID,
		ConsumerSecret: p.ClientSecret,
		CallbackURL:    p.CallbackURL,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: p.RequestTokenURL,
			AuthorizeURL:    p.AuthorizationURL,
			AccessTokenURL:  p.AccessTokenURL,
		},
		HTTPClient: x.client,
	}
}

// Begin obtains a request token, keeps its secret for the callback and
// returns the URL the user must be sent to.
func (x *oauth1Exchanger) Begin(ctx context.Context) (string, error) {
	p := x.provider
	if x.secrets == nil {
		return "", oauthErr(OAuthSigninFailed, p.ID, fmt.Errorf("no request secret store"))
	}
	cfg := x.config()
	requestToken, requestSecret, err := cfg.RequestToken()
	if err != nil {
		return "", oauthErr(OAuthSigninFailed, p.ID, err)
	}
	authURL, err := cfg.AuthorizationURL(requestToken)
	if err != nil {
		return "", oauthErr(OAuthSigninFailed, p.ID, err)
	}
	x.secrets.PutRequestSecret(ctx, requestToken, requestSecret)
	return authURL.String(), nil
}

func (x *oauth1Exchanger) FetchToken(ctx context.Context, r *http.Request) (*TokenResult, error) {
	p := x.provider
	requestToken := r.FormValue("oauth_token")
	verifier := r.FormValue("oauth_verifier")
	if requestToken == "" || verifier == "" {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("callback is missing oauth_token or oauth_verifier"))
	}
	// The secret only exists in the session of the browser that began the
	// flow, so it is what binds the callback to that browser.
	var requestSecret string
	if x.secrets != nil {
		requestSecret = x.secrets.TakeRequestSecret(ctx, requestToken)
	}
	if requestSecret == "" {
		return nil, oauthErr(OAuthTokenResponse, p.ID, fmt.Errorf("no request token secret for this browser"))
	}
	accessToken, accessSecret, err := x.config().AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		return nil, oauthErr(OAuthTokenTransport, p.ID, err)
	}
	return &TokenResult{
		Token:  &oauth2.Token{AccessToken: accessToken},
		Secret: accessSecret,
	}, nil
}

func (x *oauth1Exchanger) FetchProfile(ctx context.Context, tok *TokenResult) (map[string]any, error) {
	p := x.provider
	if x.client != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, x.client)
	}
	client := x.config().Client(ctx, oauth1.NewToken(tok.Token.AccessToken, tok.Secret))
	req, err := http.NewRequest(http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return nil, oauthErr(OAuthProfileFetch, p.ID, err)
	}
	return getJSON(ctx, client, p.ID, req)
}
