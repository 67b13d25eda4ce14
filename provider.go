package siteauth

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Check is a request-forgery check a provider supports
type Check string

const (
	CheckState Check = "state"
)

// ProfileFunc maps a provider's raw user-info payload (or ID token claims) to a Profile
type ProfileFunc func(raw map[string]any) (*Profile, error)

// ClientSecretFunc computes the client secret for each token request, for
// providers that want a freshly signed assertion instead of a static secret.
type ClientSecretFunc func(ctx context.Context, p *Provider) (string, error)

// AuthorizeFunc validates submitted credentials for a credentials provider.
// Returning a nil profile with a nil error means the credentials were rejected.
type AuthorizeFunc func(ctx context.Context, credentials map[string]string) (*Profile, error)

// CredentialField describes one input on a credentials sign-in form
type CredentialField struct {
	Name        string
	Label       string
	Type        string
	Placeholder string
}

// Provider is the complete option set for every provider type. Fields that do
// not apply to a provider's Type are ignored.
type Provider struct {
	ID   string
	Name string
	Type ProviderType

	// OAuth 1.0a and 2.x
	ClientID         string
	ClientSecret     string
	ClientSecretFunc ClientSecretFunc
	Scopes           []string

	AuthorizationURL    string
	AuthorizationParams map[string]string
	RequestTokenURL     string // OAuth 1.0a only
	AccessTokenURL      string
	ProfileURL          string

	// Params and Headers override the computed token request defaults
	Params  map[string]string
	Headers map[string]string

	Checks []Check

	// IDToken providers take the profile from the id_token claims instead of
	// calling ProfileURL. The token is decoded without signature checks unless
	// VerifyIDToken is set, in which case Issuer and JWKSURL are required.
	IDToken       bool
	VerifyIDToken bool
	Issuer        string
	JWKSURL       string

	// DisableTokenAuthHeader stops the "Authorization: Bearer <code>" header on
	// token requests, which some providers reject.
	DisableTokenAuthHeader bool

	// ProfileTokenInQuery sends the access token as ?access_token= instead of a bearer header
	ProfileTokenInQuery bool

	// ClientIDHeader sends a Client-ID header on token and profile requests.
	// It is off unless set; the Twitch preset turns it on.
	ClientIDHeader bool

	// FormPost providers return the authorization code in a POST body. Their
	// callback rejects GET and ignores a code in the query string.
	FormPost bool

	Profile ProfileFunc

	// Credentials
	Authorize AuthorizeFunc
	Fields    []CredentialField

	// Email
	MaxAge time.Duration

	// Computed by NewRegistry
	SigninURL   string
	CallbackURL string

	verifier *oidc.IDTokenVerifier
}

// HasCheck reports whether the provider performs the given check
func (p *Provider) HasCheck(c Check) bool {
	return slices.Contains(p.Checks, c)
}

// IsOAuth reports whether the provider uses either OAuth protocol version
func (p *Provider) IsOAuth() bool {
	return p.Type == ProviderTypeOAuth || p.Type == ProviderTypeOAuth2
}

// Resolve layers override on top of base. Precedence is explicit user
// override, then preset default, then the library default filled in by
// NewRegistry:
//
//   - strings, funcs and durations: a non-zero override wins
//   - slices: a non-nil override replaces (an empty non-nil slice clears)
//   - maps: merged key by key, override keys win
//   - bools: an override can switch an option on, never off
func Resolve(base, override Provider) Provider {
	out := base
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&out.ID, override.ID)
	setStr(&out.Name, override.Name)
	if override.Type != "" {
		out.Type = override.Type
	}
	setStr(&out.ClientID, override.ClientID)
	setStr(&out.ClientSecret, override.ClientSecret)
	setStr(&out.AuthorizationURL, override.AuthorizationURL)
	setStr(&out.RequestTokenURL, override.RequestTokenURL)
	setStr(&out.AccessTokenURL, override.AccessTokenURL)
	setStr(&out.ProfileURL, override.ProfileURL)
	setStr(&out.Issuer, override.Issuer)
	setStr(&out.JWKSURL, override.JWKSURL)
	if override.ClientSecretFunc != nil {
		out.ClientSecretFunc = override.ClientSecretFunc
	}
	if override.Profile != nil {
		out.Profile = override.Profile
	}
	if override.Authorize != nil {
		out.Authorize = override.Authorize
	}
	if override.MaxAge != 0 {
		out.MaxAge = override.MaxAge
	}
	if override.Scopes != nil {
		out.Scopes = slices.Clone(override.Scopes)
	}
	if override.Checks != nil {
		out.Checks = slices.Clone(override.Checks)
	}
	if override.Fields != nil {
		out.Fields = slices.Clone(override.Fields)
	}
	out.AuthorizationParams = mergeMaps(base.AuthorizationParams, override.AuthorizationParams)
	out.Params = mergeMaps(base.Params, override.Params)
	out.Headers = mergeMaps(base.Headers, override.Headers)
	out.IDToken = base.IDToken || override.IDToken
	out.VerifyIDToken = base.VerifyIDToken || override.VerifyIDToken
	out.DisableTokenAuthHeader = base.DisableTokenAuthHeader || override.DisableTokenAuthHeader
	out.ProfileTokenInQuery = base.ProfileTokenInQuery || override.ProfileTokenInQuery
	out.ClientIDHeader = base.ClientIDHeader || override.ClientIDHeader
	out.FormPost = base.FormPost || override.FormPost
	return out
}

func mergeMaps(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

// Registry is the immutable set of configured providers
type Registry struct {
	providers []*Provider
	byID      map[string]*Provider
}

// NewRegistry validates providers, fills library defaults and computes each
// provider's sign-in and callback URLs under authURL (the site origin plus
// the auth base path, e.g. "https://example.com/api/auth").
func NewRegistry(authURL string, providers ...Provider) (*Registry, error) {
	authURL = strings.TrimSuffix(authURL, "/")
	r := &Registry{byID: map[string]*Provider{}}
	for i := range providers {
		p := providers[i]
		if err := p.finalize(authURL); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, &ConfigError{Field: "providers", Reason: fmt.Sprintf("duplicate provider id %q", p.ID)}
		}
		r.providers = append(r.providers, &p)
		r.byID[p.ID] = &p
	}
	if len(r.providers) == 0 {
		return nil, &ConfigError{Field: "providers", Reason: "no providers configured"}
	}
	return r, nil
}

// Get returns the provider with the given id. The returned value is shared
// and must not be modified.
func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// List returns providers in configuration order
func (r *Registry) List() []*Provider {
	return slices.Clone(r.providers)
}

// HasType reports whether any provider is of type t
func (r *Registry) HasType(t ProviderType) bool {
	return slices.ContainsFunc(r.providers, func(p *Provider) bool { return p.Type == t })
}

func (p *Provider) finalize(authURL string) error {
	field := func(name string) string { return fmt.Sprintf("providers[%s].%s", p.ID, name) }
	if p.ID == "" {
		return &ConfigError{Field: "providers", Reason: "provider id is required"}
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Profile == nil {
		p.Profile = DefaultProfile
	}
	switch p.Type {
	case ProviderTypeOAuth2:
		if p.ClientID == "" {
			return &ConfigError{Field: field("ClientID"), Reason: "required"}
		}
		if p.AuthorizationURL == "" || p.AccessTokenURL == "" {
			return &ConfigError{Field: field("AuthorizationURL"), Reason: "authorization and token endpoints are required"}
		}
		if !p.IDToken && p.ProfileURL == "" {
			return &ConfigError{Field: field("ProfileURL"), Reason: "required unless IDToken is set"}
		}
		if p.VerifyIDToken {
			if p.Issuer == "" || p.JWKSURL == "" {
				return &ConfigError{Field: field("VerifyIDToken"), Reason: "Issuer and JWKSURL are required"}
			}
			keys := oidc.NewRemoteKeySet(context.Background(), p.JWKSURL)
			p.verifier = oidc.NewVerifier(p.Issuer, keys, &oidc.Config{ClientID: p.ClientID})
		}
	case ProviderTypeOAuth:
		if p.ClientID == "" {
			return &ConfigError{Field: field("ClientID"), Reason: "required"}
		}
		if p.RequestTokenURL == "" || p.AuthorizationURL == "" || p.AccessTokenURL == "" || p.ProfileURL == "" {
			return &ConfigError{Field: field("RequestTokenURL"), Reason: "request token, authorization, access token and profile URLs are required"}
		}
	case ProviderTypeEmail:
		if p.MaxAge <= 0 {
			p.MaxAge = DefaultVerificationMaxAge
		}
	case ProviderTypeCredentials:
		if p.Authorize == nil {
			return &ConfigError{Field: field("Authorize"), Reason: "required"}
		}
	default:
		return &ConfigError{Field: field("Type"), Reason: fmt.Sprintf("unknown provider type %q", p.Type)}
	}
	p.Scopes = slices.Clone(p.Scopes)
	p.Checks = slices.Clone(p.Checks)
	p.AuthorizationParams = maps.Clone(p.AuthorizationParams)
	p.Params = maps.Clone(p.Params)
	p.Headers = maps.Clone(p.Headers)
	p.SigninURL = authURL + "/signin/" + p.ID
	p.CallbackURL = authURL + "/callback/" + p.ID
	return nil
}

// DefaultProfile maps the common OpenID Connect style claims
func DefaultProfile(raw map[string]any) (*Profile, error) {
	id := StringClaim(raw, "sub", "id")
	if id == "" {
		return nil, fmt.Errorf("profile has no id or sub")
	}
	return &Profile{
		ID:    id,
		Name:  StringClaim(raw, "name", "preferred_username", "login"),
		Email: StringClaim(raw, "email"),
		Image: StringClaim(raw, "picture", "image", "avatar_url"),
	}, nil
}

// StringClaim returns the first of keys present in raw as a string. JSON
// numbers are formatted without exponent so numeric ids survive.
func StringClaim(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case int64:
			return strconv.FormatInt(v, 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}
