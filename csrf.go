package siteauth

import (
	"crypto/hmac"
	"crypto/subtle"
	"strings"
)

// CSRFToken is a double-submit token. The cookie carries "value|signature";
// the value alone is echoed in POST bodies.
type CSRFToken struct {
	Value     string
	Signature string
}

// CookieValue is the string stored in the csrf cookie
func (t CSRFToken) CookieValue() string {
	return t.Value + "|" + t.Signature
}

// CSRFGuard issues and verifies signed double-submit tokens.
type CSRFGuard struct {
	key []byte
}

// NewCSRFGuard creates a guard that signs with key
func NewCSRFGuard(key []byte) *CSRFGuard {
	return &CSRFGuard{key: key}
}

// Issue mints a fresh random token and signs it
func (g *CSRFGuard) Issue() (CSRFToken, error) {
	value, err := GenerateSecureToken()
	if err != nil {
		return CSRFToken{}, err
	}
	return CSRFToken{Value: value, Signature: g.sign(value)}, nil
}

// Verify checks a cookie value. A cookie whose signature matches is returned
// with trusted=true. Anything else (absent, malformed, forged) yields a newly
// minted token with trusted=false that the caller must set on the response.
func (g *CSRFGuard) Verify(cookieValue string) (token CSRFToken, trusted bool, err error) {
	if value, sig, ok := strings.Cut(cookieValue, "|"); ok && value != "" {
		if hmac.Equal([]byte(g.sign(value)), []byte(sig)) {
			return CSRFToken{Value: value, Signature: sig}, true, nil
		}
	}
	token, err = g.Issue()
	return token, false, err
}

// CheckPost reports whether a POST is verified: the cookie token must be
// trusted and the body must echo its value.
func (g *CSRFGuard) CheckPost(token CSRFToken, trusted bool, bodyToken string) bool {
	if !trusted || bodyToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token.Value), []byte(bodyToken)) == 1
}

func (g *CSRFGuard) sign(value string) string {
	return hmacHex(g.key, value)
}
