package siteauth

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, user-visible code carried on the error page redirect
type ErrorCode string

const (
	ErrCodeSignin             ErrorCode = "Signin"
	ErrCodeOAuthSignin        ErrorCode = "OAuthSignin"
	ErrCodeOAuthCallback      ErrorCode = "OAuthCallback"
	ErrCodeOAuthCreateAccount ErrorCode = "OAuthCreateAccount"
	ErrCodeEmailCreateAccount ErrorCode = "EmailCreateAccount"
	ErrCodeEmailSignin        ErrorCode = "EmailSignin"
	ErrCodeCallback           ErrorCode = "Callback"
	ErrCodeAccountNotLinked   ErrorCode = "AccountNotLinked"
	ErrCodeEmailRequired      ErrorCode = "EmailRequired"
	ErrCodeVerification       ErrorCode = "Verification"
	ErrCodeConfiguration      ErrorCode = "Configuration"
	ErrCodeUnknown            ErrorCode = "Unknown"
)

// ParseErrorCode maps a query value back to a known code, defaulting to Unknown
func ParseErrorCode(s string) ErrorCode {
	switch c := ErrorCode(s); c {
	case ErrCodeSignin, ErrCodeOAuthSignin, ErrCodeOAuthCallback, ErrCodeOAuthCreateAccount,
		ErrCodeEmailCreateAccount, ErrCodeEmailSignin, ErrCodeCallback, ErrCodeAccountNotLinked,
		ErrCodeEmailRequired, ErrCodeVerification, ErrCodeConfiguration:
		return c
	}
	return ErrCodeUnknown
}

var (
	ErrCSRFMismatch        = errors.New("csrf token missing or invalid")
	ErrStateMissing        = errors.New("oauth state missing from callback")
	ErrStateMismatch       = errors.New("oauth state does not match csrf token")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrInvalidCallbackURL  = errors.New("callback url is not on this site")
	ErrVerificationExpired = errors.New("verification token invalid or expired")
)

// LinkErrorKind enumerates the ways the account linker can refuse a sign-in
type LinkErrorKind int

const (
	// LinkAccountNotLinked means the profile email belongs to another user and
	// there is no existing link for this provider identity.
	LinkAccountNotLinked LinkErrorKind = iota + 1
	// LinkCreateUserFailed means inserting the new user failed in storage.
	LinkCreateUserFailed
	// LinkStorageFailed covers every other persistence failure.
	LinkStorageFailed
)

func (k LinkErrorKind) String() string {
	switch k {
	case LinkAccountNotLinked:
		return "account not linked"
	case LinkCreateUserFailed:
		return "create user failed"
	case LinkStorageFailed:
		return "storage failed"
	}
	return "unknown"
}

// LinkError is returned by AccountLinker.Handle
type LinkError struct {
	Kind LinkErrorKind
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err == nil {
		return "link: " + e.Kind.String()
	}
	return fmt.Sprintf("link: %s: %v", e.Kind, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// IsLinkError reports whether err is a LinkError of the given kind
func IsLinkError(err error, kind LinkErrorKind) bool {
	var le *LinkError
	return errors.As(err, &le) && le.Kind == kind
}

// OAuthErrorKind enumerates exchange failures so callers can tell them apart
type OAuthErrorKind int

const (
	OAuthSigninFailed OAuthErrorKind = iota + 1
	OAuthTokenTransport
	OAuthTokenResponse
	OAuthMissingIDToken
	OAuthProfileFetch
	OAuthProfileParse
)

func (k OAuthErrorKind) String() string {
	switch k {
	case OAuthSigninFailed:
		return "signin failed"
	case OAuthTokenTransport:
		return "token request failed"
	case OAuthTokenResponse:
		return "token response rejected"
	case OAuthMissingIDToken:
		return "id token missing"
	case OAuthProfileFetch:
		return "profile fetch failed"
	case OAuthProfileParse:
		return "profile parse failed"
	}
	return "unknown"
}

// OAuthError is returned by the exchange strategies
type OAuthError struct {
	Kind     OAuthErrorKind
	Provider string
	Err      error
}

func (e *OAuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oauth %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("oauth %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *OAuthError) Unwrap() error { return e.Err }

func oauthErr(kind OAuthErrorKind, provider string, err error) error {
	return &OAuthError{Kind: kind, Provider: provider, Err: err}
}

// ConfigError is returned by New and NewRegistry for an unusable configuration
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("siteauth config: %s: %s", e.Field, e.Reason)
}

// CodeFor maps an error raised while handling a provider flow to the code
// shown on the error page.
func CodeFor(err error, providerType ProviderType) ErrorCode {
	if err == nil {
		return ""
	}
	var oe *OAuthError
	var le *LinkError
	var ce *ConfigError
	switch {
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrStateMissing):
		return ErrCodeOAuthCallback
	case errors.Is(err, ErrVerificationExpired):
		return ErrCodeVerification
	case errors.As(err, &ce):
		return ErrCodeConfiguration
	case errors.As(err, &oe):
		if oe.Kind == OAuthSigninFailed {
			return ErrCodeOAuthSignin
		}
		return ErrCodeOAuthCallback
	case errors.As(err, &le):
		switch le.Kind {
		case LinkAccountNotLinked:
			return ErrCodeAccountNotLinked
		case LinkCreateUserFailed:
			if providerType == ProviderTypeEmail {
				return ErrCodeEmailCreateAccount
			}
			return ErrCodeOAuthCreateAccount
		}
		return ErrCodeCallback
	}
	return ErrCodeCallback
}
