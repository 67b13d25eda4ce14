package siteauth

import (
	"context"
	"errors"
	"time"
)

// ProviderType is the protocol family a provider speaks
type ProviderType string

const (
	ProviderTypeOAuth       ProviderType = "oauth"  // OAuth 1.0a
	ProviderTypeOAuth2      ProviderType = "oauth2" // OAuth 2.x, optionally OpenID Connect
	ProviderTypeEmail       ProviderType = "email"
	ProviderTypeCredentials ProviderType = "credentials"
)

// Profile is the normalized identity returned by a provider for one sign-in attempt.
// Email is lower-cased and empty when the provider did not return one.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// ProviderAccount is one external identity linked to a User.
type ProviderAccount struct {
	ID                 string       `json:"id"`
	UserID             string       `json:"user_id"`
	ProviderID         string       `json:"provider_id"`
	ProviderType       ProviderType `json:"provider_type"`
	ProviderAccountID  string       `json:"provider_account_id"`
	RefreshToken       string       `json:"refresh_token,omitempty"`
	AccessToken        string       `json:"access_token,omitempty"`
	AccessTokenExpires *time.Time   `json:"access_token_expires,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// User is the durable identity record. Email is unique when set.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
	Image         string     `json:"image,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Session is a persisted session record. The raw session token only lives in
// the client's cookie; stores see its SHA-256 digest in TokenHash.
type Session struct {
	ID                 string    `json:"id"`
	TokenHash          string    `json:"token_hash"`
	UserID             string    `json:"user_id"`
	AccessToken        string    `json:"access_token,omitempty"`
	AccessTokenExpires time.Time `json:"access_token_expires"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry at time now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// VerificationToken backs a passwordless email link. Only the keyed hash of
// the token is stored.
type VerificationToken struct {
	Identifier string    `json:"identifier"`
	TokenHash  string    `json:"token_hash"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the token has passed its expiry at time now
func (v *VerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// ErrDuplicate is returned by an Adapter when an insert would violate a
// uniqueness constraint: User.Email or (ProviderID, ProviderAccountID).
var ErrDuplicate = errors.New("siteauth: duplicate record")

// Adapter is the persistence collaborator.
//
// Every Find/Get/Consume method returns (nil, nil) when nothing matches, so a
// non-nil error always means the storage itself failed.
type Adapter interface {
	// FindUserByID retrieves a user by id
	FindUserByID(ctx context.Context, id string) (*User, error)

	// FindUserByEmail retrieves a user by lower-cased email
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// InsertUser stores a new user. Returns ErrDuplicate if the email is taken.
	InsertUser(ctx context.Context, user *User) error

	// DeleteUser removes a user. Deleting a missing user is not an error.
	DeleteUser(ctx context.Context, id string) error

	// FindAccountByProvider looks up the account linked for an external identity
	FindAccountByProvider(ctx context.Context, providerID, providerAccountID string) (*ProviderAccount, error)

	// LinkAccount stores an account for account.UserID. Returns ErrDuplicate if
	// (ProviderID, ProviderAccountID) is already linked.
	LinkAccount(ctx context.Context, account *ProviderAccount) error

	// CreateSession stores a new session record
	CreateSession(ctx context.Context, session *Session) error

	// GetSessionByToken retrieves a session by the digest of its token
	GetSessionByToken(ctx context.Context, tokenHash string) (*Session, error)

	// UpdateSession extends a session's expiry
	UpdateSession(ctx context.Context, tokenHash string, expiresAt time.Time) error

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, tokenHash string) error

	// CreateEmailVerificationToken stores a new verification token
	CreateEmailVerificationToken(ctx context.Context, token *VerificationToken) error

	// ConsumeEmailVerificationToken atomically fetches and deletes a
	// verification token so that it can be used only once.
	ConsumeEmailVerificationToken(ctx context.Context, identifier, tokenHash string) (*VerificationToken, error)
}

// ExpiredSessionSweeper is implemented by adapters that can bulk-delete
// sessions which expired without being read again.
type ExpiredSessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error)
}
