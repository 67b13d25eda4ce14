//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	sa "github.com/panyam/siteauth"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	Name          string         `datastore:"name,noindex"`
	Email         string         `datastore:"email"`
	EmailVerified *time.Time     `datastore:"email_verified,noindex"`
	Image         string         `datastore:"image,noindex"`
	CreatedAt     time.Time      `datastore:"created_at"`
	UpdatedAt     time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *sa.User {
	return &sa.User{
		ID:            e.Key.Name,
		Name:          e.Name,
		Email:         e.Email,
		EmailVerified: e.EmailVerified,
		Image:         e.Image,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func UserToEntity(u *sa.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:           key,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserEmailEntity claims an email for one user.
// Key format: the lower-cased email
type UserEmailEntity struct {
	UserID string `datastore:"user_id"`
}

// AccountEntity is the Datastore entity for linked provider accounts.
// Key format: ProviderID + ":" + ProviderAccountID
type AccountEntity struct {
	Key                *datastore.Key `datastore:"__key__"`
	AccountID          string         `datastore:"account_id"`
	UserID             string         `datastore:"user_id"`
	ProviderID         string         `datastore:"provider_id"`
	ProviderType       string         `datastore:"provider_type,noindex"`
	ProviderAccountID  string         `datastore:"provider_account_id"`
	RefreshToken       string         `datastore:"refresh_token,noindex"`
	AccessToken        string         `datastore:"access_token,noindex"`
	AccessTokenExpires *time.Time     `datastore:"access_token_expires,noindex"`
	CreatedAt          time.Time      `datastore:"created_at"`
	UpdatedAt          time.Time      `datastore:"updated_at"`
}

func (e *AccountEntity) ToAccount() *sa.ProviderAccount {
	return &sa.ProviderAccount{
		ID:                 e.AccountID,
		UserID:             e.UserID,
		ProviderID:         e.ProviderID,
		ProviderType:       sa.ProviderType(e.ProviderType),
		ProviderAccountID:  e.ProviderAccountID,
		RefreshToken:       e.RefreshToken,
		AccessToken:        e.AccessToken,
		AccessTokenExpires: e.AccessTokenExpires,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func AccountToEntity(a *sa.ProviderAccount, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:                key,
		AccountID:          a.ID,
		UserID:             a.UserID,
		ProviderID:         a.ProviderID,
		ProviderType:       string(a.ProviderType),
		ProviderAccountID:  a.ProviderAccountID,
		RefreshToken:       a.RefreshToken,
		AccessToken:        a.AccessToken,
		AccessTokenExpires: a.AccessTokenExpires,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

// SessionEntity is the Datastore entity for database sessions.
// Key format: the token digest
type SessionEntity struct {
	Key                *datastore.Key `datastore:"__key__"`
	SessionID          string         `datastore:"session_id"`
	UserID             string         `datastore:"user_id"`
	AccessToken        string         `datastore:"access_token,noindex"`
	AccessTokenExpires time.Time      `datastore:"access_token_expires,noindex"`
	CreatedAt          time.Time      `datastore:"created_at"`
	ExpiresAt          time.Time      `datastore:"expires_at"`
}

func (e *SessionEntity) ToSession() *sa.Session {
	return &sa.Session{
		ID:                 e.SessionID,
		TokenHash:          e.Key.Name,
		UserID:             e.UserID,
		AccessToken:        e.AccessToken,
		AccessTokenExpires: e.AccessTokenExpires,
		CreatedAt:          e.CreatedAt,
		ExpiresAt:          e.ExpiresAt,
	}
}

func SessionToEntity(s *sa.Session, key *datastore.Key) *SessionEntity {
	return &SessionEntity{
		Key:                key,
		SessionID:          s.ID,
		UserID:             s.UserID,
		AccessToken:        s.AccessToken,
		AccessTokenExpires: s.AccessTokenExpires,
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
	}
}

// VerificationTokenEntity is the Datastore entity for email sign-in tokens.
// Key format: Identifier + ":" + TokenHash
type VerificationTokenEntity struct {
	Identifier string    `datastore:"identifier"`
	TokenHash  string    `datastore:"token_hash"`
	CreatedAt  time.Time `datastore:"created_at"`
	ExpiresAt  time.Time `datastore:"expires_at"`
}

func (e *VerificationTokenEntity) ToVerificationToken() *sa.VerificationToken {
	return &sa.VerificationToken{
		Identifier: e.Identifier,
		TokenHash:  e.TokenHash,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
	}
}
