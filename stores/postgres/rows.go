package postgres

import (
	"database/sql"
	"time"

	sa "github.com/panyam/siteauth"
)

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// userRow is a database row representation of sa.User
type userRow struct {
	ID            string       `db:"id"`
	Name          string       `db:"name"`
	Email         string       `db:"email"`
	EmailVerified sql.NullTime `db:"email_verified"`
	Image         string       `db:"image"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r *userRow) toUser() *sa.User {
	return &sa.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		EmailVerified: nullTime(r.EmailVerified),
		Image:         r.Image,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type accountRow struct {
	ID                 string       `db:"id"`
	UserID             string       `db:"user_id"`
	ProviderID         string       `db:"provider_id"`
	ProviderType       string       `db:"provider_type"`
	ProviderAccountID  string       `db:"provider_account_id"`
	RefreshToken       string       `db:"refresh_token"`
	AccessToken        string       `db:"access_token"`
	AccessTokenExpires sql.NullTime `db:"access_token_expires"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func (r *accountRow) toAccount() *sa.ProviderAccount {
	return &sa.ProviderAccount{
		ID:                 r.ID,
		UserID:             r.UserID,
		ProviderID:         r.ProviderID,
		ProviderType:       sa.ProviderType(r.ProviderType),
		ProviderAccountID:  r.ProviderAccountID,
		RefreshToken:       r.RefreshToken,
		AccessToken:        r.AccessToken,
		AccessTokenExpires: nullTime(r.AccessTokenExpires),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type sessionRow struct {
	TokenHash          string    `db:"token_hash"`
	ID                 string    `db:"id"`
	UserID             string    `db:"user_id"`
	AccessToken        string    `db:"access_token"`
	AccessTokenExpires time.Time `db:"access_token_expires"`
	CreatedAt          time.Time `db:"created_at"`
	ExpiresAt          time.Time `db:"expires_at"`
}

func (r *sessionRow) toSession() *sa.Session {
	return &sa.Session{
		ID:                 r.ID,
		TokenHash:          r.TokenHash,
		UserID:             r.UserID,
		AccessToken:        r.AccessToken,
		AccessTokenExpires: r.AccessTokenExpires,
		CreatedAt:          r.CreatedAt,
		ExpiresAt:          r.ExpiresAt,
	}
}

type verificationTokenRow struct {
	Identifier string    `db:"identifier"`
	TokenHash  string    `db:"token_hash"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

func (r *verificationTokenRow) toVerificationToken() *sa.VerificationToken {
	return &sa.VerificationToken{
		Identifier: r.Identifier,
		TokenHash:  r.TokenHash,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}
