//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	sa "github.com/panyam/siteauth"
)

// UserModel is the GORM model for users. Email is a pointer so that users
// without one do not collide on the unique index.
type UserModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	Name          string  `gorm:"size:255"`
	Email         *string `gorm:"size:320;uniqueIndex"`
	EmailVerified *time.Time
	Image         string `gorm:"size:1024"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *sa.User {
	u := &sa.User{
		ID:            m.ID,
		Name:          m.Name,
		EmailVerified: m.EmailVerified,
		Image:         m.Image,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Email != nil {
		u.Email = *m.Email
	}
	return u
}

func UserToModel(u *sa.User) *UserModel {
	m := &UserModel{
		ID:            u.ID,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if u.Email != "" {
		email := u.Email
		m.Email = &email
	}
	return m
}

// AccountModel is the GORM model for linked provider accounts
type AccountModel struct {
	ID                 string `gorm:"primaryKey;size:64"`
	UserID             string `gorm:"size:64;index"`
	ProviderID         string `gorm:"size:64;uniqueIndex:idx_accounts_provider"`
	ProviderType       string `gorm:"size:32"`
	ProviderAccountID  string `gorm:"size:255;uniqueIndex:idx_accounts_provider"`
	RefreshToken       string `gorm:"type:text"`
	AccessToken        string `gorm:"type:text"`
	AccessTokenExpires *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *sa.ProviderAccount {
	return &sa.ProviderAccount{
		ID:                 m.ID,
		UserID:             m.UserID,
		ProviderID:         m.ProviderID,
		ProviderType:       sa.ProviderType(m.ProviderType),
		ProviderAccountID:  m.ProviderAccountID,
		RefreshToken:       m.RefreshToken,
		AccessToken:        m.AccessToken,
		AccessTokenExpires: m.AccessTokenExpires,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func AccountToModel(a *sa.ProviderAccount) *AccountModel {
	return &AccountModel{
		ID:                 a.ID,
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

// SessionModel is the GORM model for database sessions
type SessionModel struct {
	TokenHash          string `gorm:"primaryKey;size:64"`
	ID                 string `gorm:"size:64;uniqueIndex"`
	UserID             string `gorm:"size:64;index"`
	AccessToken        string `gorm:"size:64"`
	AccessTokenExpires time.Time
	CreatedAt          time.Time
	ExpiresAt          time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *sa.Session {
	return &sa.Session{
		ID:                 m.ID,
		TokenHash:          m.TokenHash,
		UserID:             m.UserID,
		AccessToken:        m.AccessToken,
		AccessTokenExpires: m.AccessTokenExpires,
		CreatedAt:          m.CreatedAt,
		ExpiresAt:          m.ExpiresAt,
	}
}

func SessionToModel(s *sa.Session) *SessionModel {
	return &SessionModel{
		ID:                 s.ID,
		TokenHash:          s.TokenHash,
		UserID:             s.UserID,
		AccessToken:        s.AccessToken,
		AccessTokenExpires: s.AccessTokenExpires,
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
	}
}

// VerificationTokenModel is the GORM model for email sign-in tokens
type VerificationTokenModel struct {
	Identifier string `gorm:"primaryKey;size:320"`
	TokenHash  string `gorm:"primaryKey;size:64"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

func (VerificationTokenModel) TableName() string {
	return "verification_tokens"
}

func (m *VerificationTokenModel) ToVerificationToken() *sa.VerificationToken {
	return &sa.VerificationToken{
		Identifier: m.Identifier,
		TokenHash:  m.TokenHash,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
	}
}

func VerificationTokenToModel(t *sa.VerificationToken) *VerificationTokenModel {
	return &VerificationTokenModel{
		Identifier: t.Identifier,
		TokenHash:  t.TokenHash,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
	}
}
