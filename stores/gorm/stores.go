//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	sa "github.com/panyam/siteauth"
)

// AutoMigrate runs database migrations for all siteauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AccountModel{},
		&SessionModel{},
		&VerificationTokenModel{},
	)
}

// GORMAdapter implements sa.Adapter using GORM
type GORMAdapter struct {
	db *gorm.DB
}

var (
	_ sa.Adapter               = (*GORMAdapter)(nil)
	_ sa.ExpiredSessionSweeper = (*GORMAdapter)(nil)
)

func NewGORMAdapter(db *gorm.DB) *GORMAdapter {
	return &GORMAdapter{db: db}
}

// translate maps unique violations to sa.ErrDuplicate whether or not the
// gorm.DB was opened with TranslateError.
func (s *GORMAdapter) translate(err error) error {
	if err == nil {
		return nil
	}
	if t, ok := s.db.Dialector.(gorm.ErrorTranslator); ok {
		err = t.Translate(err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return sa.ErrDuplicate
	}
	return err
}

// first loads a single row, mapping not found to found=false
func first[T any](db *gorm.DB, out *T, query string, args ...any) (found bool, err error) {
	err = db.Where(query, args...).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// =============================================================================
// Users
// =============================================================================

func (s *GORMAdapter) FindUserByID(ctx context.Context, id string) (*sa.User, error) {
	var model UserModel
	found, err := first(s.db.WithContext(ctx), &model, "id = ?", id)
	if err != nil || !found {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *GORMAdapter) FindUserByEmail(ctx context.Context, email string) (*sa.User, error) {
	if email == "" {
		return nil, nil
	}
	var model UserModel
	found, err := first(s.db.WithContext(ctx), &model, "email = ?", email)
	if err != nil || !found {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *GORMAdapter) InsertUser(ctx context.Context, user *sa.User) error {
	return s.translate(s.db.WithContext(ctx).Create(UserToModel(user)).Error)
}

func (s *GORMAdapter) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id).Error
}

// =============================================================================
// Accounts
// =============================================================================

func (s *GORMAdapter) FindAccountByProvider(ctx context.Context, providerID, providerAccountID string) (*sa.ProviderAccount, error) {
	var model AccountModel
	found, err := first(s.db.WithContext(ctx), &model, "provider_id = ? AND provider_account_id = ?", providerID, providerAccountID)
	if err != nil || !found {
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *GORMAdapter) LinkAccount(ctx context.Context, account *sa.ProviderAccount) error {
	return s.translate(s.db.WithContext(ctx).Create(AccountToModel(account)).Error)
}

// =============================================================================
// Sessions
// =============================================================================

func (s *GORMAdapter) CreateSession(ctx context.Context, session *sa.Session) error {
	return s.translate(s.db.WithContext(ctx).Create(SessionToModel(session)).Error)
}

func (s *GORMAdapter) GetSessionByToken(ctx context.Context, tokenHash string) (*sa.Session, error) {
	var model SessionModel
	found, err := first(s.db.WithContext(ctx), &model, "token_hash = ?", tokenHash)
	if err != nil || !found {
		return nil, err
	}
	return model.ToSession(), nil
}

func (s *GORMAdapter) UpdateSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Model(&SessionModel{}).
		Where("token_hash = ?", tokenHash).
		Update("expires_at", expiresAt).Error
}

func (s *GORMAdapter) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "token_hash = ?", tokenHash).Error
}

// CleanupExpiredSessions removes sessions that expired at or before now
func (s *GORMAdapter) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&SessionModel{})
	return int(result.RowsAffected), result.Error
}

// =============================================================================
// Verification tokens
// =============================================================================

func (s *GORMAdapter) CreateEmailVerificationToken(ctx context.Context, token *sa.VerificationToken) error {
	return s.translate(s.db.WithContext(ctx).Create(VerificationTokenToModel(token)).Error)
}

// ConsumeEmailVerificationToken reads and deletes the token in one
// transaction. Only the caller whose delete removes the row gets it back.
func (s *GORMAdapter) ConsumeEmailVerificationToken(ctx context.Context, identifier, tokenHash string) (*sa.VerificationToken, error) {
	var out *sa.VerificationToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model VerificationTokenModel
		found, err := first(tx, &model, "identifier = ? AND token_hash = ?", identifier, tokenHash)
		if err != nil || !found {
			return err
		}
		result := tx.Where("identifier = ? AND token_hash = ?", identifier, tokenHash).Delete(&VerificationTokenModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			out = model.ToVerificationToken()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
