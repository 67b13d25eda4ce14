// Package postgres implements siteauth.Adapter on PostgreSQL with sqlx and
// lib/pq. The schema ships as goose migrations embedded in the binary; call
// Migrate once at startup.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/stores/postgres/migrations"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

// Connect opens a pooled connection to url
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Migrate applies any pending schema migrations
func Migrate(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(migrations.Files)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "migrate: set goose dialect")
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return errors.Wrap(err, "migrate: goose up")
	}
	return nil
}

// Adapter implements sa.Adapter using PostgreSQL
type Adapter struct {
	db *sqlx.DB
}

var (
	_ sa.Adapter               = (*Adapter)(nil)
	_ sa.ExpiredSessionSweeper = (*Adapter)(nil)
)

// NewAdapter wraps a connected database. The schema must already be migrated.
func NewAdapter(db *sqlx.DB) *Adapter {
	return &Adapter{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// get runs a single-row query, mapping no rows to found=false
func (a *Adapter) get(ctx context.Context, dest any, query string, args ...any) (found bool, err error) {
	if err := a.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// Users
// =============================================================================

const userColumns = `id, name, COALESCE(email, '') AS email, email_verified, image, created_at, updated_at`

func (a *Adapter) FindUserByID(ctx context.Context, id string) (*sa.User, error) {
	var row userRow
	found, err := a.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find user %s", id)
	}
	if !found {
		return nil, nil
	}
	return row.toUser(), nil
}

func (a *Adapter) FindUserByEmail(ctx context.Context, email string) (*sa.User, error) {
	if email == "" {
		return nil, nil
	}
	var row userRow
	found, err := a.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, errors.Wrap(err, "find user by email")
	}
	if !found {
		return nil, nil
	}
	return row.toUser(), nil
}

func (a *Adapter) InsertUser(ctx context.Context, user *sa.User) error {
	const query = `
		INSERT INTO users (id, name, email, email_verified, image, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`
	_, err := a.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.EmailVerified,
		user.Image,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sa.ErrDuplicate
	}
	return errors.Wrap(err, "insert user")
}

func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return errors.Wrap(err, "delete user")
}

// =============================================================================
// Accounts
// =============================================================================

func (a *Adapter) FindAccountByProvider(ctx context.Context, providerID, providerAccountID string) (*sa.ProviderAccount, error) {
	const query = `
		SELECT id, user_id, provider_id, provider_type, provider_account_id,
		       refresh_token, access_token, access_token_expires, created_at, updated_at
		FROM accounts
		WHERE provider_id = $1 AND provider_account_id = $2
	`
	var row accountRow
	found, err := a.get(ctx, &row, query, providerID, providerAccountID)
	if err != nil {
		return nil, errors.Wrap(err, "find account")
	}
	if !found {
		return nil, nil
	}
	return row.toAccount(), nil
}

func (a *Adapter) LinkAccount(ctx context.Context, account *sa.ProviderAccount) error {
	const query = `
		INSERT INTO accounts (id, user_id, provider_id, provider_type, provider_account_id,
		                      refresh_token, access_token, access_token_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := a.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.ProviderID,
		string(account.ProviderType),
		account.ProviderAccountID,
		account.RefreshToken,
		account.AccessToken,
		account.AccessTokenExpires,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sa.ErrDuplicate
	}
	return errors.Wrap(err, "link account")
}

// =============================================================================
// Sessions
// =============================================================================

func (a *Adapter) CreateSession(ctx context.Context, session *sa.Session) error {
	const query = `
		INSERT INTO sessions (token_hash, id, user_id, access_token, access_token_expires, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := a.db.ExecContext(ctx, query,
		session.TokenHash,
		session.ID,
		session.UserID,
		session.AccessToken,
		session.AccessTokenExpires,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return sa.ErrDuplicate
	}
	return errors.Wrap(err, "create session")
}

func (a *Adapter) GetSessionByToken(ctx context.Context, tokenHash string) (*sa.Session, error) {
	const query = `
		SELECT token_hash, id, user_id, access_token, access_token_expires, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`
	var row sessionRow
	found, err := a.get(ctx, &row, query, tokenHash)
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	if !found {
		return nil, nil
	}
	return row.toSession(), nil
}

func (a *Adapter) UpdateSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := a.db.ExecContext(ctx, `UPDATE sessions SET expires_at = $2 WHERE token_hash = $1`, tokenHash, expiresAt)
	return errors.Wrap(err, "update session")
}

func (a *Adapter) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return errors.Wrap(err, "delete session")
}

// CleanupExpiredSessions removes sessions that expired at or before now
func (a *Adapter) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "cleanup sessions")
	}
	n, err := result.RowsAffected()
	return int(n), errors.Wrap(err, "cleanup sessions")
}

// =============================================================================
// Verification tokens
// =============================================================================

func (a *Adapter) CreateEmailVerificationToken(ctx context.Context, token *sa.VerificationToken) error {
	const query = `
		INSERT INTO verification_tokens (identifier, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := a.db.ExecContext(ctx, query, token.Identifier, token.TokenHash, token.CreatedAt, token.ExpiresAt)
	if isUniqueViolation(err) {
		return sa.ErrDuplicate
	}
	return errors.Wrap(err, "create verification token")
}

// ConsumeEmailVerificationToken deletes and returns the token in a single
// statement, so concurrent consumers see it at most once.
func (a *Adapter) ConsumeEmailVerificationToken(ctx context.Context, identifier, tokenHash string) (*sa.VerificationToken, error) {
	const query = `
		DELETE FROM verification_tokens
		WHERE identifier = $1 AND token_hash = $2
		RETURNING identifier, token_hash, created_at, expires_at
	`
	var row verificationTokenRow
	found, err := a.get(ctx, &row, query, identifier, tokenHash)
	if err != nil {
		return nil, errors.Wrap(err, "consume verification token")
	}
	if !found {
		return nil, nil
	}
	return row.toVerificationToken(), nil
}
