//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	sa "github.com/panyam/siteauth"
)

// Kind constants for Datastore entities
const (
	KindUser              = "User"
	KindUserEmail         = "UserEmail"
	KindAccount           = "Account"
	KindSession           = "Session"
	KindVerificationToken = "VerificationToken"
)

// concurrent first sign-ins contend on the same keys
const txAttempts = 10

// DatastoreAdapter implements sa.Adapter using Google Cloud Datastore
type DatastoreAdapter struct {
	client    *datastore.Client
	namespace string
}

var (
	_ sa.Adapter               = (*DatastoreAdapter)(nil)
	_ sa.ExpiredSessionSweeper = (*DatastoreAdapter)(nil)
)

// NewDatastoreAdapter creates a new Datastore-backed adapter
func NewDatastoreAdapter(client *datastore.Client, namespace string) *DatastoreAdapter {
	return &DatastoreAdapter{client: client, namespace: namespace}
}

func (s *DatastoreAdapter) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *DatastoreAdapter) inTransaction(ctx context.Context, f func(tx *datastore.Transaction) error) error {
	_, err := s.client.RunInTransaction(ctx, f, datastore.MaxAttempts(txAttempts))
	return err
}

// ============================================================================
// Users
// ============================================================================

func (s *DatastoreAdapter) FindUserByID(ctx context.Context, id string) (*sa.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *DatastoreAdapter) FindUserByEmail(ctx context.Context, email string) (*sa.User, error) {
	if email == "" {
		return nil, nil
	}
	var marker UserEmailEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUserEmail, email), &marker); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return s.FindUserByID(ctx, marker.UserID)
}

// InsertUser claims the email marker and writes the user in one transaction
func (s *DatastoreAdapter) InsertUser(ctx context.Context, user *sa.User) error {
	userKey := s.namespacedKey(KindUser, user.ID)
	return s.inTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(userKey, &existing); err == nil {
			return sa.ErrDuplicate
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if user.Email != "" {
			emailKey := s.namespacedKey(KindUserEmail, user.Email)
			var marker UserEmailEntity
			if err := tx.Get(emailKey, &marker); err == nil {
				return sa.ErrDuplicate
			} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
			if _, err := tx.Put(emailKey, &UserEmailEntity{UserID: user.ID}); err != nil {
				return err
			}
		}
		_, err := tx.Put(userKey, UserToEntity(user, userKey))
		return err
	})
}

func (s *DatastoreAdapter) DeleteUser(ctx context.Context, id string) error {
	userKey := s.namespacedKey(KindUser, id)
	return s.inTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(userKey, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		keys := []*datastore.Key{userKey}
		if entity.Email != "" {
			keys = append(keys, s.namespacedKey(KindUserEmail, entity.Email))
		}
		return tx.DeleteMulti(keys)
	})
}

// ============================================================================
// Accounts
// ============================================================================

func (s *DatastoreAdapter) accountKey(providerID, providerAccountID string) *datastore.Key {
	return s.namespacedKey(KindAccount, providerID+":"+providerAccountID)
}

func (s *DatastoreAdapter) FindAccountByProvider(ctx context.Context, providerID, providerAccountID string) (*sa.ProviderAccount, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.accountKey(providerID, providerAccountID), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *DatastoreAdapter) LinkAccount(ctx context.Context, account *sa.ProviderAccount) error {
	key := s.accountKey(account.ProviderID, account.ProviderAccountID)
	return s.inTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		if err := tx.Get(key, &existing); err == nil {
			return sa.ErrDuplicate
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err := tx.Put(key, AccountToEntity(account, key))
		return err
	})
}

// ============================================================================
// Sessions
// ============================================================================

func (s *DatastoreAdapter) CreateSession(ctx context.Context, session *sa.Session) error {
	key := s.namespacedKey(KindSession, session.TokenHash)
	_, err := s.client.Put(ctx, key, SessionToEntity(session, key))
	return err
}

func (s *DatastoreAdapter) GetSessionByToken(ctx context.Context, tokenHash string) (*sa.Session, error) {
	var entity SessionEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindSession, tokenHash), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToSession(), nil
}

func (s *DatastoreAdapter) UpdateSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	key := s.namespacedKey(KindSession, tokenHash)
	return s.inTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity SessionEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		entity.ExpiresAt = expiresAt
		_, err := tx.Put(key, &entity)
		return err
	})
}

func (s *DatastoreAdapter) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.client.Delete(ctx, s.namespacedKey(KindSession, tokenHash))
}

// CleanupExpiredSessions removes sessions that expired at or before now and
// returns how many were removed.
func (s *DatastoreAdapter) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	query := datastore.NewQuery(KindSession).
		Namespace(s.namespace).
		FilterField("expires_at", "<=", now).
		KeysOnly()

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteMulti(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ============================================================================
// Verification tokens
// ============================================================================

func (s *DatastoreAdapter) verificationKey(identifier, tokenHash string) *datastore.Key {
	return s.namespacedKey(KindVerificationToken, identifier+":"+tokenHash)
}

func (s *DatastoreAdapter) CreateEmailVerificationToken(ctx context.Context, token *sa.VerificationToken) error {
	entity := &VerificationTokenEntity{
		Identifier: token.Identifier,
		TokenHash:  token.TokenHash,
		CreatedAt:  token.CreatedAt,
		ExpiresAt:  token.ExpiresAt,
	}
	_, err := s.client.Put(ctx, s.verificationKey(token.Identifier, token.TokenHash), entity)
	return err
}

// ConsumeEmailVerificationToken reads and deletes the token in a transaction.
// A concurrent consumer either retries and finds nothing or loses the commit.
func (s *DatastoreAdapter) ConsumeEmailVerificationToken(ctx context.Context, identifier, tokenHash string) (*sa.VerificationToken, error) {
	key := s.verificationKey(identifier, tokenHash)
	var out *sa.VerificationToken
	err := s.inTransaction(ctx, func(tx *datastore.Transaction) error {
		out = nil
		var entity VerificationTokenEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		out = entity.ToVerificationToken()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
