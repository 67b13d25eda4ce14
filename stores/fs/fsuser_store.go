package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	sa "github.com/panyam/siteauth"
)

// FSAdapter implements siteauth.Adapter with one JSON file per record.
// Suitable for development, tests and single-host deployments.
type FSAdapter struct {
	StoragePath string

	// sessionMu serialises session updates and deletes so an expiry bump
	// can never resurrect a session deleted concurrently.
	sessionMu sync.Mutex
}

var (
	_ sa.Adapter               = (*FSAdapter)(nil)
	_ sa.ExpiredSessionSweeper = (*FSAdapter)(nil)
)

// NewFSAdapter creates an adapter rooted at storagePath
func NewFSAdapter(storagePath string) *FSAdapter {
	return &FSAdapter{StoragePath: storagePath}
}

type emailIndex struct {
	UserID string `json:"user_id"`
}

func (s *FSAdapter) userPath(id string) string {
	return filepath.Join(s.StoragePath, "users", filepath.Base(id)+".json")
}

func (s *FSAdapter) emailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", safeName(email)+".json")
}

func (s *FSAdapter) FindUserByID(ctx context.Context, id string) (*sa.User, error) {
	if id == "" {
		return nil, nil
	}
	var user sa.User
	found, err := readJSON(s.userPath(id), &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (s *FSAdapter) FindUserByEmail(ctx context.Context, email string) (*sa.User, error) {
	if email == "" {
		return nil, nil
	}
	var idx emailIndex
	found, err := readJSON(s.emailPath(email), &idx)
	if err != nil || !found {
		return nil, err
	}
	return s.FindUserByID(ctx, idx.UserID)
}

func (s *FSAdapter) InsertUser(ctx context.Context, user *sa.User) error {
	if user.Email != "" {
		idx, _ := json.Marshal(emailIndex{UserID: user.ID})
		if err := createExclusive(s.emailPath(user.Email), idx); err != nil {
			if errors.Is(err, os.ErrExist) {
				return sa.ErrDuplicate
			}
			return err
		}
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err == nil {
		err = createExclusive(s.userPath(user.ID), data)
	}
	if err != nil {
		if user.Email != "" {
			os.Remove(s.emailPath(user.Email))
		}
		if errors.Is(err, os.ErrExist) {
			return sa.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *FSAdapter) DeleteUser(ctx context.Context, id string) error {
	user, err := s.FindUserByID(ctx, id)
	if err != nil || user == nil {
		return err
	}
	if user.Email != "" {
		var idx emailIndex
		if found, _ := readJSON(s.emailPath(user.Email), &idx); found && idx.UserID == id {
			if err := removeIfExists(s.emailPath(user.Email)); err != nil {
				return err
			}
		}
	}
	return removeIfExists(s.userPath(id))
}
