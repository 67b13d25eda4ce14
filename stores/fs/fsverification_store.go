package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	sa "github.com/panyam/siteauth"
)

func (s *FSAdapter) verificationPath(identifier, tokenHash string) string {
	return filepath.Join(s.StoragePath, "verification", safeName(identifier, tokenHash)+".json")
}

func (s *FSAdapter) CreateEmailVerificationToken(ctx context.Context, token *sa.VerificationToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	if err := createExclusive(s.verificationPath(token.Identifier, token.TokenHash), data); err != nil {
		if errors.Is(err, os.ErrExist) {
			return sa.ErrDuplicate
		}
		return err
	}
	return nil
}

// ConsumeEmailVerificationToken claims the token file with a rename, which
// only one caller can win, then reads and removes the claimed copy.
func (s *FSAdapter) ConsumeEmailVerificationToken(ctx context.Context, identifier, tokenHash string) (*sa.VerificationToken, error) {
	path := s.verificationPath(identifier, tokenHash)
	claimed := path + ".claimed"
	if err := os.Rename(path, claimed); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer os.Remove(claimed)

	var token sa.VerificationToken
	found, err := readJSON(claimed, &token)
	if err != nil || !found {
		return nil, err
	}
	return &token, nil
}
