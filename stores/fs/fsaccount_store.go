package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	sa "github.com/panyam/siteauth"
)

func (s *FSAdapter) accountPath(providerID, providerAccountID string) string {
	return filepath.Join(s.StoragePath, "accounts", safeName(providerID, providerAccountID)+".json")
}

func (s *FSAdapter) FindAccountByProvider(ctx context.Context, providerID, providerAccountID string) (*sa.ProviderAccount, error) {
	var account sa.ProviderAccount
	found, err := readJSON(s.accountPath(providerID, providerAccountID), &account)
	if err != nil || !found {
		return nil, err
	}
	return &account, nil
}

func (s *FSAdapter) LinkAccount(ctx context.Context, account *sa.ProviderAccount) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	if err := createExclusive(s.accountPath(account.ProviderID, account.ProviderAccountID), data); err != nil {
		if errors.Is(err, os.ErrExist) {
			return sa.ErrDuplicate
		}
		return err
	}
	return nil
}
