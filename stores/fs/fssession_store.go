package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sa "github.com/panyam/siteauth"
)

func (s *FSAdapter) sessionPath(tokenHash string) string {
	return filepath.Join(s.StoragePath, "sessions", filepath.Base(tokenHash)+".json")
}

func (s *FSAdapter) CreateSession(ctx context.Context, session *sa.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.sessionPath(session.TokenHash), data)
}

func (s *FSAdapter) GetSessionByToken(ctx context.Context, tokenHash string) (*sa.Session, error) {
	var session sa.Session
	found, err := readJSON(s.sessionPath(tokenHash), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (s *FSAdapter) UpdateSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	session, err := s.GetSessionByToken(ctx, tokenHash)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session not found")
	}
	session.ExpiresAt = expiresAt
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.sessionPath(tokenHash), data)
}

func (s *FSAdapter) DeleteSession(ctx context.Context, tokenHash string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return removeIfExists(s.sessionPath(tokenHash))
}

// CleanupExpiredSessions removes session files that expired at or before now
func (s *FSAdapter) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.StoragePath, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		session, err := s.GetSessionByToken(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return removed, err
		}
		if session == nil || !session.IsExpired(now) {
			continue
		}
		if err := removeIfExists(s.sessionPath(session.TokenHash)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
