// Package storetest is a conformance suite every siteauth.Adapter must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	sa "github.com/panyam/siteauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAdapterTests runs the suite. newAdapter must return an empty adapter
// for each call.
func RunAdapterTests(t *testing.T, newAdapter func(t *testing.T) sa.Adapter) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newAdapter(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newAdapter(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newAdapter(t)) })
	t.Run("VerificationTokens", func(t *testing.T) { testVerificationTokens(t, newAdapter(t)) })
	t.Run("ConcurrentEmailInsert", func(t *testing.T) { testConcurrentEmailInsert(t, newAdapter(t)) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newAdapter(t)) })
	t.Run("CleanupExpiredSessions", func(t *testing.T) {
		sweeper, ok := newAdapter(t).(sa.ExpiredSessionSweeper)
		if !ok {
			t.Skip("adapter does not sweep expired sessions")
		}
		testCleanupExpiredSessions(t, sweeper.(sa.Adapter), sweeper)
	})
}

func newUser(email string) *sa.User {
	now := time.Now().UTC().Truncate(time.Second)
	return &sa.User{ID: uuid.NewString(), Name: "Test User", Email: email, CreatedAt: now, UpdatedAt: now}
}

func testUsers(t *testing.T, a sa.Adapter) {
	ctx := context.Background()

	got, err := a.FindUserByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got, "missing user must be nil, nil")

	got, err = a.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	u := newUser("alice@example.com")
	require.NoError(t, a.InsertUser(ctx, u))

	got, err = a.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.Name, got.Name)

	got, err = a.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	err = a.InsertUser(ctx, newUser("alice@example.com"))
	assert.ErrorIs(t, err, sa.ErrDuplicate)

	// users without email do not collide with each other
	require.NoError(t, a.InsertUser(ctx, newUser("")))
	require.NoError(t, a.InsertUser(ctx, newUser("")))

	require.NoError(t, a.DeleteUser(ctx, u.ID))
	got, err = a.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = a.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, a.DeleteUser(ctx, u.ID), "deleting twice is not an error")

	// the email is free again
	require.NoError(t, a.InsertUser(ctx, newUser("alice@example.com")))
}

func testAccounts(t *testing.T, a sa.Adapter) {
	ctx := context.Background()
	u := newUser("bob@example.com")
	require.NoError(t, a.InsertUser(ctx, u))

	got, err := a.FindAccountByProvider(ctx, "github", "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	acct := &sa.ProviderAccount{
		ID: uuid.NewString(), UserID: u.ID,
		ProviderID: "github", ProviderType: sa.ProviderTypeOAuth2, ProviderAccountID: "42",
		AccessToken: "at", RefreshToken: "rt", AccessTokenExpires: &exp,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.LinkAccount(ctx, acct))

	got, err = a.FindAccountByProvider(ctx, "github", "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, sa.ProviderTypeOAuth2, got.ProviderType)
	assert.Equal(t, "at", got.AccessToken)

	dup := *acct
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, a.LinkAccount(ctx, &dup), sa.ErrDuplicate)

	// same account id under another provider is a different identity
	other := *acct
	other.ID = uuid.NewString()
	other.ProviderID = "google"
	require.NoError(t, a.LinkAccount(ctx, &other))
}

func testSessions(t *testing.T, a sa.Adapter) {
	ctx := context.Background()
	u := newUser("carol@example.com")
	require.NoError(t, a.InsertUser(ctx, u))

	hash := sa.HashToken("session-token")
	got, err := a.GetSessionByToken(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	s := &sa.Session{
		ID: uuid.NewString(), TokenHash: hash, UserID: u.ID,
		AccessToken: "sat", AccessTokenExpires: now.Add(time.Hour),
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, a.CreateSession(ctx, s))

	got, err = a.GetSessionByToken(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	later := now.Add(48 * time.Hour)
	require.NoError(t, a.UpdateSession(ctx, hash, later))
	got, err = a.GetSessionByToken(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.Equal(later), "expiry should be extended, got %v", got.ExpiresAt)

	require.NoError(t, a.DeleteSession(ctx, hash))
	got, err = a.GetSessionByToken(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, a.DeleteSession(ctx, hash), "deleting twice is not an error")
}

func testVerificationTokens(t *testing.T, a sa.Adapter) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	vt := &sa.VerificationToken{Identifier: "dave@example.com", TokenHash: "abc123", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, a.CreateEmailVerificationToken(ctx, vt))

	got, err := a.ConsumeEmailVerificationToken(ctx, "dave@example.com", "wrong")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = a.ConsumeEmailVerificationToken(ctx, "dave@example.com", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dave@example.com", got.Identifier)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	got, err = a.ConsumeEmailVerificationToken(ctx, "dave@example.com", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got, "a token can be consumed only once")
}

func testConcurrentEmailInsert(t *testing.T, a sa.Adapter) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.InsertUser(ctx, newUser("race@example.com"))
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, sa.ErrDuplicate):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, dup.Load())
}

func testConcurrentConsume(t *testing.T, a sa.Adapter) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, a.CreateEmailVerificationToken(ctx, &sa.VerificationToken{
		Identifier: "erin@example.com", TokenHash: "once", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	const n = 8
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.ConsumeEmailVerificationToken(ctx, "erin@example.com", "once")
			if assert.NoError(t, err) && got != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func testCleanupExpiredSessions(t *testing.T, a sa.Adapter, sweeper sa.ExpiredSessionSweeper) {
	ctx := context.Background()
	u := newUser("frank@example.com")
	require.NoError(t, a.InsertUser(ctx, u))

	now := time.Now().UTC().Truncate(time.Second)
	for i, expires := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		require.NoError(t, a.CreateSession(ctx, &sa.Session{
			ID: uuid.NewString(), TokenHash: sa.HashToken(fmt.Sprintf("sweep-%d", i)), UserID: u.ID,
			CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: expires,
		}))
	}

	removed, err := sweeper.CleanupExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := a.GetSessionByToken(ctx, sa.HashToken("sweep-0"))
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = a.GetSessionByToken(ctx, sa.HashToken("sweep-2"))
	require.NoError(t, err)
	assert.NotNil(t, got, "live sessions survive the sweep")
}
