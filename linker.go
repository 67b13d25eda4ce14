package siteauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// resolveAttempts bounds how often a lost insert race is re-resolved while
// the winning request finishes linking its account.
const (
	resolveAttempts = 5
	resolveBackoff  = 20 * time.Millisecond
)

// LinkResult is the outcome of a successful callback
type LinkResult struct {
	User         *User
	Session      *IssuedSession
	IsNewAccount bool
	// Resumed is set when the request's existing session was kept as is
	Resumed bool
}

// AccountLinker decides, for a freshly authenticated profile, which user it
// signs in as. It never joins two external identities because their emails
// match; only an existing link or a signed-in owner can do that.
type AccountLinker struct {
	adapter  Adapter
	sessions *SessionManager
	now      func() time.Time
	logger   *slog.Logger
}

// NewAccountLinker creates a linker over adapter that issues sessions from sessions
func NewAccountLinker(adapter Adapter, sessions *SessionManager, now func() time.Time, logger *slog.Logger) *AccountLinker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountLinker{adapter: adapter, sessions: sessions, now: now, logger: logger}
}

// Handle resolves profile/account to a user and returns the session to use.
// existingSessionToken is the request's current session cookie, or "".
func (l *AccountLinker) Handle(ctx context.Context, existingSessionToken string, profile *Profile, account *ProviderAccount) (*LinkResult, error) {
	var current *IssuedSession
	if existingSessionToken != "" {
		s, err := l.sessions.Resolve(ctx, existingSessionToken)
		if err != nil {
			l.logger.Warn("ignoring unreadable session during callback", "provider", account.ProviderID, "error", err)
		}
		current = s
	}

	var (
		user  *User
		isNew bool
		err   error
	)
	if account.ProviderType == ProviderTypeEmail {
		user, isNew, err = l.resolveEmailUser(ctx, profile)
	} else {
		user, isNew, err = l.resolveAccountUser(ctx, current, profile, account)
	}
	if err != nil {
		return nil, err
	}

	if current != nil && current.UserID == user.ID {
		return &LinkResult{User: user, Session: current, IsNewAccount: isNew, Resumed: true}, nil
	}
	session, err := l.sessions.Create(ctx, user, account)
	if err != nil {
		return nil, &LinkError{Kind: LinkStorageFailed, Err: err}
	}
	return &LinkResult{User: user, Session: session, IsNewAccount: isNew}, nil
}

func (l *AccountLinker) resolveEmailUser(ctx context.Context, profile *Profile) (*User, bool, error) {
	if profile.Email == "" {
		return nil, false, &LinkError{Kind: LinkCreateUserFailed, Err: errors.New("email sign-in without an email")}
	}
	user, err := l.adapter.FindUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, false, storageErr("finding user by email", err)
	}
	if user != nil {
		return user, false, nil
	}

	now := l.now()
	user = l.newUser(profile)
	user.EmailVerified = &now
	if err := l.adapter.InsertUser(ctx, user); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, &LinkError{Kind: LinkCreateUserFailed, Err: err}
		}
		// Another request created this email's user first
		existing, ferr := l.adapter.FindUserByEmail(ctx, profile.Email)
		if ferr != nil || existing == nil {
			return nil, false, &LinkError{Kind: LinkCreateUserFailed, Err: err}
		}
		return existing, false, nil
	}
	return user, true, nil
}

func (l *AccountLinker) resolveAccountUser(ctx context.Context, current *IssuedSession, profile *Profile, account *ProviderAccount) (*User, bool, error) {
	linked, err := l.adapter.FindAccountByProvider(ctx, account.ProviderID, account.ProviderAccountID)
	if err != nil {
		return nil, false, storageErr("finding account", err)
	}
	if linked != nil {
		if current != nil && linked.UserID != current.UserID {
			return nil, false, &LinkError{Kind: LinkAccountNotLinked, Err: fmt.Errorf("%s account is linked to another user", account.ProviderID)}
		}
		user, err := l.owner(ctx, linked)
		return user, false, err
	}

	if current != nil {
		// The signed-in user is explicitly adding this provider
		user, err := l.adapter.FindUserByID(ctx, current.UserID)
		if err != nil {
			return nil, false, storageErr("finding session user", err)
		}
		if user == nil {
			return nil, false, storageErr("finding session user", fmt.Errorf("user %s not found", current.UserID))
		}
		if err := l.link(ctx, user.ID, account); err != nil {
			if !errors.Is(err, ErrDuplicate) {
				return nil, false, storageErr("linking account", err)
			}
			owner, _, rerr := l.reresolve(ctx, account)
			if rerr != nil {
				return nil, false, rerr
			}
			if owner.ID != user.ID {
				return nil, false, &LinkError{Kind: LinkAccountNotLinked, Err: fmt.Errorf("%s account is linked to another user", account.ProviderID)}
			}
		}
		return user, false, nil
	}

	if profile.Email != "" {
		owner, err := l.adapter.FindUserByEmail(ctx, profile.Email)
		if err != nil {
			return nil, false, storageErr("finding user by email", err)
		}
		if owner != nil {
			// Usually another identity's user. It may also be a concurrent
			// first sign-in of this identity that has not linked yet.
			return l.reresolve(ctx, account)
		}
	}

	user := l.newUser(profile)
	if err := l.adapter.InsertUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return l.reresolve(ctx, account)
		}
		return nil, false, &LinkError{Kind: LinkCreateUserFailed, Err: err}
	}
	if err := l.link(ctx, user.ID, account); err != nil {
		// Do not leave an unreachable user behind
		if derr := l.adapter.DeleteUser(ctx, user.ID); derr != nil {
			l.logger.Error("failed to remove orphaned user", "user", user.ID, "error", derr)
		}
		if errors.Is(err, ErrDuplicate) {
			return l.reresolve(ctx, account)
		}
		return nil, false, &LinkError{Kind: LinkCreateUserFailed, Err: fmt.Errorf("linking account: %w", err)}
	}
	return user, true, nil
}

// reresolve runs after losing an insert race: the identity is expected to be
// linked by the winner. If it never shows up the duplicate was someone
// else's email.
func (l *AccountLinker) reresolve(ctx context.Context, account *ProviderAccount) (*User, bool, error) {
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, false, storageErr("resolving account", ctx.Err())
			case <-time.After(resolveBackoff * time.Duration(attempt)):
			}
		}
		linked, err := l.adapter.FindAccountByProvider(ctx, account.ProviderID, account.ProviderAccountID)
		if err != nil {
			return nil, false, storageErr("finding account", err)
		}
		if linked != nil {
			user, err := l.owner(ctx, linked)
			return user, false, err
		}
	}
	return nil, false, &LinkError{Kind: LinkAccountNotLinked, Err: fmt.Errorf("email is already used by another account")}
}

func (l *AccountLinker) owner(ctx context.Context, account *ProviderAccount) (*User, error) {
	user, err := l.adapter.FindUserByID(ctx, account.UserID)
	if err != nil {
		return nil, storageErr("finding account owner", err)
	}
	if user == nil {
		return nil, storageErr("finding account owner", fmt.Errorf("account %s/%s links to missing user %s", account.ProviderID, account.ProviderAccountID, account.UserID))
	}
	return user, nil
}

func (l *AccountLinker) link(ctx context.Context, userID string, account *ProviderAccount) error {
	now := l.now()
	account.ID = uuid.NewString()
	account.UserID = userID
	account.CreatedAt = now
	account.UpdatedAt = now
	return l.adapter.LinkAccount(ctx, account)
}

func (l *AccountLinker) newUser(profile *Profile) *User {
	now := l.now()
	return &User{
		ID:        uuid.NewString(),
		Name:      profile.Name,
		Email:     profile.Email,
		Image:     profile.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func storageErr(op string, err error) error {
	return &LinkError{Kind: LinkStorageFailed, Err: fmt.Errorf("%s: %w", op, err)}
}
