package siteauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionMode selects how sessions are carried. Exactly one is active per deployment.
type SessionMode string

const (
	// SessionModeToken keeps the whole session in a signed JWT cookie
	SessionModeToken SessionMode = "jwt"
	// SessionModeDatabase keeps a random key in the cookie and the record in the Adapter
	SessionModeDatabase SessionMode = "database"
)

// SessionUser is the user part of the exposed session view
type SessionUser struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// SessionView is the narrowed projection returned to clients. Provider
// tokens, refresh tokens and internal ids never appear here.
type SessionView struct {
	User        *SessionUser `json:"user,omitempty"`
	Expires     string       `json:"expires,omitempty"`
	AccessToken string       `json:"accessToken,omitempty"`
}

// IssuedSession is a live session: the cookie value, when it expires and who it belongs to
type IssuedSession struct {
	Token   string
	Expires time.Time
	UserID  string
	View    *SessionView
}

type sessionClaims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager creates, reads, refreshes and destroys sessions.
type SessionManager struct {
	mode    SessionMode
	key     []byte
	maxAge  time.Duration
	adapter Adapter
	now     func() time.Time
}

// NewSessionManager creates a manager. key signs token-mode sessions; adapter
// is required in database mode.
func NewSessionManager(mode SessionMode, key []byte, maxAge time.Duration, adapter Adapter, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &SessionManager{mode: mode, key: key, maxAge: maxAge, adapter: adapter, now: now}
}

// Mode returns the active session mode
func (m *SessionManager) Mode() SessionMode { return m.mode }

// MaxAge returns the idle lifetime of a session
func (m *SessionManager) MaxAge() time.Duration { return m.maxAge }

// Create starts a session for user. account supplies the provider token
// lifetime that bounds the session access token in database mode.
func (m *SessionManager) Create(ctx context.Context, user *User, account *ProviderAccount) (*IssuedSession, error) {
	now := m.now()
	expires := now.Add(m.maxAge)
	if m.mode == SessionModeToken {
		token, err := m.sign(sessionClaims{
			Name:    user.Name,
			Email:   user.Email,
			Picture: user.Image,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.ID,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expires),
			},
		})
		if err != nil {
			return nil, err
		}
		return &IssuedSession{Token: token, Expires: expires, UserID: user.ID, View: viewFor(user, expires, "")}, nil
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	accessToken, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	accessExpires := expires
	if account != nil && account.AccessTokenExpires != nil && account.AccessTokenExpires.Before(accessExpires) {
		accessExpires = *account.AccessTokenExpires
	}
	session := &Session{
		ID:                 uuid.NewString(),
		TokenHash:          HashToken(token),
		UserID:             user.ID,
		AccessToken:        accessToken,
		AccessTokenExpires: accessExpires,
		CreatedAt:          now,
		ExpiresAt:          expires,
	}
	if err := m.adapter.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &IssuedSession{Token: token, Expires: expires, UserID: user.ID, View: m.persistedView(user, session)}, nil
}

// Read validates a session token and slides its expiry forward. A nil
// session with a nil error means there is no valid session and the cookie
// should be cleared. A non-nil error is a storage failure.
func (m *SessionManager) Read(ctx context.Context, token string) (*IssuedSession, error) {
	return m.read(ctx, token, true)
}

// Resolve validates a session token without extending it
func (m *SessionManager) Resolve(ctx context.Context, token string) (*IssuedSession, error) {
	return m.read(ctx, token, false)
}

// Destroy ends a session. Token-mode sessions have no server state so only
// the cookie needs clearing.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if m.mode == SessionModeToken || token == "" {
		return nil
	}
	return m.adapter.DeleteSession(ctx, HashToken(token))
}

func (m *SessionManager) read(ctx context.Context, token string, slide bool) (*IssuedSession, error) {
	if token == "" {
		return nil, nil
	}
	if m.mode == SessionModeToken {
		return m.readToken(token, slide), nil
	}

	hash := HashToken(token)
	session, err := m.adapter.GetSessionByToken(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	now := m.now()
	if session.IsExpired(now) {
		if err := m.adapter.DeleteSession(ctx, hash); err != nil {
			return nil, fmt.Errorf("deleting expired session: %w", err)
		}
		return nil, nil
	}
	user, err := m.adapter.FindUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading session user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	if slide {
		expires := now.Add(m.maxAge)
		if err := m.adapter.UpdateSession(ctx, hash, expires); err != nil {
			return nil, fmt.Errorf("extending session: %w", err)
		}
		session.ExpiresAt = expires
	}
	return &IssuedSession{Token: token, Expires: session.ExpiresAt, UserID: user.ID, View: m.persistedView(user, session)}, nil
}

func (m *SessionManager) readToken(token string, slide bool) *IssuedSession {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || claims.Subject == "" {
		return nil
	}
	user := &User{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Image: claims.Picture}
	if !slide {
		return &IssuedSession{Token: token, Expires: claims.ExpiresAt.Time, UserID: user.ID, View: viewFor(user, claims.ExpiresAt.Time, "")}
	}
	expires := m.now().Add(m.maxAge)
	claims.ExpiresAt = jwt.NewNumericDate(expires)
	refreshed, err := m.sign(*claims)
	if err != nil {
		return nil
	}
	return &IssuedSession{Token: refreshed, Expires: expires, UserID: user.ID, View: viewFor(user, expires, "")}
}

func (m *SessionManager) sign(claims sessionClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

func (m *SessionManager) persistedView(user *User, s *Session) *SessionView {
	accessToken := ""
	if m.now().Before(s.AccessTokenExpires) {
		accessToken = s.AccessToken
	}
	return viewFor(user, s.ExpiresAt, accessToken)
}

func viewFor(user *User, expires time.Time, accessToken string) *SessionView {
	return &SessionView{
		User:        &SessionUser{Name: user.Name, Email: user.Email, Image: user.Image},
		Expires:     expires.UTC().Format(time.RFC3339),
		AccessToken: accessToken,
	}
}
