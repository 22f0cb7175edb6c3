// Package auth resolves bearer tokens to user identities. Account creation
// and login live in the external identity service; this package only stores
// the sessions that service issues and validates them on each request.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidUserID is returned when a session is requested for an empty user.
var ErrInvalidUserID = errors.New("auth: user id required")

// SessionStore defines the persistence contract for session tokens. Only the
// hash of a token is ever handed to the store.
type SessionStore interface {
	Save(tokenHash, userID string, expiresAt time.Time) error
	Get(tokenHash string) (SessionRecord, bool, error)
	Delete(tokenHash string) error
	PurgeExpired(now time.Time) error
}

// SessionRecord captures a session row retrieved from the backing store.
type SessionRecord struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenLength sets the token byte length used for new sessions.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// SessionManager coordinates session creation and validation against a
// backing store.
type SessionManager struct {
	store        SessionStore
	ttl          time.Duration
	tokenLength  int
	tokenFactory func(int) (string, error)
	now          func() time.Time
}

// NewSessionManager constructs a SessionManager with the provided TTL. It
// defaults to a 7-day TTL and an in-memory store when none is supplied.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	manager := &SessionManager{
		ttl:          ttl,
		tokenLength:  32,
		tokenFactory: generateToken,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Create issues a new session token for the provided user identifier. The
// plaintext token is returned to the caller once and never stored.
func (m *SessionManager) Create(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token, err := m.tokenFactory(m.tokenLength)
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := m.now().Add(m.ttl).UTC()
	if err := m.store.Save(hash, userID, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate resolves the token to a user id. An unknown or expired token is
// not an error; the caller treats the request as anonymous.
func (m *SessionManager) Validate(token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return "", false, nil
	}
	record, ok, err := m.store.Get(hash)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	if m.now().After(record.ExpiresAt) {
		_ = m.store.Delete(hash)
		return "", false, nil
	}
	return record.UserID, true, nil
}

// Revoke deletes the session token from the backing store.
func (m *SessionManager) Revoke(token string) error {
	if token == "" {
		return nil
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(hash)
}

// PurgeExpired removes any expired sessions from the backing store.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(m.now())
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
