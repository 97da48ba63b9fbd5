// Package auth maps opaque session tokens to user ids.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/identity"
	"github.com/leonletto/carlot/internal/types"
)

// DefaultTTL is how long a session stays valid when no TTL is configured.
const DefaultTTL = 30 * 24 * time.Hour

// Session is an issued session token.
type Session struct {
	Token     string    `json:"session_token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Resolver turns a session token into the caller's user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Store is the SQLite-backed session store.
type Store struct {
	db  *safedb.DB
	ttl time.Duration
	now func() time.Time
}

// New creates a session store. A non-positive ttl uses DefaultTTL.
func New(db *safedb.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Create issues a session for an existing profile.
func (s *Store) Create(ctx context.Context, userID string) (*Session, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return nil, fmt.Errorf("check profile %s: %w", userID, err)
	}
	if n == 0 {
		return nil, apperr.NotFound("user not found: %s", userID)
	}

	now := s.now()
	sess := &Session{
		Token:     identity.GenerateSessionToken(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, types.FormatTime(sess.CreatedAt), types.FormatTime(sess.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Resolve returns the user id for token. Missing, unknown and expired
// tokens are all Unauthorized.
func (s *Store) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.Unauthorized("session token required")
	}
	var userID, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.Unauthorized("invalid session")
	}
	if err != nil {
		return "", apperr.Storage(err, "resolve session")
	}
	exp, err := types.ParseTime(expiresAt)
	if err != nil {
		return "", apperr.Storage(err, "resolve session")
	}
	if !s.now().Before(exp) {
		return "", apperr.Unauthorized("session expired")
	}
	return userID, nil
}

// Revoke deletes a session. Unknown tokens are not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, types.FormatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
