// Package directory holds the marketplace records messaging depends on but
// does not own: listings (existence and owner) and user display profiles.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/types"
)

// Store reads and writes listings and profiles.
type Store struct {
	db  *safedb.DB
	now func() time.Time
}

// New creates a directory store.
func New(db *safedb.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertListing creates or updates a listing. A zero CreatedAt is set to now.
func (s *Store) UpsertListing(ctx context.Context, l *types.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, user_id, title, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, title = excluded.title`,
		l.ID, l.UserID, l.Title, types.FormatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

// GetListing returns a listing or a NotFound error.
func (s *Store) GetListing(ctx context.Context, id string) (*types.Listing, error) {
	var (
		l         types.Listing
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM listings WHERE id = ?`, id).
		Scan(&l.ID, &l.UserID, &l.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("listing not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	if l.CreatedAt, err = types.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// Listings batch-loads listings by id. Unknown ids are absent from the map.
func (s *Store) Listings(ctx context.Context, ids []string) (map[string]types.Listing, error) {
	out := make(map[string]types.Listing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM listings WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			l         types.Listing
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if l.CreatedAt, err = types.ParseTime(createdAt); err != nil {
			return nil, err
		}
		out[l.ID] = l
	}
	return out, rows.Err()
}

// UpsertProfile creates or updates a user's display profile.
func (s *Store) UpsertProfile(ctx context.Context, p *types.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, profile_image_url, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			profile_image_url = excluded.profile_image_url,
			updated_at = excluded.updated_at`,
		p.UserID, p.DisplayName, p.ProfileImageURL, types.FormatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile returns a profile or a NotFound error.
func (s *Store) GetProfile(ctx context.Context, userID string) (*types.Profile, error) {
	var p types.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, profile_image_url FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.DisplayName, &p.ProfileImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return &p, nil
}

// Profiles batch-loads profiles. Unknown users are absent from the map.
func (s *Store) Profiles(ctx context.Context, userIDs []string) (map[string]types.Profile, error) {
	out := make(map[string]types.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, profile_image_url FROM profiles WHERE user_id IN (`+placeholders(len(userIDs))+`)`,
		stringArgs(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p types.Profile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.ProfileImageURL); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.Repeat("?,", n-1) + "?"
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
