// Package archive keeps each user's archived flag per conversation, apart
// from the shared message log. The overlay is optional: when it is turned
// off or its table is missing every call reports FeatureUnavailable.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/types"
)

// Store is the SQLite-backed archive overlay.
type Store struct {
	db      *safedb.DB
	enabled bool
	now     func() time.Time
}

// New creates an archive overlay. With enabled false the overlay behaves
// as if its store did not exist.
func New(db *safedb.DB, enabled bool) *Store {
	return &Store{
		db:      db,
		enabled: enabled,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func unavailable() error {
	return apperr.FeatureUnavailable("conversation archiving is not available")
}

// classify turns a missing-table error into FeatureUnavailable.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return apperr.Wrap(err, apperr.KindFeatureUnavailable, "conversation archiving is not available")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Archived returns the set of conversations userID has archived.
// Conversations without a setting are not archived.
func (s *Store) Archived(ctx context.Context, userID string) (map[types.ConversationKey]bool, error) {
	if !s.enabled {
		return nil, unavailable()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_id, other_user_id FROM conversation_settings
		WHERE user_id = ? AND is_archived = 1`, userID)
	if err != nil {
		return nil, classify(err, "query archive settings")
	}
	defer func() { _ = rows.Close() }()

	out := make(map[types.ConversationKey]bool)
	for rows.Next() {
		var k types.ConversationKey
		if err := rows.Scan(&k.ListingID, &k.OtherUserID); err != nil {
			return nil, fmt.Errorf("scan archive setting: %w", err)
		}
		out[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate archive settings")
	}
	return out, nil
}

// IsArchived reports the archived flag of one conversation.
func (s *Store) IsArchived(ctx context.Context, userID string, key types.ConversationKey) (bool, error) {
	if !s.enabled {
		return false, unavailable()
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversation_settings
		WHERE user_id = ? AND listing_id = ? AND other_user_id = ? AND is_archived = 1`,
		userID, key.ListingID, key.OtherUserID).Scan(&n)
	if err != nil {
		return false, classify(err, "query archive setting")
	}
	return n > 0, nil
}

// Set upserts the archived flag for each key and returns how many settings
// were written.
func (s *Store) Set(ctx context.Context, userID string, keys []types.ConversationKey, archived bool) (int, error) {
	if !s.enabled {
		return 0, unavailable()
	}
	now := types.FormatTime(s.now())
	flag := 0
	if archived {
		flag = 1
	}

	count := 0
	err := s.db.WithTx(ctx, func(tx *safedb.Tx) error {
		for _, k := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_settings (user_id, listing_id, other_user_id, is_archived, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(user_id, listing_id, other_user_id)
				DO UPDATE SET is_archived = excluded.is_archived, updated_at = excluded.updated_at`,
				userID, k.ListingID, k.OtherUserID, flag, now)
			if err != nil {
				return classify(err, "upsert archive setting")
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Clear removes the user's setting for key using q, so it can share a
// transaction with the conversation delete.
func (s *Store) Clear(ctx context.Context, q safedb.Querier, userID string, key types.ConversationKey) error {
	if !s.enabled {
		return unavailable()
	}
	_, err := q.ExecContext(ctx, `
		DELETE FROM conversation_settings
		WHERE user_id = ? AND listing_id = ? AND other_user_id = ?`,
		userID, key.ListingID, key.OtherUserID)
	return classify(err, "clear archive setting")
}
