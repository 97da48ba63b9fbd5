package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/types"
)

// TableSink stores notifications in the notifications table.
type TableSink struct {
	db *safedb.DB
}

// NewTableSink creates a sink writing to db.
func NewTableSink(db *safedb.DB) *TableSink {
	return &TableSink{db: db}
}

// Deliver inserts n. Re-delivering the same id is a no-op.
func (s *TableSink) Deliver(ctx context.Context, n types.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (id, user_id, kind, message_id, listing_id, sender_id, preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Kind, n.MessageID, n.ListingID, n.SenderID, n.Preview, types.FormatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (s *TableSink) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]types.Notification, error) {
	query := `SELECT id, user_id, kind, message_id, listing_id, sender_id, preview, created_at, read_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []types.Notification{}
	for rows.Next() {
		var (
			n                            types.Notification
			messageID, listingID, sender sql.NullString
			createdAt                    string
			readAt                       sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &messageID, &listingID, &sender, &n.Preview, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.MessageID, n.ListingID, n.SenderID = messageID.String, listingID.String, sender.String
		if n.CreatedAt, err = types.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t, err := types.ParseTime(readAt.String)
			if err != nil {
				return nil, err
			}
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps read_at on the user's unread notifications and returns
// how many changed.
func (s *TableSink) MarkRead(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, types.FormatTime(now), userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
