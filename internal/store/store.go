// Package store is the durable message log. Rows are append-only apart from
// read state, per-user hides, the global deleted flag and hard deletes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/types"
)

// Store reads and writes the messages table.
//
// Methods that take a safedb.Querier run against whatever they are handed,
// so callers can compose them inside one transaction. The rest use the
// store's own connection.
type Store struct {
	db  *safedb.DB
	now func() time.Time
}

// New creates a message store on db.
func New(db *safedb.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests use it to control created_at.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// DB returns the underlying database handle.
func (s *Store) DB() *safedb.DB {
	return s.db
}

const messageColumns = `m.id, m.listing_id, m.sender_id, m.recipient_id, m.message_text,
	m.message_type, m.parent_message_id, m.thread_id, m.thread_depth, m.thread_order,
	m.is_read, m.read_at, m.is_deleted, m.created_at, m.updated_at`

// visibleTo filters out globally deleted rows and rows hidden by the user.
// It consumes one argument: the user id.
const visibleTo = `m.is_deleted = 0 AND NOT EXISTS (
	SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = ?)`

// conversationPredicate matches the messages of one conversation as seen by
// userID. For a self-conversation both branches collapse to the same pair.
func conversationPredicate(userID string, key types.ConversationKey) (string, []any) {
	return `m.listing_id = ? AND ((m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?))`,
		[]any{key.ListingID, userID, key.OtherUserID, key.OtherUserID, userID}
}

// readableBy matches rows whose read state belongs to userID: ordinary
// messages addressed to them and self-messages they wrote.
const readableBy = `((m.recipient_id = ? AND m.sender_id <> m.recipient_id) OR (m.sender_id = ? AND m.sender_id = m.recipient_id))`

func scanMessage(sc interface{ Scan(...any) error }) (types.Message, error) {
	var (
		m                    types.Message
		msgType              string
		parentID, readAt     sql.NullString
		isRead, isDeleted    int
		createdAt, updatedAt string
	)
	err := sc.Scan(&m.ID, &m.ListingID, &m.SenderID, &m.RecipientID, &m.MessageText,
		&msgType, &parentID, &m.ThreadID, &m.ThreadDepth, &m.ThreadOrder,
		&isRead, &readAt, &isDeleted, &createdAt, &updatedAt)
	if err != nil {
		return m, err
	}
	m.MessageType = types.MessageType(msgType)
	m.ParentMessageID = parentID.String
	m.IsRead = isRead != 0
	m.IsDeleted = isDeleted != 0
	if m.CreatedAt, err = types.ParseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = types.ParseTime(updatedAt); err != nil {
		return m, err
	}
	if readAt.Valid && readAt.String != "" {
		t, err := types.ParseTime(readAt.String)
		if err != nil {
			return m, err
		}
		m.ReadAt = &t
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]types.Message, error) {
	defer func() { _ = rows.Close() }()
	var out []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Get loads a message by id regardless of deleted or hidden state.
// A missing row is a NotFound error.
func (s *Store) Get(ctx context.Context, q safedb.Querier, id string) (*types.Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

// HiddenBy reports whether userID has hidden the message.
func (s *Store) HiddenBy(ctx context.Context, q safedb.Querier, messageID, userID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_hides WHERE message_id = ? AND user_id = ?`,
		messageID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check hide %s: %w", messageID, err)
	}
	return n > 0, nil
}

// NextThreadOrder reserves the next thread_order for a listing. The counter
// only grows, so an order is never handed out twice even after deletes.
// Call it in the same transaction as the insert that uses the value.
func (s *Store) NextThreadOrder(ctx context.Context, q safedb.Querier, listingID string) (int64, error) {
	var order int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO listing_sequences (listing_id, last_order) VALUES (?, 1)
		ON CONFLICT(listing_id) DO UPDATE SET last_order = last_order + 1
		RETURNING last_order`, listingID).Scan(&order)
	if err != nil {
		return 0, fmt.Errorf("next thread order for %s: %w", listingID, err)
	}
	return order, nil
}

// Insert writes a fully linked message.
func (s *Store) Insert(ctx context.Context, q safedb.Querier, m *types.Message) error {
	var readAt any
	if m.ReadAt != nil {
		readAt = types.FormatTime(*m.ReadAt)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, listing_id, sender_id, recipient_id, message_text,
			message_type, parent_message_id, thread_id, thread_depth, thread_order,
			is_read, read_at, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ID, m.ListingID, m.SenderID, m.RecipientID, m.MessageText,
		string(m.MessageType), nullable(m.ParentMessageID), m.ThreadID, m.ThreadDepth, m.ThreadOrder,
		boolInt(m.IsRead), readAt, types.FormatTime(m.CreatedAt), types.FormatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// Filter narrows ListForUser.
type Filter struct {
	ListingID string
	// Search is a case-insensitive substring match on message_text.
	Search string
}

// ListForUser returns every message the user can see, newest first with
// thread_order breaking created_at ties.
func (s *Store) ListForUser(ctx context.Context, userID string, f Filter) ([]types.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m
		WHERE (m.sender_id = ? OR m.recipient_id = ?) AND ` + visibleTo
	args := []any{userID, userID, userID}

	if f.ListingID != "" {
		query += ` AND m.listing_id = ?`
		args = append(args, f.ListingID)
	}
	query += ` ORDER BY m.created_at DESC, m.thread_order DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages for user: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil || f.Search == "" {
		return msgs, err
	}
	return matchText(msgs, f.Search), nil
}

// matchText keeps the messages whose text contains query under Unicode case
// folding. SQLite's lower() only folds ASCII, so this runs in Go.
func matchText(msgs []types.Message, query string) []types.Message {
	fold := cases.Fold()
	needle := fold.String(query)
	out := msgs[:0]
	for _, m := range msgs {
		if strings.Contains(fold.String(m.MessageText), needle) {
			out = append(out, m)
		}
	}
	return out
}

// Conversation returns the messages of one conversation visible to userID,
// in arrival order.
func (s *Store) Conversation(ctx context.Context, userID string, key types.ConversationKey) ([]types.Message, error) {
	pred, args := conversationPredicate(userID, key)
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE ` + pred + ` AND ` + visibleTo +
		` ORDER BY m.thread_order ASC, m.created_at ASC`
	args = append(args, userID)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation %s: %w", key, err)
	}
	return scanMessages(rows)
}

// MarkConversationRead marks the user's unread messages in a conversation as
// read and returns how many rows changed.
func (s *Store) MarkConversationRead(ctx context.Context, userID string, key types.ConversationKey) (int, error) {
	pred, args := conversationPredicate(userID, key)
	now := types.FormatTime(s.now())
	query := `UPDATE messages AS m SET is_read = 1, read_at = ?, updated_at = ?
		WHERE ` + pred + ` AND ` + readableBy + ` AND m.is_read = 0 AND ` + visibleTo
	all := append([]any{now, now}, args...)
	all = append(all, userID, userID, userID)

	res, err := s.db.ExecContext(ctx, query, all...)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkRead marks specific messages read. Ids the user may not read are
// ignored; already-read rows are not counted.
func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := types.FormatTime(s.now())
	query := `UPDATE messages AS m SET is_read = 1, read_at = ?, updated_at = ?
		WHERE m.id IN (` + placeholders(len(ids)) + `) AND ` + readableBy + ` AND m.is_read = 0 AND ` + visibleTo
	args := append([]any{now, now}, stringArgs(ids)...)
	args = append(args, userID, userID, userID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// HideConversation hides every message of the conversation from userID
// only, then flags rows every participant has hidden as globally deleted.
// Returns the number of newly hidden messages.
func (s *Store) HideConversation(ctx context.Context, q safedb.Querier, userID string, key types.ConversationKey) (int, error) {
	pred, args := conversationPredicate(userID, key)
	now := types.FormatTime(s.now())
	all := append([]any{userID, now}, args...)

	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_hides (message_id, user_id, hidden_at)
		SELECT m.id, ?, ? FROM messages m WHERE `+pred+` AND m.is_deleted = 0`, all...)
	if err != nil {
		return 0, fmt.Errorf("hide conversation %s: %w", key, err)
	}
	n, _ := res.RowsAffected()

	if err := s.finalizeDeletes(ctx, q, userID, now); err != nil {
		return 0, err
	}
	return int(n), nil
}

// HideMessages hides specific messages from userID. Ids the user does not
// participate in are ignored.
func (s *Store) HideMessages(ctx context.Context, q safedb.Querier, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := types.FormatTime(s.now())
	args := append([]any{userID, now}, stringArgs(ids)...)
	args = append(args, userID, userID)

	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_hides (message_id, user_id, hidden_at)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.id IN (`+placeholders(len(ids))+`)
		  AND (m.sender_id = ? OR m.recipient_id = ?) AND m.is_deleted = 0`, args...)
	if err != nil {
		return 0, fmt.Errorf("hide messages: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := s.finalizeDeletes(ctx, q, userID, now); err != nil {
		return 0, err
	}
	return int(n), nil
}

// finalizeDeletes sets is_deleted on messages hidden by userID that the
// other participant has hidden too.
func (s *Store) finalizeDeletes(ctx context.Context, q safedb.Querier, userID, now string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE messages AS m SET is_deleted = 1, updated_at = ?
		WHERE m.is_deleted = 0
		  AND m.id IN (SELECT message_id FROM message_hides WHERE user_id = ?)
		  AND EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = m.sender_id)
		  AND EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = m.id AND h.user_id = m.recipient_id)`,
		now, userID)
	if err != nil {
		return fmt.Errorf("mark fully hidden messages deleted: %w", err)
	}
	return nil
}

// ConversationMessageIDs returns the ids of every message in a conversation
// that userID can still see.
func (s *Store) ConversationMessageIDs(ctx context.Context, q safedb.Querier, userID string, key types.ConversationKey) ([]string, error) {
	pred, args := conversationPredicate(userID, key)
	args = append(args, userID)
	rows, err := q.QueryContext(ctx, `SELECT m.id FROM messages m WHERE `+pred+` AND `+visibleTo, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HardDelete permanently removes messages authored by userID together with
// their hides and notifications. If any id is missing or authored by someone
// else nothing is deleted. Replies keep their parent_message_id.
func (s *Store) HardDelete(ctx context.Context, q safedb.Querier, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ids = dedupe(ids)
	in := placeholders(len(ids))
	idArgs := stringArgs(ids)

	rows, err := q.QueryContext(ctx, `SELECT id, sender_id FROM messages WHERE id IN (`+in+`)`, idArgs...)
	if err != nil {
		return 0, fmt.Errorf("query delete targets: %w", err)
	}
	authors := make(map[string]string, len(ids))
	for rows.Next() {
		var id, sender string
		if err := rows.Scan(&id, &sender); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan delete target: %w", err)
		}
		authors[id] = sender
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate delete targets: %w", err)
	}
	_ = rows.Close()

	for _, id := range ids {
		sender, ok := authors[id]
		if !ok {
			return 0, apperr.NotFound("message not found: %s", id)
		}
		if sender != userID {
			return 0, apperr.Forbidden("message %s was not sent by the caller", id)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM message_hides WHERE message_id IN (`+in+`)`, idArgs...); err != nil {
		return 0, fmt.Errorf("delete message hides: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM notifications WHERE message_id IN (`+in+`)`, idArgs...); err != nil {
		return 0, fmt.Errorf("delete message notifications: %w", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM messages WHERE id IN (`+in+`)`, idArgs...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
