package types

import (
	"fmt"
	"strings"
	"time"
)

// TimeFormat is the fixed-width UTC layout used for every stored timestamp.
// Fixed width keeps lexical order equal to chronological order in SQL.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp. RFC3339 variants written by older
// rows are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// MessageType classifies a message's intent.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeInquiry MessageType = "inquiry"
	MessageTypeOffer   MessageType = "offer"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeInquiry, MessageTypeOffer:
		return true
	}
	return false
}

// MaxMessageLength is the maximum message_text length in code points.
const MaxMessageLength = 5000

// Message is one row of the message log.
type Message struct {
	ID              string      `json:"id"`
	ListingID       string      `json:"listing_id"`
	SenderID        string      `json:"sender_id"`
	RecipientID     string      `json:"recipient_id"`
	MessageText     string      `json:"message_text"`
	MessageType     MessageType `json:"message_type"`
	ParentMessageID string      `json:"parent_message_id,omitempty"`
	ThreadID        string      `json:"thread_id"`
	ThreadDepth     int         `json:"thread_depth"`
	ThreadOrder     int64       `json:"thread_order"`
	IsRead          bool        `json:"is_read"`
	ReadAt          *time.Time  `json:"read_at,omitempty"`
	IsDeleted       bool        `json:"is_deleted"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsSelf reports whether the message was sent to its own author.
func (m *Message) IsSelf() bool {
	return m.SenderID == m.RecipientID
}

// IsRoot reports whether the message starts a thread.
func (m *Message) IsRoot() bool {
	return m.ParentMessageID == ""
}

// Counterpart returns the other participant relative to userID. For a
// self-message it returns userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Participants returns the distinct participants of the message.
func (m *Message) Participants() []string {
	if m.IsSelf() {
		return []string{m.SenderID}
	}
	return []string{m.SenderID, m.RecipientID}
}

// Key returns the conversation key of the message as seen by userID.
func (m *Message) Key(userID string) ConversationKey {
	if m.IsSelf() {
		return ConversationKey{ListingID: m.ListingID, OtherUserID: m.SenderID}
	}
	return ConversationKey{ListingID: m.ListingID, OtherUserID: m.Counterpart(userID)}
}

// ConversationKey identifies a conversation from one user's point of view.
// For a self-conversation OtherUserID is the user themself.
type ConversationKey struct {
	ListingID   string `json:"listing_id"`
	OtherUserID string `json:"other_user_id"`
}

// String renders the key as "<listing_id>/<other_user_id>".
func (k ConversationKey) String() string {
	return k.ListingID + "/" + k.OtherUserID
}

// ParseConversationKey parses "<listing_id>/<other_user_id>". Only the
// shape is checked here; callers validate the halves as UUIDs.
func ParseConversationKey(s string) (ConversationKey, error) {
	listing, other, ok := strings.Cut(s, "/")
	if !ok || listing == "" || other == "" || strings.Contains(other, "/") {
		return ConversationKey{}, fmt.Errorf("conversation key %q: want <listing_id>/<other_user_id>", s)
	}
	return ConversationKey{ListingID: listing, OtherUserID: other}, nil
}

// Less orders keys by listing then counterpart.
func (k ConversationKey) Less(o ConversationKey) bool {
	if k.ListingID != o.ListingID {
		return k.ListingID < o.ListingID
	}
	return k.OtherUserID < o.OtherUserID
}
