package types

import "time"

// Conversation is the derived per-counterpart summary of the message log.
// It is recomputed on every read and never stored.
type Conversation struct {
	Key                ConversationKey `json:"key"`
	ListingID          string          `json:"listing_id"`
	Participants       []string        `json:"participants"`
	OtherParticipant   string          `json:"other_participant"`
	LastMessage        Message         `json:"last_message"`
	UnreadCount        int             `json:"unread_count"`
	IsArchived         bool            `json:"is_archived"`
	IsSelfConversation bool            `json:"is_self_conversation"`

	// Display joins; zero when the boundary record is missing.
	OtherProfile *Profile `json:"other_profile,omitempty"`
	Listing      *Listing `json:"listing,omitempty"`
}

// Profile is the display identity of a marketplace user.
type Profile struct {
	UserID          string `json:"user_id"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Listing is the marketplace item a conversation is about.
type Listing struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is one entry in a user's notification feed.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	MessageID string     `json:"message_id,omitempty"`
	ListingID string     `json:"listing_id,omitempty"`
	SenderID  string     `json:"sender_id,omitempty"`
	Preview   string     `json:"preview"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// NotificationKindNewMessage is the kind recorded for an incoming message.
const NotificationKindNewMessage = "new_message"
