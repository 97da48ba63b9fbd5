package mcp

import "time"

// ListConversationsInput is the input for the list_conversations MCP tool.
type ListConversationsInput struct {
	ListingID       string `json:"listing_id,omitempty" jsonschema:"Only conversations about this listing"`
	Search          string `json:"search,omitempty" jsonschema:"Case-insensitive text the conversation's messages must contain"`
	IncludeArchived bool   `json:"include_archived,omitempty" jsonschema:"Include archived conversations. Default false"`
	Limit           int    `json:"limit,omitempty" jsonschema:"Page size, at most 100. Default 20"`
	Offset          int    `json:"offset,omitempty" jsonschema:"Number of conversations to skip"`
}

// ConversationInfo summarizes one conversation.
type ConversationInfo struct {
	Conversation  string    `json:"conversation" jsonschema:"Conversation key: <listing_id>/<other_user_id>"`
	ListingID     string    `json:"listing_id"`
	ListingTitle  string    `json:"listing_title,omitempty"`
	OtherUserID   string    `json:"other_user_id"`
	OtherUserName string    `json:"other_user_name,omitempty"`
	LastMessageID string    `json:"last_message_id"`
	LastSenderID  string    `json:"last_sender_id"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	IsArchived    bool      `json:"is_archived"`
	IsSelf        bool      `json:"is_self_conversation"`
}

// ListConversationsOutput is the output for the list_conversations MCP tool.
type ListConversationsOutput struct {
	Conversations []ConversationInfo `json:"conversations"`
	Total         int                `json:"total"`
}

// GetConversationInput is the input for the get_conversation MCP tool.
type GetConversationInput struct {
	Conversation string `json:"conversation" jsonschema:"Conversation key: <listing_id>/<other_user_id>"`
	MarkRead     bool   `json:"mark_read,omitempty" jsonschema:"Mark the conversation read after fetching it"`
}

// MessageInfo is one message in thread order. Depth is the reply nesting.
type MessageInfo struct {
	MessageID       string    `json:"message_id"`
	From            string    `json:"from"`
	FromName        string    `json:"from_name,omitempty"`
	Text            string    `json:"text"`
	Type            string    `json:"type"`
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	ThreadID        string    `json:"thread_id"`
	Depth           int       `json:"depth"`
	IsRead          bool      `json:"is_read"`
	Timestamp       time.Time `json:"timestamp"`
}

// GetConversationOutput is the output for the get_conversation MCP tool.
type GetConversationOutput struct {
	Conversation string        `json:"conversation"`
	ListingTitle string        `json:"listing_title,omitempty"`
	IsArchived   bool          `json:"is_archived"`
	IsSelf       bool          `json:"is_self_conversation"`
	Messages     []MessageInfo `json:"messages" jsonschema:"Messages depth-first in thread order"`
	ThreadCount  int           `json:"thread_count"`
}

// SendMessageInput is the input for the send_message MCP tool.
type SendMessageInput struct {
	ListingID       string `json:"listing_id" jsonschema:"Listing the message is about"`
	RecipientID     string `json:"recipient_id" jsonschema:"User id of the recipient"`
	Text            string `json:"text" jsonschema:"Message text, at most 5000 characters"`
	Type            string `json:"type,omitempty" jsonschema:"Message type: text, inquiry or offer. Default: text"`
	ParentMessageID string `json:"parent_message_id,omitempty" jsonschema:"Message id to reply to"`
}

// SendMessageOutput is the output for the send_message MCP tool.
type SendMessageOutput struct {
	Status       string `json:"status" jsonschema:"Always created"`
	MessageID    string `json:"message_id"`
	ThreadID     string `json:"thread_id"`
	Depth        int    `json:"depth"`
	Conversation string `json:"conversation"`
}

// MarkReadInput is the input for the mark_read MCP tool.
type MarkReadInput struct {
	Conversation string   `json:"conversation,omitempty" jsonschema:"Conversation key to mark read"`
	MessageIDs   []string `json:"message_ids,omitempty" jsonschema:"Specific message ids to mark read"`
}

// CountOutput reports how many records a mutation touched.
type CountOutput struct {
	Count int `json:"count"`
}

// ArchiveConversationInput is the input for the archive_conversation MCP tool.
type ArchiveConversationInput struct {
	Conversations []string `json:"conversations" jsonschema:"Conversation keys"`
	Archived      *bool    `json:"archived,omitempty" jsonschema:"true to archive, false to unarchive. Default true"`
}

// DeleteMessagesInput is the input for the delete_messages MCP tool.
type DeleteMessagesInput struct {
	Conversations []string `json:"conversations,omitempty" jsonschema:"Conversation keys to delete for this user"`
	MessageIDs    []string `json:"message_ids,omitempty" jsonschema:"Message ids to delete"`
	Hard          bool     `json:"hard,omitempty" jsonschema:"Remove for both participants; only allowed for messages you sent"`
}

// ListNotificationsInput is the input for the list_notifications MCP tool.
type ListNotificationsInput struct {
	UnreadOnly bool `json:"unread_only,omitempty"`
	Limit      int  `json:"limit,omitempty" jsonschema:"At most 200. Default 50"`
}

// NotificationInfo is one new-message notification.
type NotificationInfo struct {
	MessageID    string    `json:"message_id"`
	Conversation string    `json:"conversation"`
	From         string    `json:"from"`
	Preview      string    `json:"preview"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
}

// ListNotificationsOutput is the output for the list_notifications MCP tool.
type ListNotificationsOutput struct {
	Notifications []NotificationInfo `json:"notifications"`
}

// WaitForMessageInput is the input for the wait_for_message MCP tool.
type WaitForMessageInput struct {
	Timeout int `json:"timeout,omitempty" jsonschema:"Max seconds to wait. Default 300, max 600"`
}

// WaitForMessageOutput is the output for the wait_for_message MCP tool.
type WaitForMessageOutput struct {
	Status        string             `json:"status" jsonschema:"Result: message_received or timeout"`
	Notifications []NotificationInfo `json:"notifications,omitempty"`
	WaitedSeconds int                `json:"waited_seconds"`
}
