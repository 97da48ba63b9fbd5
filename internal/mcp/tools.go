package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leonletto/carlot/internal/conversation"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/threading"
	"github.com/leonletto/carlot/internal/types"
)

const defaultConversationLimit = 20

func (s *Server) auth() rpc.Authenticated {
	return rpc.Authenticated{SessionToken: s.token}
}

// handleListConversations lists the caller's conversation summaries.
func (s *Server) handleListConversations(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListConversationsInput,
) (*gomcp.CallToolResult, ListConversationsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultConversationLimit
	}

	var page conversation.Page
	err := s.call(ctx, "message.list", rpc.ListRequest{
		Authenticated:   s.auth(),
		ListingID:       input.ListingID,
		IncludeArchived: input.IncludeArchived,
		Search:          input.Search,
		Limit:           limit,
		Offset:          input.Offset,
	}, &page)
	if err != nil {
		return nil, ListConversationsOutput{}, fmt.Errorf("list conversations: %w", err)
	}

	out := ListConversationsOutput{
		Conversations: make([]ConversationInfo, 0, len(page.Conversations)),
		Total:         page.Total,
	}
	for _, c := range page.Conversations {
		info := ConversationInfo{
			Conversation:  c.Key.String(),
			ListingID:     c.ListingID,
			OtherUserID:   c.OtherParticipant,
			LastMessageID: c.LastMessage.ID,
			LastSenderID:  c.LastMessage.SenderID,
			LastMessage:   c.LastMessage.MessageText,
			LastMessageAt: c.LastMessage.CreatedAt,
			UnreadCount:   c.UnreadCount,
			IsArchived:    c.IsArchived,
			IsSelf:        c.IsSelfConversation,
		}
		if c.Listing != nil {
			info.ListingTitle = c.Listing.Title
		}
		if c.OtherProfile != nil {
			info.OtherUserName = c.OtherProfile.DisplayName
		}
		out.Conversations = append(out.Conversations, info)
	}
	return nil, out, nil
}

// handleGetConversation returns one conversation flattened depth-first.
func (s *Server) handleGetConversation(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input GetConversationInput,
) (*gomcp.CallToolResult, GetConversationOutput, error) {
	if input.Conversation == "" {
		return nil, GetConversationOutput{}, fmt.Errorf("'conversation' is required")
	}

	var view rpc.ConversationView
	err := s.call(ctx, "message.list", rpc.ListRequest{
		Authenticated: s.auth(),
		Conversation:  input.Conversation,
	}, &view)
	if err != nil {
		return nil, GetConversationOutput{}, fmt.Errorf("get conversation: %w", err)
	}

	out := GetConversationOutput{
		Conversation: view.Key.String(),
		IsArchived:   view.IsArchived,
		IsSelf:       view.IsSelfConversation,
		Messages:     make([]MessageInfo, 0, len(view.Messages)),
		ThreadCount:  len(view.Threads),
	}
	if view.Listing != nil {
		out.ListingTitle = view.Listing.Title
	}
	for _, n := range threading.Flatten(view.Threads) {
		out.Messages = append(out.Messages, MessageInfo{
			MessageID:       n.ID,
			From:            n.SenderID,
			FromName:        view.Profiles[n.SenderID].DisplayName,
			Text:            n.MessageText,
			Type:            string(n.MessageType),
			ParentMessageID: n.ParentMessageID,
			ThreadID:        n.ThreadID,
			Depth:           n.ThreadDepth,
			IsRead:          n.IsRead,
			Timestamp:       n.CreatedAt,
		})
	}

	if input.MarkRead && len(view.Messages) > 0 {
		var marked rpc.MarkReadResponse
		if err := s.call(ctx, "message.markRead", rpc.MarkReadRequest{
			Authenticated: s.auth(),
			Conversation:  input.Conversation,
		}, &marked); err != nil {
			return nil, GetConversationOutput{}, fmt.Errorf("mark read: %w", err)
		}
	}
	return nil, out, nil
}

// handleSendMessage sends a message via the daemon.
func (s *Server) handleSendMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendMessageInput,
) (*gomcp.CallToolResult, SendMessageOutput, error) {
	if input.ListingID == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'listing_id' is required")
	}
	if input.RecipientID == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'recipient_id' is required")
	}
	if input.Text == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'text' is required")
	}

	var resp rpc.SendResponse
	err := s.call(ctx, "message.send", rpc.SendRequest{
		Authenticated:   s.auth(),
		ListingID:       input.ListingID,
		RecipientID:     input.RecipientID,
		MessageText:     input.Text,
		MessageType:     types.MessageType(input.Type),
		ParentMessageID: input.ParentMessageID,
	}, &resp)
	if err != nil {
		return nil, SendMessageOutput{}, fmt.Errorf("send message: %w", err)
	}

	msg := resp.Message
	return nil, SendMessageOutput{
		Status:       "created",
		MessageID:    msg.ID,
		ThreadID:     msg.ThreadID,
		Depth:        msg.ThreadDepth,
		Conversation: msg.ListingID + "/" + msg.RecipientID,
	}, nil
}

// handleMarkRead marks a conversation or specific messages read.
func (s *Server) handleMarkRead(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input MarkReadInput,
) (*gomcp.CallToolResult, CountOutput, error) {
	var resp rpc.MarkReadResponse
	err := s.call(ctx, "message.markRead", rpc.MarkReadRequest{
		Authenticated: s.auth(),
		Conversation:  input.Conversation,
		MessageIDs:    input.MessageIDs,
	}, &resp)
	if err != nil {
		return nil, CountOutput{}, fmt.Errorf("mark read: %w", err)
	}
	return nil, CountOutput{Count: resp.MarkedCount}, nil
}

// handleArchiveConversation sets the caller's archive flag.
func (s *Server) handleArchiveConversation(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ArchiveConversationInput,
) (*gomcp.CallToolResult, CountOutput, error) {
	archived := true
	if input.Archived != nil {
		archived = *input.Archived
	}

	var resp rpc.ArchiveResponse
	err := s.call(ctx, "message.archive", rpc.ArchiveRequest{
		Authenticated: s.auth(),
		Conversations: input.Conversations,
		Archived:      &archived,
	}, &resp)
	if err != nil {
		return nil, CountOutput{}, fmt.Errorf("archive: %w", err)
	}
	return nil, CountOutput{Count: resp.UpdatedCount}, nil
}

// handleDeleteMessages hides or removes messages.
func (s *Server) handleDeleteMessages(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input DeleteMessagesInput,
) (*gomcp.CallToolResult, CountOutput, error) {
	var resp rpc.DeleteResponse
	err := s.call(ctx, "message.delete", rpc.DeleteRequest{
		Authenticated: s.auth(),
		Conversations: input.Conversations,
		MessageIDs:    input.MessageIDs,
		Hard:          input.Hard,
	}, &resp)
	if err != nil {
		return nil, CountOutput{}, fmt.Errorf("delete: %w", err)
	}
	return nil, CountOutput{Count: resp.DeletedCount}, nil
}

// handleListNotifications lists the caller's notifications.
func (s *Server) handleListNotifications(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListNotificationsInput,
) (*gomcp.CallToolResult, ListNotificationsOutput, error) {
	var resp rpc.ListNotificationsResponse
	err := s.call(ctx, "notification.list", rpc.ListNotificationsRequest{
		Authenticated: s.auth(),
		UnreadOnly:    input.UnreadOnly,
		Limit:         input.Limit,
	}, &resp)
	if err != nil {
		return nil, ListNotificationsOutput{}, fmt.Errorf("list notifications: %w", err)
	}
	return nil, ListNotificationsOutput{Notifications: notificationInfos(resp.Notifications)}, nil
}

// handleWaitForMessage blocks until a notification arrives or timeout expires.
func (s *Server) handleWaitForMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input WaitForMessageInput,
) (*gomcp.CallToolResult, WaitForMessageOutput, error) {
	if s.waiter == nil {
		return nil, WaitForMessageOutput{}, fmt.Errorf("wait_for_message requires the daemon's WebSocket listener; waiter not initialized")
	}
	result, err := s.waiter.WaitForMessage(ctx, input.Timeout)
	if err != nil {
		return nil, WaitForMessageOutput{}, err
	}
	return nil, *result, nil
}

func notificationInfos(list []types.Notification) []NotificationInfo {
	out := make([]NotificationInfo, 0, len(list))
	for _, n := range list {
		out = append(out, NotificationInfo{
			MessageID:    n.MessageID,
			Conversation: n.ListingID + "/" + n.SenderID,
			From:         n.SenderID,
			Preview:      n.Preview,
			Timestamp:    n.CreatedAt,
			Read:         n.ReadAt != nil,
		})
	}
	return out
}
