package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonletto/carlot/internal/conversation"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/types"
)

// InboxOptions contains options for listing conversations.
type InboxOptions struct {
	Token           string
	ListingID       string
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Inbox retrieves the caller's conversation summaries.
func Inbox(ctx context.Context, c Caller, opts InboxOptions) (*conversation.Page, error) {
	req := rpc.ListRequest{
		Authenticated:   rpc.Authenticated{SessionToken: opts.Token},
		ListingID:       opts.ListingID,
		IncludeArchived: opts.IncludeArchived,
		Search:          opts.Search,
		Limit:           opts.Limit,
		Offset:          opts.Offset,
	}

	var page conversation.Page
	if err := c.CallInto(ctx, "message.list", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FormatInbox formats a conversation page for a terminal termWidth columns
// wide.
func FormatInbox(page *conversation.Page, termWidth int) string {
	if len(page.Conversations) == 0 {
		if page.Total > 0 {
			return fmt.Sprintf("No conversations on this page (%d total).\n", page.Total)
		}
		return "No conversations.\n"
	}

	width := boxWidth(termWidth)
	contentWidth := width - 3

	unread := 0
	blocks := make([][]string, 0, len(page.Conversations))
	for _, conv := range page.Conversations {
		unread += conv.UnreadCount
		blocks = append(blocks, conversationBlock(conv, contentWidth))
	}

	var b strings.Builder
	b.WriteString(boxed(blocks, width))

	start := page.Offset + 1
	end := page.Offset + len(page.Conversations)
	footer := fmt.Sprintf("Showing %d-%d of %d conversations", start, end, page.Total)
	if unread > 0 {
		footer += fmt.Sprintf(" (%d unread on this page)", unread)
	}
	b.WriteString(footer + "\n")
	return b.String()
}

func conversationBlock(conv types.Conversation, contentWidth int) []string {
	indicator := "○"
	if conv.UnreadCount > 0 {
		indicator = "●"
	}

	who := displayName(conv.OtherProfile, conv.OtherParticipant)
	if conv.IsSelfConversation {
		who = "Notes to self"
	}
	header := fmt.Sprintf("%s %s", indicator, who)
	if conv.Listing != nil {
		header += fmt.Sprintf("  re: %s", truncate(conv.Listing.Title, 40))
	}
	header += "  " + formatRelativeTime(conv.LastMessage.CreatedAt)
	if conv.UnreadCount > 0 {
		header += fmt.Sprintf("  (%d unread)", conv.UnreadCount)
	}
	if conv.IsArchived {
		header += "  [archived]"
	}

	preview := strings.Join(strings.Fields(conv.LastMessage.MessageText), " ")
	lines := []string{header, "  " + truncate(preview, contentWidth-2)}
	lines = append(lines, "  "+conv.Key.String())
	return lines
}
