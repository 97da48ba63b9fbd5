package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/threading"
	"github.com/leonletto/carlot/internal/types"
)

// maxIndentDepth caps visual nesting so deep threads stay readable.
const maxIndentDepth = 6

// ThreadOptions contains options for showing one conversation.
type ThreadOptions struct {
	Token        string
	Conversation string // "<listing_id>/<other_user_id>"
	// MarkRead marks the conversation read after fetching it.
	MarkRead bool
}

// Thread fetches one conversation with its reply trees.
func Thread(ctx context.Context, c Caller, opts ThreadOptions) (*rpc.ConversationView, error) {
	if _, err := types.ParseConversationKey(opts.Conversation); err != nil {
		return nil, err
	}
	req := rpc.ListRequest{
		Authenticated: rpc.Authenticated{SessionToken: opts.Token},
		Conversation:  opts.Conversation,
	}

	var view rpc.ConversationView
	if err := c.CallInto(ctx, "message.list", req, &view); err != nil {
		return nil, err
	}

	if opts.MarkRead && len(view.Messages) > 0 {
		if _, err := MarkRead(ctx, c, MarkReadOptions{Token: opts.Token, Conversation: opts.Conversation}); err != nil {
			return nil, fmt.Errorf("mark conversation read: %w", err)
		}
	}
	return &view, nil
}

// FormatThread renders a conversation as indented reply trees.
func FormatThread(view *rpc.ConversationView, termWidth int) string {
	var b strings.Builder

	title := "Conversation " + view.Key.String()
	if view.IsSelfConversation {
		title = "Notes to self"
	} else if p, ok := view.Profiles[view.Key.OtherUserID]; ok {
		title = "Conversation with " + p.DisplayName
	}
	if view.Listing != nil {
		title += fmt.Sprintf(" re: %s", view.Listing.Title)
	}
	if view.IsArchived {
		title += " [archived]"
	}
	b.WriteString(title + "\n")

	if len(view.Messages) == 0 {
		b.WriteString("No messages.\n")
		return b.String()
	}
	b.WriteString(strings.Repeat("─", boxWidth(termWidth)) + "\n")

	for _, root := range view.Threads {
		writeNode(&b, view, root, boxWidth(termWidth))
	}

	fmt.Fprintf(&b, "%d messages in %d threads\n", len(view.Messages), len(view.Threads))
	return b.String()
}

func writeNode(b *strings.Builder, view *rpc.ConversationView, n *threading.Node, width int) {
	depth := n.ThreadDepth
	if depth > maxIndentDepth {
		depth = maxIndentDepth
	}
	indent := strings.Repeat("  ", depth)

	marker := ""
	if depth > 0 {
		marker = "↳ "
	}
	readIndicator := "○"
	if !n.IsRead {
		readIndicator = "●"
	}

	var sender *types.Profile
	if p, ok := view.Profiles[n.SenderID]; ok {
		sender = &p
	}
	header := fmt.Sprintf("%s%s%s %s  %s  %s", indent, marker, readIndicator,
		displayName(sender, n.SenderID), formatRelativeTime(n.CreatedAt), n.ID)
	if n.MessageType != "" && n.MessageType != types.MessageTypeText {
		header += fmt.Sprintf("  [%s]", n.MessageType)
	}
	b.WriteString(header + "\n")

	textIndent := indent + "    "
	textWidth := width - len(textIndent)
	if textWidth < 20 {
		textWidth = 20
	}
	for _, line := range strings.Split(wordWrap(n.MessageText, textWidth), "\n") {
		b.WriteString(textIndent + line + "\n")
	}

	for _, reply := range n.Replies {
		writeNode(b, view, reply, width)
	}
}
