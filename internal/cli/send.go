package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/types"
)

// SendOptions contains options for sending a message.
type SendOptions struct {
	Token     string
	ListingID string
	To        string
	Text      string
	Type      string // text, inquiry or offer; empty means text
	ReplyTo   string // parent message id
	Thread    string // optional thread id check
}

// Send sends a message via the daemon.
func Send(ctx context.Context, c Caller, opts SendOptions) (*rpc.SendResponse, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return nil, fmt.Errorf("message text is required")
	}
	req := rpc.SendRequest{
		Authenticated:   rpc.Authenticated{SessionToken: opts.Token},
		ListingID:       opts.ListingID,
		RecipientID:     opts.To,
		MessageText:     opts.Text,
		MessageType:     types.MessageType(opts.Type),
		ParentMessageID: opts.ReplyTo,
		ThreadID:        opts.Thread,
	}

	var result rpc.SendResponse
	if err := c.CallInto(ctx, "message.send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FormatSendResult renders a confirmation line for a sent message.
func FormatSendResult(r *rpc.SendResponse) string {
	var b strings.Builder
	msg := r.Message
	fmt.Fprintf(&b, "✓ Sent %s to %s", msg.ID, displayName(r.Recipient, msg.RecipientID))
	if r.Listing != nil {
		fmt.Fprintf(&b, " about %q", r.Listing.Title)
	}
	b.WriteString("\n")
	if msg.ParentMessageID != "" {
		fmt.Fprintf(&b, "  Reply to %s (thread %s, depth %d)\n", msg.ParentMessageID, msg.ThreadID, msg.ThreadDepth)
	}
	fmt.Fprintf(&b, "  Conversation: %s/%s\n", msg.ListingID, msg.RecipientID)
	return b.String()
}
