package cli

import (
	"context"
	"fmt"

	"github.com/leonletto/carlot/internal/daemon/rpc"
)

// MarkReadOptions selects what to mark read. Set exactly one of
// Conversation and MessageIDs.
type MarkReadOptions struct {
	Token        string
	Conversation string
	MessageIDs   []string
}

// MarkRead marks messages addressed to the caller as read.
func MarkRead(ctx context.Context, c Caller, opts MarkReadOptions) (int, error) {
	if (opts.Conversation == "") == (len(opts.MessageIDs) == 0) {
		return 0, fmt.Errorf("specify either a conversation or message ids")
	}
	req := rpc.MarkReadRequest{
		Authenticated: rpc.Authenticated{SessionToken: opts.Token},
		Conversation:  opts.Conversation,
		MessageIDs:    opts.MessageIDs,
	}

	var result rpc.MarkReadResponse
	if err := c.CallInto(ctx, "message.markRead", req, &result); err != nil {
		return 0, err
	}
	return result.MarkedCount, nil
}

// Archive sets or clears the caller's archive flag on conversations.
func Archive(ctx context.Context, c Caller, token string, conversations []string, archived bool) (int, error) {
	if len(conversations) == 0 {
		return 0, fmt.Errorf("at least one conversation is required")
	}
	req := rpc.ArchiveRequest{
		Authenticated: rpc.Authenticated{SessionToken: token},
		Conversations: conversations,
		Archived:      &archived,
	}

	var result rpc.ArchiveResponse
	if err := c.CallInto(ctx, "message.archive", req, &result); err != nil {
		return 0, err
	}
	return result.UpdatedCount, nil
}

// DeleteOptions selects what to delete.
type DeleteOptions struct {
	Token         string
	Conversations []string
	MessageIDs    []string
	// Hard removes the messages for both participants. Only the author of
	// every selected message may do that.
	Hard bool
}

// Delete hides or removes messages.
func Delete(ctx context.Context, c Caller, opts DeleteOptions) (int, error) {
	if len(opts.Conversations) == 0 && len(opts.MessageIDs) == 0 {
		return 0, fmt.Errorf("specify conversations or message ids to delete")
	}
	req := rpc.DeleteRequest{
		Authenticated: rpc.Authenticated{SessionToken: opts.Token},
		Conversations: opts.Conversations,
		MessageIDs:    opts.MessageIDs,
		Hard:          opts.Hard,
	}

	var result rpc.DeleteResponse
	if err := c.CallInto(ctx, "message.delete", req, &result); err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
