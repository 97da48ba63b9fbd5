package threading

import (
	"context"
	"errors"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/types"
)

// MessageStore is the subset of the message store the linker reads.
type MessageStore interface {
	Get(ctx context.Context, q safedb.Querier, id string) (*types.Message, error)
	HiddenBy(ctx context.Context, q safedb.Querier, messageID, userID string) (bool, error)
	NextThreadOrder(ctx context.Context, q safedb.Querier, listingID string) (int64, error)
}

// Linker assigns thread_id, thread_depth and thread_order to new messages.
type Linker struct {
	store MessageStore
}

// NewLinker creates a linker backed by store.
func NewLinker(store MessageStore) *Linker {
	return &Linker{store: store}
}

// Link fills in m's thread fields. m.ID, m.ListingID, m.SenderID,
// m.RecipientID and m.ParentMessageID must already be set. requestedThreadID is the optional
// client-supplied thread id; it must agree with the derived one.
//
// Run Link in the same transaction as the insert so the reserved
// thread_order is released if the insert fails.
func (l *Linker) Link(ctx context.Context, q safedb.Querier, m *types.Message, requestedThreadID string) error {
	if m.ParentMessageID == "" {
		if requestedThreadID != "" {
			return apperr.InvalidField("thread_id", "requires parent_message_id")
		}
		m.ThreadID = m.ID
		m.ThreadDepth = 0
	} else {
		parent, err := l.visibleParent(ctx, q, m.ParentMessageID, m.SenderID)
		if err != nil {
			return err
		}
		if parent.ListingID != m.ListingID {
			return apperr.InvalidField("parent_message_id", "belongs to a different listing")
		}
		// A reply stays in its parent's conversation. Reported as not found
		// so the other conversation's ids are not confirmed.
		if !samePair(parent, m) {
			return apperr.NotFound("parent message not found: %s", m.ParentMessageID)
		}

		threadID := parent.ThreadID
		if threadID == "" {
			// Roots written before thread ids were assigned at insert.
			threadID = parent.ID
		}
		if requestedThreadID != "" && requestedThreadID != threadID {
			return apperr.InvalidField("thread_id", "does not match the parent's thread")
		}
		m.ThreadID = threadID
		m.ThreadDepth = parent.ThreadDepth + 1
	}

	order, err := l.store.NextThreadOrder(ctx, q, m.ListingID)
	if err != nil {
		return err
	}
	m.ThreadOrder = order
	return nil
}

// visibleParent loads the parent and checks the sender can see it. Deleted,
// hidden and foreign messages are all reported as not found so replies
// cannot probe for message ids.
func (l *Linker) visibleParent(ctx context.Context, q safedb.Querier, parentID, senderID string) (*types.Message, error) {
	parent, err := l.store.Get(ctx, q, parentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("parent message not found: %s", parentID)
	}
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted || (parent.SenderID != senderID && parent.RecipientID != senderID) {
		return nil, apperr.NotFound("parent message not found: %s", parentID)
	}
	hidden, err := l.store.HiddenBy(ctx, q, parentID, senderID)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, apperr.NotFound("parent message not found: %s", parentID)
	}
	return parent, nil
}

// samePair reports whether a and b are between the same two participants.
func samePair(a, b *types.Message) bool {
	return (a.SenderID == b.SenderID && a.RecipientID == b.RecipientID) ||
		(a.SenderID == b.RecipientID && a.RecipientID == b.SenderID)
}
