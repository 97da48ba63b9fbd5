package rpc

import (
	"context"
	"encoding/json"
	"log"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/archive"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/conversation"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/identity"
	"github.com/leonletto/carlot/internal/metrics"
	"github.com/leonletto/carlot/internal/notify"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/threading"
	"github.com/leonletto/carlot/internal/types"
)

// StatusCreated is reported in a successful send response.
const StatusCreated = 201

// ListRequest represents the request for message.list RPC.
//
// With Conversation set the response is a ConversationView; otherwise it is
// a page of conversation summaries.
type ListRequest struct {
	Authenticated
	Conversation    string `json:"conversation,omitempty" validate:"omitempty,convkey"`
	ListingID       string `json:"listing_id,omitempty" validate:"omitempty,entityid"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
	Search          string `json:"search,omitempty" validate:"max=200"`
	Limit           int    `json:"limit,omitempty" validate:"gte=0,lte=100"`
	Offset          int    `json:"offset,omitempty" validate:"gte=0"`
}

// ConversationView is one conversation's messages, flat and threaded.
type ConversationView struct {
	Key                types.ConversationKey    `json:"key"`
	IsSelfConversation bool                     `json:"is_self_conversation"`
	IsArchived         bool                     `json:"is_archived"`
	Messages           []types.Message          `json:"messages"`
	Threads            []*threading.Node        `json:"threads"`
	Listing            *types.Listing           `json:"listing,omitempty"`
	Profiles           map[string]types.Profile `json:"profiles,omitempty"`
}

// SendRequest represents the request for message.send RPC.
type SendRequest struct {
	Authenticated
	ListingID       string            `json:"listing_id" validate:"required,entityid"`
	RecipientID     string            `json:"recipient_id" validate:"required,entityid"`
	MessageText     string            `json:"message_text" validate:"required,notblank,max=5000"`
	MessageType     types.MessageType `json:"message_type,omitempty" validate:"omitempty,msgtype"`
	ParentMessageID string            `json:"parent_message_id,omitempty" validate:"omitempty,msgid"`
	ThreadID        string            `json:"thread_id,omitempty" validate:"omitempty,msgid"`
}

// SendResponse represents the response from message.send RPC.
type SendResponse struct {
	Status    int            `json:"status"`
	Message   types.Message  `json:"message"`
	Sender    *types.Profile `json:"sender,omitempty"`
	Recipient *types.Profile `json:"recipient,omitempty"`
	Listing   *types.Listing `json:"listing,omitempty"`
}

// MarkReadRequest represents the request for message.markRead RPC.
// Exactly one of Conversation and MessageIDs must be set.
type MarkReadRequest struct {
	Authenticated
	Conversation string   `json:"conversation,omitempty" validate:"omitempty,convkey"`
	MessageIDs   []string `json:"message_ids,omitempty" validate:"omitempty,max=500,dive,msgid"`
}

// MarkReadResponse represents the response from message.markRead RPC.
type MarkReadResponse struct {
	MarkedCount int `json:"marked_count"`
}

// ArchiveRequest represents the request for message.archive RPC.
type ArchiveRequest struct {
	Authenticated
	Conversations []string `json:"conversations" validate:"required,min=1,max=100,dive,convkey"`
	Archived      *bool    `json:"archived" validate:"required"`
}

// ArchiveResponse represents the response from message.archive RPC.
type ArchiveResponse struct {
	UpdatedCount int `json:"updated_count"`
}

// DeleteRequest represents the request for message.delete RPC.
type DeleteRequest struct {
	Authenticated
	Conversations []string `json:"conversations,omitempty" validate:"omitempty,max=100,dive,convkey"`
	MessageIDs    []string `json:"message_ids,omitempty" validate:"omitempty,max=500,dive,msgid"`
	// Hard removes the rows for everyone; only the author may do that.
	Hard bool `json:"hard,omitempty"`
}

// DeleteResponse represents the response from message.delete RPC.
type DeleteResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Enqueue(n types.Notification) bool
}

// MessageHandler serves the message.* methods.
type MessageHandler struct {
	messages  *store.Store
	linker    *threading.Linker
	convs     *conversation.Aggregator
	archive   *archive.Store
	directory *directory.Store
	sessions  auth.Resolver

	limiter  SendLimiter
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *store.Store, overlay *archive.Store, dir *directory.Store, sessions auth.Resolver) *MessageHandler {
	return &MessageHandler{
		messages:  messages,
		linker:    threading.NewLinker(messages),
		convs:     conversation.New(messages, overlay, dir),
		archive:   overlay,
		directory: dir,
		sessions:  sessions,
	}
}

// SetSendLimiter installs the per-user send limiter.
func (h *MessageHandler) SetSendLimiter(l SendLimiter) {
	h.limiter = l
}

// SetNotifier installs the notification queue.
func (h *MessageHandler) SetNotifier(n Notifier) {
	h.notifier = n
}

// SetMetrics installs the metrics collector.
func (h *MessageHandler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// HandleList handles the message.list RPC method.
func (h *MessageHandler) HandleList(ctx context.Context, params json.RawMessage) (any, error) {
	var req ListRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	userID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	if req.Conversation != "" {
		key, _ := parseKey(req.Conversation)
		return h.conversationView(ctx, userID, key)
	}

	return h.convs.List(ctx, userID, conversation.Options{
		ListingID:       normalizeID(req.ListingID),
		IncludeArchived: req.IncludeArchived,
		Search:          req.Search,
		Limit:           req.Limit,
		Offset:          req.Offset,
	})
}

// conversationView loads one conversation. An unknown key yields an empty
// view rather than NotFound, since a conversation only exists while it has
// visible messages.
func (h *MessageHandler) conversationView(ctx context.Context, userID string, key types.ConversationKey) (*ConversationView, error) {
	msgs, err := h.messages.Conversation(ctx, userID, key)
	if err != nil {
		return nil, apperr.OrStorage(err, "load conversation")
	}

	archived, err := h.archive.IsArchived(ctx, userID, key)
	if err != nil && apperr.KindOf(err) != apperr.KindFeatureUnavailable {
		return nil, apperr.OrStorage(err, "load archive setting")
	}

	view := &ConversationView{
		Key:                key,
		IsSelfConversation: key.OtherUserID == userID,
		IsArchived:         archived,
		Messages:           msgs,
		Threads:            threading.BuildTree(msgs),
	}
	if view.Messages == nil {
		view.Messages = []types.Message{}
	}
	if view.Threads == nil {
		view.Threads = []*threading.Node{}
	}

	// Display join; failures only degrade the view.
	if profiles, err := h.directory.Profiles(ctx, []string{userID, key.OtherUserID}); err != nil {
		log.Printf("rpc: load profiles for conversation %s: %v", key, err)
	} else {
		view.Profiles = profiles
	}
	if l, err := h.directory.GetListing(ctx, key.ListingID); err == nil {
		view.Listing = l
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		log.Printf("rpc: load listing %s: %v", key.ListingID, err)
	}
	return view, nil
}

// HandleSend handles the message.send RPC method.
func (h *MessageHandler) HandleSend(ctx context.Context, params json.RawMessage) (any, error) {
	var req SendRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	senderID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}
	if req.MessageType == "" {
		req.MessageType = types.MessageTypeText
	}
	listingID := normalizeID(req.ListingID)
	recipientID := normalizeID(req.RecipientID)

	if h.limiter != nil {
		if err := h.limiter.Allow(senderID); err != nil {
			h.metrics.SendRateLimited()
			return nil, err
		}
	}

	listing, err := h.directory.GetListing(ctx, listingID)
	if err != nil {
		return nil, apperr.OrStorage(err, "check listing")
	}
	recipient, err := h.directory.GetProfile(ctx, recipientID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, apperr.NotFound("recipient not found: %s", recipientID)
	}
	if err != nil {
		return nil, apperr.OrStorage(err, "check recipient")
	}

	now := h.messages.Now()
	m := &types.Message{
		ID:              identity.GenerateMessageID(),
		ListingID:       listingID,
		SenderID:        senderID,
		RecipientID:     recipientID,
		MessageText:     req.MessageText,
		MessageType:     req.MessageType,
		ParentMessageID: req.ParentMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// A note to self is read the moment it is written.
	if m.IsSelf() {
		m.IsRead = true
		m.ReadAt = &now
	}

	err = h.messages.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		if err := h.linker.Link(ctx, tx, m, req.ThreadID); err != nil {
			return err
		}
		return h.messages.Insert(ctx, tx, m)
	})
	if err != nil {
		return nil, apperr.OrStorage(err, "send message")
	}

	h.metrics.MessageSent(string(m.MessageType), !m.IsRoot())
	if h.notifier != nil && !m.IsSelf() {
		h.notifier.Enqueue(notify.ForMessage(m))
	}

	resp := &SendResponse{
		Status:    StatusCreated,
		Message:   *m,
		Recipient: recipient,
		Listing:   listing,
	}
	if sender, err := h.directory.GetProfile(ctx, senderID); err == nil {
		resp.Sender = sender
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		log.Printf("rpc: load sender profile %s: %v", senderID, err)
	}
	return resp, nil
}

// HandleMarkRead handles the message.markRead RPC method.
func (h *MessageHandler) HandleMarkRead(ctx context.Context, params json.RawMessage) (any, error) {
	var req MarkReadRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	userID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	var n int
	switch {
	case req.Conversation != "" && len(req.MessageIDs) > 0:
		return nil, apperr.InvalidField("conversation", "cannot be combined with message_ids")
	case req.Conversation != "":
		key, _ := parseKey(req.Conversation)
		n, err = h.messages.MarkConversationRead(ctx, userID, key)
	case len(req.MessageIDs) > 0:
		n, err = h.messages.MarkRead(ctx, userID, req.MessageIDs)
	default:
		return nil, apperr.InvalidField("conversation", "conversation or message_ids is required")
	}
	if err != nil {
		return nil, apperr.OrStorage(err, "mark read")
	}
	return &MarkReadResponse{MarkedCount: n}, nil
}

// HandleArchive handles the message.archive RPC method. It returns
// FeatureUnavailable when the archive overlay is off.
func (h *MessageHandler) HandleArchive(ctx context.Context, params json.RawMessage) (any, error) {
	var req ArchiveRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	userID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	n, err := h.archive.Set(ctx, userID, parseKeys(req.Conversations), *req.Archived)
	if err != nil {
		return nil, apperr.OrStorage(err, "archive conversations")
	}
	return &ArchiveResponse{UpdatedCount: n}, nil
}

// HandleDelete handles the message.delete RPC method.
//
// A soft delete hides the targets from the caller only. A hard delete
// removes them for everyone and fails with Forbidden, deleting nothing, if
// any target was sent by someone else.
func (h *MessageHandler) HandleDelete(ctx context.Context, params json.RawMessage) (any, error) {
	var req DeleteRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	userID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}
	if len(req.Conversations) == 0 && len(req.MessageIDs) == 0 {
		return nil, apperr.InvalidField("conversations", "conversations or message_ids is required")
	}
	keys := parseKeys(req.Conversations)

	var n int
	err = h.messages.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		var err error
		if req.Hard {
			n, err = h.hardDelete(ctx, tx, userID, keys, req.MessageIDs)
		} else {
			n, err = h.softDelete(ctx, tx, userID, keys, req.MessageIDs)
		}
		return err
	})
	if err != nil {
		return nil, apperr.OrStorage(err, "delete messages")
	}
	return &DeleteResponse{DeletedCount: n}, nil
}

func (h *MessageHandler) softDelete(ctx context.Context, tx *safedb.Tx, userID string, keys []types.ConversationKey, ids []string) (int, error) {
	total := 0
	for _, k := range keys {
		n, err := h.messages.HideConversation(ctx, tx, userID, k)
		if err != nil {
			return 0, err
		}
		total += n
		if err := h.clearArchive(ctx, tx, userID, k); err != nil {
			return 0, err
		}
	}
	n, err := h.messages.HideMessages(ctx, tx, userID, ids)
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

func (h *MessageHandler) hardDelete(ctx context.Context, tx *safedb.Tx, userID string, keys []types.ConversationKey, ids []string) (int, error) {
	targets := append([]string(nil), ids...)
	for _, k := range keys {
		kids, err := h.messages.ConversationMessageIDs(ctx, tx, userID, k)
		if err != nil {
			return 0, err
		}
		targets = append(targets, kids...)
	}
	n, err := h.messages.HardDelete(ctx, tx, userID, targets)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := h.clearArchive(ctx, tx, userID, k); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// clearArchive drops the caller's archive setting for a deleted
// conversation. A disabled overlay has nothing to clear.
func (h *MessageHandler) clearArchive(ctx context.Context, tx *safedb.Tx, userID string, key types.ConversationKey) error {
	err := h.archive.Clear(ctx, tx, userID, key)
	if apperr.KindOf(err) == apperr.KindFeatureUnavailable {
		return nil
	}
	return err
}
