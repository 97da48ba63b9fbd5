package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/notify"
	"github.com/leonletto/carlot/internal/types"
)

// Default and maximum notification page size.
const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// ListNotificationsRequest represents the request for notification.list RPC.
type ListNotificationsRequest struct {
	Authenticated
	UnreadOnly bool `json:"unread_only,omitempty"`
	Limit      int  `json:"limit,omitempty" validate:"gte=0,lte=200"`
}

// ListNotificationsResponse represents the response from notification.list RPC.
type ListNotificationsResponse struct {
	Notifications []types.Notification `json:"notifications"`
}

// MarkNotificationsReadRequest represents the request for notification.markRead RPC.
type MarkNotificationsReadRequest struct {
	Authenticated
}

// MarkNotificationsReadResponse represents the response from notification.markRead RPC.
type MarkNotificationsReadResponse struct {
	MarkedCount int `json:"marked_count"`
}

// NotificationHandler exposes the notifications table the queue writes to.
type NotificationHandler struct {
	sink     *notify.TableSink
	sessions auth.Resolver
	now      func() time.Time
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(sink *notify.TableSink, sessions auth.Resolver) *NotificationHandler {
	return &NotificationHandler{
		sink:     sink,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleList handles the notification.list RPC method.
func (h *NotificationHandler) HandleList(ctx context.Context, params json.RawMessage) (any, error) {
	var req ListNotificationsRequest
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

	limit := req.Limit
	if limit == 0 {
		limit = defaultNotificationLimit
	}
	limit = min(limit, maxNotificationLimit)

	list, err := h.sink.List(ctx, userID, req.UnreadOnly, limit)
	if err != nil {
		return nil, apperr.OrStorage(err, "list notifications")
	}
	return &ListNotificationsResponse{Notifications: list}, nil
}

// HandleMarkRead handles the notification.markRead RPC method.
func (h *NotificationHandler) HandleMarkRead(ctx context.Context, params json.RawMessage) (any, error) {
	var req MarkNotificationsReadRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	userID, err := authenticate(ctx, h.sessions, req.Authenticated)
	if err != nil {
		return nil, err
	}

	n, err := h.sink.MarkRead(ctx, userID, h.now())
	if err != nil {
		return nil, apperr.OrStorage(err, "mark notifications read")
	}
	return &MarkNotificationsReadResponse{MarkedCount: n}, nil
}
