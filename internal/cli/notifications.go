package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/types"
)

// Notifications lists the caller's notifications, newest first.
func Notifications(ctx context.Context, c Caller, token string, unreadOnly bool, limit int) ([]types.Notification, error) {
	req := rpc.ListNotificationsRequest{
		Authenticated: rpc.Authenticated{SessionToken: token},
		UnreadOnly:    unreadOnly,
		Limit:         limit,
	}
	var result rpc.ListNotificationsResponse
	if err := c.CallInto(ctx, "notification.list", req, &result); err != nil {
		return nil, err
	}
	return result.Notifications, nil
}

// MarkNotificationsRead marks every notification of the caller read.
func MarkNotificationsRead(ctx context.Context, c Caller, token string) (int, error) {
	req := rpc.MarkNotificationsReadRequest{Authenticated: rpc.Authenticated{SessionToken: token}}
	var result rpc.MarkNotificationsReadResponse
	if err := c.CallInto(ctx, "notification.markRead", req, &result); err != nil {
		return 0, err
	}
	return result.MarkedCount, nil
}

// FormatNotifications renders one line per notification.
func FormatNotifications(list []types.Notification) string {
	if len(list) == 0 {
		return "No notifications.\n"
	}
	var b strings.Builder
	for _, n := range list {
		indicator := "●"
		if n.ReadAt != nil {
			indicator = "○"
		}
		fmt.Fprintf(&b, "%s %-8s  %s  from %s  %s\n", indicator, formatRelativeTime(n.CreatedAt),
			n.ListingID+"/"+n.SenderID, shortID(n.SenderID), truncate(n.Preview, 60))
	}
	return b.String()
}
