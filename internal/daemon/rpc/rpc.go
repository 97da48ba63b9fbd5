// Package rpc implements the daemon's JSON-RPC methods. Every handler
// resolves the caller's session before it reads or writes anything else.
package rpc

import (
	"context"

	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/transport"
)

// Authenticated is embedded in every request that acts for a user.
type Authenticated struct {
	SessionToken string `json:"session_token" validate:"-"`
}

// authenticate returns the caller's user id or an Unauthorized error.
func authenticate(ctx context.Context, sessions auth.Resolver, req Authenticated) (string, error) {
	return sessions.Resolve(ctx, req.SessionToken)
}

// SendLimiter throttles message.send per user.
type SendLimiter interface {
	Allow(userID string) error
}

// Handlers groups every method handler for registration.
type Handlers struct {
	Health        *HealthHandler
	Session       *SessionHandler
	Message       *MessageHandler
	Directory     *DirectoryHandler
	Notifications *NotificationHandler
	Backup        *BackupHandler
}

// Register adds every method to router.
func (h *Handlers) Register(router *transport.Router) {
	if h.Health != nil {
		router.Register("health", h.Health.Handle)
	}
	if h.Session != nil {
		router.Register("session.create", h.Session.HandleCreate)
		router.Register("session.revoke", h.Session.HandleRevoke)
	}
	if h.Message != nil {
		router.Register("message.list", h.Message.HandleList)
		router.Register("message.send", h.Message.HandleSend)
		router.Register("message.markRead", h.Message.HandleMarkRead)
		router.Register("message.archive", h.Message.HandleArchive)
		router.Register("message.delete", h.Message.HandleDelete)
	}
	if h.Directory != nil {
		router.Register("profile.upsert", h.Directory.HandleUpsertProfile)
		router.Register("profile.get", h.Directory.HandleGetProfile)
		router.Register("listing.upsert", h.Directory.HandleUpsertListing)
		router.Register("listing.get", h.Directory.HandleGetListing)
	}
	if h.Notifications != nil {
		router.Register("notification.list", h.Notifications.HandleList)
		router.Register("notification.markRead", h.Notifications.HandleMarkRead)
	}
	if h.Backup != nil {
		router.Register("admin.backup", h.Backup.HandleBackup)
		router.Register("admin.listBackups", h.Backup.HandleList)
	}
}
