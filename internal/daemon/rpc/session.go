package rpc

import (
	"context"
	"encoding/json"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/auth"
)

// SessionCreateRequest represents the request for session.create RPC.
type SessionCreateRequest struct {
	UserID string `json:"user_id" validate:"required,entityid"`
}

// SessionRevokeRequest represents the request for session.revoke RPC.
type SessionRevokeRequest struct {
	Authenticated
}

// SessionRevokeResponse represents the response from session.revoke RPC.
type SessionRevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// SessionHandler issues and revokes session tokens.
//
// session.create takes no token: it is refused over WebSocket, and the Unix
// socket is owner-only, so anyone who can reach it is the local operator.
type SessionHandler struct {
	sessions *auth.Store
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *auth.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// HandleCreate handles the session.create RPC method.
func (h *SessionHandler) HandleCreate(ctx context.Context, params json.RawMessage) (any, error) {
	if err := requireLocal(ctx, "session.create"); err != nil {
		return nil, err
	}
	var req SessionCreateRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	sess, err := h.sessions.Create(ctx, normalizeID(req.UserID))
	if err != nil {
		return nil, apperr.OrStorage(err, "create session")
	}
	return sess, nil
}

// HandleRevoke handles the session.revoke RPC method. The token revokes
// itself.
func (h *SessionHandler) HandleRevoke(ctx context.Context, params json.RawMessage) (any, error) {
	var req SessionRevokeRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if _, err := authenticate(ctx, h.sessions, req.Authenticated); err != nil {
		return nil, err
	}
	if err := h.sessions.Revoke(ctx, req.SessionToken); err != nil {
		return nil, apperr.OrStorage(err, "revoke session")
	}
	return &SessionRevokeResponse{Revoked: true}, nil
}
