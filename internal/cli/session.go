package cli

import (
	"context"
	"fmt"

	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/daemon/rpc"
)

// Login issues a session for userID and saves its token in carlotDir.
func Login(ctx context.Context, c Caller, carlotDir, userID string) (*auth.Session, error) {
	var sess auth.Session
	if err := c.CallInto(ctx, "session.create", rpc.SessionCreateRequest{UserID: userID}, &sess); err != nil {
		return nil, err
	}
	if err := SaveToken(carlotDir, sess.Token); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Logout revokes token and forgets the saved one.
func Logout(ctx context.Context, c Caller, carlotDir, token string) error {
	req := rpc.SessionRevokeRequest{Authenticated: rpc.Authenticated{SessionToken: token}}
	var result rpc.SessionRevokeResponse
	if err := c.CallInto(ctx, "session.revoke", req, &result); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return ClearToken(carlotDir)
}
