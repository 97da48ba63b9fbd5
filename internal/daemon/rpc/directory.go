package rpc

import (
	"context"
	"encoding/json"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/identity"
	"github.com/leonletto/carlot/internal/transport"
	"github.com/leonletto/carlot/internal/types"
)

// ProfileUpsertRequest represents the request for profile.upsert RPC.
// An empty user_id creates a new user.
type ProfileUpsertRequest struct {
	UserID          string `json:"user_id,omitempty" validate:"omitempty,entityid"`
	DisplayName     string `json:"display_name" validate:"required,notblank,max=100"`
	ProfileImageURL string `json:"profile_image_url,omitempty" validate:"omitempty,url,max=2048"`
}

// ListingUpsertRequest represents the request for listing.upsert RPC.
// An empty id creates a new listing.
type ListingUpsertRequest struct {
	ID     string `json:"id,omitempty" validate:"omitempty,entityid"`
	UserID string `json:"user_id" validate:"required,entityid"`
	Title  string `json:"title" validate:"required,notblank,max=200"`
}

// GetProfileRequest represents the request for profile.get RPC.
type GetProfileRequest struct {
	Authenticated
	UserID string `json:"user_id" validate:"required,entityid"`
}

// GetListingRequest represents the request for listing.get RPC.
type GetListingRequest struct {
	Authenticated
	ID string `json:"id" validate:"required,entityid"`
}

// DirectoryHandler serves the listing and profile records messaging
// validates against.
type DirectoryHandler struct {
	directory *directory.Store
	sessions  auth.Resolver
}

// NewDirectoryHandler creates a new directory handler.
func NewDirectoryHandler(dir *directory.Store, sessions auth.Resolver) *DirectoryHandler {
	return &DirectoryHandler{directory: dir, sessions: sessions}
}

// requireLocal rejects calls that arrived over the network. Seeding
// directory records is an operator task for the owner of the Unix socket.
func requireLocal(ctx context.Context, method string) error {
	if transport.FromContext(ctx).Remote() {
		return apperr.Forbidden("%s is only available on the local socket", method)
	}
	return nil
}

// HandleUpsertProfile handles the profile.upsert RPC method.
func (h *DirectoryHandler) HandleUpsertProfile(ctx context.Context, params json.RawMessage) (any, error) {
	if err := requireLocal(ctx, "profile.upsert"); err != nil {
		return nil, err
	}
	var req ProfileUpsertRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	p := &types.Profile{
		UserID:          normalizeID(req.UserID),
		DisplayName:     req.DisplayName,
		ProfileImageURL: req.ProfileImageURL,
	}
	if p.UserID == "" {
		p.UserID = identity.NewUUID()
	}
	if err := h.directory.UpsertProfile(ctx, p); err != nil {
		return nil, apperr.OrStorage(err, "upsert profile")
	}
	return p, nil
}

// HandleUpsertListing handles the listing.upsert RPC method. The owner must
// have a profile.
func (h *DirectoryHandler) HandleUpsertListing(ctx context.Context, params json.RawMessage) (any, error) {
	if err := requireLocal(ctx, "listing.upsert"); err != nil {
		return nil, err
	}
	var req ListingUpsertRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	owner := normalizeID(req.UserID)
	if _, err := h.directory.GetProfile(ctx, owner); err != nil {
		return nil, apperr.OrStorage(err, "check listing owner")
	}

	l := &types.Listing{
		ID:     normalizeID(req.ID),
		UserID: owner,
		Title:  req.Title,
	}
	if l.ID == "" {
		l.ID = identity.NewUUID()
	}
	if err := h.directory.UpsertListing(ctx, l); err != nil {
		return nil, apperr.OrStorage(err, "upsert listing")
	}
	return l, nil
}

// HandleGetProfile handles the profile.get RPC method.
func (h *DirectoryHandler) HandleGetProfile(ctx context.Context, params json.RawMessage) (any, error) {
	var req GetProfileRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if _, err := authenticate(ctx, h.sessions, req.Authenticated); err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	p, err := h.directory.GetProfile(ctx, normalizeID(req.UserID))
	if err != nil {
		return nil, apperr.OrStorage(err, "get profile")
	}
	return p, nil
}

// HandleGetListing handles the listing.get RPC method.
func (h *DirectoryHandler) HandleGetListing(ctx context.Context, params json.RawMessage) (any, error) {
	var req GetListingRequest
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if _, err := authenticate(ctx, h.sessions, req.Authenticated); err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	l, err := h.directory.GetListing(ctx, normalizeID(req.ID))
	if err != nil {
		return nil, apperr.OrStorage(err, "get listing")
	}
	return l, nil
}
