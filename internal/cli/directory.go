package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/types"
)

// UpsertProfile creates or updates a profile. An empty UserID creates a new
// user.
func UpsertProfile(ctx context.Context, c Caller, req rpc.ProfileUpsertRequest) (*types.Profile, error) {
	var p types.Profile
	if err := c.CallInto(ctx, "profile.upsert", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertListing creates or updates a listing. An empty ID creates a new
// listing.
func UpsertListing(ctx context.Context, c Caller, req rpc.ListingUpsertRequest) (*types.Listing, error) {
	var l types.Listing
	if err := c.CallInto(ctx, "listing.upsert", req, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// SeedOptions describes demo data: one profile per name and a listing
// owned by the first.
type SeedOptions struct {
	Names        []string
	ListingTitle string
}

// SeedResult lists the records Seed created.
type SeedResult struct {
	Profiles []types.Profile `json:"profiles"`
	Listing  types.Listing   `json:"listing"`
}

// Seed creates demo profiles and a listing. Ids are generated here so a
// rerun with the output's ids can update the same records.
func Seed(ctx context.Context, c Caller, opts SeedOptions) (*SeedResult, error) {
	if len(opts.Names) == 0 {
		return nil, fmt.Errorf("at least one name is required")
	}
	title := opts.ListingTitle
	if title == "" {
		title = "Demo listing"
	}

	result := &SeedResult{}
	for _, name := range opts.Names {
		p, err := UpsertProfile(ctx, c, rpc.ProfileUpsertRequest{
			UserID:      uuid.NewString(),
			DisplayName: name,
		})
		if err != nil {
			return nil, fmt.Errorf("create profile %q: %w", name, err)
		}
		result.Profiles = append(result.Profiles, *p)
	}

	l, err := UpsertListing(ctx, c, rpc.ListingUpsertRequest{
		ID:     uuid.NewString(),
		UserID: result.Profiles[0].UserID,
		Title:  title,
	})
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	result.Listing = *l
	return result, nil
}

// FormatSeedResult renders the seeded ids.
func FormatSeedResult(r *SeedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listing  %s  %q (owner %s)\n", r.Listing.ID, r.Listing.Title, r.Listing.UserID)
	for _, p := range r.Profiles {
		fmt.Fprintf(&b, "Profile  %s  %s\n", p.UserID, p.DisplayName)
	}
	return b.String()
}
