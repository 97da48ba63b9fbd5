package directory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/types"
)

const (
	alice   = "11111111-1111-4111-8111-111111111111"
	bob     = "22222222-2222-4222-8222-222222222222"
	listing = "33333333-3333-4333-8333-333333333333"
)

func setup(t *testing.T) *directory.Store {
	t.Helper()
	raw, err := schema.OpenDB(filepath.Join(t.TempDir(), "dir.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	if err := schema.Migrate(raw); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return directory.New(safedb.New(raw))
}

func TestListings(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	if _, err := s.GetListing(ctx, listing); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetListing(missing) error = %v, want not found", err)
	}

	l := &types.Listing{ID: listing, UserID: alice, Title: "2014 Civic"}
	if err := s.UpsertListing(ctx, l); err != nil {
		t.Fatalf("UpsertListing: %v", err)
	}
	l.Title = "2014 Honda Civic LX"
	if err := s.UpsertListing(ctx, l); err != nil {
		t.Fatalf("UpsertListing(update): %v", err)
	}

	got, err := s.GetListing(ctx, listing)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Title != "2014 Honda Civic LX" || got.UserID != alice {
		t.Errorf("GetListing = %+v", got)
	}

	batch, err := s.Listings(ctx, []string{listing, "unknown"})
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(batch) != 1 || batch[listing].Title != got.Title {
		t.Errorf("Listings = %v", batch)
	}
}

func TestProfiles(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	for _, p := range []types.Profile{
		{UserID: alice, DisplayName: "Alice"},
		{UserID: bob, DisplayName: "Bob", ProfileImageURL: "https://img.example/bob.png"},
	} {
		if err := s.UpsertProfile(ctx, &p); err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
	}

	p, err := s.GetProfile(ctx, bob)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.ProfileImageURL != "https://img.example/bob.png" {
		t.Errorf("ProfileImageURL = %q", p.ProfileImageURL)
	}

	batch, err := s.Profiles(ctx, []string{alice, bob, listing})
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(batch) != 2 || batch[alice].DisplayName != "Alice" {
		t.Errorf("Profiles = %v", batch)
	}

	empty, err := s.Profiles(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Profiles(nil) = %v, %v", empty, err)
	}
}
