package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/archive"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/backup"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/paths"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/transport"
)

// startDaemon runs the real RPC handlers on a Unix socket inside a fresh
// .carlot/ directory and returns that directory.
func startDaemon(t *testing.T) string {
	t.Helper()
	carlotDir := t.TempDir()
	if err := os.MkdirAll(paths.VarDir(carlotDir), 0700); err != nil {
		t.Fatalf("create var dir: %v", err)
	}

	raw, err := schema.OpenDB(paths.DBPath(carlotDir))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	if err := schema.Migrate(raw); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	db := safedb.New(raw)

	sessions := auth.New(db, time.Hour)
	dir := directory.New(db)
	router := transport.NewRouter(5 * time.Second)
	handlers := &rpc.Handlers{
		Health:    rpc.NewHealthHandler(time.Now(), "test", db),
		Session:   rpc.NewSessionHandler(sessions),
		Message:   rpc.NewMessageHandler(store.New(db), archive.New(db, true), dir, sessions),
		Directory: rpc.NewDirectoryHandler(dir, sessions),
		Backup:    rpc.NewBackupHandler(db, backup.Options{Dir: filepath.Join(carlotDir, "backups")}),
	}
	handlers.Register(router)

	server := daemon.NewServer(paths.SocketPath(carlotDir), router)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return carlotDir
}

// connect opens a client for carlotDir and closes it with the test.
func connect(t *testing.T, carlotDir string) *daemon.Client {
	t.Helper()
	client, err := Connect(carlotDir)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// seeded is a running daemon with two users (the first owns the listing)
// and a session token for each.
type seeded struct {
	dir     string
	client  *daemon.Client
	seed    *SeedResult
	seller  string
	buyer   string
	tokens  map[string]string
	listing string
}

func newSeeded(t *testing.T) *seeded {
	t.Helper()
	dir := startDaemon(t)
	client := connect(t, dir)
	ctx := context.Background()

	res, err := Seed(ctx, client, SeedOptions{Names: []string{"Sam Seller", "Bea Buyer"}, ListingTitle: "2015 Civic"})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	s := &seeded{
		dir:     dir,
		client:  client,
		seed:    res,
		seller:  res.Profiles[0].UserID,
		buyer:   res.Profiles[1].UserID,
		tokens:  map[string]string{},
		listing: res.Listing.ID,
	}
	for _, id := range []string{s.seller, s.buyer} {
		sess, err := Login(ctx, client, dir, id)
		if err != nil {
			t.Fatalf("Login(%s): %v", id, err)
		}
		s.tokens[id] = sess.Token
	}
	return s
}
