package mcp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/archive"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/notify"
	"github.com/leonletto/carlot/internal/paths"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/transport"
	"github.com/leonletto/carlot/internal/websocket"
)

// testDaemon is a daemon with notifications on a Unix socket and a
// WebSocket listener, plus a seller and a buyer with a listing.
type testDaemon struct {
	dir     string
	wsURL   string
	seller  string
	buyer   string
	listing string
	tokens  map[string]string
}

func startDaemon(t *testing.T) *testDaemon {
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

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sink := notify.NewTableSink(db)
	queue := notify.NewQueue(sink, notify.Config{Workers: 1, InitialBackoff: time.Millisecond})
	queue.Start(ctx)
	t.Cleanup(queue.Close)

	sessions := auth.New(db, time.Hour)
	dir := directory.New(db)
	messages := rpc.NewMessageHandler(store.New(db), archive.New(db, true), dir, sessions)
	messages.SetNotifier(queue)

	router := transport.NewRouter(5 * time.Second)
	handlers := &rpc.Handlers{
		Health:        rpc.NewHealthHandler(time.Now(), "test", db),
		Session:       rpc.NewSessionHandler(sessions),
		Message:       messages,
		Directory:     rpc.NewDirectoryHandler(dir, sessions),
		Notifications: rpc.NewNotificationHandler(sink, sessions),
	}
	handlers.Register(router)

	server := daemon.NewServer(paths.SocketPath(carlotDir), router)
	if err := server.Start(ctx); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	ws := websocket.NewServer("localhost:0", router, nil)
	if err := ws.Start(ctx); err != nil {
		t.Fatalf("start websocket: %v", err)
	}
	t.Cleanup(func() { _ = ws.Stop() })

	client, err := cli.Connect(carlotDir)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = client.Close() }()

	seed, err := cli.Seed(ctx, client, cli.SeedOptions{Names: []string{"Sam Seller", "Bea Buyer"}, ListingTitle: "2015 Civic"})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	d := &testDaemon{
		dir:     carlotDir,
		wsURL:   "ws://" + ws.Addr() + "/",
		seller:  seed.Profiles[0].UserID,
		buyer:   seed.Profiles[1].UserID,
		listing: seed.Listing.ID,
		tokens:  map[string]string{},
	}
	for _, id := range []string{d.seller, d.buyer} {
		sess, err := cli.Login(ctx, client, carlotDir, id)
		if err != nil {
			t.Fatalf("Login(%s): %v", id, err)
		}
		d.tokens[id] = sess.Token
	}
	return d
}

// serverFor returns an MCP server acting as userID.
func (d *testDaemon) serverFor(t *testing.T, userID string) *Server {
	t.Helper()
	s, err := NewServer(d.dir, d.tokens[userID], WithVersion("test"))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}
