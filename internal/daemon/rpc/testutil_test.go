package rpc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/archive"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/types"
)

const (
	alice   = "11111111-1111-4111-8111-111111111111"
	bob     = "22222222-2222-4222-8222-222222222222"
	carol   = "44444444-4444-4444-8444-444444444444"
	listing = "33333333-3333-4333-8333-333333333333"
	nobody  = "99999999-9999-4999-8999-999999999999"
)

// testEnv is a migrated database with three users, one listing owned by
// bob and a session per user.
type testEnv struct {
	db        *safedb.DB
	messages  *store.Store
	archive   *archive.Store
	directory *directory.Store
	sessions  *auth.Store
	handler   *MessageHandler
	tokens    map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvArchive(t, true)
}

func newTestEnvArchive(t *testing.T, archiveEnabled bool) *testEnv {
	t.Helper()
	raw, err := schema.OpenDB(filepath.Join(t.TempDir(), "carlot.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	if err := schema.Migrate(raw); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	db := safedb.New(raw)

	env := &testEnv{
		db:        db,
		messages:  store.New(db),
		archive:   archive.New(db, archiveEnabled),
		directory: directory.New(db),
		sessions:  auth.New(db, time.Hour),
		tokens:    map[string]string{},
	}

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	env.messages.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	ctx := context.Background()
	for id, name := range map[string]string{alice: "Alice", bob: "Bob", carol: "Carol"} {
		if err := env.directory.UpsertProfile(ctx, &types.Profile{UserID: id, DisplayName: name}); err != nil {
			t.Fatalf("UpsertProfile(%s): %v", name, err)
		}
		sess, err := env.sessions.Create(ctx, id)
		if err != nil {
			t.Fatalf("Create session for %s: %v", name, err)
		}
		env.tokens[id] = sess.Token
	}
	if err := env.directory.UpsertListing(ctx, &types.Listing{ID: listing, UserID: bob, Title: "2015 Civic"}); err != nil {
		t.Fatalf("UpsertListing: %v", err)
	}

	env.handler = NewMessageHandler(env.messages, env.archive, env.directory, env.sessions)
	return env
}

func (e *testEnv) auth(userID string) Authenticated {
	return Authenticated{SessionToken: e.tokens[userID]}
}

// call marshals req and runs h.
func call(t *testing.T, h func(context.Context, json.RawMessage) (any, error), req any) (any, error) {
	t.Helper()
	params, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return h(context.Background(), params)
}

// send sends a message and fails the test on error.
func (e *testEnv) send(t *testing.T, from, to, text, parent string) types.Message {
	t.Helper()
	resp, err := call(t, e.handler.HandleSend, SendRequest{
		Authenticated:   e.auth(from),
		ListingID:       listing,
		RecipientID:     to,
		MessageText:     text,
		ParentMessageID: parent,
	})
	if err != nil {
		t.Fatalf("HandleSend(%q) failed: %v", text, err)
	}
	sr, ok := resp.(*SendResponse)
	if !ok {
		t.Fatalf("expected *SendResponse, got %T", resp)
	}
	return sr.Message
}

func (e *testEnv) countMessages(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	assertKind(t, err, apperr.KindValidation)
	if _, ok := apperr.FieldsOf(err)[field]; !ok {
		t.Errorf("validation fields = %v, want entry for %q", apperr.FieldsOf(err), field)
	}
}

type fakeNotifier struct {
	accept bool
	got    []types.Notification
}

func (f *fakeNotifier) Enqueue(n types.Notification) bool {
	f.got = append(f.got, n)
	return f.accept
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) error {
	return apperr.New(apperr.KindRateLimited, "slow down")
}
