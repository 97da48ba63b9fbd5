package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/types"
)

const (
	alice   = "11111111-1111-4111-8111-111111111111"
	bob     = "22222222-2222-4222-8222-222222222222"
	carol   = "44444444-4444-4444-8444-444444444444"
	listing = "33333333-3333-4333-8333-333333333333"
	other   = "55555555-5555-4555-8555-555555555555"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	raw, err := schema.OpenDB(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	if err := schema.Migrate(raw); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s := store.New(safedb.New(raw))

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return s
}

// put stores a root message with the next order for its listing.
func put(t *testing.T, s *store.Store, id, listingID, from, to, text string) types.Message {
	t.Helper()
	ctx := context.Background()
	order, err := s.NextThreadOrder(ctx, s.DB(), listingID)
	if err != nil {
		t.Fatalf("NextThreadOrder: %v", err)
	}
	now := s.Now()
	m := types.Message{
		ID:          id,
		ListingID:   listingID,
		SenderID:    from,
		RecipientID: to,
		MessageText: text,
		MessageType: types.MessageTypeText,
		ThreadID:    id,
		ThreadOrder: order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Insert(ctx, s.DB(), &m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return m
}

func ids(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestInsertAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	want := put(t, s, "msg_1", listing, alice, bob, "Is it still available?")

	got, err := s.Get(ctx, s.DB(), "msg_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MessageText != want.MessageText || got.ThreadID != "msg_1" || got.ThreadOrder != 1 {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.ReadAt != nil || got.IsRead {
		t.Error("new message should be unread")
	}

	_, err = s.Get(ctx, s.DB(), "msg_missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want not found", err)
	}
}

func TestNextThreadOrderNeverReused(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "one")
	put(t, s, "msg_2", listing, alice, bob, "two")
	put(t, s, "msg_x", other, alice, bob, "other listing")

	err := s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		_, err := s.HardDelete(ctx, tx, alice, []string{"msg_2"})
		return err
	})
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}

	m := put(t, s, "msg_3", listing, alice, bob, "three")
	if m.ThreadOrder != 3 {
		t.Errorf("order after delete = %d, want 3", m.ThreadOrder)
	}
	x := put(t, s, "msg_y", other, alice, bob, "other again")
	if x.ThreadOrder != 2 {
		t.Errorf("other listing order = %d, want 2", x.ThreadOrder)
	}
}

func TestListForUser(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "Hello")
	put(t, s, "msg_2", listing, bob, alice, "Hi there")
	put(t, s, "msg_3", other, carol, bob, "Unrelated to alice")
	put(t, s, "msg_4", other, alice, alice, "note to SELF")

	got, err := s.ListForUser(ctx, alice, store.Filter{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	want := []string{"msg_4", "msg_2", "msg_1"}
	if g := ids(got); len(g) != len(want) || g[0] != want[0] || g[1] != want[1] || g[2] != want[2] {
		t.Errorf("ListForUser = %v, want %v", g, want)
	}

	got, err = s.ListForUser(ctx, alice, store.Filter{ListingID: listing})
	if err != nil {
		t.Fatalf("ListForUser(listing): %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListForUser(listing) len = %d, want 2", len(got))
	}

	got, err = s.ListForUser(ctx, alice, store.Filter{Search: "self"})
	if err != nil {
		t.Fatalf("ListForUser(search): %v", err)
	}
	if len(got) != 1 || got[0].ID != "msg_4" {
		t.Errorf("search = %v, want [msg_4]", ids(got))
	}
}

func TestListForUserSearchFoldsUnicode(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "Ist der Ölwechsel ÜBERFÄLLIG?")
	put(t, s, "msg_2", listing, bob, alice, "Nein, alles gut")

	for _, q := range []string{"ÖLWECHSEL", "ölwechsel", "überfällig", "Überfällig"} {
		got, err := s.ListForUser(ctx, alice, store.Filter{Search: q})
		if err != nil {
			t.Fatalf("ListForUser(%q): %v", q, err)
		}
		if len(got) != 1 || got[0].ID != "msg_1" {
			t.Errorf("search %q = %v, want [msg_1]", q, ids(got))
		}
	}
}

func TestListForUserTieBreaksOnThreadOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	put(t, s, "msg_a", listing, alice, bob, "first")
	put(t, s, "msg_b", listing, bob, alice, "second")

	got, err := s.ListForUser(ctx, alice, store.Filter{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != "msg_b" {
		t.Errorf("ListForUser = %v, want msg_b first", ids(got))
	}
}

func TestMarkConversationRead(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "Hello")
	put(t, s, "msg_2", listing, bob, alice, "Hi")
	put(t, s, "msg_3", listing, bob, alice, "Still there?")
	key := types.ConversationKey{ListingID: listing, OtherUserID: bob}

	n, err := s.MarkConversationRead(ctx, alice, key)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}

	// Already-read rows are not counted again.
	n, err = s.MarkConversationRead(ctx, alice, key)
	if err != nil {
		t.Fatalf("MarkConversationRead again: %v", err)
	}
	if n != 0 {
		t.Errorf("second mark = %d, want 0", n)
	}

	// Alice's own outgoing message stays unread for bob.
	m, err := s.Get(ctx, s.DB(), "msg_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.IsRead {
		t.Error("sender marked their own outgoing message read")
	}
}

func TestMarkReadByIDs(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "Hello")
	put(t, s, "msg_2", listing, bob, alice, "Hi")
	put(t, s, "msg_3", listing, alice, alice, "legacy unread self note")

	n, err := s.MarkRead(ctx, alice, []string{"msg_1", "msg_2", "msg_3"})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// msg_1 belongs to bob's read state.
	if n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}
	self, _ := s.Get(ctx, s.DB(), "msg_3")
	if !self.IsRead || self.ReadAt == nil {
		t.Error("self message not marked read by its author")
	}
}

func TestHideConversationIsPerUser(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "Hello")
	put(t, s, "msg_2", listing, bob, alice, "Hi")

	err := s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		n, err := s.HideConversation(ctx, tx, alice, types.ConversationKey{ListingID: listing, OtherUserID: bob})
		if n != 2 {
			t.Errorf("hidden = %d, want 2", n)
		}
		return err
	})
	if err != nil {
		t.Fatalf("HideConversation: %v", err)
	}

	aliceView, _ := s.ListForUser(ctx, alice, store.Filter{})
	if len(aliceView) != 0 {
		t.Errorf("alice still sees %v", ids(aliceView))
	}
	bobView, _ := s.ListForUser(ctx, bob, store.Filter{})
	if len(bobView) != 2 {
		t.Errorf("bob sees %d messages, want 2", len(bobView))
	}
	m, _ := s.Get(ctx, s.DB(), "msg_1")
	if m.IsDeleted {
		t.Error("message globally deleted after one participant hid it")
	}

	// Once bob hides too the rows are deleted for everyone.
	err = s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		_, err := s.HideConversation(ctx, tx, bob, types.ConversationKey{ListingID: listing, OtherUserID: alice})
		return err
	})
	if err != nil {
		t.Fatalf("HideConversation(bob): %v", err)
	}
	m, _ = s.Get(ctx, s.DB(), "msg_1")
	if !m.IsDeleted {
		t.Error("message not globally deleted after both participants hid it")
	}
}

func TestHideSelfConversationDeletesImmediately(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	put(t, s, "msg_1", listing, alice, alice, "note")

	err := s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		_, err := s.HideMessages(ctx, tx, alice, []string{"msg_1"})
		return err
	})
	if err != nil {
		t.Fatalf("HideMessages: %v", err)
	}
	m, _ := s.Get(ctx, s.DB(), "msg_1")
	if !m.IsDeleted {
		t.Error("self message should be deleted once its only participant hides it")
	}
}

func TestHardDeleteAllOrNothing(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "mine")
	put(t, s, "msg_2", listing, bob, alice, "theirs")

	err := s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		_, err := s.HardDelete(ctx, tx, alice, []string{"msg_1", "msg_2"})
		return err
	})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("HardDelete error = %v, want forbidden", err)
	}
	for _, id := range []string{"msg_1", "msg_2"} {
		if _, err := s.Get(ctx, s.DB(), id); err != nil {
			t.Errorf("%s removed despite forbidden delete: %v", id, err)
		}
	}

	var n int
	err = s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		var err error
		n, err = s.HardDelete(ctx, tx, alice, []string{"msg_1", "msg_1"})
		return err
	})
	if err != nil {
		t.Fatalf("HardDelete(own): %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := s.Get(ctx, s.DB(), "msg_1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("msg_1 still present: %v", err)
	}
}

func TestHardDeleteKeepsDanglingReplies(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	put(t, s, "msg_1", listing, alice, bob, "root")

	order, _ := s.NextThreadOrder(ctx, s.DB(), listing)
	now := s.Now()
	reply := types.Message{
		ID: "msg_2", ListingID: listing, SenderID: bob, RecipientID: alice,
		MessageText: "reply", MessageType: types.MessageTypeText,
		ParentMessageID: "msg_1", ThreadID: "msg_1", ThreadDepth: 1, ThreadOrder: order,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Insert(ctx, s.DB(), &reply); err != nil {
		t.Fatalf("Insert reply: %v", err)
	}

	err := s.DB().WithTx(ctx, func(tx *safedb.Tx) error {
		_, err := s.HardDelete(ctx, tx, alice, []string{"msg_1"})
		return err
	})
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	got, err := s.Get(ctx, s.DB(), "msg_2")
	if err != nil {
		t.Fatalf("reply removed with its parent: %v", err)
	}
	if got.ParentMessageID != "msg_1" {
		t.Errorf("ParentMessageID = %q, want msg_1", got.ParentMessageID)
	}
}

func TestConversationAscending(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	put(t, s, "msg_1", listing, alice, bob, "one")
	put(t, s, "msg_2", listing, bob, alice, "two")
	put(t, s, "msg_3", listing, carol, alice, "carol")
	put(t, s, "msg_4", listing, alice, bob, "three")

	got, err := s.Conversation(ctx, alice, types.ConversationKey{ListingID: listing, OtherUserID: bob})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	want := []string{"msg_1", "msg_2", "msg_4"}
	g := ids(got)
	if len(g) != 3 || g[0] != want[0] || g[1] != want[1] || g[2] != want[2] {
		t.Errorf("Conversation = %v, want %v", g, want)
	}
}
