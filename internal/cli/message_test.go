package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/types"
)

func TestSendInboxThreadFlow(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	first, err := Send(ctx, s.client, SendOptions{
		Token:     s.tokens[s.buyer],
		ListingID: s.listing,
		To:        s.seller,
		Text:      "Is it still available?",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if first.Message.MessageType != types.MessageTypeText {
		t.Errorf("message_type = %s, want text", first.Message.MessageType)
	}
	if first.Recipient == nil || first.Recipient.DisplayName != "Sam Seller" {
		t.Errorf("recipient = %+v", first.Recipient)
	}
	out := FormatSendResult(first)
	if !strings.Contains(out, "Sam Seller") || !strings.Contains(out, `"2015 Civic"`) {
		t.Errorf("FormatSendResult = %q", out)
	}

	reply, err := Send(ctx, s.client, SendOptions{
		Token:     s.tokens[s.seller],
		ListingID: s.listing,
		To:        s.buyer,
		Text:      "Yes, come see it Saturday.",
		ReplyTo:   first.Message.ID,
	})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply.Message.ThreadID != first.Message.ID || reply.Message.ThreadDepth != 1 {
		t.Errorf("reply thread = %s depth %d", reply.Message.ThreadID, reply.Message.ThreadDepth)
	}

	page, err := Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.seller]})
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if page.Total != 1 || len(page.Conversations) != 1 {
		t.Fatalf("page = %+v", page)
	}
	conv := page.Conversations[0]
	if conv.OtherParticipant != s.buyer || conv.UnreadCount != 1 {
		t.Errorf("conversation = %+v", conv)
	}
	inbox := FormatInbox(page, 80)
	for _, want := range []string{"Bea Buyer", "Yes, come see it Saturday.", "(1 unread)", "Showing 1-1 of 1"} {
		if !strings.Contains(inbox, want) {
			t.Errorf("FormatInbox missing %q:\n%s", want, inbox)
		}
	}

	key := conv.Key.String()
	view, err := Thread(ctx, s.client, ThreadOptions{Token: s.tokens[s.seller], Conversation: key, MarkRead: true})
	if err != nil {
		t.Fatalf("Thread failed: %v", err)
	}
	if len(view.Messages) != 2 || len(view.Threads) != 1 || len(view.Threads[0].Replies) != 1 {
		t.Fatalf("view = %d messages, %d threads", len(view.Messages), len(view.Threads))
	}
	rendered := FormatThread(view, 80)
	if !strings.Contains(rendered, "Conversation with Bea Buyer re: 2015 Civic") {
		t.Errorf("FormatThread header:\n%s", rendered)
	}
	if !strings.Contains(rendered, "  ↳ ") {
		t.Errorf("FormatThread does not indent the reply:\n%s", rendered)
	}

	page, _ = Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.seller]})
	if got := page.Conversations[0].UnreadCount; got != 0 {
		t.Errorf("unread after thread --read = %d, want 0", got)
	}
}

func TestArchiveAndDelete(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	sent, err := Send(ctx, s.client, SendOptions{Token: s.tokens[s.buyer], ListingID: s.listing, To: s.seller, Text: "Offer: 9k", Type: "offer"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	key := s.listing + "/" + s.buyer

	n, err := Archive(ctx, s.client, s.tokens[s.seller], []string{key}, true)
	if err != nil || n != 1 {
		t.Fatalf("Archive = %d, %v", n, err)
	}
	page, _ := Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.seller]})
	if page.Total != 0 {
		t.Errorf("archived conversation still listed: %+v", page.Conversations)
	}
	page, _ = Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.seller], IncludeArchived: true})
	if page.Total != 1 || !page.Conversations[0].IsArchived {
		t.Errorf("include archived = %+v", page)
	}
	if !strings.Contains(FormatInbox(page, 100), "[archived]") {
		t.Error("FormatInbox does not flag archived conversations")
	}

	// Only the author may hard delete.
	_, err = Delete(ctx, s.client, DeleteOptions{Token: s.tokens[s.seller], MessageIDs: []string{sent.Message.ID}, Hard: true})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("seller hard delete: err = %v, want forbidden", err)
	}

	n, err = Delete(ctx, s.client, DeleteOptions{Token: s.tokens[s.seller], Conversations: []string{key}})
	if err != nil || n != 1 {
		t.Fatalf("soft Delete = %d, %v", n, err)
	}
	page, _ = Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.seller], IncludeArchived: true})
	if page.Total != 0 {
		t.Errorf("seller still sees deleted conversation")
	}
	page, _ = Inbox(ctx, s.client, InboxOptions{Token: s.tokens[s.buyer]})
	if page.Total != 1 {
		t.Errorf("buyer lost the conversation after seller's delete")
	}
}

func TestClientSideValidation(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	if _, err := Send(ctx, s.client, SendOptions{Token: s.tokens[s.buyer], ListingID: s.listing, To: s.seller, Text: "  "}); err == nil {
		t.Error("Send with blank text should fail")
	}
	if _, err := MarkRead(ctx, s.client, MarkReadOptions{Token: s.tokens[s.buyer]}); err == nil {
		t.Error("MarkRead without a selector should fail")
	}
	if _, err := Archive(ctx, s.client, s.tokens[s.buyer], nil, true); err == nil {
		t.Error("Archive without conversations should fail")
	}
	if _, err := Delete(ctx, s.client, DeleteOptions{Token: s.tokens[s.buyer]}); err == nil {
		t.Error("Delete without a selector should fail")
	}
	if _, err := Thread(ctx, s.client, ThreadOptions{Token: s.tokens[s.buyer], Conversation: "not-a-key"}); err == nil {
		t.Error("Thread with a malformed key should fail")
	}
}

func TestServerErrorsKeepTheirKind(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	_, err := Inbox(ctx, s.client, InboxOptions{Token: "bogus"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("bad token: err = %v, want unauthorized", err)
	}

	_, err = Send(ctx, s.client, SendOptions{Token: s.tokens[s.buyer], ListingID: s.listing, To: s.seller, Text: strings.Repeat("x", 5001)})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("long text: err = %v, want validation", err)
	}
}
