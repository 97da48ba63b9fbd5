package notify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/types"
)

// flakySink fails the first failures deliveries.
type flakySink struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	delivered []types.Notification
}

func (s *flakySink) Deliver(_ context.Context, n types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, n)
	return nil
}

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) observe(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[outcome]++
}

func (o *outcomes) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}

func fastConfig() Config {
	return Config{Workers: 1, QueueSize: 4, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestQueueRetriesUntilDelivered(t *testing.T) {
	sink := &flakySink{failures: 2}
	q := NewQueue(sink, fastConfig())
	obs := &outcomes{counts: map[string]int{}}
	q.SetObserver(obs.observe)
	q.Start(context.Background())

	if !q.Enqueue(types.Notification{ID: "ntf_1", UserID: "u"}) {
		t.Fatal("Enqueue returned false")
	}
	q.Close()

	if len(sink.delivered) != 1 {
		t.Fatalf("delivered = %d, want 1", len(sink.delivered))
	}
	if sink.attempts != 3 {
		t.Errorf("attempts = %d, want 3", sink.attempts)
	}
	if obs.get("retried") != 2 || obs.get("delivered") != 1 {
		t.Errorf("outcomes = %v", obs.counts)
	}
}

func TestQueueGivesUp(t *testing.T) {
	sink := &flakySink{failures: 100}
	q := NewQueue(sink, fastConfig())
	obs := &outcomes{counts: map[string]int{}}
	q.SetObserver(obs.observe)
	q.Start(context.Background())

	q.Enqueue(types.Notification{ID: "ntf_1"})
	q.Close()

	if sink.attempts != 3 {
		t.Errorf("attempts = %d, want 3", sink.attempts)
	}
	if obs.get("failed") != 1 {
		t.Errorf("failed = %d, want 1", obs.get("failed"))
	}
}

// blockingSink holds every delivery until released.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, _ types.Notification) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestQueueDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	q := NewQueue(sink, cfg)
	obs := &outcomes{counts: map[string]int{}}
	q.SetObserver(obs.observe)
	q.Start(context.Background())

	// Fill the worker and the buffer, then overflow.
	accepted := 0
	for i := 0; i < 10; i++ {
		if q.Enqueue(types.Notification{ID: "ntf"}) {
			accepted++
		}
	}
	if accepted > 2 {
		t.Errorf("accepted = %d, want at most 2", accepted)
	}
	if obs.get("dropped") < 8 {
		t.Errorf("dropped = %d, want at least 8", obs.get("dropped"))
	}

	close(sink.release)
	q.Close()

	if q.Enqueue(types.Notification{ID: "late"}) {
		t.Error("Enqueue after Close returned true")
	}
}

func TestForMessagePreview(t *testing.T) {
	m := &types.Message{
		ID:          "msg_1",
		ListingID:   "L",
		SenderID:    "alice",
		RecipientID: "bob",
		MessageText: strings.Repeat("é", 150),
		CreatedAt:   time.Now(),
	}
	n := ForMessage(m)
	if n.UserID != "bob" || n.SenderID != "alice" || n.Kind != types.NotificationKindNewMessage {
		t.Errorf("ForMessage = %+v", n)
	}
	if got := len([]rune(n.Preview)); got != PreviewLength {
		t.Errorf("preview runes = %d, want %d", got, PreviewLength)
	}
	if !strings.HasPrefix(n.ID, "ntf_") {
		t.Errorf("ID = %q", n.ID)
	}
}

func TestTableSink(t *testing.T) {
	raw, err := schema.OpenDB(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer func() { _ = raw.Close() }()
	if err := schema.Migrate(raw); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	sink := NewTableSink(safedb.New(raw))
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"ntf_a", "ntf_b"} {
		n := types.Notification{ID: id, UserID: "bob", Kind: types.NotificationKindNewMessage, MessageID: "msg_" + id, Preview: "hi", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := sink.Deliver(ctx, n); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		// Redelivery after a retry is harmless.
		if err := sink.Deliver(ctx, n); err != nil {
			t.Fatalf("Deliver again: %v", err)
		}
	}

	list, err := sink.List(ctx, "bob", false, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "ntf_b" {
		t.Errorf("List = %+v, want ntf_b first", list)
	}

	n, err := sink.MarkRead(ctx, "bob", base.Add(time.Hour))
	if err != nil || n != 2 {
		t.Errorf("MarkRead = %d, %v; want 2", n, err)
	}
	unread, err := sink.List(ctx, "bob", true, 10)
	if err != nil || len(unread) != 0 {
		t.Errorf("unread after MarkRead = %d, %v", len(unread), err)
	}
}
