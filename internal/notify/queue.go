// Package notify delivers new-message notifications off the request path.
// Delivery is best effort: a full queue drops, and a notification that
// keeps failing is logged and discarded after the configured attempts.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/leonletto/carlot/internal/identity"
	"github.com/leonletto/carlot/internal/types"
)

// Sink stores or forwards one notification.
type Sink interface {
	Deliver(ctx context.Context, n types.Notification) error
}

// Observer receives delivery outcomes. Outcome is one of "delivered",
// "retried", "failed" or "dropped".
type Observer func(outcome string)

// Config tunes the queue.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	// MaxBackoff caps the doubled delay between attempts.
	MaxBackoff time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      256,
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// Queue is a bounded notification queue drained by a worker pool.
type Queue struct {
	sink    Sink
	cfg     Config
	ch      chan types.Notification
	observe Observer

	mu     sync.RWMutex
	closed bool

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue. Call Start before enqueueing.
func NewQueue(sink Sink, cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		sink:    sink,
		cfg:     cfg,
		ch:      make(chan types.Notification, cfg.QueueSize),
		observe: func(string) {},
	}
}

// SetObserver installs a delivery outcome hook. Call before Start.
func (q *Queue) SetObserver(o Observer) {
	if o != nil {
		q.observe = o
	}
}

// Start launches the workers. They exit when ctx is cancelled or Close is
// called.
func (q *Queue) Start(ctx context.Context) {
	q.startMu.Lock()
	defer q.startMu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue hands a notification to the workers without blocking. It
// returns false when the queue is full or closed; the notification is
// dropped.
func (q *Queue) Enqueue(n types.Notification) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.observe("dropped")
		return false
	}
	select {
	case q.ch <- n:
		return true
	default:
		log.Printf("notify: queue full, dropping notification for user=%s message=%s", n.UserID, n.MessageID)
		q.observe("dropped")
		return false
	}
}

// Close stops accepting notifications, lets workers drain what is queued
// and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q.ch:
			if !ok {
				return
			}
			q.deliver(ctx, n)
		}
	}
}

// deliver retries with exponential backoff until the sink accepts n or the
// attempts run out.
func (q *Queue) deliver(ctx context.Context, n types.Notification) {
	backoff := q.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := q.sink.Deliver(ctx, n)
		if err == nil {
			q.observe("delivered")
			return
		}
		if attempt >= q.cfg.MaxAttempts {
			log.Printf("notify: giving up on notification %s after %d attempts: %v", n.ID, attempt, err)
			q.observe("failed")
			return
		}
		q.observe("retried")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("notify: shutdown before delivering notification %s: %v", n.ID, err)
			q.observe("failed")
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, q.cfg.MaxBackoff)
	}
}

// PreviewLength is the number of characters of message text kept in a
// notification.
const PreviewLength = 100

// ForMessage builds the notification a recipient gets for m.
func ForMessage(m *types.Message) types.Notification {
	preview := m.MessageText
	if r := []rune(preview); len(r) > PreviewLength {
		preview = string(r[:PreviewLength])
	}
	return types.Notification{
		ID:        identity.GenerateNotificationID(),
		UserID:    m.RecipientID,
		Kind:      types.NotificationKindNewMessage,
		MessageID: m.ID,
		ListingID: m.ListingID,
		SenderID:  m.SenderID,
		Preview:   preview,
		CreatedAt: m.CreatedAt,
	}
}
