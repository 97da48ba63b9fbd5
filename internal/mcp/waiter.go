package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/transport"
)

const (
	defaultWaitTimeout  = 300 // seconds
	maxWaitTimeout      = 600 // seconds
	defaultPollInterval = time.Second
	waitBatchLimit      = 200
)

// errWaitActive is returned when a second wait_for_message starts before
// the first one finishes.
var errWaitActive = errors.New("another wait_for_message is already active; only one waiter per session")

// Waiter holds a WebSocket connection to the daemon and watches the
// session's unread notifications. It powers the wait_for_message tool.
type Waiter struct {
	conn   *websocket.Conn
	token  string
	nextID atomic.Int64

	connMu sync.Mutex // one request in flight on conn

	mu     sync.Mutex
	active bool

	pollInterval time.Duration
}

// NewWaiter dials the daemon WebSocket at wsURL and checks the token with a
// first notification.list call.
func NewWaiter(ctx context.Context, wsURL, token string) (*Waiter, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse WebSocket URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon WebSocket at %s: %w", wsURL, err)
	}

	w := &Waiter{
		conn:         conn,
		token:        token,
		pollInterval: defaultPollInterval,
	}
	if _, err := w.unread(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("WebSocket setup: %w", err)
	}
	return w, nil
}

// wsRPC sends one JSON-RPC request over the WebSocket and decodes the
// matching response into out.
func (w *Waiter) wsRPC(method string, params, out any) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	id := json.RawMessage(strconv.FormatInt(w.nextID.Add(1), 10))
	req := transport.Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
		ID:      &id,
	}
	if err := w.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	for {
		var resp transport.Response
		if err := w.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if resp.ID == nil || string(*resp.ID) != string(id) {
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	}
}

func (w *Waiter) unread() ([]NotificationInfo, error) {
	var resp rpc.ListNotificationsResponse
	err := w.wsRPC("notification.list", rpc.ListNotificationsRequest{
		Authenticated: rpc.Authenticated{SessionToken: w.token},
		UnreadOnly:    true,
		Limit:         waitBatchLimit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return notificationInfos(resp.Notifications), nil
}

func (w *Waiter) markRead() error {
	return w.wsRPC("notification.markRead", rpc.MarkNotificationsReadRequest{
		Authenticated: rpc.Authenticated{SessionToken: w.token},
	}, nil)
}

// WaitForMessage blocks until the session has unread notifications or the
// timeout expires. Returned notifications are marked read.
func (w *Waiter) WaitForMessage(ctx context.Context, timeout int) (*WaitForMessageOutput, error) {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	if timeout > maxWaitTimeout {
		timeout = maxWaitTimeout
	}

	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return nil, errWaitActive
	}
	w.active = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
	}()

	start := time.Now()
	deadline := time.NewTimer(time.Duration(timeout) * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		found, err := w.unread()
		if err != nil {
			return nil, fmt.Errorf("poll notifications: %w", err)
		}
		if len(found) > 0 {
			if err := w.markRead(); err != nil {
				return nil, fmt.Errorf("mark notifications read: %w", err)
			}
			return &WaitForMessageOutput{
				Status:        "message_received",
				Notifications: found,
				WaitedSeconds: int(time.Since(start).Seconds()),
			}, nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			return &WaitForMessageOutput{
				Status:        "timeout",
				WaitedSeconds: timeout,
			}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close shuts down the WebSocket connection.
func (w *Waiter) Close() error {
	return w.conn.Close()
}
