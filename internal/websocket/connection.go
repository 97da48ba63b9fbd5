package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leonletto/carlot/internal/transport"
)

// Connection limits.
const (
	maxMessageSize = 1 << 20 // matches the Unix socket line limit
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 64
)

// Connection represents a WebSocket connection with JSON-RPC handling.
type Connection struct {
	conn   *websocket.Conn
	router *transport.Router
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

// NewConnection creates a new WebSocket connection wrapper.
func NewConnection(conn *websocket.Conn, router *transport.Router) *Connection {
	return &Connection{
		conn:   conn,
		router: router,
		sendCh: make(chan []byte, sendBuffer),
	}
}

// ReadLoop reads requests and dispatches them in order. A normal close
// returns nil.
func (c *Connection) ReadLoop(ctx context.Context) error {
	defer func() {
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("read error: %w", err)
			}
			return nil
		}

		if err := c.handleRequest(ctx, message); err != nil {
			log.Printf("websocket: handle request: %v", err)
		}
	}
}

// WriteLoop writes queued responses and keeps the connection alive with
// pings. It returns nil once Close has drained the queue.
func (c *Connection) WriteLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case message, ok := <-c.sendCh:
			if !ok {
				return nil
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return fmt.Errorf("write error: %w", err)
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping error: %w", err)
			}
		}
	}
}

// Send queues a message to be sent to the client.
func (c *Connection) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close closes the WebSocket connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.sendCh)
	return c.conn.Close()
}

// handleRequest processes a JSON-RPC request (single or batch).
func (c *Connection) handleRequest(ctx context.Context, data []byte) error {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return c.handleBatchRequest(ctx, data)
		}
		break
	}
	return c.handleSingleRequest(ctx, data)
}

// handleSingleRequest processes a single JSON-RPC request.
func (c *Connection) handleSingleRequest(ctx context.Context, data []byte) error {
	var req transport.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return c.send(transport.ParseErrorResponse(err))
	}
	return c.send(c.router.Dispatch(ctx, transport.WebSocket, req))
}

// handleBatchRequest processes a batch of JSON-RPC requests in order.
func (c *Connection) handleBatchRequest(ctx context.Context, data []byte) error {
	var requests []transport.Request
	if err := json.Unmarshal(data, &requests); err != nil {
		return c.send(transport.ParseErrorResponse(err))
	}

	if len(requests) == 0 {
		return c.send(transport.InvalidRequestResponse(nil, "batch request cannot be empty"))
	}

	responses := make([]transport.Response, len(requests))
	for i, req := range requests {
		responses[i] = c.router.Dispatch(ctx, transport.WebSocket, req)
	}
	return c.send(responses)
}

func (c *Connection) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return c.Send(data)
}
