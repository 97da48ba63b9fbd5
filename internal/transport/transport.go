// Package transport holds the JSON-RPC 2.0 envelope shared by the Unix
// socket and WebSocket listeners, and the Router that dispatches requests
// to handlers and maps classified errors onto JSON-RPC error objects.
package transport

import "context"

// Transport names the listener a request arrived on. The value doubles as
// the "transport" metrics label.
type Transport string

const (
	Unknown   Transport = "unknown"
	Unix      Transport = "unix"
	WebSocket Transport = "websocket"
)

func (t Transport) String() string {
	if t == "" {
		return string(Unknown)
	}
	return string(t)
}

// Remote reports whether callers on t may be on another machine. WebSocket
// connections can come through the tailnet; the socket is owner-only.
func (t Transport) Remote() bool {
	return t == WebSocket
}

type ctxKey struct{}

// NewContext returns ctx tagged with the listener t.
func NewContext(ctx context.Context, t Transport) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the listener ctx was tagged with, or Unknown for
// direct in-process calls.
func FromContext(ctx context.Context) Transport {
	if t, ok := ctx.Value(ctxKey{}).(Transport); ok {
		return t
	}
	return Unknown
}
