package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/transport"
)

// testRouter registers a few handlers covering success and the error kinds.
func testRouter() *transport.Router {
	r := transport.NewRouter(time.Second)
	r.Register("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		var p map[string]any
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperr.InvalidField("params", "must be an object")
		}
		return p, nil
	})
	r.Register("transport", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return transport.FromContext(ctx).String(), nil
	})
	r.Register("missing", func(context.Context, json.RawMessage) (any, error) {
		return nil, apperr.NotFound("listing not found")
	})
	return r
}

// startTestServer starts a Unix socket server in a temp dir and stops it
// on cleanup.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath, testRouter())
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server, socketPath
}

// dialTestServer waits for the socket and returns a connected client.
func dialTestServer(t *testing.T, socketPath string) *Client {
	t.Helper()
	client, err := WaitForSocket(socketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForSocket: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
