// Package mcp exposes a user's marketplace conversations as MCP tools over
// stdio. Every tool is a call to the running daemon on its Unix socket,
// made with the session token the server was started with.
package mcp

import (
	"context"
	"fmt"
	"io"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/paths"
)

// daemonClient is one connection to the daemon.
type daemonClient interface {
	cli.Caller
	io.Closer
}

// Server is the carlot MCP server.
type Server struct {
	dial    func() (daemonClient, error)
	token   string
	version string
	server  *gomcp.Server
	waiter  *Waiter
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates an MCP server acting for the session token against the
// daemon serving carlotDir.
func NewServer(carlotDir, token string, opts ...Option) (*Server, error) {
	if token == "" {
		return nil, cli.ErrNoSession
	}
	socketPath := paths.SocketPath(carlotDir)

	s := &Server{
		token:   token,
		version: "dev",
		dial: func() (daemonClient, error) {
			return daemon.NewClient(socketPath)
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "carlot",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// InitWaiter connects the WebSocket waiter that powers wait_for_message.
// wsURL looks like "ws://localhost:9999/". Without it the other tools still
// work and wait_for_message returns an error.
func (s *Server) InitWaiter(ctx context.Context, wsURL string) error {
	w, err := NewWaiter(ctx, wsURL, s.token)
	if err != nil {
		return err
	}
	s.waiter = w
	return nil
}

// Run serves MCP on stdin/stdout until the client disconnects or ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.waiter != nil {
			_ = s.waiter.Close()
		}
	}()
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// call makes one daemon call on a fresh connection.
func (s *Server) call(ctx context.Context, method string, params, out any) error {
	client, err := s.dial()
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = client.Close() }()
	return client.CallInto(ctx, method, params, out)
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_conversations",
		Description: "List your marketplace conversations, one per listing and counterpart, newest first, with unread counts",
	}, s.handleListConversations)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_conversation",
		Description: "Read one conversation's messages in thread order. Use mark_read=true to mark it read",
	}, s.handleGetConversation)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Send a message about a listing. Set parent_message_id to reply inside a thread",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_read",
		Description: "Mark a conversation, or specific messages sent to you, as read",
	}, s.handleMarkRead)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "archive_conversation",
		Description: "Archive or unarchive conversations. Archived conversations are hidden from list_conversations by default",
	}, s.handleArchiveConversation)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_messages",
		Description: "Delete conversations or messages for yourself. hard=true removes messages you sent for both sides",
	}, s.handleDeleteMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_notifications",
		Description: "List new-message notifications, newest first",
	}, s.handleListNotifications)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "wait_for_message",
		Description: "Block until a new message notification arrives or the timeout expires. Designed for background listeners",
	}, s.handleWaitForMessage)
}
