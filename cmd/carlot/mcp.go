package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon"
	carlotmcp "github.com/leonletto/carlot/internal/mcp"
	"github.com/leonletto/carlot/internal/paths"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start MCP stdio server for marketplace conversations",
		Long: `Starts an MCP server on stdin/stdout acting for the current session.

Requires the carlot daemon to be running and a session (carlot login,
--token or CARLOT_SESSION_TOKEN). Tools: list_conversations,
get_conversation, send_message, mark_read, archive_conversation,
delete_messages, list_notifications and wait_for_message.

Configure in an MCP client:
  {
    "mcpServers": {
      "carlot": {
        "type": "stdio",
        "command": "carlot",
        "args": ["mcp", "serve"]
      }
    }
  }`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServe()
		},
	}
}

func runMCPServe() error {
	token, err := cli.ResolveToken(flagDir, flagToken)
	if err != nil {
		return err
	}

	// Check daemon is running before starting MCP server
	client, err := cli.Connect(flagDir)
	if err != nil {
		return err
	}
	var health map[string]any
	if err := client.CallInto(context.Background(), "health", nil, &health); err != nil {
		_ = client.Close()
		return fmt.Errorf("carlot daemon is not responding. Restart with: carlot daemon start\n  (error: %w)", err)
	}
	_ = client.Close()

	server, err := carlotmcp.NewServer(flagDir, token, carlotmcp.WithVersion(Version))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// wait_for_message needs the WebSocket listener; the other tools do not.
	if port, err := daemon.ReadPortFile(paths.WSPortPath(flagDir)); err == nil && port > 0 {
		wsURL := fmt.Sprintf("ws://localhost:%d/", port)
		if initErr := server.InitWaiter(ctx, wsURL); initErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: WebSocket waiter not available (wait_for_message will fail): %v\n", initErr)
		}
	}

	return server.Run(ctx)
}
