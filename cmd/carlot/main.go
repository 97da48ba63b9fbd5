package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagDir   string
	flagToken string
	flagJSON  bool
	flagQuiet bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carlot",
		Short: "Marketplace conversations and message threads",
		Long: `Carlot keeps the conversations between buyers and sellers about
marketplace listings. Messages are grouped per listing and counterpart,
replies form threads, and each participant has their own read, archive
and delete state.

A local daemon owns the database and serves JSON-RPC on a Unix socket
and a WebSocket. Every other command talks to that daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", ".", "Directory containing .carlot/ (or the .carlot/ directory itself)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Session token (or CARLOT_SESSION_TOKEN env var)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("carlot v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	// Resolve --dir to the nearest .carlot/ (git-style traversal).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		dir, err := cli.ResolveCarlotDir(flagDir)
		if err != nil {
			return err
		}
		flagDir = dir
		return nil
	}

	// Messaging
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(replyCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(archiveCmd(true))
	rootCmd.AddCommand(archiveCmd(false))
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(notificationsCmd())

	// Sessions and directory
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(seedCmd())

	// Operations
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getClient connects to the daemon serving flagDir.
func getClient() (*daemon.Client, error) {
	return cli.Connect(flagDir)
}

// withSession runs fn with a daemon connection and the caller's token.
func withSession(fn func(ctx context.Context, client *daemon.Client, token string) error) error {
	token, err := cli.ResolveToken(flagDir, flagToken)
	if err != nil {
		return err
	}
	client, err := getClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(context.Background(), client, token)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show carlot version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagJSON {
				return printJSON(map[string]string{
					"version":    Version,
					"build":      Build,
					"go_version": goruntime.Version(),
				})
			}
			fmt.Printf("carlot v%s (build: %s, %s)\n", Version, Build, goruntime.Version())
			return nil
		},
	}
}
