package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/config"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database",
		Long: `Take a consistent snapshot of the live database through the daemon.

Snapshots go to backup.dir (default .carlot/backups) and are rotated with
grandfather-father-son retention (backup.daily, backup.weekly,
backup.monthly). Only available over the local socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			result, err := cli.Backup(context.Background(), client)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			if !flagQuiet {
				fmt.Print(cli.FormatBackupResult(result))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rotated snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			resp, err := cli.ListBackups(context.Background(), client)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(resp)
			}
			fmt.Print(cli.FormatBackupList(resp))
			return nil
		},
	})

	cmd.AddCommand(restoreCmd())

	return cmd
}

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore SNAPSHOT",
		Short: "Replace the database with a snapshot",
		Long: `Replace the database with a snapshot. The daemon must be stopped.

SNAPSHOT is a path or a file name inside the backup directory. The current
database is first saved as a pre-restore- copy, which rotation keeps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			cfg, err := config.Load(flagDir)
			if err != nil {
				return err
			}
			snapshot := args[0]
			if _, err := os.Stat(snapshot); os.IsNotExist(err) && filepath.Base(snapshot) == snapshot {
				snapshot = filepath.Join(cfg.Backup.Dir, snapshot)
			}

			if !yes && cli.IsInteractive() {
				fmt.Printf("Replace the database in %s with %s? [y/N] ", flagDir, filepath.Base(snapshot))
				answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					return fmt.Errorf("restore cancelled")
				}
			}

			result, err := cli.Restore(flagDir, snapshot, cfg.Backup.Dir)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			if !flagQuiet {
				fmt.Print(cli.FormatRestoreResult(result))
			}
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}
