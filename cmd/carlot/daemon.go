package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/archive"
	"github.com/leonletto/carlot/internal/auth"
	"github.com/leonletto/carlot/internal/backup"
	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/config"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/directory"
	"github.com/leonletto/carlot/internal/metrics"
	"github.com/leonletto/carlot/internal/notify"
	"github.com/leonletto/carlot/internal/paths"
	"github.com/leonletto/carlot/internal/schema"
	"github.com/leonletto/carlot/internal/store"
	"github.com/leonletto/carlot/internal/transport"
	"github.com/leonletto/carlot/internal/websocket"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterMaxIdle         = 30 * time.Minute
	sessionPurgeInterval   = time.Hour
)

func daemonCmd() *cobra.Command {
	var flagLocal bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the carlot daemon",
	}

	cmd.PersistentFlags().BoolVar(&flagLocal, "local", false,
		"Local-only mode: never join the tailnet")

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(paths.VarDir(flagDir), 0700); err != nil {
				return fmt.Errorf("failed to create var directory: %w", err)
			}
			if err := cli.DaemonStart(flagDir, flagLocal); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Daemon started successfully")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.DaemonStop(flagDir); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Daemon stopped successfully")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := cli.DaemonStatus(context.Background(), flagDir)
			if err != nil {
				return err
			}
			if flagJSON {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				fmt.Print(cli.FormatDaemonStatus(result))
			}

			// Exit code 1 when daemon is not running (like systemctl status)
			if !result.Running {
				os.Exit(1)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground (internal use)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(flagDir, flagLocal)
		},
	})

	return cmd
}

func runDaemon(carlotDir string, flagLocal bool) error {
	cfg, err := config.Load(carlotDir)
	if err != nil {
		return err
	}
	if flagLocal {
		cfg.Daemon.LocalOnly = true
	}

	if err := os.MkdirAll(paths.VarDir(carlotDir), 0700); err != nil {
		return fmt.Errorf("failed to create var directory: %w", err)
	}

	raw, err := schema.OpenDB(paths.DBPath(carlotDir))
	if err != nil {
		return err
	}
	if err := schema.Migrate(raw); err != nil {
		_ = raw.Close()
		return err
	}
	db := safedb.New(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sessions := auth.New(db, cfg.Session.TTL.Duration)
	dir := directory.New(db)

	sink := notify.NewTableSink(db)
	queue := notify.NewQueue(sink, notify.Config{
		Workers:        cfg.Notify.Workers,
		QueueSize:      cfg.Notify.QueueSize,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		InitialBackoff: cfg.Notify.InitialBackoff.Duration,
	})
	queue.SetObserver(m.NotificationOutcome)
	queue.Start(ctx)

	messages := rpc.NewMessageHandler(store.New(db), archive.New(db, cfg.Archive.Enabled), dir, sessions)
	messages.SetNotifier(queue)
	messages.SetMetrics(m)
	if cfg.RateLimit.Enabled {
		limiter := daemon.NewSendLimiter(daemon.SendLimitConfig{
			Enabled:           true,
			MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		messages.SetSendLimiter(limiter)
		go limiter.RunCleanup(ctx, limiterCleanupInterval, limiterMaxIdle)
	}

	version := Version + "+" + Build
	health := rpc.NewHealthHandler(time.Now(), version, db)
	health.SetArchiveEnabled(cfg.Archive.Enabled)

	backups := rpc.NewBackupHandler(db, backup.Options{
		Dir:     cfg.Backup.Dir,
		Version: version,
		Retention: &backup.Retention{
			Daily:   cfg.Backup.Daily,
			Weekly:  cfg.Backup.Weekly,
			Monthly: cfg.Backup.Monthly,
		},
	})

	router := transport.NewRouter(cfg.Daemon.RequestTimeout.Duration)
	router.SetObserver(m.ObserveRPC)
	handlers := &rpc.Handlers{
		Health:        health,
		Session:       rpc.NewSessionHandler(sessions),
		Message:       messages,
		Directory:     rpc.NewDirectoryHandler(dir, sessions),
		Notifications: rpc.NewNotificationHandler(sink, sessions),
		Backup:        backups,
	}
	handlers.Register(router)

	socketPath := paths.SocketPath(carlotDir)
	server := daemon.NewServer(socketPath, router)

	// A nil *websocket.Server must not reach the lifecycle as a non-nil
	// interface.
	var wsServer daemon.WebSocketServer
	var ws *websocket.Server
	if !cfg.WSDisabled() {
		wsAddr, err := daemon.ResolveWSAddr(cfg.Daemon.WSAddr)
		if err != nil {
			_ = raw.Close()
			return err
		}
		ws = websocket.NewServer(wsAddr, router, m)
		wsServer = ws
	}

	var tailnet *daemon.TsnetListener
	if cfg.Tailscale.Enabled && !cfg.Daemon.LocalOnly && ws != nil {
		tailnet, err = daemon.NewTsnetServer(cfg.Tailscale)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start tsnet: %v (tsnet disabled)\n", err)
			tailnet = nil
		} else {
			tailnet.Serve(ws.Handler())
			health.SetTailnet(fmt.Sprintf("%s:%d", cfg.Tailscale.Hostname, cfg.Tailscale.Port))
		}
	}

	lifecycle := daemon.NewLifecycle(server, paths.PIDPath(carlotDir), wsServer, paths.WSPortPath(carlotDir))
	lifecycle.SetDir(carlotDir, version)
	lifecycle.SetLockFile(paths.LockPath(carlotDir))
	if tailnet != nil {
		lifecycle.OnShutdown("tsnet", tailnet.Close)
	}
	lifecycle.OnShutdown("notification queue", func() error {
		queue.Close()
		return nil
	})
	lifecycle.OnShutdown("database", raw.Close)

	go purgeSessions(ctx, sessions)

	fmt.Fprintf(os.Stderr, "carlot daemon starting...\n")
	fmt.Fprintf(os.Stderr, "  Directory:   %s\n", carlotDir)
	fmt.Fprintf(os.Stderr, "  Unix socket: %s\n", socketPath)
	if ws != nil {
		fmt.Fprintf(os.Stderr, "  WebSocket:   ws://%s/\n", ws.Addr())
		fmt.Fprintf(os.Stderr, "  Metrics:     http://%s/metrics\n", ws.Addr())
	}
	if tailnet != nil {
		fmt.Fprintf(os.Stderr, "  Tailscale:   %s:%d\n", cfg.Tailscale.Hostname, cfg.Tailscale.Port)
	}
	if !cfg.Archive.Enabled {
		fmt.Fprintf(os.Stderr, "  Archive:     disabled\n")
	}

	return lifecycle.Run(ctx)
}

// purgeSessions drops expired sessions every sessionPurgeInterval.
func purgeSessions(ctx context.Context, sessions *auth.Store) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				log.Printf("daemon: purge sessions: %v", err)
			} else if n > 0 {
				log.Printf("daemon: purged %d expired session(s)", n)
			}
		}
	}
}
