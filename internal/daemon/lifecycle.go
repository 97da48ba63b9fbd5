package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// WebSocketServer is the subset of the WebSocket server the lifecycle
// drives. Declared here to keep the daemon package free of the websocket
// import.
type WebSocketServer interface {
	Start(ctx context.Context) error
	Stop() error
	Port() int
	Addr() string
}

// Lifecycle runs the daemon: lock, PID file, listeners, signal handling and
// ordered shutdown.
type Lifecycle struct {
	server     *Server
	wsServer   WebSocketServer
	pidFile    string
	wsPortFile string
	dir        string
	version    string
	lockFile   string
	lock       *FileLock

	closers []namedCloser

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	ready        chan struct{}
}

type namedCloser struct {
	name string
	fn   func() error
}

// NewLifecycle creates a lifecycle manager. wsServer and wsPortFile are
// optional.
func NewLifecycle(server *Server, pidFile string, wsServer WebSocketServer, wsPortFile string) *Lifecycle {
	return &Lifecycle{
		server:     server,
		wsServer:   wsServer,
		pidFile:    pidFile,
		wsPortFile: wsPortFile,
		shutdownCh: make(chan struct{}),
		ready:      make(chan struct{}),
	}
}

// SetDir records the .carlot/ directory and version for PID file metadata.
func (l *Lifecycle) SetDir(dir, version string) {
	l.dir = dir
	l.version = version
}

// SetLockFile enables flock-based single-instance protection.
func (l *Lifecycle) SetLockFile(lockFile string) {
	l.lockFile = lockFile
}

// OnShutdown registers fn to run after the listeners stop, in registration
// order. Use it for the notification queue and the database.
func (l *Lifecycle) OnShutdown(name string, fn func() error) {
	l.closers = append(l.closers, namedCloser{name: name, fn: fn})
}

// Ready is closed once both listeners accept connections.
func (l *Lifecycle) Ready() <-chan struct{} {
	return l.ready
}

// Run starts the listeners and blocks until SIGINT, SIGTERM, Shutdown or
// ctx cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	if l.lockFile != "" {
		lock, err := AcquireLock(l.lockFile)
		if err != nil {
			return fmt.Errorf("failed to acquire daemon lock: %w", err)
		}
		l.lock = lock
		defer func() {
			if err := l.lock.Release(); err != nil {
				log.Printf("daemon: failed to release lock: %v", err)
			}
		}()
	}

	running, existing, err := CheckPIDFile(l.pidFile)
	if err != nil {
		log.Printf("daemon: ignoring unreadable PID file: %v", err)
	} else if running && existing.PID != os.Getpid() {
		if SameDir(existing, l.dir) {
			return fmt.Errorf("daemon already running (PID %d) for %s", existing.PID, l.dir)
		}
		log.Printf("daemon: PID %d is running for %s, overwriting PID file", existing.PID, existing.Dir)
	}

	info := PIDInfo{
		PID:        os.Getpid(),
		Dir:        l.dir,
		StartedAt:  time.Now().UTC(),
		SocketPath: l.server.socketPath,
		Version:    l.version,
	}
	if l.wsServer != nil {
		info.WSAddr = l.wsServer.Addr()
	}
	if err := WritePIDFile(l.pidFile, info); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// Clean up on any exit path that skips shutdown().
	var shutdownComplete atomic.Bool
	defer func() {
		if !shutdownComplete.Load() {
			l.stopListeners()
			l.runClosers()
			_ = RemovePIDFile(l.pidFile)
		}
	}()

	if err := l.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if l.wsServer != nil {
		if err := l.wsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
		if l.wsPortFile != "" {
			if err := WritePortFile(l.wsPortFile, l.wsServer.Port()); err != nil {
				return fmt.Errorf("failed to write WebSocket port file: %w", err)
			}
		}
		// A ":0" port is only known once the listener is bound.
		if addr := l.wsServer.Addr(); addr != info.WSAddr {
			info.WSAddr = addr
			if err := WritePIDFile(l.pidFile, info); err != nil {
				return fmt.Errorf("failed to write PID file: %w", err)
			}
		}
	}
	close(l.ready)

	go l.handleSignals(ctx)
	<-l.shutdownCh

	shutdownComplete.Store(true)
	return l.shutdown()
}

func (l *Lifecycle) handleSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("daemon: received %v, shutting down", sig)
	case <-ctx.Done():
		log.Printf("daemon: context done, shutting down")
	case <-l.shutdownCh:
		return
	}
	l.Shutdown()
}

func (l *Lifecycle) stopListeners() {
	if l.wsServer != nil {
		if err := l.wsServer.Stop(); err != nil {
			log.Printf("daemon: error stopping WebSocket server: %v", err)
		}
		if l.wsPortFile != "" {
			if err := RemovePortFile(l.wsPortFile); err != nil {
				log.Printf("daemon: %v", err)
			}
		}
	}
	if err := l.server.Stop(); err != nil {
		log.Printf("daemon: error stopping server: %v", err)
	}
}

func (l *Lifecycle) runClosers() {
	for _, c := range l.closers {
		if err := c.fn(); err != nil {
			log.Printf("daemon: error closing %s: %v", c.name, err)
		}
	}
	l.closers = nil
}

// shutdown stops accepting work, drains it, then releases resources.
func (l *Lifecycle) shutdown() error {
	log.Printf("daemon: starting graceful shutdown")
	l.stopListeners()
	l.runClosers()

	if err := RemovePIDFile(l.pidFile); err != nil {
		log.Printf("daemon: %v", err)
		return err
	}
	if err := l.lock.Release(); err != nil {
		log.Printf("daemon: error releasing lock: %v", err)
	}
	log.Printf("daemon: graceful shutdown complete")
	return nil
}

// Shutdown triggers a graceful shutdown. Safe to call more than once.
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}
