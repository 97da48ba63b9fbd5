package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"tailscale.com/tsnet"

	"github.com/leonletto/carlot/internal/config"
)

// TsnetListener serves an HTTP handler (the WebSocket RPC endpoint and
// /metrics) on a tailnet address.
type TsnetListener struct {
	server   *tsnet.Server
	listener net.Listener
	http     *http.Server
}

// NewTsnetServer joins the tailnet described by cfg and listens on its
// port. The caller must Close it.
func NewTsnetServer(cfg config.TailscaleConfig) (*TsnetListener, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("tailscale is not enabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return nil, fmt.Errorf("create tsnet state directory %s: %w", cfg.StateDir, err)
		}
	}

	srv := &tsnet.Server{
		Hostname: cfg.Hostname,
		AuthKey:  cfg.AuthKey,
		Dir:      cfg.StateDir,
		Logf:     func(string, ...any) {},
	}
	if cfg.ControlURL != "" {
		srv.ControlURL = cfg.ControlURL
	}

	ln, err := srv.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("tsnet listen on :%d: %w", cfg.Port, err)
	}

	return &TsnetListener{server: srv, listener: ln}, nil
}

// Serve runs handler on the tailnet listener in the background.
func (t *TsnetListener) Serve(handler http.Handler) {
	t.http = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := t.http.Serve(t.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("tsnet: serve error: %v", err)
		}
	}()
}

// Addr returns the listener's network address.
func (t *TsnetListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops the HTTP server, the listener and the tsnet node.
func (t *TsnetListener) Close() error {
	if t.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.http.Shutdown(ctx)
	}
	lnErr := t.listener.Close()
	srvErr := t.server.Close()
	if lnErr != nil && !errors.Is(lnErr, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", lnErr)
	}
	if srvErr != nil {
		return fmt.Errorf("close server: %w", srvErr)
	}
	return nil
}
