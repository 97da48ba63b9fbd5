// Package cli implements the carlot command-line client: thin wrappers over
// the daemon's JSON-RPC methods plus plain-text formatting of their results.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/paths"
)

// Caller makes one JSON-RPC call and decodes the result into out.
// *daemon.Client satisfies it.
type Caller interface {
	CallInto(ctx context.Context, method string, params, out any) error
}

// ErrNoSession is returned when no session token is configured.
var ErrNoSession = errors.New("no session: run 'carlot login <user_id>' or set CARLOT_SESSION_TOKEN")

// Connect opens a client on the daemon socket of carlotDir.
func Connect(carlotDir string) (*daemon.Client, error) {
	socketPath := paths.SocketPath(carlotDir)
	if _, err := os.Stat(socketPath); err != nil {
		return nil, fmt.Errorf("daemon is not running (no socket at %s); start it with 'carlot daemon start'", socketPath)
	}
	return daemon.NewClient(socketPath)
}

// ResolveCarlotDir finds the .carlot/ directory for startPath, following a
// redirect file. A path that is itself named .carlot is used as is. When
// none exists it falls back to startPath/.carlot.
func ResolveCarlotDir(startPath string) (string, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if filepath.Base(abs) == paths.DirName {
		return abs, nil
	}
	root, err := paths.FindRoot(abs)
	if err != nil {
		return filepath.Join(abs, paths.DirName), nil
	}
	return paths.ResolveDir(root)
}

// ResolveToken picks the session token: an explicit flag value, then
// CARLOT_SESSION_TOKEN, then the token saved by Login.
func ResolveToken(carlotDir, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("CARLOT_SESSION_TOKEN"); v != "" {
		return v, nil
	}
	data, err := os.ReadFile(paths.SessionPath(carlotDir)) //nolint:gosec // G304 - path inside .carlot/
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("read session file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// SaveToken stores token for later commands. The file is owner-only.
func SaveToken(carlotDir, token string) error {
	path := paths.SessionPath(carlotDir)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// ClearToken removes the saved token. A missing file is not an error.
func ClearToken(carlotDir string) error {
	if err := os.Remove(paths.SessionPath(carlotDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
