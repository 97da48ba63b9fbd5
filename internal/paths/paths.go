// Package paths locates the .carlot/ directory and the runtime files inside it.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the name of the per-project carlot directory.
const DirName = ".carlot"

// FindRoot walks up from startPath looking for a directory containing .carlot/.
// Returns the directory containing .carlot/, or an error if none is found.
func FindRoot(startPath string) (string, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	dir := absPath
	for {
		info, err := os.Stat(filepath.Join(dir, DirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/ directory found (searched from %s to /)", DirName, absPath)
		}
		dir = parent
	}
}

// ResolveDir returns the effective .carlot/ directory for root.
//
// A .carlot/redirect file holding an absolute path points several checkouts
// at one shared daemon directory. Only single-hop redirects are followed.
func ResolveDir(root string) (string, error) {
	localDir := filepath.Join(root, DirName)
	redirectPath := filepath.Join(localDir, "redirect")

	data, err := os.ReadFile(redirectPath) //nolint:gosec // G304 - path inside .carlot/
	if err != nil {
		if os.IsNotExist(err) {
			return localDir, nil
		}
		return "", fmt.Errorf("read redirect file: %w", err)
	}

	target := strings.TrimSpace(string(data))
	if target == "" {
		return "", fmt.Errorf("redirect file is empty: %s", redirectPath)
	}
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("redirect target must be absolute path, got: %s", target)
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("redirect target does not exist: %s", target)
		}
		return "", fmt.Errorf("stat redirect target: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("redirect target is not a directory: %s", target)
	}

	if _, err := os.Stat(filepath.Join(target, "redirect")); err == nil {
		return "", fmt.Errorf("redirect chain detected: %s points to %s which also has a redirect file", redirectPath, target)
	}

	return target, nil
}

// IsRedirected reports whether root uses a redirect file.
func IsRedirected(root string) bool {
	_, err := os.Stat(filepath.Join(root, DirName, "redirect"))
	return err == nil
}

// VarDir returns the runtime directory.
// Contains carlot.db (SQLite), carlot.sock, carlot.pid, carlot.lock and ws.port.
func VarDir(carlotDir string) string {
	return filepath.Join(carlotDir, "var")
}

// DBPath returns the SQLite database path.
func DBPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "carlot.db")
}

// SocketPath returns the daemon's Unix socket path.
func SocketPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "carlot.sock")
}

// PIDPath returns the daemon's PID file path.
func PIDPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "carlot.pid")
}

// LockPath returns the daemon's flock file path.
func LockPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "carlot.lock")
}

// WSPortPath returns the file the daemon writes its WebSocket port to.
func WSPortPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "ws.port")
}

// ConfigPath returns the JSON config file path.
func ConfigPath(carlotDir string) string {
	return filepath.Join(carlotDir, "config.json")
}

// EnvPath returns the optional dotenv file path.
func EnvPath(carlotDir string) string {
	return filepath.Join(carlotDir, ".env")
}

// SessionPath returns the file the CLI stores its session token in.
func SessionPath(carlotDir string) string {
	return filepath.Join(VarDir(carlotDir), "session")
}
