package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/paths"
)

// DaemonStatusResult contains daemon status information.
type DaemonStatusResult struct {
	Running        bool   `json:"running"`
	Status         string `json:"status"`
	PID            int    `json:"pid,omitempty"`
	Dir            string `json:"carlot_dir,omitempty"`
	Uptime         string `json:"uptime,omitempty"`
	Version        string `json:"version,omitempty"`
	Health         string `json:"health,omitempty"`
	ArchiveEnabled bool   `json:"archive_enabled,omitempty"`
	WebSocketAddr  string `json:"ws_addr,omitempty"`
	Tailnet        string `json:"tailnet,omitempty"`
}

// DaemonStart starts the daemon in the background and waits for its socket.
func DaemonStart(carlotDir string, localOnly bool) error {
	pidPath := paths.PIDPath(carlotDir)
	running, info, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running && daemon.SameDir(info, carlotDir) {
		return fmt.Errorf("daemon is already running (PID %d)", info.PID)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"daemon", "run", "--dir", carlotDir}
	if localOnly {
		args = append(args, "--local")
	}
	cmd := exec.Command(executable, args...) //nolint:gosec // executable from os.Executable()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	// The parent exits soon; let init adopt the child instead of waiting.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release daemon process: %w", err)
	}

	client, err := daemon.WaitForSocket(paths.SocketPath(carlotDir), 10*time.Second)
	if err != nil {
		return err
	}
	return client.Close()
}

// DaemonStop sends SIGTERM and waits for the daemon to exit.
func DaemonStop(carlotDir string) error {
	pidPath := paths.PIDPath(carlotDir)
	running, info, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", info.PID, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", info.PID, err)
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for daemon to stop (PID %d still running)", info.PID)
		case <-ticker.C:
			if running, _, _ := daemon.CheckPIDFile(pidPath); !running {
				return nil
			}
		}
	}
}

// DaemonStatus reads the PID file and, when the daemon is up, asks it for
// its health.
func DaemonStatus(ctx context.Context, carlotDir string) (*DaemonStatusResult, error) {
	running, info, err := daemon.CheckPIDFile(paths.PIDPath(carlotDir))
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}

	result := &DaemonStatusResult{Running: running, Status: "stopped"}
	if !running {
		return result, nil
	}
	result.Status = "running"
	result.PID = info.PID
	result.Dir = info.Dir
	result.WebSocketAddr = info.WSAddr

	client, err := daemon.NewClient(paths.SocketPath(carlotDir))
	if err != nil {
		result.Health = "unreachable"
		return result, nil
	}
	defer func() { _ = client.Close() }()

	var health rpc.HealthResponse
	if err := client.CallInto(ctx, "health", struct{}{}, &health); err != nil {
		result.Health = "unreachable"
		return result, nil
	}
	result.Health = health.Status
	result.Uptime = formatDuration(time.Duration(health.Uptime) * time.Millisecond)
	result.Version = health.Version
	result.ArchiveEnabled = health.Archive
	result.Tailnet = health.Tailnet
	return result, nil
}

// FormatDaemonStatus formats the daemon status for display.
func FormatDaemonStatus(result *DaemonStatusResult) string {
	if !result.Running {
		return "Daemon:   not running\n"
	}

	status := fmt.Sprintf("Daemon:   running (PID %d)\n", result.PID)
	if result.Health != "" {
		status += fmt.Sprintf("Health:   %s\n", result.Health)
	}
	if result.Uptime != "" {
		status += fmt.Sprintf("Uptime:   %s\n", result.Uptime)
	}
	if result.Version != "" {
		status += fmt.Sprintf("Version:  %s\n", result.Version)
	}
	if result.WebSocketAddr != "" {
		status += fmt.Sprintf("WS:       ws://%s\n", result.WebSocketAddr)
	}
	if result.Tailnet != "" {
		status += fmt.Sprintf("Tailnet:  %s\n", result.Tailnet)
	}
	if result.ArchiveEnabled {
		status += "Archive:  enabled\n"
	} else if result.Health != "" && result.Health != "unreachable" {
		status += "Archive:  disabled\n"
	}
	return status
}
