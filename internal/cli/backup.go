package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonletto/carlot/internal/backup"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
	"github.com/leonletto/carlot/internal/paths"
)

// Backup asks the daemon for a snapshot of the live database.
func Backup(ctx context.Context, c Caller) (*backup.Result, error) {
	var result backup.Result
	if err := c.CallInto(ctx, "admin.backup", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListBackups returns the daemon's rotated snapshots, newest first.
func ListBackups(ctx context.Context, c Caller) (*rpc.ListBackupsResponse, error) {
	var resp rpc.ListBackupsResponse
	if err := c.CallInto(ctx, "admin.listBackups", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restore replaces the database in carlotDir with snapshot. It refuses to
// run while a daemon holds the database.
func Restore(carlotDir, snapshot, backupDir string) (*backup.RestoreResult, error) {
	running, info, err := daemon.CheckPIDFile(paths.PIDPath(carlotDir))
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return nil, fmt.Errorf("daemon is running (PID %d); stop it with: carlot daemon stop", info.PID)
	}
	if pid, locked := daemon.LockHolder(paths.LockPath(carlotDir)); locked {
		return nil, fmt.Errorf("database is locked by PID %d; stop the daemon first", pid)
	}
	return backup.Restore(backup.RestoreOptions{
		Snapshot:  snapshot,
		DBPath:    paths.DBPath(carlotDir),
		BackupDir: backupDir,
	})
}

// FormatBackupResult formats a finished snapshot for display.
func FormatBackupResult(r *backup.Result) string {
	var out strings.Builder
	fmt.Fprintf(&out, "✓ Snapshot written: %s\n", r.Path)
	if m := r.Manifest; m != nil {
		fmt.Fprintf(&out, "  Messages: %d  Profiles: %d  Listings: %d  Notifications: %d\n",
			m.Counts.Messages, m.Counts.Profiles, m.Counts.Listings, m.Counts.Notifications)
	}
	if r.Removed > 0 {
		fmt.Fprintf(&out, "  Rotated out %d old snapshot(s)\n", r.Removed)
	}
	return out.String()
}

// FormatBackupList formats the snapshot list for display.
func FormatBackupList(resp *rpc.ListBackupsResponse) string {
	if len(resp.Snapshots) == 0 {
		return fmt.Sprintf("No snapshots in %s\n", resp.Dir)
	}
	var out strings.Builder
	fmt.Fprintf(&out, "Snapshots in %s:\n", resp.Dir)
	for _, s := range resp.Snapshots {
		fmt.Fprintf(&out, "  %s  %8s  %s\n",
			s.Time.Local().Format("2006-01-02 15:04:05"), formatSize(s.Size), formatRelativeTime(s.Time))
	}
	return out.String()
}

// FormatRestoreResult formats a finished restore for display.
func FormatRestoreResult(r *backup.RestoreResult) string {
	var out strings.Builder
	fmt.Fprintf(&out, "✓ Restored from %s\n", r.Source)
	if r.SafetyBackup != "" {
		fmt.Fprintf(&out, "  Previous database saved to %s\n", r.SafetyBackup)
	}
	return out.String()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
