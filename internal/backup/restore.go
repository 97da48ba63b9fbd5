package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/leonletto/carlot/internal/schema"
)

// RestoreOptions configures a restore.
type RestoreOptions struct {
	Snapshot  string // snapshot file to restore
	DBPath    string // live database path
	BackupDir string // where the pre-restore safety copy goes
}

// RestoreResult holds the outcome of a restore.
type RestoreResult struct {
	SafetyBackup string    `json:"safety_backup,omitempty"`
	Source       string    `json:"source"`
	Manifest     *Manifest `json:"manifest,omitempty"`
}

// Restore replaces the database at opts.DBPath with a snapshot. The daemon
// must be stopped. The current database is first saved as a pre-restore
// copy, which rotation never deletes.
func Restore(opts RestoreOptions) (*RestoreResult, error) {
	if opts.Snapshot == "" || opts.DBPath == "" {
		return nil, fmt.Errorf("snapshot and database path are required")
	}
	if err := checkSnapshot(opts.Snapshot); err != nil {
		return nil, err
	}

	result := &RestoreResult{Source: opts.Snapshot}
	if m, err := ReadManifest(opts.Snapshot); err == nil {
		result.Manifest = m
	}

	safetyPath, err := CreateSafetyBackup(opts.DBPath, opts.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create safety backup: %w", err)
	}
	result.SafetyBackup = safetyPath

	tmpPath := opts.DBPath + ".restore.tmp"
	if err := copyFile(opts.Snapshot, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("copy snapshot: %w", err)
	}
	// Stale WAL frames would be replayed on top of the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(opts.DBPath + suffix); err != nil && !os.IsNotExist(err) {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("remove %s: %w", filepath.Base(opts.DBPath+suffix), err)
		}
	}
	if err := os.Rename(tmpPath, opts.DBPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	return result, nil
}

// CreateSafetyBackup snapshots the database at dbPath into backupDir with
// the pre-restore- prefix. It returns "" when there is no database.
func CreateSafetyBackup(dbPath, backupDir string) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil // nothing to protect
		}
		return "", err
	}
	if err := os.MkdirAll(backupDir, 0750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	timestamp := time.Now().UTC().Format(archiveTimeFormat)
	path := filepath.Join(backupDir, safetyPrefix+timestamp+snapshotExt)
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	// Opening through the driver folds any WAL frames into the copy.
	raw, err := schema.OpenDB(dbPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = raw.Close() }()

	if _, err := raw.Exec("VACUUM INTO ?", tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("vacuum into %s: %w", filepath.Base(tmpPath), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// checkSnapshot opens path and verifies it carries a schema this build
// can migrate.
func checkSnapshot(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup source not found: %w", err)
	}
	// A plain open leaves the snapshot's journal mode alone.
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = raw.Close() }()

	version, err := schema.GetSchemaVersion(raw)
	if err != nil {
		return fmt.Errorf("%s is not a carlot snapshot: %w", filepath.Base(path), err)
	}
	if version == 0 || version > schema.CurrentVersion {
		return fmt.Errorf("%s has schema version %d, this build supports up to %d",
			filepath.Base(path), version, schema.CurrentVersion)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304 - operator-chosen snapshot
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // G304 - database directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
