// Package backup takes consistent snapshots of the carlot database,
// rotates them with grandfather-father-son retention and restores them.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/leonletto/carlot/internal/daemon/safedb"
	"github.com/leonletto/carlot/internal/schema"
)

const (
	archiveTimeFormat = "2006-01-02T150405"
	snapshotExt       = ".db"
	safetyPrefix      = "pre-restore-"
)

// Options configures a backup run.
type Options struct {
	Dir       string     // directory holding snapshots
	Version   string     // carlot version for the manifest
	Retention *Retention // optional: apply GFS rotation after the snapshot
}

// Result holds the outcome of a backup run.
type Result struct {
	Path     string    `json:"path"`
	Manifest *Manifest `json:"manifest"`
	Removed  int       `json:"removed"`
}

// Run snapshots db into opts.Dir with VACUUM INTO, which reads inside a
// single transaction, so the copy is consistent while the daemon keeps
// serving writes.
func Run(ctx context.Context, db *safedb.DB, opts Options) (*Result, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	now := time.Now().UTC()
	path := filepath.Join(opts.Dir, now.Format(archiveTimeFormat)+snapshotExt)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists", filepath.Base(path))
	}
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := vacuumInto(ctx, db, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	manifest, err := inspect(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	manifest.Timestamp = now
	manifest.CarlotVersion = opts.Version

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := WriteManifest(path, manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	result := &Result{Path: path, Manifest: manifest}
	if opts.Retention != nil {
		removed, err := ApplyRetention(opts.Dir, *opts.Retention)
		if err != nil {
			return result, fmt.Errorf("apply retention: %w", err)
		}
		result.Removed = removed
	}
	return result, nil
}

func vacuumInto(ctx context.Context, db *safedb.DB, path string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", filepath.Base(path), err)
	}
	return nil
}

// inspect opens a snapshot and reads its schema version and row counts.
func inspect(ctx context.Context, path string) (*Manifest, error) {
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = raw.Close() }()

	version, err := schema.GetSchemaVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("read snapshot schema version: %w", err)
	}

	db := safedb.New(raw)
	m := &Manifest{Version: manifestVersion, SchemaVersion: version}
	counts := []struct {
		table string
		dst   *int
	}{
		{"messages", &m.Counts.Messages},
		{"profiles", &m.Counts.Profiles},
		{"listings", &m.Counts.Listings},
		{"notifications", &m.Counts.Notifications},
		{"sessions", &m.Counts.Sessions},
	}
	for _, c := range counts {
		// Table names come from the fixed list above.
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return m, nil
}
