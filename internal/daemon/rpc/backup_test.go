package rpc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/backup"
	"github.com/leonletto/carlot/internal/transport"
)

func TestBackup_SnapshotAndList(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, alice, bob, "still available?", "")

	dir := filepath.Join(t.TempDir(), "backups")
	h := NewBackupHandler(env.db, backup.Options{Dir: dir, Version: "test"})
	unix := transport.NewContext(context.Background(), transport.Unix)

	resp, err := h.HandleList(unix, nil)
	if err != nil {
		t.Fatalf("HandleList failed: %v", err)
	}
	if list := resp.(*ListBackupsResponse); len(list.Snapshots) != 0 {
		t.Fatalf("expected no snapshots yet, got %d", len(list.Snapshots))
	}

	resp, err = h.HandleBackup(unix, nil)
	if err != nil {
		t.Fatalf("HandleBackup failed: %v", err)
	}
	result := resp.(*backup.Result)
	if result.Manifest.Counts.Messages != 1 || result.Manifest.Counts.Profiles != 3 {
		t.Errorf("Counts = %+v", result.Manifest.Counts)
	}

	resp, err = h.HandleList(unix, nil)
	if err != nil {
		t.Fatalf("HandleList failed: %v", err)
	}
	list := resp.(*ListBackupsResponse)
	if len(list.Snapshots) != 1 || list.Snapshots[0].Path != result.Path {
		t.Errorf("snapshots = %+v, want %s", list.Snapshots, result.Path)
	}
}

func TestBackup_LocalOnly(t *testing.T) {
	env := newTestEnv(t)
	h := NewBackupHandler(env.db, backup.Options{Dir: t.TempDir()})
	ws := transport.NewContext(context.Background(), transport.WebSocket)

	_, err := h.HandleBackup(ws, nil)
	assertKind(t, err, apperr.KindForbidden)
	_, err = h.HandleList(ws, nil)
	assertKind(t, err, apperr.KindForbidden)
}
