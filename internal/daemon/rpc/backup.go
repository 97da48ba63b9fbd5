package rpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/leonletto/carlot/internal/apperr"
	"github.com/leonletto/carlot/internal/backup"
	"github.com/leonletto/carlot/internal/daemon/safedb"
)

// ListBackupsResponse represents the response from admin.listBackups RPC.
type ListBackupsResponse struct {
	Dir       string            `json:"dir"`
	Snapshots []backup.Snapshot `json:"snapshots"`
}

// BackupHandler snapshots the live database. Both methods are local-only.
type BackupHandler struct {
	db   *safedb.DB
	opts backup.Options

	// One snapshot at a time; two runs in the same second share a name.
	mu sync.Mutex
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(db *safedb.DB, opts backup.Options) *BackupHandler {
	return &BackupHandler{db: db, opts: opts}
}

// HandleBackup handles the admin.backup RPC method.
func (h *BackupHandler) HandleBackup(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := requireLocal(ctx, "admin.backup"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := backup.Run(ctx, h.db, h.opts)
	if err != nil {
		return nil, apperr.OrStorage(err, "backup")
	}
	return result, nil
}

// HandleList handles the admin.listBackups RPC method.
func (h *BackupHandler) HandleList(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := requireLocal(ctx, "admin.listBackups"); err != nil {
		return nil, err
	}
	snapshots, err := backup.List(h.opts.Dir)
	if err != nil {
		return nil, apperr.OrStorage(err, "list backups")
	}
	if snapshots == nil {
		snapshots = []backup.Snapshot{}
	}
	return &ListBackupsResponse{Dir: h.opts.Dir, Snapshots: snapshots}, nil
}
