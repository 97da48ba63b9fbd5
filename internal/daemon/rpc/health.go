package rpc

import (
	"context"
	"encoding/json"
	"time"
)

// HealthResponse represents the response from the health check RPC.
type HealthResponse struct {
	Status  string `json:"status"`    // "ok" or "degraded"
	Uptime  int64  `json:"uptime_ms"` // Uptime in milliseconds
	Version string `json:"version"`
	// Archive reports whether the archive overlay is enabled.
	Archive bool `json:"archive_enabled"`
	// Tailnet is the tsnet hostname when the daemon is reachable on a tailnet.
	Tailnet string `json:"tailnet,omitempty"`
}

// Pinger checks the backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the health method. It needs no session.
type HealthHandler struct {
	startTime time.Time
	version   string
	archive   bool
	tailnet   string
	db        Pinger
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(startTime time.Time, version string, db Pinger) *HealthHandler {
	return &HealthHandler{startTime: startTime, version: version, db: db}
}

// SetArchiveEnabled records whether the archive overlay is on.
func (h *HealthHandler) SetArchiveEnabled(enabled bool) {
	h.archive = enabled
}

// SetTailnet records the tsnet hostname.
func (h *HealthHandler) SetTailnet(hostname string) {
	h.tailnet = hostname
}

// Handle handles the health check request. A failed database ping reports
// "degraded" rather than an error so monitors can still read the uptime.
func (h *HealthHandler) Handle(ctx context.Context, _ json.RawMessage) (any, error) {
	resp := HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.startTime).Milliseconds(),
		Version: h.version,
		Archive: h.archive,
		Tailnet: h.tailnet,
	}
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
		}
	}
	return resp, nil
}
