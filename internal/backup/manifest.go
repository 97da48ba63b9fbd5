package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// manifestVersion is bumped when the sidecar layout changes.
const manifestVersion = 1

// Manifest records metadata about a database snapshot. It is stored next
// to the snapshot as <timestamp>.json.
type Manifest struct {
	Version       int            `json:"version"`
	Timestamp     time.Time      `json:"timestamp"`
	CarlotVersion string         `json:"carlot_version"`
	SchemaVersion int            `json:"schema_version"`
	Counts        ManifestCounts `json:"counts"`
}

// ManifestCounts holds row counts in the snapshot.
type ManifestCounts struct {
	Messages      int `json:"messages"`
	Profiles      int `json:"profiles"`
	Listings      int `json:"listings"`
	Notifications int `json:"notifications"`
	Sessions      int `json:"sessions"`
}

// manifestPath returns the sidecar path for a snapshot.
func manifestPath(snapshotPath string) string {
	return strings.TrimSuffix(snapshotPath, snapshotExt) + ".json"
}

// WriteManifest writes the sidecar for snapshotPath.
func WriteManifest(snapshotPath string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	outPath := manifestPath(snapshotPath)
	tmpPath := outPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// ReadManifest reads the sidecar for snapshotPath.
func ReadManifest(snapshotPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(snapshotPath)) //nolint:gosec // G304 - backup directory
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
