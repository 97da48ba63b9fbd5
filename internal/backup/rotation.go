package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Retention is a grandfather-father-son policy. Daily keeps the N newest
// snapshots, Weekly the oldest snapshot of each of the N newest ISO weeks
// and Monthly the oldest of each of the N newest months. Monthly -1 keeps
// one snapshot per month forever.
type Retention struct {
	Daily   int
	Weekly  int
	Monthly int
}

// Snapshot is one rotated database copy in the backup directory.
type Snapshot struct {
	Path string    `json:"path"`
	Time time.Time `json:"time"`
	Size int64     `json:"size"`
}

// List returns the rotated snapshots in dir, newest first. Pre-restore
// safety copies and unrecognized files are left out.
func List(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snapshots []Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		if strings.HasPrefix(e.Name(), safetyPrefix) {
			continue
		}
		t, err := time.Parse(archiveTimeFormat, strings.TrimSuffix(e.Name(), snapshotExt))
		if err != nil {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		snapshots = append(snapshots, Snapshot{
			Path: filepath.Join(dir, e.Name()),
			Time: t,
			Size: size,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Time.After(snapshots[j].Time)
	})
	return snapshots, nil
}

// ApplyRetention deletes the snapshots in dir that r does not keep, along
// with their manifests, and returns how many snapshots it removed.
func ApplyRetention(dir string, r Retention) (int, error) {
	snapshots, err := List(dir)
	if err != nil {
		return 0, err
	}
	if len(snapshots) == 0 {
		return 0, nil
	}

	keep := make(map[string]bool)

	for i := range min(max(r.Daily, 0), len(snapshots)) {
		keep[snapshots[i].Path] = true
	}

	weekly := oldestPerBucket(snapshots, func(t time.Time) string {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-%02d", year, week)
	})
	for i := range min(max(r.Weekly, 0), len(weekly)) {
		keep[weekly[i].Path] = true
	}

	if r.Monthly != 0 {
		monthly := oldestPerBucket(snapshots, func(t time.Time) string {
			return t.Format("2006-01")
		})
		limit := len(monthly)
		if r.Monthly > 0 {
			limit = min(r.Monthly, len(monthly))
		}
		for i := range limit {
			keep[monthly[i].Path] = true
		}
	}

	removed := 0
	for _, s := range snapshots {
		if keep[s.Path] {
			continue
		}
		if err := os.Remove(s.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(s.Path), err)
		}
		_ = os.Remove(manifestPath(s.Path))
		removed++
	}
	return removed, nil
}

// oldestPerBucket groups snapshots by key and returns the oldest snapshot
// of each bucket, newest bucket first.
func oldestPerBucket(snapshots []Snapshot, key func(time.Time) string) []Snapshot {
	buckets := make(map[string]Snapshot)
	for _, s := range snapshots {
		k := key(s.Time)
		if existing, ok := buckets[k]; !ok || s.Time.Before(existing.Time) {
			buckets[k] = s
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, buckets[k])
	}
	return out
}
