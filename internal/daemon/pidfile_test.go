package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "carlot.pid")
	info := PIDInfo{
		PID:        os.Getpid(),
		Dir:        "/srv/app/.carlot",
		StartedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		SocketPath: "/srv/app/.carlot/var/carlot.sock",
	}
	if err := WritePIDFile(path, info); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	running, got, err := CheckPIDFile(path)
	if err != nil {
		t.Fatalf("CheckPIDFile: %v", err)
	}
	if !running {
		t.Error("current process reported as not running")
	}
	if got.Dir != info.Dir || !got.StartedAt.Equal(info.StartedAt) {
		t.Errorf("got %+v, want %+v", got, info)
	}

	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Errorf("second RemovePIDFile: %v", err)
	}
}

func TestCheckPIDFile_Missing(t *testing.T) {
	running, info, err := CheckPIDFile(filepath.Join(t.TempDir(), "none.pid"))
	if err != nil || running || info.PID != 0 {
		t.Errorf("CheckPIDFile(missing) = %v, %+v, %v", running, info, err)
	}
}

func TestCheckPIDFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(path, []byte("12345\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := CheckPIDFile(path); err == nil {
		t.Error("expected error for non-JSON PID file")
	}
}

func TestSameDir(t *testing.T) {
	if SameDir(PIDInfo{}, "/a") {
		t.Error("empty dir should never match")
	}
	if !SameDir(PIDInfo{Dir: "/a/b/"}, "/a/b") {
		t.Error("cleaned paths should match")
	}
	if SameDir(PIDInfo{Dir: "/a/b"}, "/a/c") {
		t.Error("different dirs should not match")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(0) || isProcessRunning(-1) {
		t.Error("non-positive PIDs should not be running")
	}
}
