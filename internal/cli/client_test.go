package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leonletto/carlot/internal/paths"
)

func TestConnectWithoutDaemon(t *testing.T) {
	_, err := Connect(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "daemon is not running") {
		t.Fatalf("Connect error = %v, want 'daemon is not running'", err)
	}
}

func TestResolveToken(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARLOT_SESSION_TOKEN", "")

	if _, err := ResolveToken(dir, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("no token: err = %v, want ErrNoSession", err)
	}

	if err := SaveToken(dir, "from-file"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(paths.SessionPath(dir))
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file permissions = %o, want 600", perm)
	}

	tests := []struct {
		name string
		env  string
		flag string
		want string
	}{
		{"file", "", "", "from-file"},
		{"env beats file", "from-env", "", "from-env"},
		{"flag beats env", "from-env", "from-flag", "from-flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CARLOT_SESSION_TOKEN", tt.env)
			got, err := ResolveToken(dir, tt.flag)
			if err != nil {
				t.Fatalf("ResolveToken: %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}

	if err := ClearToken(dir); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if err := ClearToken(dir); err != nil {
		t.Fatalf("second ClearToken: %v", err)
	}
	if _, err := ResolveToken(dir, ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("after clear: err = %v, want ErrNoSession", err)
	}
}

func TestResolveCarlotDir(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	// No .carlot anywhere: fall back to the start path.
	got, err := ResolveCarlotDir(nested)
	if err != nil {
		t.Fatalf("ResolveCarlotDir: %v", err)
	}
	if got != filepath.Join(nested, paths.DirName) {
		t.Errorf("fallback = %s", got)
	}

	if err := os.Mkdir(filepath.Join(root, paths.DirName), 0700); err != nil {
		t.Fatal(err)
	}
	got, err = ResolveCarlotDir(nested)
	if err != nil {
		t.Fatalf("ResolveCarlotDir: %v", err)
	}
	if got != filepath.Join(root, paths.DirName) {
		t.Errorf("found = %s, want %s", got, filepath.Join(root, paths.DirName))
	}

	// The daemon is started with the resolved directory itself.
	fresh := filepath.Join(t.TempDir(), paths.DirName)
	got, err = ResolveCarlotDir(fresh)
	if err != nil {
		t.Fatalf("ResolveCarlotDir: %v", err)
	}
	if got != fresh {
		t.Errorf("explicit dir = %s, want %s", got, fresh)
	}
}

func TestLoginLogout(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	t.Setenv("CARLOT_SESSION_TOKEN", "")

	// newSeeded logged the buyer in last.
	token, err := ResolveToken(s.dir, "")
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if token != s.tokens[s.buyer] {
		t.Errorf("saved token is not the last login")
	}

	if err := Logout(ctx, s.client, s.dir, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := ResolveToken(s.dir, ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("token still saved after logout")
	}
	if _, err := Inbox(ctx, s.client, InboxOptions{Token: token}); err == nil {
		t.Error("revoked token still accepted")
	}

	if _, err := Login(ctx, s.client, s.dir, "not-a-uuid"); err == nil {
		t.Error("Login with a malformed id should fail")
	}
}

func TestDaemonStatusNotRunning(t *testing.T) {
	result, err := DaemonStatus(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if result.Running || result.Status != "stopped" {
		t.Errorf("status = %+v", result)
	}
	if got := FormatDaemonStatus(result); got != "Daemon:   not running\n" {
		t.Errorf("FormatDaemonStatus = %q", got)
	}
}
