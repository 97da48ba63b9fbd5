package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"CARLOT_WS_ADDR", "CARLOT_REQUEST_TIMEOUT", "CARLOT_LOCAL_ONLY", "CARLOT_ARCHIVE_ENABLED",
	"CARLOT_NOTIFY_WORKERS", "CARLOT_NOTIFY_QUEUE_SIZE", "CARLOT_NOTIFY_MAX_ATTEMPTS", "CARLOT_NOTIFY_INITIAL_BACKOFF",
	"CARLOT_RATE_LIMIT_ENABLED", "CARLOT_RATE_LIMIT_MPS", "CARLOT_RATE_LIMIT_BURST", "CARLOT_SESSION_TTL",
	"CARLOT_TS_ENABLED", "CARLOT_TS_HOSTNAME", "CARLOT_TS_PORT", "CARLOT_TS_AUTHKEY", "CARLOT_TS_STATE_DIR",
	"CARLOT_TAILSCALE_CONTROL_URL", "CARLOT_BACKUP_DIR",
}

// clearEnv blanks every CARLOT_* variable; empty values are ignored by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.WSAddr != DefaultWSAddr {
		t.Errorf("WSAddr = %q, want %q", cfg.Daemon.WSAddr, DefaultWSAddr)
	}
	if cfg.Daemon.RequestTimeout.Duration != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.Daemon.RequestTimeout, DefaultRequestTimeout)
	}
	if !cfg.Archive.Enabled {
		t.Error("expected archive enabled by default")
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Burst != DefaultBurst {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Notify.Workers != DefaultNotifyWorkers || cfg.Notify.MaxAttempts != DefaultNotifyMaxAttempts {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if cfg.Tailscale.Enabled {
		t.Error("expected tailscale disabled by default")
	}
	if want := filepath.Join(dir, "var", "tsnet"); cfg.Tailscale.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.Tailscale.StateDir, want)
	}
	if cfg.Tailscale.Port != DefaultTailscalePort {
		t.Errorf("Port = %d, want %d", cfg.Tailscale.Port, DefaultTailscalePort)
	}
	if want := filepath.Join(dir, "backups"); cfg.Backup.Dir != want {
		t.Errorf("Backup.Dir = %q, want %q", cfg.Backup.Dir, want)
	}
	if cfg.Backup.Daily != DefaultBackupDaily || cfg.Backup.Monthly != DefaultBackupMonthly {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json"), `{
		"daemon": {"ws_addr": "127.0.0.1:7000", "request_timeout": "3s"},
		"archive": {"enabled": false},
		"notify": {"workers": 4, "initial_backoff": 0.5},
		"rate_limit": {"messages_per_second": 2.5}
	}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.WSAddr != "127.0.0.1:7000" {
		t.Errorf("WSAddr = %q", cfg.Daemon.WSAddr)
	}
	if cfg.Daemon.RequestTimeout.Duration != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.Daemon.RequestTimeout)
	}
	if cfg.Archive.Enabled {
		t.Error("expected archive disabled by config file")
	}
	if cfg.Notify.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Notify.Workers)
	}
	if cfg.Notify.InitialBackoff.Duration != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", cfg.Notify.InitialBackoff)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Notify.QueueSize != DefaultNotifyQueueSize {
		t.Errorf("QueueSize = %d, want %d", cfg.Notify.QueueSize, DefaultNotifyQueueSize)
	}
	if cfg.RateLimit.MessagesPerSecond != 2.5 || cfg.RateLimit.Burst != DefaultBurst {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json"), `{"daemon": {"ws_addr": "file:1"}, "notify": {"workers": 3}}`)
	writeFile(t, filepath.Join(dir, ".env"), "CARLOT_WS_ADDR=dotenv:2\nCARLOT_NOTIFY_WORKERS=5\nCARLOT_RATE_LIMIT_BURST=9\n")
	t.Setenv("CARLOT_WS_ADDR", "env:3")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.WSAddr != "env:3" {
		t.Errorf("WSAddr = %q, want env to win", cfg.Daemon.WSAddr)
	}
	if cfg.Notify.Workers != 5 {
		t.Errorf("Workers = %d, want .env to beat config.json", cfg.Notify.Workers)
	}
	if cfg.RateLimit.Burst != 9 {
		t.Errorf("Burst = %d, want 9", cfg.RateLimit.Burst)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CARLOT_REQUEST_TIMEOUT", "750ms")
	t.Setenv("CARLOT_ARCHIVE_ENABLED", "false")
	t.Setenv("CARLOT_RATE_LIMIT_ENABLED", "0")
	t.Setenv("CARLOT_LOCAL_ONLY", "yes")
	t.Setenv("CARLOT_SESSION_TTL", "1h")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.RequestTimeout.Duration != 750*time.Millisecond {
		t.Errorf("RequestTimeout = %v", cfg.Daemon.RequestTimeout)
	}
	if cfg.Archive.Enabled || cfg.RateLimit.Enabled {
		t.Errorf("Archive.Enabled = %v, RateLimit.Enabled = %v; want both false", cfg.Archive.Enabled, cfg.RateLimit.Enabled)
	}
	if !cfg.Daemon.LocalOnly {
		t.Error("expected LocalOnly")
	}
	if cfg.Session.TTL.Duration != time.Hour {
		t.Errorf("TTL = %v, want 1h", cfg.Session.TTL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad json", file: `{"daemon": `, wantErr: "parse"},
		{name: "bad duration", file: `{"daemon": {"request_timeout": "soon"}}`, wantErr: "invalid duration"},
		{name: "bad env integer", env: map[string]string{"CARLOT_NOTIFY_WORKERS": "many"}, wantErr: "CARLOT_NOTIFY_WORKERS"},
		{name: "bad env bool", env: map[string]string{"CARLOT_ARCHIVE_ENABLED": "maybe"}, wantErr: "invalid boolean"},
		{name: "zero workers", file: `{"notify": {"workers": 0}}`, wantErr: "notify.workers"},
		{name: "zero rate", file: `{"rate_limit": {"enabled": true, "messages_per_second": 0}}`, wantErr: "messages_per_second"},
		{name: "negative retention", file: `{"backup": {"weekly": -2}}`, wantErr: "backup retention"},
		{name: "negative timeout", env: map[string]string{"CARLOT_REQUEST_TIMEOUT": "-1s"}, wantErr: "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, "config.json"), tt.file)
			}
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration{90 * time.Second})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("Marshal = %s, want \"1m30s\"", data)
	}
}

func TestWSDisabled(t *testing.T) {
	cfg := Default(t.TempDir())
	if cfg.WSDisabled() {
		t.Error("default config should enable WebSocket")
	}
	cfg.Daemon.WSAddr = "off"
	if !cfg.WSDisabled() {
		t.Error("ws_addr=off should disable WebSocket")
	}
}
