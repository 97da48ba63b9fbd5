// Package config loads daemon settings.
//
// Resolution order, lowest to highest: built-in defaults, .carlot/config.json,
// .carlot/.env, process environment (CARLOT_*), then command-line flags which
// callers apply to the returned Config.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/leonletto/carlot/internal/paths"
)

// Defaults.
const (
	DefaultWSAddr            = "localhost:9999"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultNotifyWorkers     = 2
	DefaultNotifyQueueSize   = 256
	DefaultNotifyMaxAttempts = 5
	DefaultNotifyBackoff     = 200 * time.Millisecond
	DefaultMessagesPerSecond = 1.0
	DefaultBurst             = 5
	DefaultSessionTTL        = 30 * 24 * time.Hour
	DefaultBackupDaily       = 7
	DefaultBackupWeekly      = 4
	DefaultBackupMonthly     = 6
)

// Duration is a time.Duration that reads and writes JSON as "10s" strings.
// Bare numbers are read as seconds.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// Config is the resolved daemon configuration.
type Config struct {
	Daemon    DaemonConfig    `json:"daemon"`
	Archive   ArchiveConfig   `json:"archive"`
	Notify    NotifyConfig    `json:"notify"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Session   SessionConfig   `json:"session"`
	Backup    BackupConfig    `json:"backup"`
	Tailscale TailscaleConfig `json:"tailscale"`
}

// DaemonConfig holds listener settings.
type DaemonConfig struct {
	// WSAddr is the WebSocket listen address. "off" disables the listener;
	// port "auto" or "0" picks a free port.
	WSAddr         string   `json:"ws_addr"`
	RequestTimeout Duration `json:"request_timeout"`
	// LocalOnly keeps the daemon off the tailnet even when tailscale is
	// enabled.
	LocalOnly bool `json:"local_only"`
}

// ArchiveConfig toggles the archive overlay.
type ArchiveConfig struct {
	Enabled bool `json:"enabled"`
}

// NotifyConfig tunes the notification queue.
type NotifyConfig struct {
	Workers        int      `json:"workers"`
	QueueSize      int      `json:"queue_size"`
	MaxAttempts    int      `json:"max_attempts"`
	InitialBackoff Duration `json:"initial_backoff"`
}

// RateLimitConfig configures the per-user send limiter.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	Burst             int     `json:"burst"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	TTL Duration `json:"ttl"`
}

// BackupConfig places database snapshots and sets their GFS retention.
// Monthly -1 keeps one snapshot per month forever.
type BackupConfig struct {
	Dir     string `json:"dir"`
	Daily   int    `json:"daily"`
	Weekly  int    `json:"weekly"`
	Monthly int    `json:"monthly"`
}

// Default returns the built-in configuration for carlotDir.
func Default(carlotDir string) *Config {
	return &Config{
		Daemon: DaemonConfig{
			WSAddr:         DefaultWSAddr,
			RequestTimeout: Duration{DefaultRequestTimeout},
		},
		Archive: ArchiveConfig{Enabled: true},
		Notify: NotifyConfig{
			Workers:        DefaultNotifyWorkers,
			QueueSize:      DefaultNotifyQueueSize,
			MaxAttempts:    DefaultNotifyMaxAttempts,
			InitialBackoff: Duration{DefaultNotifyBackoff},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: DefaultMessagesPerSecond,
			Burst:             DefaultBurst,
		},
		Session: SessionConfig{TTL: Duration{DefaultSessionTTL}},
		Backup: BackupConfig{
			Dir:     filepath.Join(carlotDir, "backups"),
			Daily:   DefaultBackupDaily,
			Weekly:  DefaultBackupWeekly,
			Monthly: DefaultBackupMonthly,
		},
		Tailscale: defaultTailscale(carlotDir),
	}
}

// Load resolves the configuration for the given .carlot/ directory.
// A missing config.json or .env is not an error.
func Load(carlotDir string) (*Config, error) {
	cfg := Default(carlotDir)

	data, err := os.ReadFile(paths.ConfigPath(carlotDir)) //nolint:gosec // G304 - path inside .carlot/
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", paths.ConfigPath(carlotDir), err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	dotenv, err := godotenv.Read(paths.EnvPath(carlotDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	env := envSource{dotenv: dotenv}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envSource looks a key up in the process environment first, then in the
// values read from .env.
type envSource struct {
	dotenv map[string]string
}

func (e envSource) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok && v != ""
}

func (e envSource) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e envSource) boolean(key string, dst *bool) error {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return nil
}

func (e envSource) integer(key string, dst *int) error {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func (e envSource) float(key string, dst *float64) error {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, v)
	}
	*dst = f
	return nil
}

func (e envSource) duration(key string, dst *Duration) error {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	dst.Duration = d
	return nil
}

// applyEnv overlays CARLOT_* variables.
//
// Environment variables:
//   - CARLOT_WS_ADDR, CARLOT_REQUEST_TIMEOUT, CARLOT_LOCAL_ONLY
//   - CARLOT_ARCHIVE_ENABLED
//   - CARLOT_NOTIFY_WORKERS, CARLOT_NOTIFY_QUEUE_SIZE,
//     CARLOT_NOTIFY_MAX_ATTEMPTS, CARLOT_NOTIFY_INITIAL_BACKOFF
//   - CARLOT_RATE_LIMIT_ENABLED, CARLOT_RATE_LIMIT_MPS, CARLOT_RATE_LIMIT_BURST
//   - CARLOT_SESSION_TTL
//   - CARLOT_BACKUP_DIR
//   - CARLOT_TS_* (see TailscaleConfig.applyEnv)
func (c *Config) applyEnv(e envSource) error {
	e.str("CARLOT_WS_ADDR", &c.Daemon.WSAddr)
	e.str("CARLOT_BACKUP_DIR", &c.Backup.Dir)

	for _, err := range []error{
		e.duration("CARLOT_REQUEST_TIMEOUT", &c.Daemon.RequestTimeout),
		e.boolean("CARLOT_LOCAL_ONLY", &c.Daemon.LocalOnly),
		e.boolean("CARLOT_ARCHIVE_ENABLED", &c.Archive.Enabled),
		e.integer("CARLOT_NOTIFY_WORKERS", &c.Notify.Workers),
		e.integer("CARLOT_NOTIFY_QUEUE_SIZE", &c.Notify.QueueSize),
		e.integer("CARLOT_NOTIFY_MAX_ATTEMPTS", &c.Notify.MaxAttempts),
		e.duration("CARLOT_NOTIFY_INITIAL_BACKOFF", &c.Notify.InitialBackoff),
		e.boolean("CARLOT_RATE_LIMIT_ENABLED", &c.RateLimit.Enabled),
		e.float("CARLOT_RATE_LIMIT_MPS", &c.RateLimit.MessagesPerSecond),
		e.integer("CARLOT_RATE_LIMIT_BURST", &c.RateLimit.Burst),
		e.duration("CARLOT_SESSION_TTL", &c.Session.TTL),
		c.Tailscale.applyEnv(e),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Daemon.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("daemon.request_timeout must be positive, got %s", c.Daemon.RequestTimeout)
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify.workers must be at least 1, got %d", c.Notify.Workers)
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify.queue_size must be at least 1, got %d", c.Notify.QueueSize)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1, got %d", c.Notify.MaxAttempts)
	}
	if c.Notify.InitialBackoff.Duration <= 0 {
		return fmt.Errorf("notify.initial_backoff must be positive, got %s", c.Notify.InitialBackoff)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limit.messages_per_second must be positive, got %g", c.RateLimit.MessagesPerSecond)
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
		}
	}
	if c.Session.TTL.Duration <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Backup.Daily < 0 || c.Backup.Weekly < 0 || c.Backup.Monthly < -1 {
		return fmt.Errorf("backup retention counts must not be negative (monthly may be -1)")
	}
	return c.Tailscale.Validate()
}

// WSDisabled reports whether the WebSocket listener is turned off.
func (c *Config) WSDisabled() bool {
	return c.Daemon.WSAddr == "" || c.Daemon.WSAddr == "off"
}
