package config

import (
	"fmt"
	"path/filepath"

	"github.com/leonletto/carlot/internal/paths"
)

// DefaultTailscalePort is the default port for the tsnet WebSocket listener.
const DefaultTailscalePort = 9100

// TailscaleConfig holds configuration for the optional tsnet listener that
// serves the WebSocket RPC endpoint on a tailnet.
type TailscaleConfig struct {
	Enabled    bool   `json:"enabled"`
	Hostname   string `json:"hostname"`
	Port       int    `json:"port"`
	StateDir   string `json:"state_dir"`
	AuthKey    string `json:"auth_key"`
	ControlURL string `json:"control_url"` // empty = Tailscale SaaS; set for Headscale
}

func defaultTailscale(carlotDir string) TailscaleConfig {
	return TailscaleConfig{
		Port:     DefaultTailscalePort,
		StateDir: filepath.Join(paths.VarDir(carlotDir), "tsnet"),
	}
}

// applyEnv reads:
//   - CARLOT_TS_ENABLED: "true"/"1" to enable
//   - CARLOT_TS_HOSTNAME: tsnet hostname
//   - CARLOT_TS_PORT: listener port
//   - CARLOT_TS_AUTHKEY: Tailscale auth key
//   - CARLOT_TS_STATE_DIR: state directory
//   - CARLOT_TAILSCALE_CONTROL_URL: control plane URL (Headscale)
func (c *TailscaleConfig) applyEnv(e envSource) error {
	if err := e.boolean("CARLOT_TS_ENABLED", &c.Enabled); err != nil {
		return err
	}
	if err := e.integer("CARLOT_TS_PORT", &c.Port); err != nil {
		return err
	}
	e.str("CARLOT_TS_HOSTNAME", &c.Hostname)
	e.str("CARLOT_TS_AUTHKEY", &c.AuthKey)
	e.str("CARLOT_TS_STATE_DIR", &c.StateDir)
	e.str("CARLOT_TAILSCALE_CONTROL_URL", &c.ControlURL)
	return nil
}

// Validate checks that the configuration is valid when enabled.
// Returns nil if disabled or valid.
func (c *TailscaleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("tailscale.port must be between 1 and 65535, got %d", c.Port)
	}
	if c.AuthKey == "" {
		return fmt.Errorf("tailscale.auth_key (CARLOT_TS_AUTHKEY) is required when tailscale is enabled")
	}
	return nil
}
