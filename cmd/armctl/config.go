package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/armlink/internal/config"
)

// overrideConfig is a flat per-host file layered over the shared client config.
type overrideConfig struct {
	Address            string `toml:"address"`
	UDPAddress         string `toml:"udp_address"`
	ResponseTimeout    string `toml:"response_timeout"`
	StateTimeout       string `toml:"state_timeout"`
	StateTimeoutMS     int64  `toml:"state_timeout_ms"`
	RealtimePolicy     string `toml:"realtime_policy"`
	MaxMissedCycles    int64  `toml:"max_missed_cycles"`
	StateLogSize       int    `toml:"statelog_size"`
	DiagnosticsEnabled bool   `toml:"diagnostics_enabled"`
	DiagnosticsAddr    string `toml:"diagnostics_addr"`
}

// loadConfig resolves file, then override, then environment.
func loadConfig(path, overridePath string) (config.ClientConfig, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if strings.TrimSpace(overridePath) != "" {
		if err := applyOverride(&cfg, overridePath); err != nil {
			return config.ClientConfig{}, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.ClientConfig{}, err
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

func applyOverride(cfg *config.ClientConfig, path string) error {
	var raw overrideConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load armctl override: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("armctl override: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Robot.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("udp_address") {
		cfg.Robot.UDPAddress = strings.TrimSpace(raw.UDPAddress)
	}

	if meta.IsDefined("response_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ResponseTimeout))
		if err != nil {
			return fmt.Errorf("parse response_timeout: %w", err)
		}
		cfg.Robot.ResponseTimeout = config.Duration(d)
	}

	if meta.IsDefined("state_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StateTimeout))
		if err != nil {
			return fmt.Errorf("parse state_timeout: %w", err)
		}
		cfg.Robot.StateTimeout = config.Duration(d)
	}

	if meta.IsDefined("state_timeout_ms") {
		cfg.Robot.StateTimeout = config.Duration(time.Duration(raw.StateTimeoutMS) * time.Millisecond)
	}

	if meta.IsDefined("realtime_policy") {
		cfg.Realtime.Policy = strings.TrimSpace(raw.RealtimePolicy)
	}

	if meta.IsDefined("max_missed_cycles") {
		if raw.MaxMissedCycles < 0 {
			return fmt.Errorf("max_missed_cycles must be >= 0")
		}
		cfg.Realtime.MaxMissedCycles = uint64(raw.MaxMissedCycles)
	}

	if meta.IsDefined("statelog_size") {
		cfg.StateLog.Size = raw.StateLogSize
	}

	if meta.IsDefined("diagnostics_enabled") {
		cfg.Diagnostics.Enabled = raw.DiagnosticsEnabled
	}

	if meta.IsDefined("diagnostics_addr") {
		cfg.Diagnostics.Addr = strings.TrimSpace(raw.DiagnosticsAddr)
	}

	return nil
}
