package config

import (
	"strings"

	"github.com/danmuck/armlink/internal/network"
	"github.com/danmuck/armlink/internal/robot"
)

// NetworkConfig maps the file schema onto the transport configuration.
func NetworkConfig(cfg ClientConfig) network.Config {
	out := network.DefaultConfig()
	out.Address = strings.TrimSpace(cfg.Robot.Address)
	if v := strings.TrimSpace(cfg.Robot.UDPAddress); v != "" {
		out.UDPAddress = v
	}
	if cfg.Robot.Version != 0 {
		out.Version = cfg.Robot.Version
	}
	if d := cfg.Robot.ConnectTimeout.Std(); d > 0 {
		out.Session.ConnectTimeout = d
	}
	if d := cfg.Robot.HandshakeTimeout.Std(); d > 0 {
		out.Session.HandshakeTimeout = d
	}
	if d := cfg.Robot.ResponseTimeout.Std(); d > 0 {
		out.Session.ResponseTimeout = d
	}
	if d := cfg.Robot.StateTimeout.Std(); d > 0 {
		out.Session.StateTimeout = d
	}
	if cfg.Robot.MaxConnectAttempts > 0 {
		out.Session.MaxConnectAttempts = cfg.Robot.MaxConnectAttempts
	}
	return out
}

// RobotOptions maps the realtime section. The state logger is left for the caller.
func RobotOptions(cfg ClientConfig) (robot.Options, error) {
	opts := robot.DefaultOptions()
	policy, err := robot.ParsePolicy(strings.TrimSpace(cfg.Realtime.Policy))
	if err != nil {
		return robot.Options{}, err
	}
	opts.Realtime = robot.RealtimeConfig{
		Policy:          policy,
		MaxMissedCycles: cfg.Realtime.MaxMissedCycles,
	}
	if cfg.Realtime.MaxWaitCycles > 0 {
		opts.MaxWaitCycles = cfg.Realtime.MaxWaitCycles
	}
	return opts, nil
}
