package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// Duration decodes "250ms"-style strings from TOML and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ClientConfig struct {
	Robot       RobotConfig       `toml:"robot"`
	Realtime    RealtimeConfig    `toml:"realtime"`
	StateLog    StateLogConfig    `toml:"statelog"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

type RobotConfig struct {
	Address            string   `toml:"address" env:"ARMLINK_ROBOT_ADDRESS"`
	UDPAddress         string   `toml:"udp_address" env:"ARMLINK_UDP_ADDRESS"`
	Version            uint16   `toml:"version" env:"ARMLINK_PROTOCOL_VERSION"`
	ConnectTimeout     Duration `toml:"connect_timeout" env:"ARMLINK_CONNECT_TIMEOUT"`
	HandshakeTimeout   Duration `toml:"handshake_timeout" env:"ARMLINK_HANDSHAKE_TIMEOUT"`
	ResponseTimeout    Duration `toml:"response_timeout" env:"ARMLINK_RESPONSE_TIMEOUT"`
	StateTimeout       Duration `toml:"state_timeout" env:"ARMLINK_STATE_TIMEOUT"`
	MaxConnectAttempts int      `toml:"max_connect_attempts" env:"ARMLINK_MAX_CONNECT_ATTEMPTS"`
}

type RealtimeConfig struct {
	Policy          string `toml:"policy" env:"ARMLINK_REALTIME_POLICY"`
	MaxMissedCycles uint64 `toml:"max_missed_cycles" env:"ARMLINK_MAX_MISSED_CYCLES"`
	MaxWaitCycles   int    `toml:"max_wait_cycles" env:"ARMLINK_MAX_WAIT_CYCLES"`
}

type StateLogConfig struct {
	Size int `toml:"size" env:"ARMLINK_STATELOG_SIZE"`
}

type DiagnosticsConfig struct {
	Enabled     bool     `toml:"enabled" env:"ARMLINK_DIAGNOSTICS_ENABLED"`
	Addr        string   `toml:"addr" env:"ARMLINK_DIAGNOSTICS_ADDR"`
	CorsOrigins []string `toml:"cors_origins" env:"ARMLINK_DIAGNOSTICS_CORS_ORIGINS"`
}

func Default() ClientConfig {
	return ClientConfig{
		Robot: RobotConfig{
			UDPAddress:         "0.0.0.0:0",
			Version:            session.ProtocolVersion,
			ConnectTimeout:     Duration(5 * time.Second),
			HandshakeTimeout:   Duration(5 * time.Second),
			ResponseTimeout:    Duration(30 * time.Second),
			StateTimeout:       Duration(time.Second),
			MaxConnectAttempts: 3,
		},
		Realtime: RealtimeConfig{
			Policy:        "enforce",
			MaxWaitCycles: 10000,
		},
		StateLog: StateLogConfig{Size: 1000},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9200",
		},
	}
}

// LoadClientConfig reads path over Default, then applies environment overrides.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return ClientConfig{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadFile reads path over Default without env overrides or validation.
func LoadFile(path string) (ClientConfig, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields whose ARMLINK_* variable is set.
func ApplyEnv(cfg *ClientConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config env parse failed: %w", err)
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Robot.Address) == "" {
		return errors.New("robot config missing address")
	}
	if _, _, err := net.SplitHostPort(cfg.Robot.Address); err != nil {
		return fmt.Errorf("robot address invalid: %w", err)
	}
	if cfg.Robot.Version == 0 {
		return errors.New("robot config version must be non-zero")
	}
	if cfg.Robot.MaxConnectAttempts < 0 {
		return errors.New("robot config max_connect_attempts must be >= 0")
	}
	switch strings.TrimSpace(cfg.Realtime.Policy) {
	case "", "enforce", "ignore":
	default:
		return fmt.Errorf("realtime policy invalid: %q", cfg.Realtime.Policy)
	}
	if cfg.StateLog.Size < 0 {
		return errors.New("statelog size must be >= 0")
	}
	if cfg.Diagnostics.Enabled && strings.TrimSpace(cfg.Diagnostics.Addr) == "" {
		return errors.New("diagnostics config missing addr")
	}
	return nil
}
