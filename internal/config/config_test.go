package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/armlink/internal/robot"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "armlink.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClientConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "[robot]\naddress = \"10.0.0.2:1337\"\n")
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Robot.Address != "10.0.0.2:1337" {
		t.Fatalf("address: got=%q", cfg.Robot.Address)
	}
	if cfg.Robot.ResponseTimeout != def.Robot.ResponseTimeout || cfg.StateLog.Size != def.StateLog.Size {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Realtime.Policy != "enforce" {
		t.Fatalf("policy: got=%q", cfg.Realtime.Policy)
	}
}

func TestLoadClientConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `[robot]
address = "10.0.0.2:1337"
response_timeout = "250ms"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Robot.ResponseTimeout.Std(); got != 250*time.Millisecond {
		t.Fatalf("response_timeout: got=%s", got)
	}
	if _, err := LoadClientConfig(writeConfig(t, "[robot]\naddress = \"a:1\"\nstate_timeout = \"soon\"\n")); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ARMLINK_ROBOT_ADDRESS", "192.168.1.5:1337")
	t.Setenv("ARMLINK_REALTIME_POLICY", "ignore")
	t.Setenv("ARMLINK_STATE_TIMEOUT", "2s")
	t.Setenv("ARMLINK_DIAGNOSTICS_CORS_ORIGINS", "http://a,http://b")
	path := writeConfig(t, "[robot]\naddress = \"10.0.0.2:1337\"\n")
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Robot.Address != "192.168.1.5:1337" {
		t.Fatalf("address: got=%q", cfg.Robot.Address)
	}
	if cfg.Realtime.Policy != "ignore" || cfg.Robot.StateTimeout.Std() != 2*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Diagnostics.CorsOrigins) != 2 {
		t.Fatalf("cors origins: %v", cfg.Diagnostics.CorsOrigins)
	}
}

func TestValidateClientConfig(t *testing.T) {
	cases := map[string]func(*ClientConfig){
		"missing address": func(c *ClientConfig) { c.Robot.Address = "" },
		"bad address":     func(c *ClientConfig) { c.Robot.Address = "no-port" },
		"zero version":    func(c *ClientConfig) { c.Robot.Version = 0 },
		"bad policy":      func(c *ClientConfig) { c.Realtime.Policy = "sometimes" },
		"negative log":    func(c *ClientConfig) { c.StateLog.Size = -1 },
		"diagnostics":     func(c *ClientConfig) { c.Diagnostics.Addr = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Robot.Address = "10.0.0.2:1337"
			mutate(&cfg)
			if err := ValidateClientConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConvertRealtime(t *testing.T) {
	cfg := Default()
	cfg.Robot.Address = "10.0.0.2:1337"
	cfg.Realtime.Policy = "ignore"
	opts, err := RobotOptions(cfg)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Realtime.Policy != robot.PolicyIgnore || opts.MaxWaitCycles != 10000 {
		t.Fatalf("options: %+v", opts)
	}
	netCfg := NetworkConfig(cfg)
	if netCfg.Address != cfg.Robot.Address || netCfg.Session.ResponseTimeout != 30*time.Second {
		t.Fatalf("network config: %+v", netCfg)
	}
}

func TestTemplatesParse(t *testing.T) {
	for _, kind := range []string{"client", "bench"} {
		if _, err := CheckTemplate(kind); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
	if _, err := Template("ghost"); err == nil || !strings.Contains(err.Error(), "unknown config kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armlink.toml")
	if err := WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, "client", false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "bench", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load written template: %v", err)
	}
	if cfg.Realtime.Policy != "ignore" {
		t.Fatalf("policy: got=%q", cfg.Realtime.Policy)
	}
}
