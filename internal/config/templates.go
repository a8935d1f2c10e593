package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "bench":
		return benchTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// CheckTemplate parses a template against the schema without env overrides.
func CheckTemplate(kind string) (ClientConfig, error) {
	template, err := Template(kind)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg := Default()
	dec := toml.NewDecoder(strings.NewReader(template))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("template %s invalid: %w", kind, err)
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("template %s invalid: %w", kind, err)
	}
	return cfg, nil
}

const clientTemplate = `[robot]
address = "172.16.0.2:1337"
udp_address = "0.0.0.0:0"
version = 5
connect_timeout = "5s"
handshake_timeout = "5s"
response_timeout = "30s"
state_timeout = "1s"
max_connect_attempts = 3

[realtime]
policy = "enforce"
max_missed_cycles = 0
max_wait_cycles = 10000

[statelog]
size = 1000

[diagnostics]
enabled = true
addr = "127.0.0.1:9200"
cors_origins = ["http://localhost:3000"]
`

// benchTemplate targets a non-realtime host talking to a simulator.
const benchTemplate = `[robot]
address = "127.0.0.1:1337"
response_timeout = "10s"
state_timeout = "2s"

[realtime]
policy = "ignore"
max_missed_cycles = 20

[statelog]
size = 200

[diagnostics]
enabled = true
addr = ":9200"
cors_origins = ["*"]
`
