package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// authKeyEnvVar lets the auth key be supplied out-of-band instead of
// committed to the YAML file on disk.
const authKeyEnvVar = "STARBEAM_AUTH_KEY"

// Load reads path, merges it over Default(), applies the auth-key
// environment override, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if key := os.Getenv(authKeyEnvVar); key != "" {
		cfg.Starbeam.AuthKey = key
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the agent impossible to
// run correctly. It is intentionally permissive about anything that only
// affects optional features (metrics, TLS skip-verify).
func Validate(cfg Config) error {
	if !cfg.Starbeam.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Starbeam.ServerURL) == "" {
		return fmt.Errorf("config: starbeam.server_url is required when starbeam.enabled is true")
	}
	if strings.TrimSpace(cfg.Starbeam.AuthKey) == "" {
		return fmt.Errorf("config: starbeam.auth_key is required when starbeam.enabled is true")
	}
	if cfg.Starbeam.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("config: starbeam.reconnect_interval_seconds must be positive")
	}
	if cfg.Sunshine.Port <= 0 || cfg.Sunshine.Port > 65535 {
		return fmt.Errorf("config: sunshine.port %d out of range", cfg.Sunshine.Port)
	}
	return nil
}
