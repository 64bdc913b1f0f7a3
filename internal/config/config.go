// Package config loads and validates the agent's on-disk configuration,
// the external collaborator named "config.*" throughout spec §6.
package config

import "github.com/bitxel/starbeam-agent/internal/logging"

// Config is the root configuration document (starbeam-agent.yaml).
type Config struct {
	Starbeam StarbeamConfig `yaml:"starbeam"`
	Sunshine SunshineConfig `yaml:"sunshine"`
	NVHTTP   NVHTTPConfig   `yaml:"nvhttp"`
	Logging  logging.Config `yaml:"logging"`
}

// StarbeamConfig holds everything read once at initialize() (spec §6):
// config.starbeam.{enabled, server_url, auth_key, host_id,
// reconnect_interval_seconds}, plus the ambient additions from
// SPEC_FULL.md §4 (TLS toggle, metrics address, capability defaults).
type StarbeamConfig struct {
	Enabled                  bool               `yaml:"enabled"`
	ServerURL                string             `yaml:"server_url"`
	AuthKey                  string             `yaml:"auth_key"`
	HostID                   string             `yaml:"host_id"`
	ReconnectIntervalSeconds int                `yaml:"reconnect_interval_seconds"`
	TLSInsecureSkipVerify    bool               `yaml:"tls_insecure_skip_verify"`
	MetricsAddr              string             `yaml:"metrics_addr"`
	Capabilities             CapabilitiesConfig `yaml:"capabilities"`
}

// CapabilitiesConfig is the on-disk form of protocol.Capabilities.
type CapabilitiesConfig struct {
	MaxWidth    uint32   `yaml:"max_width"`
	MaxHeight   uint32   `yaml:"max_height"`
	MaxFPS      uint32   `yaml:"max_fps"`
	VideoCodecs []string `yaml:"video_codecs"`
	AudioCodecs []string `yaml:"audio_codecs"`
}

// SunshineConfig is read each time a UDP channel is set up
// (config.sunshine.port in spec §6).
type SunshineConfig struct {
	Port int `yaml:"port"`
}

// NVHTTPConfig supplies the display hostname used at registration
// (config.nvhttp.sunshine_name in spec §6).
type NVHTTPConfig struct {
	SunshineName string `yaml:"sunshine_name"`
}

// Default returns the built-in defaults applied before the YAML file is
// parsed, so a partially-specified file still produces a valid Config.
func Default() Config {
	return Config{
		Starbeam: StarbeamConfig{
			Enabled:                  false,
			ReconnectIntervalSeconds: 5,
		},
		Sunshine: SunshineConfig{Port: sunshineDefaultPort},
		Logging:  logging.DefaultConfig(),
	}
}

const sunshineDefaultPort = 47990
