package agent

import (
	"github.com/bitxel/starbeam-agent/internal/config"
	"github.com/bitxel/starbeam-agent/internal/identity"
	"github.com/bitxel/starbeam-agent/internal/protocol"
)

// capabilitiesFromConfig builds the wire Capabilities from the on-disk
// config, falling back to identity.DefaultCapabilities' codec lists when
// the config doesn't specify its own (SPEC_FULL.md §3 "Registration
// capability defaults").
func capabilitiesFromConfig(cfg config.CapabilitiesConfig) protocol.Capabilities {
	caps := identity.DefaultCapabilities()

	if len(cfg.VideoCodecs) > 0 {
		caps.VideoCodecs = cfg.VideoCodecs
	}
	if len(cfg.AudioCodecs) > 0 {
		caps.AudioCodecs = cfg.AudioCodecs
	}
	if cfg.MaxWidth > 0 {
		w := cfg.MaxWidth
		caps.MaxWidth = &w
	}
	if cfg.MaxHeight > 0 {
		h := cfg.MaxHeight
		caps.MaxHeight = &h
	}
	if cfg.MaxFPS > 0 {
		f := cfg.MaxFPS
		caps.MaxFPS = &f
	}
	return caps
}
