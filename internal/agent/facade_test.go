package agent

import (
	"testing"

	"github.com/bitxel/starbeam-agent/internal/config"
)

func TestInitializeDisabledIsANoOp(t *testing.T) {
	cfg := config.Default()
	cfg.Starbeam.Enabled = false

	if err := Initialize(cfg, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsEnabled() {
		t.Fatalf("expected IsEnabled() false for a disabled config")
	}
	Shutdown() // must be a harmless no-op
}

func TestInitializeTwiceWithoutShutdownErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Starbeam.Enabled = true
	cfg.Starbeam.ServerURL = "ws://127.0.0.1:1" // nothing listening; reconnect loop just spins
	cfg.Starbeam.AuthKey = "k"
	cfg.Starbeam.ReconnectIntervalSeconds = 5

	if err := Initialize(cfg, nil); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	defer Shutdown()

	if !IsEnabled() {
		t.Fatalf("expected IsEnabled() true after Initialize")
	}
	if err := Initialize(cfg, nil); err == nil {
		t.Fatalf("expected second Initialize to error")
	}
}

func TestShutdownStopsTheClient(t *testing.T) {
	cfg := config.Default()
	cfg.Starbeam.Enabled = true
	cfg.Starbeam.ServerURL = "ws://127.0.0.1:1"
	cfg.Starbeam.AuthKey = "k"
	cfg.Starbeam.ReconnectIntervalSeconds = 5

	if err := Initialize(cfg, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Shutdown()
	if IsEnabled() {
		t.Fatalf("expected IsEnabled() false after Shutdown")
	}
}
