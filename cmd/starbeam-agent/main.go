// Command starbeam-agent is the demo CLI entry point for the relay edge
// agent: it wires config -> logging -> metrics -> lifecycle facade, with
// OS signal handling for a clean shutdown (SPEC_FULL.md §2, row 10).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitxel/starbeam-agent/internal/agent"
	"github.com/bitxel/starbeam-agent/internal/config"
	"github.com/bitxel/starbeam-agent/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "starbeam-agent.yaml", "Path to the agent configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "starbeam-agent: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.Logging)

	if !cfg.Starbeam.Enabled {
		logger.Info("starbeam: disabled in config, exiting")
		return 0
	}

	if err := agent.Initialize(cfg, logger); err != nil {
		logger.WithError(err).Error("starbeam: failed to initialize")
		return 1
	}
	defer agent.Shutdown()

	logger.WithField("server_url", cfg.Starbeam.ServerURL).Info("starbeam: agent started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("starbeam: shutting down")
	return 0
}
