// Package agent is the Lifecycle Facade from spec §4.5: it provides the
// three process-wide entry points (Initialize, Shutdown, IsEnabled),
// constructing the single Control Client and UDP Channel Manager and
// wiring the Bridge and UDP handlers into the client.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitxel/starbeam-agent/internal/bridge"
	"github.com/bitxel/starbeam-agent/internal/config"
	"github.com/bitxel/starbeam-agent/internal/control"
	"github.com/bitxel/starbeam-agent/internal/identity"
	"github.com/bitxel/starbeam-agent/internal/metrics"
	"github.com/bitxel/starbeam-agent/internal/platform"
	"github.com/bitxel/starbeam-agent/internal/protocol"
	"github.com/bitxel/starbeam-agent/internal/sunshine"
	"github.com/bitxel/starbeam-agent/internal/udprelay"
)

// instance is the owned handle behind the package-level singleton. Spec
// §9 calls for modelling the process-wide client/manager as "an owned
// handle inside a lifecycle facade with explicit initialize/shutdown; no
// implicit global initialization" — there is no init() here, every field
// is built inside Initialize.
type instance struct {
	cfg     config.Config
	logger  *logrus.Logger
	client  *control.Client
	manager *udprelay.Manager

	metricsServer *metrics.Server
	cancel        context.CancelFunc
}

var (
	mu      sync.Mutex
	current *instance
)

// Initialize reads cfg once, constructs the Control Client and UDP
// Channel Manager, wires the Bridge (§4.3) and UDP handlers (§4.4) into
// the client, and calls Start (spec §4.5). A no-op, successful call is
// made when cfg.Starbeam.Enabled is false. Calling Initialize twice
// without an intervening Shutdown is an error.
func Initialize(cfg config.Config, logger *logrus.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return fmt.Errorf("agent: already initialized")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if !cfg.Starbeam.Enabled {
		return nil
	}

	relayHost, err := control.RelayHost(cfg.Starbeam.ServerURL)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	hostname := platform.GetHostName(cfg.NVHTTP.SunshineName)
	host := identity.Host{
		Hostname:     hostname,
		UniqueID:     identity.NewUniqueID(hostname),
		AuthKey:      cfg.Starbeam.AuthKey,
		HostID:       cfg.Starbeam.HostID,
		Capabilities: capabilitiesFromConfig(cfg.Starbeam.Capabilities),
	}

	m := metrics.New()

	client := control.New(host, control.Options{
		ServerURL:              cfg.Starbeam.ServerURL,
		ReconnectInterval:      time.Duration(cfg.Starbeam.ReconnectIntervalSeconds) * time.Second,
		InsecureSkipVerify:     cfg.Starbeam.TLSInsecureSkipVerify,
		StaleConnectionTimeout: 3 * time.Duration(cfg.Starbeam.ReconnectIntervalSeconds) * time.Second,
	}, logger, m)

	br := bridge.New(bridge.Options{
		PortMapper: sunshine.IdentityPortMapper,
		Logger:     logger,
		Metrics:    m,
	})

	manager := udprelay.New(udprelay.Options{
		BasePort: func() int { return cfg.Sunshine.Port },
		Logger:   logger,
		Metrics:  m,
	})

	client.SetHandlers(control.Handlers{
		HTTPRequest: br.ForwardHTTP,
		RTSPRequest: br.ForwardRTSP,
		UDPSetup:    manager.Setup,
		Notification: func(msg any) {
			switch n := msg.(type) {
			case protocol.SessionStart:
				logger.WithField("session_id", n.SessionID).Info("agent: session started")
			case protocol.SessionEnd:
				logger.WithField("session_id", n.SessionID).Info("agent: session ended")
			}
		},
		StateChange: func(old, new control.State) {
			logger.WithFields(logrus.Fields{"from": old, "to": new}).Info("agent: control state changed")
		},
		RegisterAck: func(ack protocol.RegisterAck) {
			logger.WithField("host_id", ack.HostID).Info("agent: registered with relay")
			manager.Initialize(relayHost, ack.Ports.Video, ack.Ports.Audio, ack.Ports.Control)
		},
	})

	var metricsServer *metrics.Server
	if cfg.Starbeam.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.Starbeam.MetricsAddr, m)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("agent: metrics server stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go client.Start(ctx)

	current = &instance{
		cfg:           cfg,
		logger:        logger,
		client:        client,
		manager:       manager,
		metricsServer: metricsServer,
		cancel:        cancel,
	}
	return nil
}

// Shutdown stops the client, drops the global reference, and tears down
// UDP channels (spec §4.5). It is safe to call when not initialized.
func Shutdown() {
	mu.Lock()
	inst := current
	current = nil
	mu.Unlock()

	if inst == nil {
		return
	}

	inst.cancel()
	inst.client.Stop()
	inst.manager.Shutdown()

	if inst.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.metricsServer.Shutdown(ctx); err != nil {
			inst.logger.WithError(err).Warn("agent: metrics server shutdown")
		}
	}
}

// IsEnabled reports whether the agent is currently initialized and
// running.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return current != nil
}
