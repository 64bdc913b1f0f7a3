// Package udprelay implements the UDP Channel Manager from spec §4.4: on
// control-plane command it creates per-channel UDP sockets (video, audio,
// control) and runs a forwarding worker for each that shuttles datagrams
// bidirectionally between the relay and the co-located streaming server.
package udprelay

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bitxel/starbeam-agent/internal/metrics"
	"github.com/bitxel/starbeam-agent/internal/protocol"
	"github.com/bitxel/starbeam-agent/internal/sunshine"
)

// Options configures a Manager.
type Options struct {
	// BasePort returns the local streaming server's base port. It is
	// called on every channel setup (spec §6: "config.sunshine.port —
	// read each time a UDP channel is set up"), so a deployment that
	// reloads configuration live is reflected without restarting the
	// manager.
	BasePort func() int

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

func (o Options) basePort() int {
	if o.BasePort == nil {
		return 0
	}
	return o.BasePort()
}

// Manager owns at most one live UDP channel per channel type (spec §4.4).
type Manager struct {
	opts Options

	mu         sync.Mutex
	running    bool
	relayHost  string
	relayPorts map[protocol.ChannelType]uint16
	channels   map[protocol.ChannelType]*channel

	bufPool sync.Pool
}

// channel is one live UDP forwarding session (spec §3's UDP channel
// record).
type channel struct {
	channelType protocol.ChannelType
	conn        *net.UDPConn
	localPort   int
	relayAddr   *net.UDPAddr
	localAddr   *net.UDPAddr

	running chan struct{} // closed to signal the worker to stop
	done    chan struct{} // closed when the worker has actually exited
}

// New constructs a Manager. It is not running until Initialize is called.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Manager{
		opts:       opts,
		relayPorts: make(map[protocol.ChannelType]uint16),
		channels:   make(map[protocol.ChannelType]*channel),
		bufPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 65535)
				return &buf
			},
		},
	}
}

// Initialize is called by the Control Client upon register_ack (spec
// §4.4). It is idempotent: a second call while already running is a
// no-op, matching spec's "Initialization... Idempotent" requirement.
func (m *Manager) Initialize(relayHost string, videoPort, audioPort, controlPort uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.relayHost = relayHost
	m.relayPorts[protocol.ChannelVideo] = videoPort
	m.relayPorts[protocol.ChannelAudio] = audioPort
	m.relayPorts[protocol.ChannelControl] = controlPort
}

// Setup implements spec §4.4's udp_channel_setup handling.
func (m *Manager) Setup(req protocol.UDPChannelSetup) protocol.UDPChannelAck {
	ct, err := protocol.ParseChannelType(req.Channel)
	if err != nil {
		// Control.Client's dispatch already filters this case out before
		// calling Setup; this guard exists for direct callers/tests.
		return protocol.UDPChannelAck{SessionID: req.SessionID, Channel: req.Channel}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return protocol.UDPChannelAck{SessionID: req.SessionID, Channel: req.Channel, LocalPort: 0, RelayPort: 0}
	}

	relayPort := m.relayPorts[ct]

	if existing, ok := m.channels[ct]; ok {
		return protocol.UDPChannelAck{
			SessionID: req.SessionID,
			Channel:   req.Channel,
			RelayPort: relayPort,
			LocalPort: uint16(existing.localPort),
		}
	}

	ch, err := m.createChannel(ct, relayPort)
	if err != nil {
		m.opts.Logger.WithError(err).WithField("channel", ct).Error("udprelay: failed to create channel")
		return protocol.UDPChannelAck{SessionID: req.SessionID, Channel: req.Channel, LocalPort: 0, RelayPort: relayPort}
	}
	m.channels[ct] = ch
	m.opts.Metrics.SetUDPChannelActive(string(ct), true)

	go m.forward(ch)

	return protocol.UDPChannelAck{
		SessionID: req.SessionID,
		Channel:   req.Channel,
		RelayPort: relayPort,
		LocalPort: uint16(ch.localPort),
	}
}

// createChannel binds a fresh socket to 0.0.0.0:0 and resolves both
// endpoints (spec §4.4 step 5). The caller must hold m.mu.
func (m *Manager) createChannel(ct protocol.ChannelType, relayPort uint16) (*channel, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	relayAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", m.relayHost, relayPort))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolve relay endpoint: %w", err)
	}

	sunshinePort := sunshine.MediaPort(m.opts.basePort(), string(ct))
	localAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sunshinePort}

	localPort := conn.LocalAddr().(*net.UDPAddr).Port

	return &channel{
		channelType: ct,
		conn:        conn,
		localPort:   localPort,
		relayAddr:   relayAddr,
		localAddr:   localAddr,
		running:     make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// forward runs the per-channel worker described in spec §4.4: receive a
// datagram, decide direction by comparing the sender's address against
// the relay endpoint's address (port ignored, per spec — this is the
// "shared-socket, address-discriminated" design that §9 says to keep),
// and forward the exact bytes received.
func (m *Manager) forward(ch *channel) {
	defer close(ch.done)

	bufPtr := m.bufPool.Get().(*[]byte)
	buf := *bufPtr
	defer m.bufPool.Put(bufPtr)

	for {
		select {
		case <-ch.running:
			return
		default:
		}

		n, addr, err := ch.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ch.running:
				return
			default:
			}
			m.opts.Logger.WithError(err).WithField("channel", ch.channelType).Warn("udprelay: receive error, worker exiting")
			return
		}

		var dest *net.UDPAddr
		direction := "to_relay"
		if addr.IP.Equal(ch.relayAddr.IP) {
			dest = ch.localAddr
			direction = "to_local"
		} else {
			dest = ch.relayAddr
		}

		if _, err := ch.conn.WriteToUDP(buf[:n], dest); err != nil {
			m.opts.Logger.WithError(err).WithField("channel", ch.channelType).Warn("udprelay: send error, continuing")
			continue
		}
		m.opts.Metrics.AddUDPBytes(string(ch.channelType), direction, n)
	}
}

// Shutdown tears every channel down: clears the running flag, closes each
// socket (which unblocks the worker's ReadFromUDP with an error), joins
// each worker, and clears the channel map. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	channels := m.channels
	m.channels = make(map[protocol.ChannelType]*channel)
	m.mu.Unlock()

	for ct, ch := range channels {
		close(ch.running)
		_ = ch.conn.Close()
		<-ch.done
		m.opts.Metrics.SetUDPChannelActive(string(ct), false)
	}
}

// Running reports whether Initialize has been called without a matching
// Shutdown.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
