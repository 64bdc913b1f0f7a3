package control

import (
	"time"

	"github.com/bitxel/starbeam-agent/internal/protocol"
)

// Handlers bundles every callback the Lifecycle Facade wires into the
// Client (spec §4.5). All fields are optional; a nil handler means the
// corresponding inbound message type is simply not actioned (beyond the
// reply the Client itself produces where one is mandatory).
type Handlers struct {
	HTTPRequest  func(protocol.HTTPRequest) protocol.HTTPResponse
	RTSPRequest  func(protocol.RTSPRequest) protocol.RTSPResponse
	UDPSetup     func(protocol.UDPChannelSetup) protocol.UDPChannelAck
	Notification func(msg any) // session_start, session_end
	StateChange  StateChangeHandler
	RegisterAck  func(ack protocol.RegisterAck) // fires after state -> Registered
}

// Options configures a Client's behavior beyond the wire protocol itself.
type Options struct {
	// ServerURL is the relay address, e.g. "wss://relay.example.com".
	ServerURL string

	// ReconnectInterval is how long to wait after a disconnect before
	// retrying, per spec §4.2. The wait is interruptible (SPEC_FULL.md
	// §9 redesign), not 1-second polling.
	ReconnectInterval time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Default
	// false: SPEC_FULL.md §4.2.1 makes verification the default,
	// reversing the original source's known weakness (spec §9 OQ1).
	InsecureSkipVerify bool

	// StaleConnectionTimeout, if non-zero, closes the connection and
	// triggers reconnect when no frame (including server pings) has been
	// received for this long. Zero disables the watchdog (spec §9 OQ5
	// notes the original has none; this is additive).
	StaleConnectionTimeout time.Duration

	// WriteQueueDepth bounds the write-pump channel (spec §9 OQ6's
	// write-actor redesign). Zero uses a sensible default.
	WriteQueueDepth int
}

func (o Options) reconnectInterval() time.Duration {
	if o.ReconnectInterval <= 0 {
		return 5 * time.Second
	}
	return o.ReconnectInterval
}

func (o Options) writeQueueDepth() int {
	if o.WriteQueueDepth <= 0 {
		return 16
	}
	return o.WriteQueueDepth
}
