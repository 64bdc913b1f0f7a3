// Package control owns the agent's single long-lived WebSocket session to
// the relay: the reconnect state machine, the registration handshake, and
// request/notification dispatch described in spec §4.2.
package control

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bitxel/starbeam-agent/internal/identity"
	"github.com/bitxel/starbeam-agent/internal/metrics"
	"github.com/bitxel/starbeam-agent/internal/protocol"
)

// Assigned is the identity handed back by register_ack: host_id, the
// fixed port assignment, and an optional external address (spec §3). It
// is cleared on disconnect.
type Assigned struct {
	HostID          string
	Ports           protocol.PortAssignment
	ExternalAddress string
}

// Client owns the outbound WebSocket and drives the state machine in
// spec §4.2. Exactly one State exists per Client.
type Client struct {
	identity identity.Host
	opts     Options
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	handlerMu sync.Mutex
	handlers  Handlers

	stateMu sync.Mutex
	state   State

	assignedMu sync.RWMutex
	assigned   Assigned

	connMu sync.Mutex
	conn   *websocket.Conn

	writeEPMu sync.RWMutex
	writeEP   *writeEndpoint

	stopCh  chan struct{}
	stopped chan struct{}
	stopOne sync.Once
}

// writeRequest is a single outbound frame, funneled through the write
// pump goroutine so every writer — the read loop's replies and external
// callers of SendSessionEnd — shares one owner of the socket (spec §9
// OQ6, SPEC_FULL.md §4.2.3).
type writeRequest struct {
	data []byte
	done chan error
}

// writeEndpoint is the write pump's per-connection handle: a channel to
// enqueue frames on, and a done channel that is closed when the pump for
// this connection has stopped accepting work. Keeping these paired (not
// just a bare channel that gets closed) means SendSessionEnd never races a
// send against a close of the same channel it's sending on.
type writeEndpoint struct {
	ch   chan writeRequest
	done chan struct{}
}

// New constructs a Client. It does not connect; call Start for that.
func New(id identity.Host, opts Options, logger *logrus.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		identity: id,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		state:    Disconnected,
	}
}

// SetHandlers installs the Lifecycle Facade's wiring. Safe to call before
// or after Start; subsequent calls replace the full set (spec §9: "prefer
// installing all handlers at startup and avoiding re-installation at
// steady state" — this exists for flexibility, not for steady-state
// churn).
func (c *Client) SetHandlers(h Handlers) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = h
}

func (c *Client) handlersSnapshot() Handlers {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	return c.handlers
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(new State) {
	c.stateMu.Lock()
	old := c.state
	c.state = new
	c.stateMu.Unlock()

	if old == new {
		return
	}
	c.metrics.SetControlState(int(new))
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	if h := c.handlers.StateChange; h != nil {
		h(old, new)
	}
}

// Assigned returns the identity captured from the last register_ack. Its
// zero value is returned when the client is not Registered.
func (c *Client) Assigned() Assigned {
	c.assignedMu.RLock()
	defer c.assignedMu.RUnlock()
	return c.assigned
}

func (c *Client) setAssigned(a Assigned) {
	c.assignedMu.Lock()
	c.assigned = a
	c.assignedMu.Unlock()
}

func (c *Client) clearAssigned() {
	c.setAssigned(Assigned{})
}

// Start runs the supervisor loop described in spec §4.2 until ctx is
// cancelled or Stop is called: connect, register, pump messages until
// failure, tear down, wait reconnect_interval, retry.
func (c *Client) Start(ctx context.Context) {
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})
	c.stopOne = sync.Once{}
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			c.setState(Disconnected)
			return
		case <-c.stopCh:
			c.setState(Disconnected)
			return
		default:
		}

		err := c.runOnce(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("control: session ended")
		}

		select {
		case <-ctx.Done():
			c.setState(Disconnected)
			return
		case <-c.stopCh:
			c.setState(Disconnected)
			return
		default:
		}

		if !c.waitBeforeReconnect(ctx) {
			c.setState(Disconnected)
			return
		}
	}
}

// waitBeforeReconnect blocks for the configured reconnect interval,
// returning false if it was interrupted by Stop or context cancellation
// (spec §9 redesign: an interruptible wait instead of 1-second polling).
func (c *Client) waitBeforeReconnect(ctx context.Context) bool {
	timer := time.NewTimer(c.opts.reconnectInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// Stop transitions to Disconnected and terminates Start's loop. It is
// terminal until the next Start call.
func (c *Client) Stop() {
	c.stopOne.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
		}
	})
	c.closeConn()
	if c.stopped != nil {
		<-c.stopped
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// SendSessionEnd is the only writer callable from outside the read loop
// (spec §4.2). It enqueues onto the write pump like any other frame.
func (c *Client) SendSessionEnd(sessionID uint64, reason string) error {
	msg := protocol.SessionEnd{Type: protocol.TypeSessionEnd, SessionID: sessionID, Reason: reason}
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("control: encode session_end: %w", err)
	}
	return c.enqueueWrite(data)
}

// enqueueWrite hands data to the write pump and waits for the result. It
// returns an error immediately if no pump is currently running, or if the
// pump for the current connection stops while the write is in flight.
func (c *Client) enqueueWrite(data []byte) error {
	ep := c.getWriteEP()
	if ep == nil {
		return fmt.Errorf("control: not connected")
	}
	req := writeRequest{data: data, done: make(chan error, 1)}
	select {
	case ep.ch <- req:
	case <-ep.done:
		return fmt.Errorf("control: connection closed")
	case <-c.stopCh:
		return fmt.Errorf("control: stopped")
	}
	select {
	case err := <-req.done:
		return err
	case <-ep.done:
		return fmt.Errorf("control: connection closed")
	case <-c.stopCh:
		return fmt.Errorf("control: stopped")
	}
}

func (c *Client) setWriteEP(ep *writeEndpoint) {
	c.writeEPMu.Lock()
	c.writeEP = ep
	c.writeEPMu.Unlock()
}

func (c *Client) getWriteEP() *writeEndpoint {
	c.writeEPMu.RLock()
	defer c.writeEPMu.RUnlock()
	return c.writeEP
}

// runOnce performs one full connect-register-pump cycle, as described in
// spec §4.2: establish the transport, send register, then read until
// failure. It always returns with state Disconnected or Error and with
// Assigned cleared.
func (c *Client) runOnce(ctx context.Context) error {
	c.setState(Connecting)

	u, err := parseRelayURL(c.opts.ServerURL)
	if err != nil {
		c.setState(Error)
		return fmt.Errorf("control: %w", err)
	}

	conn, err := c.dial(ctx, u)
	if err != nil {
		c.setState(Error)
		return fmt.Errorf("control: dial %s: %w", u.wsURL(), err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer c.closeConn()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		c.clearAssigned()
		if c.State() != Error {
			c.setState(Disconnected)
		}
	}()

	if err := c.sendRegister(conn); err != nil {
		c.setState(Error)
		return fmt.Errorf("control: send register: %w", err)
	}

	c.setState(Connected)

	ep := &writeEndpoint{ch: make(chan writeRequest, c.opts.writeQueueDepth()), done: make(chan struct{})}
	c.setWriteEP(ep)
	defer c.setWriteEP(nil)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump(conn, ep)
	}()
	defer func() {
		close(ep.done)
		<-pumpDone
	}()

	return c.readLoop(ctx, conn)
}

// dial performs the TCP+TLS+WebSocket handshake. TLS is used only for the
// wss scheme, with SNI set explicitly to the URL host (spec §4.2, §6).
func (c *Client) dial(ctx context.Context, u relayURL) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if u.TLS {
		dialer.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         u.Host,
			InsecureSkipVerify: c.opts.InsecureSkipVerify, //nolint:gosec // opt-in, see Options.InsecureSkipVerify
		}
		if c.opts.InsecureSkipVerify {
			c.logger.Warn("control: TLS certificate verification disabled (starbeam.tls_insecure_skip_verify)")
		}
	}
	conn, _, err := dialer.DialContext(ctx, u.wsURL(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// sendRegister writes the register message directly on conn. It runs
// before the write pump exists, so it is the only write that bypasses
// enqueueWrite — nothing else can be writing to conn yet.
func (c *Client) sendRegister(conn *websocket.Conn) error {
	msg := c.identity.Register()
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// writePump is the single goroutine that owns conn's writer for the
// lifetime of one connection (spec §9 OQ6, SPEC_FULL.md §4.2.3). Both the
// read loop's replies and SendSessionEnd funnel through ep.ch.
func (c *Client) writePump(conn *websocket.Conn, ep *writeEndpoint) {
	for {
		select {
		case req := <-ep.ch:
			err := conn.WriteMessage(websocket.TextMessage, req.data)
			select {
			case req.done <- err:
			default:
			}
			if err != nil {
				return
			}
		case <-ep.done:
			return
		}
	}
}

// readLoop reads frames until the connection fails, dispatching each
// decoded message per spec §4.2. It returns the error that ended the
// loop, or nil if the loop ended because ctx/stopCh fired.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if deadline := c.opts.StaleConnectionTimeout; deadline > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(deadline))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-c.stopCh:
				return nil
			default:
			}
			return err
		}

		msg, decErr := protocol.Decode(data)
		if decErr != nil {
			// Decode never actually returns an error (see protocol.Decode);
			// this guards the contract anyway.
			c.logger.WithError(decErr).Warn("control: failed to decode frame")
			continue
		}

		if err := c.dispatch(msg); err != nil {
			return err
		}
	}
}

// dispatch routes one decoded message per spec §4.2's read-loop rules. A
// non-nil error means the connection should be torn down (register_error).
func (c *Client) dispatch(msg any) error {
	switch m := msg.(type) {
	case protocol.RegisterAck:
		c.setAssigned(Assigned{HostID: m.HostID, Ports: m.Ports, ExternalAddress: m.ExternalAddress})
		c.setState(Registered)
		if h := c.handlersSnapshot().RegisterAck; h != nil {
			h(m)
		}

	case protocol.RegisterError:
		c.logger.WithField("code", m.Code).Warn("control: registration rejected: " + m.Message)
		c.setState(Error)
		return fmt.Errorf("control: registration rejected: %s", m.Message)

	case protocol.HTTPRequest:
		h := c.handlersSnapshot().HTTPRequest
		var resp protocol.HTTPResponse
		if h != nil {
			resp = h(m)
		} else {
			resp = protocol.HTTPResponse{Status: 500, Body: []byte("Internal Server Error")}
		}
		resp.Type = protocol.TypeHTTPResponse
		resp.ID = m.ID
		c.sendReply(resp)

	case protocol.RTSPRequest:
		h := c.handlersSnapshot().RTSPRequest
		var resp protocol.RTSPResponse
		if h != nil {
			resp = h(m)
		} else {
			resp = protocol.RTSPResponse{Status: 500, Reason: "Internal Server Error"}
		}
		resp.Type = protocol.TypeRTSPResponse
		resp.ID = m.ID
		c.sendReply(resp)

	case protocol.UDPChannelSetup:
		if _, perr := protocol.ParseChannelType(m.Channel); perr != nil {
			// SPEC_FULL.md §4.2.2: unlike the original source's lenient
			// default-to-video, the dispatch path drops the message
			// outright rather than silently guessing a channel.
			c.logger.WithField("channel", m.Channel).Warn("control: rejecting udp_channel_setup with unrecognized channel")
			return nil
		}
		h := c.handlersSnapshot().UDPSetup
		var ack protocol.UDPChannelAck
		if h != nil {
			ack = h(m)
		} else {
			ack = protocol.UDPChannelAck{SessionID: m.SessionID, Channel: m.Channel}
		}
		ack.Type = protocol.TypeUDPChannelAck
		c.sendReply(ack)

	case protocol.SessionStart:
		if h := c.handlersSnapshot().Notification; h != nil {
			h(m)
		}

	case protocol.SessionEnd:
		if h := c.handlersSnapshot().Notification; h != nil {
			h(m)
		}

	case protocol.Ping:
		c.sendReply(protocol.Pong{Type: protocol.TypePong, TS: m.TS})

	case protocol.Error:
		c.logger.WithField("code", m.Code).Warn("control: relay error: " + m.Message)

	case protocol.Unknown:
		c.logger.WithField("type", m.RawType).Warn("control: unrecognized message type")

	default:
		c.logger.Warn("control: undecodable frame")
	}
	return nil
}

// sendReply encodes and enqueues an outbound message, logging (but not
// propagating) any failure — a write failure here will surface as a read
// error shortly after, which is what tears the connection down.
func (c *Client) sendReply(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.WithError(err).Error("control: encode reply")
		return
	}
	if err := c.enqueueWrite(data); err != nil {
		c.logger.WithError(err).Warn("control: send reply")
	}
}
