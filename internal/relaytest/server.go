// Package relaytest provides an in-process fake relay for exercising
// internal/control, internal/bridge and internal/udprelay end to end
// without a real Starbeam relay server.
//
// It is adapted from the teacher's gateway package (the same project's
// production tunnel server): the per-session connection registry and
// single-writer-per-socket guard in gateway/session.go are the model for
// session and its writeMessage method below. The production relay
// itself is out of scope (spec.md Non-goals: "does not implement the
// relay server"), so only the session bookkeeping shape is kept, wired
// to the spec's register/ack/forward message family instead of the
// teacher's own tunnel protocol.
package relaytest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bitxel/starbeam-agent/internal/protocol"
)

// session is one connected agent as seen from the relay side: a single
// WebSocket guarded against concurrent writers, plus the handful of
// fields a fake relay needs to answer requests.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) writeMessage(msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is a single-session fake relay: it upgrades each inbound
// WebSocket connection, tracks only the most recent one as its session
// (the one Send writes to), replies to register with a fixed
// RegisterAck, and otherwise hands every decoded message to OnMessage
// so a test can script replies.
type Server struct {
	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	// RegisterAck is sent in response to the first register frame. Tests
	// may override it before calling URL().
	RegisterAck protocol.RegisterAck

	// OnMessage is invoked for every frame after registration. A nil
	// return sends nothing back.
	OnMessage func(msg any) any

	mu   sync.Mutex
	sess *session
}

// New starts the fake relay's HTTP listener. Call Close when done.
func New() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		RegisterAck: protocol.RegisterAck{
			Type:   protocol.TypeRegisterAck,
			HostID: "relaytest-host",
			Ports: protocol.PortAssignment{
				HTTP: 47989, HTTPS: 47984, RTSP: 48010,
				Video: 47998, Audio: 47999, Control: 47997,
			},
		},
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// URL the agent's control client should dial.
func (s *Server) URL() string {
	return "ws" + s.httpServer.URL[len("http"):] + "/"
}

// Close tears down the listener and the current session, if any.
func (s *Server) Close() {
	s.httpServer.Close()
}

// Send pushes a message to the currently connected session, if one
// exists. Used by tests to drive server-initiated notifications such
// as session_start/session_end outside the request/response flow.
func (s *Server) Send(msg any) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return errors.New("relaytest: no session connected")
	}
	return sess.writeMessage(msg)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := &session{conn: conn}
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.sess == sess {
			s.sess = nil
		}
		s.mu.Unlock()
	}()

	// First frame in is always register.
	if _, data, err := conn.ReadMessage(); err == nil {
		if msg, decErr := protocol.Decode(data); decErr == nil {
			if _, ok := msg.(protocol.Register); ok {
				_ = sess.writeMessage(s.RegisterAck)
			}
		}
	} else {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		if s.OnMessage == nil {
			continue
		}
		if reply := s.OnMessage(msg); reply != nil {
			_ = sess.writeMessage(reply)
		}
	}
}
