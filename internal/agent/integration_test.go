package agent

import (
	"bufio"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/bitxel/starbeam-agent/internal/config"
	"github.com/bitxel/starbeam-agent/internal/protocol"
	"github.com/bitxel/starbeam-agent/internal/relaytest"
	"github.com/bitxel/starbeam-agent/internal/sunshine"
)

// TestAgentForwardsHTTPThroughFakeRelay wires Initialize up to a fake
// relay (internal/relaytest) and a fake local Sunshine HTTP server,
// covering spec §8's "relay sends http_request ... expect the agent's
// bridge to forward it to the local server and reply" end to end.
func TestAgentForwardsHTTPThroughFakeRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(sunshine.PortHTTP))
	if err != nil {
		t.Skipf("cannot bind local sunshine port for this test: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		if _, err := r.ReadString('\n'); err != nil { // request line
			return
		}
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nok"))
	}()

	relay := relaytest.New()
	defer relay.Close()

	replyCh := make(chan protocol.HTTPResponse, 1)
	relay.OnMessage = func(msg any) any {
		if resp, ok := msg.(protocol.HTTPResponse); ok {
			replyCh <- resp
		}
		return nil
	}

	cfg := config.Default()
	cfg.Starbeam.Enabled = true
	cfg.Starbeam.ServerURL = relay.URL()
	cfg.Starbeam.AuthKey = "k"
	cfg.Starbeam.ReconnectIntervalSeconds = 5

	if err := Initialize(cfg, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Shutdown()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := relay.Send(protocol.HTTPRequest{
			Type:   protocol.TypeHTTPRequest,
			ID:     1,
			Method: "GET",
			Path:   "/",
		}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("agent never connected to the fake relay")
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case resp := <-replyCh:
		if resp.Status != 200 || string(resp.Body) != "ok" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forwarded http_response")
	}
}
