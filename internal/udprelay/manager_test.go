package udprelay

import (
	"net"
	"testing"
	"time"

	"github.com/bitxel/starbeam-agent/internal/protocol"
)

func TestSetupBeforeInitializeReturnsZeroPorts(t *testing.T) {
	m := New(Options{})
	ack := m.Setup(protocol.UDPChannelSetup{SessionID: 1, Channel: "video"})
	if ack.LocalPort != 0 || ack.RelayPort != 0 {
		t.Fatalf("expected zero ports before Initialize, got %+v", ack)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	m := New(Options{})
	m.Initialize("relay.example.com", 100, 200, 300)
	m.Initialize("other.example.com", 999, 999, 999)

	ack := m.Setup(protocol.UDPChannelSetup{SessionID: 1, Channel: "video"})
	if ack.RelayPort != 100 {
		t.Fatalf("relay port = %d; want 100 (second Initialize should be a no-op)", ack.RelayPort)
	}
	m.Shutdown()
}

func TestSetupIsIdempotentForALiveChannel(t *testing.T) {
	m := New(Options{BasePort: func() int { return 40000 }})
	m.Initialize("127.0.0.1", 1000, 2000, 3000)
	defer m.Shutdown()

	first := m.Setup(protocol.UDPChannelSetup{SessionID: 1, Channel: "audio"})
	second := m.Setup(protocol.UDPChannelSetup{SessionID: 2, Channel: "audio"})

	if first.LocalPort == 0 {
		t.Fatalf("expected a non-zero local port")
	}
	if first.LocalPort != second.LocalPort {
		t.Fatalf("repeated setup changed local_port: %d != %d", first.LocalPort, second.LocalPort)
	}
	if second.RelayPort != 2000 {
		t.Fatalf("relay port = %d; want 2000", second.RelayPort)
	}
}

func TestDirectionalForwarding(t *testing.T) {
	// The relay is simulated on 127.0.0.2 and the local server on
	// 127.0.0.1 so the address-only discrimination rule in spec §4.4 can
	// tell them apart, exactly as it would between a real relay and
	// loopback.
	relayConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.2"), Port: 0})
	if err != nil {
		t.Skipf("cannot bind 127.0.0.2 in this environment: %v", err)
	}
	defer relayConn.Close()
	relayPort := relayConn.LocalAddr().(*net.UDPAddr).Port

	localConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen local: %v", err)
	}
	defer localConn.Close()
	localServerPort := localConn.LocalAddr().(*net.UDPAddr).Port

	m := New(Options{BasePort: func() int { return localServerPort - 9 }})
	m.Initialize("127.0.0.2", uint16(relayPort), 0, 0)
	defer m.Shutdown()

	ack := m.Setup(protocol.UDPChannelSetup{SessionID: 42, Channel: "video"})
	if ack.LocalPort == 0 {
		t.Fatalf("setup failed: %+v", ack)
	}

	channelAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(ack.LocalPort)}

	// relay -> local
	if _, err := relayConn.WriteToUDP([]byte("from-relay"), channelAddr); err != nil {
		t.Fatalf("send from relay: %v", err)
	}
	localConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := localConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("local server did not receive relay datagram: %v", err)
	}
	if string(buf[:n]) != "from-relay" {
		t.Fatalf("payload = %q; want from-relay", buf[:n])
	}

	// local -> relay
	if _, err := localConn.WriteToUDP([]byte("from-local"), channelAddr); err != nil {
		t.Fatalf("send from local: %v", err)
	}
	relayConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err = relayConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("relay did not receive local datagram: %v", err)
	}
	if string(buf[:n]) != "from-local" {
		t.Fatalf("payload = %q; want from-local", buf[:n])
	}
}

func TestShutdownIsIdempotentAndStopsRunning(t *testing.T) {
	m := New(Options{BasePort: func() int { return 40000 }})
	m.Initialize("127.0.0.1", 1, 2, 3)
	m.Setup(protocol.UDPChannelSetup{SessionID: 1, Channel: "control"})

	m.Shutdown()
	if m.Running() {
		t.Fatalf("expected manager to report not-running after Shutdown")
	}
	m.Shutdown() // must not panic or block
}
