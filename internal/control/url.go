package control

import (
	"fmt"
	"strings"
)

// relayURL is the parsed form of a (ws|wss)://HOST[:PORT][/PATH] relay
// address, per spec §4.2 and the URL-parsing property in spec §8.
type relayURL struct {
	Host string
	Port int
	Path string
	TLS  bool
}

// parseRelayURL accepts a case-insensitive ws/wss scheme, a default port of
// 443 for wss and 80 for ws, and a default path of "/". It deliberately
// does not use net/url's query/fragment handling since the relay address
// never carries either.
func parseRelayURL(raw string) (relayURL, error) {
	lower := strings.ToLower(raw)
	var tls bool
	var rest string
	switch {
	case strings.HasPrefix(lower, "wss://"):
		tls = true
		rest = raw[len("wss://"):]
	case strings.HasPrefix(lower, "ws://"):
		tls = false
		rest = raw[len("ws://"):]
	default:
		return relayURL{}, fmt.Errorf("control: unsupported relay URL scheme in %q (want ws:// or wss://)", raw)
	}

	if rest == "" {
		return relayURL{}, fmt.Errorf("control: relay URL %q is missing a host", raw)
	}

	hostport := rest
	path := "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		hostport = rest[:idx]
		path = rest[idx:]
	}
	if hostport == "" {
		return relayURL{}, fmt.Errorf("control: relay URL %q is missing a host", raw)
	}

	host := hostport
	port := 80
	if tls {
		port = 443
	}
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		host = hostport[:idx]
		portStr := hostport[idx+1:]
		var parsed int
		if _, err := fmt.Sscanf(portStr, "%d", &parsed); err != nil || parsed <= 0 || parsed > 65535 {
			return relayURL{}, fmt.Errorf("control: relay URL %q has an invalid port", raw)
		}
		port = parsed
	}
	if host == "" {
		return relayURL{}, fmt.Errorf("control: relay URL %q is missing a host", raw)
	}

	return relayURL{Host: host, Port: port, Path: path, TLS: tls}, nil
}

// RelayHost parses rawURL and returns just its host, the value the
// Control Client hands to the UDP Channel Manager's Initialize as
// relay_host (spec §4.2: "relay_host is the host from the server URL").
func RelayHost(rawURL string) (string, error) {
	u, err := parseRelayURL(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

// dialAddress returns the host:port pair to dial over TCP.
func (u relayURL) dialAddress() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

// wsURL reconstructs the ws/wss URL gorilla/websocket expects to dial.
func (u relayURL) wsURL() string {
	scheme := "ws"
	if u.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, u.Host, u.Port, u.Path)
}
