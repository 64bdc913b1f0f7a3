package bridge

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bitxel/starbeam-agent/internal/protocol"
	"github.com/bitxel/starbeam-agent/internal/sunshine"
)

// excludedRequestHeaders are stripped from the inbound message before
// composing the loopback request (spec §4.3 step 3): the bridge injects
// its own Host and Connection, and never forwards Transfer-Encoding since
// the loopback body is always sent as a fixed Content-Length.
var excludedRequestHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"transfer-encoding": true,
}

// ForwardHTTP implements spec §4.3's HTTP forwarding algorithm: open a
// loopback connection to the HTTP or HTTPS local port, replay the
// request, and translate the raw response into an http_response message.
func (b *Bridge) ForwardHTTP(req protocol.HTTPRequest) protocol.HTTPResponse {
	base := sunshine.PortHTTP
	if req.IsHTTPS {
		base = sunshine.PortHTTPS
	}
	localPort := b.opts.portMapper()(base)

	status, contentType, body, err := b.roundTripHTTP(req, localPort)
	if err != nil {
		b.opts.Logger.WithError(err).WithField("id", req.ID).Warn("bridge: http forward failed")
		b.observeHTTP(req.Method, 500)
		return protocol.HTTPResponse{Status: 500, Body: []byte(internalServerError)}
	}

	resp := protocol.HTTPResponse{Status: uint16(status)}
	if contentType != "" {
		resp.Headers = map[string]string{"Content-Type": contentType}
	}
	if len(body) > 0 {
		resp.Body = body
	}
	b.observeHTTP(req.Method, status)
	return resp
}

func (b *Bridge) observeHTTP(method string, status int) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.ObserveHTTPRequest(method, status)
	}
}

// roundTripHTTP performs the actual loopback dial, request composition,
// and response parse (spec §4.3 steps 1-6).
func (b *Bridge) roundTripHTTP(req protocol.HTTPRequest, localPort int) (status int, contentType string, body []byte, err error) {
	addr := fmt.Sprintf("127.0.0.1:%d", localPort)
	conn, err := net.DialTimeout("tcp", addr, b.opts.forwardTimeout())
	if err != nil {
		return 0, "", nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(b.opts.forwardTimeout()))

	requestLine := fmt.Sprintf("%s %s HTTP/1.1\r\n", req.Method, targetURI(req.Path, req.Query))

	var headerBuf strings.Builder
	for name, value := range req.Headers {
		if excludedRequestHeaders[strings.ToLower(name)] {
			continue
		}
		fmt.Fprintf(&headerBuf, "%s: %s\r\n", name, value)
	}
	fmt.Fprintf(&headerBuf, "Host: 127.0.0.1:%d\r\n", localPort)
	fmt.Fprintf(&headerBuf, "X-Forwarded-For: %s\r\n", req.ClientAddr)
	fmt.Fprintf(&headerBuf, "X-Starbeam-Client: %s\r\n", req.ClientAddr)
	headerBuf.WriteString("Connection: close\r\n")
	if len(req.Body) > 0 {
		fmt.Fprintf(&headerBuf, "Content-Length: %d\r\n", len(req.Body))
	}

	if _, err := conn.Write([]byte(requestLine)); err != nil {
		return 0, "", nil, fmt.Errorf("write request line: %w", err)
	}
	if _, err := conn.Write([]byte(headerBuf.String())); err != nil {
		return 0, "", nil, fmt.Errorf("write headers: %w", err)
	}
	if _, err := conn.Write([]byte("\r\n")); err != nil {
		return 0, "", nil, fmt.Errorf("write header terminator: %w", err)
	}
	if len(req.Body) > 0 {
		if _, err := conn.Write(req.Body); err != nil {
			return 0, "", nil, fmt.Errorf("write body: %w", err)
		}
	}

	reader := bufio.NewReader(conn)
	raw, err := readRawResponse(reader)
	if err != nil {
		return 0, "", nil, err
	}
	respBody, err := readBody(reader, raw.Headers)
	if err != nil {
		return 0, "", nil, err
	}

	contentType, _ = headerValue(raw.Headers, "Content-Type")
	return raw.Status, contentType, respBody, nil
}

func targetURI(path, query string) string {
	if query != "" {
		return path + "?" + query
	}
	return path
}
