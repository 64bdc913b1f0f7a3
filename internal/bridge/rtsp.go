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

// ForwardRTSP implements spec §4.3's RTSP forwarding algorithm. Unlike
// ForwardHTTP, every inbound header is forwarded verbatim (no exclusion
// list) and the full response header map — not just Content-Type — is
// returned to the caller, along with the reason phrase.
func (b *Bridge) ForwardRTSP(req protocol.RTSPRequest) protocol.RTSPResponse {
	localPort := b.opts.portMapper()(sunshine.RTSPSetupPort)

	status, reason, headers, body, err := b.roundTripRTSP(req, localPort)
	if err != nil {
		b.opts.Logger.WithError(err).WithField("id", req.ID).Warn("bridge: rtsp forward failed")
		b.observeRTSP(req.Method, 500)
		return protocol.RTSPResponse{Status: 500, Reason: internalServerError}
	}

	resp := protocol.RTSPResponse{Status: uint16(status), Reason: reason}
	if len(headers) > 0 {
		resp.Headers = headers
	}
	if len(body) > 0 {
		resp.Body = body
	}
	b.observeRTSP(req.Method, status)
	return resp
}

func (b *Bridge) observeRTSP(method string, status int) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.ObserveRTSPRequest(method, status)
	}
}

func (b *Bridge) roundTripRTSP(req protocol.RTSPRequest, localPort int) (status int, reason string, headers map[string]string, body []byte, err error) {
	addr := fmt.Sprintf("127.0.0.1:%d", localPort)
	conn, err := net.DialTimeout("tcp", addr, b.opts.forwardTimeout())
	if err != nil {
		return 0, "", nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(b.opts.forwardTimeout()))

	requestLine := fmt.Sprintf("%s %s RTSP/1.0\r\n", req.Method, req.URI)

	var headerBuf strings.Builder
	for name, value := range req.Headers {
		fmt.Fprintf(&headerBuf, "%s: %s\r\n", name, value)
	}
	fmt.Fprintf(&headerBuf, "X-Starbeam-Client: %s\r\n", req.ClientAddr)

	if _, err := conn.Write([]byte(requestLine)); err != nil {
		return 0, "", nil, nil, fmt.Errorf("write request line: %w", err)
	}
	if _, err := conn.Write([]byte(headerBuf.String())); err != nil {
		return 0, "", nil, nil, fmt.Errorf("write headers: %w", err)
	}
	if _, err := conn.Write([]byte("\r\n")); err != nil {
		return 0, "", nil, nil, fmt.Errorf("write header terminator: %w", err)
	}
	if len(req.Body) > 0 {
		if _, err := conn.Write(req.Body); err != nil {
			return 0, "", nil, nil, fmt.Errorf("write body: %w", err)
		}
	}

	reader := bufio.NewReader(conn)
	raw, err := readRawResponse(reader)
	if err != nil {
		return 0, "", nil, nil, err
	}
	respBody, err := readBody(reader, raw.Headers)
	if err != nil {
		return 0, "", nil, nil, err
	}

	return raw.Status, raw.Reason, flattenHeaders(raw.Headers), respBody, nil
}
