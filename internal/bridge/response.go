package bridge

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// rawResponse is the parsed form of a raw HTTP/1.1 or RTSP/1.0 response
// line plus headers, as read off a loopback socket (spec §4.3 step 5).
type rawResponse struct {
	Status  int
	Reason  string
	Headers map[string][]string
}

// readRawResponse parses the status line and header block off r, stopping
// at the blank line per spec §4.3: "Read until \r\n\r\n, parse the status
// line... and headers". Header values have exactly one leading space
// trimmed (see DESIGN.md's open-question table / spec §9 OQ3 — this is a known, preserved
// quirk, not a bug to "fix": folded headers and duplicate Content-Length
// are not specially handled).
func readRawResponse(r *bufio.Reader) (rawResponse, error) {
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return rawResponse{}, fmt.Errorf("bridge: read status line: %w", err)
	}
	status, reason, err := parseStatusLine(statusLine)
	if err != nil {
		return rawResponse{}, err
	}

	headers := make(map[string][]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return rawResponse{}, fmt.Errorf("bridge: read headers: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers[key] = append(headers[key], value)
	}

	return rawResponse{Status: status, Reason: reason, Headers: headers}, nil
}

// parseStatusLine parses "HTTP-Version SP status SP reason" (or, for
// RTSP, "RTSP/1.0 SP status SP reason" — the same shape).
func parseStatusLine(line string) (status int, reason string, err error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("bridge: malformed status line %q", line)
	}
	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("bridge: malformed status code in %q: %w", line, err)
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return status, reason, nil
}

// headerValue looks up a header case-insensitively, returning its first
// value and whether it was present.
func headerValue(headers map[string][]string, name string) (string, bool) {
	for k, vv := range headers {
		if strings.EqualFold(k, name) && len(vv) > 0 {
			return vv[0], true
		}
	}
	return "", false
}

// flattenHeaders converts the raw, possibly-repeated header map read off
// the loopback socket into the single-valued map the wire protocol uses
// (protocol.HTTPResponse.Headers / protocol.RTSPResponse.Headers — spec
// §8's worked example gives scalar header values, e.g.
// `"headers":{"Accept":"*/*"}`). Repeated header lines are joined with
// ", ", the standard HTTP representation of a multi-value header.
func flattenHeaders(headers map[string][]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, vv := range headers {
		out[k] = strings.Join(vv, ", ")
	}
	return out
}

// readBody reads the response body per spec §4.3 step 6: if Content-Length
// is known, read exactly that many bytes (bufio.Reader transparently
// coalesces whatever was already buffered past the header block);
// otherwise read to EOF. A Content-Length of 0 also falls through to
// read-to-EOF, which spec §9's closing notes flag as an intentional
// ambiguity inherited from the original source, not a bug fixed here.
func readBody(r *bufio.Reader, headers map[string][]string) ([]byte, error) {
	if raw, ok := headerValue(headers, "Content-Length"); ok {
		raw = strings.TrimSpace(raw)
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("bridge: read body: %w", err)
			}
			return buf, nil
		}
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bridge: read body to EOF: %w", err)
	}
	return body, nil
}
