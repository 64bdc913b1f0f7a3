package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeDispatchByType(t *testing.T) {
	raw := []byte(`{"type":"ping","ts":1717171717}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ping, ok := msg.(Ping)
	if !ok {
		t.Fatalf("expected Ping, got %T", msg)
	}
	if ping.TS != 1717171717 {
		t.Errorf("ts = %d; want 1717171717", ping.TS)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	raw := []byte(`{"type":"unknown_thing","foo":"bar"}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode should not error on unknown type: %v", err)
	}
	unk, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
	if unk.RawType != "unknown_thing" {
		t.Errorf("RawType = %q; want unknown_thing", unk.RawType)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	msg, err := Decode([]byte(`not json at all {{{`))
	if err != nil {
		t.Fatalf("Decode should absorb parse failures, not error: %v", err)
	}
	if _, ok := msg.(Unknown); !ok {
		t.Fatalf("expected Unknown for malformed JSON, got %T", msg)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	maxWidth := uint32(3840)
	reg := Register{
		Type:     TypeRegister,
		Hostname: "my-host",
		UniqueID: "my-host_123456",
		AuthKey:  "secret",
		Capabilities: Capabilities{
			MaxWidth:    &maxWidth,
			VideoCodecs: []string{"H264", "HEVC", "AV1"},
			AudioCodecs: []string{"opus"},
		},
	}
	data, err := Encode(reg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(Register)
	if !ok {
		t.Fatalf("expected Register, got %T", decoded)
	}
	if got.Hostname != reg.Hostname || got.UniqueID != reg.UniqueID {
		t.Errorf("round trip mismatch: got %+v want %+v", got, reg)
	}
	if *got.Capabilities.MaxWidth != maxWidth {
		t.Errorf("MaxWidth round trip mismatch")
	}
}

func TestEncodeOmitsAbsentOptionals(t *testing.T) {
	resp := HTTPResponse{
		Type:   TypeHTTPResponse,
		ID:     7,
		Status: 200,
	}
	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := raw["body"]; present {
		t.Error("body should be omitted when empty, not serialized as null")
	}
	if _, present := raw["headers"]; present {
		t.Error("headers should be omitted when nil")
	}
}

func TestHTTPRequestRoundTrip(t *testing.T) {
	req := HTTPRequest{
		Type:       TypeHTTPRequest,
		ID:         7,
		Method:     "GET",
		Path:       "/serverinfo",
		Headers:    map[string]string{"Accept": "*/*"},
		IsHTTPS:    true,
		ClientAddr: "203.0.113.4",
	}
	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(HTTPRequest)
	if !ok {
		t.Fatalf("expected HTTPRequest, got %T", decoded)
	}
	if got.ID != req.ID || got.Method != req.Method || got.Path != req.Path {
		t.Errorf("round trip mismatch: got %+v want %+v", got, req)
	}
}

// TestDecodeLiteralWireHTTPRequest feeds the exact scalar-valued headers
// shape from spec §8 scenario 2 ("headers":{"Accept":"*/*"}) straight
// through Decode, rather than a Go struct literal, so the wire-format
// boundary is actually exercised: a relay sending this literal JSON must
// decode successfully, not fall through to Unknown.
func TestDecodeLiteralWireHTTPRequest(t *testing.T) {
	raw := []byte(`{"type":"http_request","id":7,"method":"GET","path":"/serverinfo","headers":{"Accept":"*/*"},"is_https":false,"client_addr":"203.0.113.4"}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req, ok := msg.(HTTPRequest)
	if !ok {
		t.Fatalf("expected HTTPRequest, got %T (scalar-valued headers must decode, not fall back to Unknown)", msg)
	}
	if req.Headers["Accept"] != "*/*" {
		t.Errorf("Headers[Accept] = %q; want */*", req.Headers["Accept"])
	}
}

func TestPingPongEcho(t *testing.T) {
	ping := Ping{Type: TypePing, TS: 1717171717}
	pong := Pong{Type: TypePong, TS: ping.TS}
	if pong.TS != ping.TS {
		t.Errorf("pong.ts = %d; want %d", pong.TS, ping.TS)
	}
}

func TestStringEscapingRoundTrip(t *testing.T) {
	tricky := "quote\" backslash\\ newline\n tab\t ctrl unicodeé"
	msg := RegisterError{Type: TypeRegisterError, Code: "E", Message: tricky}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(RegisterError)
	if !ok {
		t.Fatalf("expected RegisterError, got %T", decoded)
	}
	if got.Message != tricky {
		t.Errorf("message round trip mismatch: got %q want %q", got.Message, tricky)
	}
}

func TestBodyOmittedWhenEmpty(t *testing.T) {
	resp := HTTPResponse{Type: TypeHTTPResponse, ID: 1, Status: 204}
	data, _ := Encode(resp)
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if v, present := raw["body"]; present {
		t.Errorf("body should be omitted, got %v", v)
	}
}
