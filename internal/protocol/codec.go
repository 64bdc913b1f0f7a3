package protocol

import "encoding/json"

// envelope is used only to read the discriminator field; per-variant
// decoding is done separately so the control client can route a message
// without paying for a full decode first.
type envelope struct {
	Type string `json:"type"`
}

// PeekType reads only the "type" field of a JSON control message, without
// decoding the rest of it.
func PeekType(data []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", err
	}
	return e.Type, nil
}

// Decode parses a single JSON control-plane frame into its tagged variant.
// A value of type Unknown is returned (never an error) when the type is
// unrecognized or the JSON itself cannot be parsed, matching the contract
// in spec §4.1: decode failures become Unknown, are logged at warning
// level by the caller, and never drop the connection.
func Decode(data []byte) (any, error) {
	msgType, err := PeekType(data)
	if err != nil {
		return Unknown{Raw: append([]byte(nil), data...)}, nil
	}

	var out any
	switch msgType {
	case TypeRegister:
		out = new(Register)
	case TypeRegisterAck:
		out = new(RegisterAck)
	case TypeRegisterError:
		out = new(RegisterError)
	case TypeHTTPRequest:
		out = new(HTTPRequest)
	case TypeHTTPResponse:
		out = new(HTTPResponse)
	case TypeRTSPRequest:
		out = new(RTSPRequest)
	case TypeRTSPResponse:
		out = new(RTSPResponse)
	case TypeUDPChannelSetup:
		out = new(UDPChannelSetup)
	case TypeUDPChannelAck:
		out = new(UDPChannelAck)
	case TypeUDPChannelClose:
		out = new(UDPChannelClose)
	case TypeSessionStart:
		out = new(SessionStart)
	case TypeSessionEnd:
		out = new(SessionEnd)
	case TypePing:
		out = new(Ping)
	case TypePong:
		out = new(Pong)
	case TypeError:
		out = new(Error)
	default:
		return Unknown{RawType: msgType, Raw: append([]byte(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return Unknown{RawType: msgType, Raw: append([]byte(nil), data...)}, nil
	}

	switch v := out.(type) {
	case *Register:
		return *v, nil
	case *RegisterAck:
		return *v, nil
	case *RegisterError:
		return *v, nil
	case *HTTPRequest:
		return *v, nil
	case *HTTPResponse:
		return *v, nil
	case *RTSPRequest:
		return *v, nil
	case *RTSPResponse:
		return *v, nil
	case *UDPChannelSetup:
		return *v, nil
	case *UDPChannelAck:
		return *v, nil
	case *UDPChannelClose:
		return *v, nil
	case *SessionStart:
		return *v, nil
	case *SessionEnd:
		return *v, nil
	case *Ping:
		return *v, nil
	case *Pong:
		return *v, nil
	case *Error:
		return *v, nil
	}
	return Unknown{RawType: msgType, Raw: append([]byte(nil), data...)}, nil
}

// Encode serializes an outbound message. Absent optional fields (zero
// value + omitempty) are omitted rather than written as null; string
// escaping is handled by encoding/json, which already escapes the control
// bytes U+0000..U+001F as \u00XX plus the short escapes for \b \f \n \r \t
// \\ and \" — no custom escaper is needed.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
