package control

// State is the connection-state enumeration from spec §3. Exactly one
// instance exists per Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Registered
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Registered:
		return "registered"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// StateChangeHandler is invoked under the handler lock on every transition
// with (old, new).
type StateChangeHandler func(old, new State)
