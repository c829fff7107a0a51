package session

// State is the connection lifecycle state. Exactly one instance exists,
// owned by the Supervisor; transitions are driven only by transport events.
type State int

const (
	StateIdle State = iota
	StateAwaitingScan
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
