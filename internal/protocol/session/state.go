package session

import "fmt"

// State is the session lifecycle position.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingReady
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingReady:
		return "awaiting_ready"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CanConnect reports whether Connect is valid from s.
func (s State) CanConnect() bool {
	return s == Disconnected || s == Closed
}
