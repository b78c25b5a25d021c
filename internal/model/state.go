package model

// ConnectionState is the streaming connection lifecycle of a live session.
type ConnectionState int

const (
	Idle ConnectionState = iota
	Connecting
	Open
	Closed
	ReconnectScheduled
)

func (s ConnectionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case ReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return "unknown"
	}
}
