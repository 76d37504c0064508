package domain

// SessionState is the lifecycle state of a stream session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
	StateComplete
	StateError
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can occur from s within
// the same attempt.
func (s SessionState) IsTerminal() bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}
