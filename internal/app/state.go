// ABOUTME: Session lifecycle states and the observable status
// ABOUTME: Status carries either a status text or an error text, never both
package app

// SessionState is the lifecycle state of the live session
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is what the UI shows
type Status struct {
	Recording bool
	Status    string
	Error     string
	State     SessionState
}

// withStatus sets the status text and clears the error
func (s Status) withStatus(msg string) Status {
	s.Status = msg
	s.Error = ""
	return s
}

// withError sets the error text and clears the status
func (s Status) withError(msg string) Status {
	s.Error = msg
	s.Status = ""
	return s
}

// join appends a detail to a message, skipping empty details
func join(msg, detail string) string {
	if detail == "" {
		return msg
	}
	if msg == "" {
		return detail
	}
	return msg + " " + detail
}
