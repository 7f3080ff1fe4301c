package events

const (
	// KindSessionStateChanged identifies a session lifecycle transition.
	KindSessionStateChanged Kind = "session.state_changed"
	// KindSessionError identifies a session level failure reported to the
	// client.
	KindSessionError Kind = "session.error"
	// KindSessionPong identifies the reply to a client ping.
	KindSessionPong Kind = "session.pong"
)

// SessionStateChanged reports the lifecycle state the session moved into.
type SessionStateChanged struct {
	Base
	From string `json:"from"`
	To   string `json:"to"`
}

// NewSessionStateChanged creates a session state changed event.
func NewSessionStateChanged(from, to string) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionStateChanged), From: from, To: to}
}

// SessionError carries a user facing error status.
type SessionError struct {
	Base
	Message string `json:"message"`
}

// NewSessionError creates a session error event.
func NewSessionError(message string) SessionError {
	return SessionError{Base: NewBase(KindSessionError), Message: message}
}

// SessionPong answers a ping.
type SessionPong struct{ Base }

// NewSessionPong creates a pong event.
func NewSessionPong() SessionPong {
	return SessionPong{Base: NewBase(KindSessionPong)}
}
