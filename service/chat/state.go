package chat

import (
	"fmt"
	"time"
)

// ConnState is the connection lifecycle:
// Disconnected -> Connecting -> Connected -> Authenticated, and back to
// Disconnected from any state on close or error.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Authenticated
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

func (s ConnState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// canTransition reports whether from -> to is an edge of the lifecycle.
func canTransition(from, to ConnState) bool {
	switch to {
	case Connecting:
		return from == Disconnected
	case Connected:
		return from == Connecting
	case Authenticated:
		return from == Connected
	case Disconnected:
		return from != Disconnected
	}
	return false
}

// StateChange is delivered to OnStateChange observers.
type StateChange struct {
	From   ConnState
	To     ConnState
	Reason string
	At     time.Time
}

type NoticeKind int

const (
	// NoticeExhausted: automatic reconnection stopped; a manual Reconnect is needed.
	NoticeExhausted NoticeKind = iota + 1
	// NoticeSuperseded: the server replaced this socket with a newer one from the same client.
	NoticeSuperseded
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeExhausted:
		return "exhausted"
	case NoticeSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Notice is a user-visible, non-fatal condition.
type Notice struct {
	Kind     NoticeKind
	Message  string
	Attempts int
	At       time.Time
	Err      error
}

// Status is a point-in-time view of the manager.
type Status struct {
	State         ConnState `json:"state"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"maxAttempts"`
	Exhausted     bool      `json:"exhausted"`
	Queued        int       `json:"queued"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitempty"`
	ClientID      string    `json:"clientId,omitempty"`
	UserID        int64     `json:"userId,omitempty"`

	LastHeartbeatAt    time.Time `json:"lastHeartbeatAt,omitempty"`
	LastHeartbeatAckAt time.Time `json:"lastHeartbeatAckAt,omitempty"`
}
