package tmux

import "time"

// SessionState is derived from the number of attached clients.
type SessionState string

const (
	StateActive   SessionState = "ACTIVE"
	StateInactive SessionState = "INACTIVE"
)

// Session is one tmux session on the remote host. Name is its identity:
// renaming a session changes the key.
type Session struct {
	Name         string       `json:"name"`
	State        SessionState `json:"state"`
	Windows      int          `json:"windows"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
}

func (s Session) IsActive() bool {
	return s.State == StateActive
}

// StateText is the display label for the session state.
func (s Session) StateText() string {
	if s.IsActive() {
		return "Active"
	}
	return "Inactive"
}

// StateFromAttached maps an attached-client count to a state.
func StateFromAttached(count int) SessionState {
	if count > 0 {
		return StateActive
	}
	return StateInactive
}
