package sshmanager

import (
	"sync"
	"time"
)

// ConnectionState is the lifecycle state of a profile's connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

func (s ConnectionState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the defined states.
func (s ConnectionState) IsValid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateFailed:
		return true
	}
	return false
}

// StateTransition records one state change.
type StateTransition struct {
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
}

// StateCallback is called after a profile's state changes.
type StateCallback func(profileID string, from, to ConnectionState)

// maxTransitionsPerProfile bounds the stored history per profile.
const maxTransitionsPerProfile = 50

type stateTracker struct {
	mu          sync.RWMutex
	states      map[string]ConnectionState
	transitions map[string][]StateTransition
	callbacks   []StateCallback
}

func newStateTracker() *stateTracker {
	return &stateTracker{
		states:      make(map[string]ConnectionState),
		transitions: make(map[string][]StateTransition),
	}
}

// get returns StateDisconnected for unknown profiles.
func (t *stateTracker) get(profileID string) ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if state, ok := t.states[profileID]; ok {
		return state
	}
	return StateDisconnected
}

// set records a change and fires callbacks outside the lock. Setting the
// current state again is a no-op.
func (t *stateTracker) set(profileID string, to ConnectionState) ConnectionState {
	t.mu.Lock()
	from, ok := t.states[profileID]
	if !ok {
		from = StateDisconnected
	}
	if from == to {
		t.mu.Unlock()
		return from
	}
	t.states[profileID] = to

	history := append(t.transitions[profileID], StateTransition{From: from, To: to, Timestamp: time.Now()})
	if len(history) > maxTransitionsPerProfile {
		history = history[len(history)-maxTransitionsPerProfile:]
	}
	t.transitions[profileID] = history

	cbs := append([]StateCallback(nil), t.callbacks...)
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(profileID, from, to)
	}
	return from
}

// recent returns up to n of the latest transitions, oldest first. n <= 0
// returns all of them.
func (t *stateTracker) recent(profileID string, n int) []StateTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := t.transitions[profileID]
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return append([]StateTransition(nil), history...)
}

func (t *stateTracker) all() map[string]ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(map[string]ConnectionState, len(t.states))
	for k, v := range t.states {
		result[k] = v
	}
	return result
}

// forget drops the state and history of a profile.
func (t *stateTracker) forget(profileID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, profileID)
	delete(t.transitions, profileID)
}

func (t *stateTracker) onChange(cb StateCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}
