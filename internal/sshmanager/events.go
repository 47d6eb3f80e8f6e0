package sshmanager

import (
	"log"
	"time"

	"github.com/gluk-w/tmuxremote/internal/logutil"
)

// EventType identifies a connection event.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventConnectFailed   EventType = "connect_failed"
	EventTmuxUnavailable EventType = "tmux_unavailable"
	EventReconnecting    EventType = "reconnecting"
	EventRateLimited     EventType = "rate_limited"
	EventHostRestricted  EventType = "host_restricted"
)

// ConnectionEvent is one entry of a profile's connection history.
type ConnectionEvent struct {
	ProfileID string    `json:"profile_id"`
	Type      EventType `json:"type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// maxEventsPerProfile bounds the stored history per profile.
const maxEventsPerProfile = 100

func (m *Manager) emit(profileID string, typ EventType, details string) {
	event := ConnectionEvent{
		ProfileID: profileID,
		Type:      typ,
		Details:   details,
		Timestamp: time.Now(),
	}

	m.eventsMu.Lock()
	events := append(m.events[profileID], event)
	if len(events) > maxEventsPerProfile {
		events = events[len(events)-maxEventsPerProfile:]
	}
	m.events[profileID] = events
	m.eventsMu.Unlock()

	log.Printf("[ssh] event %s/%s: %s", logutil.SanitizeForLog(profileID), typ, logutil.SanitizeForLog(details))
}

// Events returns up to n of the latest events of a profile, oldest first.
// n <= 0 returns all of them.
func (m *Manager) Events(profileID string, n int) []ConnectionEvent {
	m.eventsMu.RLock()
	defer m.eventsMu.RUnlock()
	events := m.events[profileID]
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]ConnectionEvent(nil), events...)
}

// ClearEvents forgets the event history of a profile.
func (m *Manager) ClearEvents(profileID string) {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	delete(m.events, profileID)
}

// EventCounts returns, per profile, how many stored events have type typ.
// Profiles without a matching event are omitted.
func (m *Manager) EventCounts(typ EventType) map[string]int {
	m.eventsMu.RLock()
	defer m.eventsMu.RUnlock()
	result := make(map[string]int)
	for id, events := range m.events {
		for _, e := range events {
			if e.Type == typ {
				result[id]++
			}
		}
	}
	return result
}
