package sshmanager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gluk-w/tmuxremote/internal/complete"
	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/tmuxsession"
)

var (
	// ErrNoConnection is returned for profiles that have never been connected
	// or were explicitly disconnected.
	ErrNoConnection = errors.New("no connection for profile")
	// ErrTooManyConnections is returned when the connection cap is reached.
	ErrTooManyConnections = errors.New("maximum connections reached")
)

// Entry bundles a live connection with the services built on it. An Entry
// is replaced, never mutated, when its profile reconnects.
type Entry struct {
	ProfileID   string
	Conn        *sshconn.Connection
	Service     *tmuxsession.Service
	Completer   *complete.Engine
	TmuxVersion string
	ConnectedAt time.Time
}

// Options configures a Manager.
type Options struct {
	// MaxConnections caps simultaneous connections; zero means unlimited.
	MaxConnections int
	// AllowedHosts is a comma-separated IP/CIDR allow list for target hosts.
	AllowedHosts string
	RateLimit    RateLimitConfig
}

// Manager owns one Connection, and one tmux Service on top of it, per
// connected profile.
type Manager struct {
	mu             sync.RWMutex
	entries        map[string]*Entry
	maxConnections int

	allowed []*net.IPNet
	lookup  lookupFunc
	limiter *ConnectLimiter
	states  *stateTracker

	eventsMu sync.RWMutex
	events   map[string][]ConnectionEvent
}

func NewManager(opts Options) (*Manager, error) {
	allowed, err := ParseAllowedNetworks(opts.AllowedHosts)
	if err != nil {
		return nil, fmt.Errorf("allowed hosts: %w", err)
	}
	return &Manager{
		entries:        make(map[string]*Entry),
		maxConnections: opts.MaxConnections,
		allowed:        allowed,
		lookup:         defaultLookup,
		limiter:        NewConnectLimiter(opts.RateLimit),
		states:         newStateTracker(),
		events:         make(map[string][]ConnectionEvent),
	}, nil
}

// Connect returns the live entry for profileID, dialing p and initializing
// tmux when there is none. A profile whose host lacks tmux is left
// disconnected.
func (m *Manager) Connect(ctx context.Context, profileID string, p sshconn.Profile) (*Entry, error) {
	m.mu.RLock()
	existing, exists := m.entries[profileID]
	count := len(m.entries)
	m.mu.RUnlock()

	if exists && existing.Conn.IsConnected() {
		return existing, nil
	}
	if !exists && m.maxConnections > 0 && count >= m.maxConnections {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyConnections, m.maxConnections)
	}
	if err := m.admit(ctx, profileID, p.Host); err != nil {
		return nil, err
	}

	m.states.set(profileID, StateConnecting)
	conn := sshconn.New(p)
	conn.OnDisconnect(func(reason error) { m.handleDrop(profileID, conn, reason) })

	entry, err := m.establish(ctx, profileID, conn)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.entries[profileID]
	m.entries[profileID] = entry
	m.mu.Unlock()
	if old != nil && old.Conn != conn {
		old.Service.StopMonitoring()
		old.Conn.Disconnect()
	}
	return entry, nil
}

// admit applies the rate limit and host allow list.
func (m *Manager) admit(ctx context.Context, profileID, host string) error {
	if err := m.limiter.Allow(profileID); err != nil {
		m.emit(profileID, EventRateLimited, err.Error())
		return err
	}
	if err := checkHostAllowed(ctx, m.lookup, host, m.allowed); err != nil {
		m.emit(profileID, EventHostRestricted, err.Error())
		return err
	}
	return nil
}

// establish connects conn and brings up tmux on it.
func (m *Manager) establish(ctx context.Context, profileID string, conn *sshconn.Connection) (*Entry, error) {
	if err := conn.Connect(ctx); err != nil {
		m.limiter.RecordFailure(profileID)
		m.states.set(profileID, StateFailed)
		m.emit(profileID, EventConnectFailed, err.Error())
		return nil, err
	}
	m.limiter.RecordSuccess(profileID)

	svc := tmuxsession.New(conn)
	version, err := svc.Initialize(ctx)
	if err != nil {
		conn.Disconnect()
		m.states.set(profileID, StateFailed)
		m.emit(profileID, EventTmuxUnavailable, err.Error())
		return nil, err
	}

	m.states.set(profileID, StateConnected)
	m.emit(profileID, EventConnected, fmt.Sprintf("%s, tmux %s", conn.ID(), version))
	return &Entry{
		ProfileID:   profileID,
		Conn:        conn,
		Service:     svc,
		Completer:   complete.New(conn),
		TmuxVersion: version,
		ConnectedAt: time.Now(),
	}, nil
}

// handleDrop runs when the remote side goes away. Entries are kept so the
// profile can be reconnected.
func (m *Manager) handleDrop(profileID string, conn *sshconn.Connection, reason error) {
	m.mu.RLock()
	entry, ok := m.entries[profileID]
	m.mu.RUnlock()
	if !ok || entry.Conn != conn {
		return
	}
	entry.Service.StopMonitoring()
	m.states.set(profileID, StateDisconnected)
	m.emit(profileID, EventDisconnected, fmt.Sprintf("connection lost: %v", reason))
}

// Get returns the live entry for profileID.
func (m *Manager) Get(profileID string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[profileID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoConnection
	}
	if !entry.Conn.IsConnected() {
		return nil, sshconn.ErrNotConnected
	}
	return entry, nil
}

// Reconnect tears down and re-establishes the connection of a known
// profile, rebuilding its tmux service.
func (m *Manager) Reconnect(ctx context.Context, profileID string) (*Entry, error) {
	m.mu.RLock()
	old, ok := m.entries[profileID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoConnection
	}
	if err := m.admit(ctx, profileID, old.Conn.Profile().Host); err != nil {
		return nil, err
	}

	old.Service.StopMonitoring()
	m.states.set(profileID, StateReconnecting)
	m.emit(profileID, EventReconnecting, old.Conn.ID())
	old.Conn.Disconnect()

	entry, err := m.establish(ctx, profileID, old.Conn)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.entries[profileID] = entry
	m.mu.Unlock()
	return entry, nil
}

// Disconnect closes and forgets the connection of profileID.
func (m *Manager) Disconnect(profileID string) error {
	m.mu.Lock()
	entry, ok := m.entries[profileID]
	delete(m.entries, profileID)
	m.mu.Unlock()
	if !ok {
		return ErrNoConnection
	}

	entry.Service.StopMonitoring()
	entry.Conn.Disconnect()
	m.states.set(profileID, StateDisconnected)
	m.emit(profileID, EventDisconnected, "closed by request")
	return nil
}

// CloseAll disconnects every profile.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	for id, entry := range entries {
		entry.Service.StopMonitoring()
		entry.Conn.Disconnect()
		m.states.set(id, StateDisconnected)
	}
	if len(entries) > 0 {
		log.Printf("[ssh] closed all %d connection(s)", len(entries))
	}
}

// PruneDisconnected forgets entries whose connection has dropped, returning
// how many were removed. Their event history is kept.
func (m *Manager) PruneDisconnected() int {
	m.mu.Lock()
	var pruned []string
	for id, entry := range m.entries {
		if !entry.Conn.IsConnected() {
			delete(m.entries, id)
			pruned = append(pruned, id)
		}
	}
	m.mu.Unlock()

	for _, id := range pruned {
		m.states.forget(id)
		log.Printf("[ssh] pruned dropped connection for profile %s", logutil.SanitizeForLog(id))
	}
	return len(pruned)
}

// Count returns the number of tracked entries, dropped ones included.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// State returns the current connection state of profileID.
func (m *Manager) State(profileID string) ConnectionState {
	return m.states.get(profileID)
}

// States returns the state of every profile seen so far.
func (m *Manager) States() map[string]ConnectionState {
	return m.states.all()
}

// Transitions returns up to n of the latest state changes of profileID.
func (m *Manager) Transitions(profileID string, n int) []StateTransition {
	return m.states.recent(profileID, n)
}

// OnStateChange registers cb for every future state change.
func (m *Manager) OnStateChange(cb StateCallback) {
	m.states.onChange(cb)
}

// RateLimitStatus reports the connect limiter's view of profileID.
func (m *Manager) RateLimitStatus(profileID string) RateLimitStatus {
	return m.limiter.Status(profileID)
}

// ResetRateLimit clears any block on profileID.
func (m *Manager) ResetRateLimit(profileID string) {
	m.limiter.Reset(profileID)
}

// Status is a point-in-time view of one profile's connection.
type Status struct {
	ProfileID   string            `json:"profile_id"`
	State       ConnectionState   `json:"state"`
	Address     string            `json:"address,omitempty"`
	TmuxVersion string            `json:"tmux_version,omitempty"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
	Transitions []StateTransition `json:"transitions"`
	Events      []ConnectionEvent `json:"events"`
	RateLimit   RateLimitStatus   `json:"rate_limit"`
}

// Status assembles the state, recent history and limiter standing of profileID.
func (m *Manager) Status(profileID string, recent int) Status {
	st := Status{
		ProfileID:   profileID,
		State:       m.State(profileID),
		Transitions: m.Transitions(profileID, recent),
		Events:      m.Events(profileID, recent),
		RateLimit:   m.RateLimitStatus(profileID),
	}
	m.mu.RLock()
	entry, ok := m.entries[profileID]
	m.mu.RUnlock()
	if ok {
		at := entry.ConnectedAt
		st.Address = entry.Conn.ID()
		st.TmuxVersion = entry.TmuxVersion
		st.ConnectedAt = &at
	}
	return st
}
