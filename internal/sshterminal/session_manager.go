package sshterminal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/tmuxremote/internal/sshconn"
)

// SessionState is the lifecycle state of a ShellSession.
type SessionState string

const (
	// SessionActive means a client is attached to the shell.
	SessionActive SessionState = "active"
	// SessionDetached means the shell is alive with no client attached.
	SessionDetached SessionState = "detached"
	// SessionClosed means the shell has ended.
	SessionClosed SessionState = "closed"
)

// ShellOpener starts interactive shells. *sshconn.Connection implements it.
type ShellOpener interface {
	OpenShell(ctx context.Context, onOutput func([]byte), onError func(error)) (*sshconn.Shell, error)
}

// ShellSession is a remote shell kept alive independently of whoever is
// looking at it. Output lands in Scrollback whether or not a client is
// attached.
//
// Lifecycle:
//  1. SessionManager.Open → active
//  2. client goes away → Detach → detached (shell stays alive)
//  3. client returns → Attach → active, Scrollback replayed by the caller
//  4. shell exits or Close → closed
type ShellSession struct {
	ID        string
	ProfileID string
	CreatedAt time.Time
	ClosedAt  *time.Time

	Scrollback *ScrollbackBuffer
	// Recording is nil unless recording was enabled when the shell opened.
	Recording *SessionRecording

	shell *sshconn.Shell

	mu           sync.Mutex
	state        SessionState
	lastActivity time.Time
}

// State returns the current session state.
func (s *ShellSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the last input, output or state change.
func (s *ShellSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *ShellSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *ShellSession) setState(state SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return false
	}
	s.state = state
	s.lastActivity = time.Now()
	return true
}

// Attach marks a client as connected. It fails once the shell has closed.
func (s *ShellSession) Attach() error {
	if !s.setState(SessionActive) {
		return fmt.Errorf("shell %s is closed", s.ID)
	}
	return nil
}

// Detach marks the shell as running without a client.
func (s *ShellSession) Detach() {
	s.setState(SessionDetached)
}

// Write forwards client input to the shell.
func (s *ShellSession) Write(p []byte) (int, error) {
	if err := ValidateInput(p); err != nil {
		return 0, err
	}
	if s.Recording != nil {
		s.Recording.RecordInput(p)
	}
	s.touch()
	return s.shell.Write(p)
}

// Resize changes the PTY size after range checking it.
func (s *ShellSession) Resize(cols, rows int) error {
	if err := ValidateResize(cols, rows); err != nil {
		return err
	}
	if err := s.shell.Resize(cols, rows); err != nil {
		return fmt.Errorf("resize shell: %w", err)
	}
	if s.Recording != nil {
		s.Recording.RecordResize(cols, rows)
	}
	return nil
}

// Done is closed when the remote shell has stopped producing output.
func (s *ShellSession) Done() <-chan struct{} {
	return s.shell.Done()
}

// Close ends the shell. It is safe to call more than once.
func (s *ShellSession) Close() {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	now := time.Now()
	s.ClosedAt = &now
	s.lastActivity = now
	s.mu.Unlock()

	if err := s.shell.Close(); err != nil {
		log.Printf("[session-mgr] close shell %s: %v", s.ID, err)
	}
	s.Scrollback.Close()
}

// SessionManager tracks interactive shells across all profiles.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ShellSession

	// RecordingEnabled turns on recording for shells opened afterwards.
	RecordingEnabled bool
	// MaxRecordingEvents caps each recording; zero means unbounded.
	MaxRecordingEvents int
	// ScrollbackSize is the scrollback cap for new shells.
	ScrollbackSize int
	// IdleTimeout is how long a detached shell survives. Zero disables cleanup.
	IdleTimeout time.Duration
}

// DefaultIdleTimeout is how long detached shells are kept by default.
const DefaultIdleTimeout = 30 * time.Minute

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:       make(map[string]*ShellSession),
		ScrollbackSize: defaultScrollbackSize,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Open starts a shell for profileID and begins buffering its output.
func (sm *SessionManager) Open(ctx context.Context, opener ShellOpener, profileID string) (*ShellSession, error) {
	now := time.Now()
	ss := &ShellSession{
		ID:           uuid.New().String(),
		ProfileID:    profileID,
		CreatedAt:    now,
		Scrollback:   NewScrollbackBuffer(sm.ScrollbackSize),
		state:        SessionActive,
		lastActivity: now,
	}
	if sm.RecordingEnabled {
		ss.Recording = NewSessionRecording(profileID, sshconn.ShellCols, sshconn.ShellRows, sm.MaxRecordingEvents)
	}

	onOutput := func(p []byte) {
		ss.Scrollback.Write(p)
		if ss.Recording != nil {
			ss.Recording.RecordOutput(p)
		}
		ss.touch()
	}
	onError := func(err error) {
		log.Printf("[session-mgr] shell %s read error: %v", ss.ID, err)
	}

	shell, err := opener.OpenShell(ctx, onOutput, onError)
	if err != nil {
		return nil, fmt.Errorf("open shell: %w", err)
	}
	ss.shell = shell

	sm.mu.Lock()
	sm.sessions[ss.ID] = ss
	sm.mu.Unlock()

	go func() {
		<-shell.Done()
		if ss.State() != SessionClosed {
			log.Printf("[session-mgr] shell %s ended remotely", ss.ID)
		}
		ss.Close()
	}()

	log.Printf("[session-mgr] opened shell %s for profile %s", ss.ID, profileID)
	return ss, nil
}

// Get returns a shell by ID, or nil if unknown.
func (sm *SessionManager) Get(id string) *ShellSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// List returns the shells of one profile, optionally skipping closed ones.
func (sm *SessionManager) List(profileID string, activeOnly bool) []*ShellSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []*ShellSession
	for _, ss := range sm.sessions {
		if ss.ProfileID != profileID {
			continue
		}
		if activeOnly && ss.State() == SessionClosed {
			continue
		}
		result = append(result, ss)
	}
	return result
}

// Close ends a shell by ID.
func (sm *SessionManager) Close(id string) error {
	ss := sm.Get(id)
	if ss == nil {
		return fmt.Errorf("shell %q not found", id)
	}
	ss.Close()
	log.Printf("[session-mgr] closed shell %s", id)
	return nil
}

// Remove forgets a shell without closing it.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// CloseAllForProfile ends every shell of a profile, typically right before
// its connection is torn down.
func (sm *SessionManager) CloseAllForProfile(profileID string) {
	for _, ss := range sm.List(profileID, true) {
		ss.Close()
	}
}

// CloseAll ends every shell, typically at shutdown.
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	all := make([]*ShellSession, 0, len(sm.sessions))
	for _, ss := range sm.sessions {
		all = append(all, ss)
	}
	sm.mu.RUnlock()

	for _, ss := range all {
		ss.Close()
	}
}

// CleanupIdle closes detached shells idle for longer than IdleTimeout and
// forgets closed ones older than that. It returns how many shells it closed.
func (sm *SessionManager) CleanupIdle() int {
	if sm.IdleTimeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-sm.IdleTimeout)

	sm.mu.RLock()
	var idle []*ShellSession
	for _, ss := range sm.sessions {
		if ss.State() == SessionDetached && ss.LastActivity().Before(cutoff) {
			idle = append(idle, ss)
		}
	}
	sm.mu.RUnlock()

	for _, ss := range idle {
		log.Printf("[session-mgr] closing idle shell %s (detached since %s)",
			ss.ID, ss.LastActivity().Format(time.RFC3339))
		ss.Close()
		sm.Remove(ss.ID)
	}

	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if ss.State() == SessionClosed && ss.LastActivity().Before(cutoff) {
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	return len(idle)
}

// Count returns the number of tracked shells, closed ones included.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ActiveCount returns the number of shells that have not closed.
func (sm *SessionManager) ActiveCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	count := 0
	for _, ss := range sm.sessions {
		if ss.State() != SessionClosed {
			count++
		}
	}
	return count
}
