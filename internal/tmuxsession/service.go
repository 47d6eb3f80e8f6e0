// Package tmuxsession manages tmux sessions on a remote host through an
// SSH command executor.
//
// A Service starts Uninitialized. Initialize checks that tmux is installed
// and starts its server, moving the Service to Ready; every other operation
// fails with ErrNotInitialized until then. Operations hold the Service
// exclusively for their duration (the Busy state), because each one is a
// short conversation of several commands whose answers depend on each
// other.
package tmuxsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
	"github.com/gluk-w/tmuxremote/internal/tmux"
)

// State is the lifecycle state of a Service.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "uninitialized"
	}
}

// Service runs tmux operations over one executor.
type Service struct {
	exec sshconn.Executor
	now  func() time.Time

	// mu serializes remote conversations.
	mu      sync.Mutex
	state   atomic.Int32
	version string

	snapMu sync.Mutex
	last   []tmux.Session

	monMu     sync.Mutex
	monCancel context.CancelFunc
}

// New returns an uninitialized Service bound to exec.
func New(exec sshconn.Executor) *Service {
	return &Service{exec: exec, now: time.Now}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Version returns the tmux version found by Initialize.
func (s *Service) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Initialize checks that tmux is available and starts its server. On
// failure the Service stays Uninitialized. Calling it again on a ready
// Service re-runs the check.
func (s *Service) Initialize(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.exec.ExecuteCommand(ctx, tmux.CheckInstalled())
	if err != nil {
		// Only a command that ran and complained can mean tmux is missing.
		// A lost transport is reported as is.
		var remoteErr *sshconn.RemoteCommandError
		if !errors.As(err, &remoteErr) || remoteErr.Err != nil {
			s.state.Store(int32(StateUninitialized))
			return "", fmt.Errorf("check tmux: %w", err)
		}
		out = remoteErr.Stderr
	}
	if !tmux.IsAvailable(out) {
		s.state.Store(int32(StateUninitialized))
		log.Printf("[tmux] tmux not available: %s", logutil.SanitizeForLog(out))
		return "", ErrPrerequisiteMissing
	}

	if _, err := s.exec.ExecuteCommand(ctx, tmux.StartServer()); err != nil {
		// start-server is idempotent; a running server may still complain.
		log.Printf("[tmux] start-server: %v", err)
	}

	s.version = tmux.ParseVersion(out)
	s.state.Store(int32(StateReady))
	log.Printf("[tmux] initialized, tmux %s", s.version)
	return s.version, nil
}

// IsInstalled reports whether tmux is available, without changing state.
func (s *Service) IsInstalled(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.exec.ExecuteCommand(ctx, tmux.CheckInstalled())
	if err != nil {
		return false
	}
	return tmux.IsAvailable(out)
}

// begin takes exclusive use of the Service and marks it busy. The returned
// func restores Ready and releases it.
func (s *Service) begin() (func(), error) {
	s.mu.Lock()
	if s.State() == StateUninitialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	s.state.Store(int32(StateBusy))
	return func() {
		s.state.Store(int32(StateReady))
		s.mu.Unlock()
	}, nil
}

// LastSessions returns the most recent successful listing.
func (s *Service) LastSessions() []tmux.Session {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return append([]tmux.Session(nil), s.last...)
}

// ListSessions lists sessions and marks each ACTIVE or INACTIVE from its
// attached-client count. No sessions at all is an empty result, not an error.
func (s *Service) ListSessions(ctx context.Context) ([]tmux.Session, error) {
	end, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	return s.listLocked(ctx)
}

func (s *Service) listLocked(ctx context.Context) ([]tmux.Session, error) {
	out, err := s.exec.ExecuteCommand(ctx, tmux.ListSessions())
	if err != nil {
		if isNoSessions(err) {
			s.remember(nil)
			return []tmux.Session{}, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := tmux.ParseSessionList(out, s.now())
	for i := range sessions {
		countOut, err := s.exec.ExecuteCommand(ctx, tmux.SessionAttached(sessions[i].Name))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[tmux] attached count for %s: %v", logutil.SanitizeForLog(sessions[i].Name), err)
			continue
		}
		sessions[i].State = tmux.StateFromAttached(tmux.ParseAttachedCount(countOut))
	}
	if sessions == nil {
		sessions = []tmux.Session{}
	}
	s.remember(sessions)
	return sessions, nil
}

func isNoSessions(err error) bool {
	var remoteErr *sshconn.RemoteCommandError
	if errors.As(err, &remoteErr) {
		return tmux.IsNoSessionsError(remoteErr.Stderr)
	}
	return false
}

func (s *Service) remember(sessions []tmux.Session) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.last = append([]tmux.Session(nil), sessions...)
}

// SessionExists probes for a session by name.
func (s *Service) SessionExists(ctx context.Context, name string) (bool, error) {
	end, err := s.begin()
	if err != nil {
		return false, err
	}
	defer end()
	return s.existsLocked(ctx, name)
}

func (s *Service) existsLocked(ctx context.Context, name string) (bool, error) {
	out, err := s.exec.ExecuteCommand(ctx, tmux.HasSession(name))
	if err != nil {
		return false, fmt.Errorf("check session %q: %w", name, err)
	}
	return tmux.ParseSessionExists(out), nil
}

// CreateSession creates a detached session and returns its record from a
// fresh listing.
func (s *Service) CreateSession(ctx context.Context, name string) (tmux.Session, error) {
	if err := ValidateSessionName(name); err != nil {
		return tmux.Session{}, err
	}
	end, err := s.begin()
	if err != nil {
		return tmux.Session{}, err
	}
	defer end()

	exists, err := s.existsLocked(ctx, name)
	if err != nil {
		return tmux.Session{}, err
	}
	if exists {
		return tmux.Session{}, &AlreadyExistsError{Name: name}
	}

	if _, err := s.exec.ExecuteCommand(ctx, tmux.CreateSession(name)); err != nil {
		return tmux.Session{}, fmt.Errorf("create session %q: %w", name, err)
	}

	sessions, err := s.listLocked(ctx)
	if err != nil {
		return tmux.Session{}, err
	}
	for _, sess := range sessions {
		if sess.Name == name {
			log.Printf("[tmux] created session %s", logutil.SanitizeForLog(name))
			return sess, nil
		}
	}
	return tmux.Session{}, &CreationVerificationError{Name: name}
}

// DeleteSession kills a session.
func (s *Service) DeleteSession(ctx context.Context, name string) error {
	if name == "" {
		return &ValidationError{Field: "session name", Reason: "must not be empty"}
	}
	end, err := s.begin()
	if err != nil {
		return err
	}
	defer end()

	if _, err := s.exec.ExecuteCommand(ctx, tmux.DeleteSession(name)); err != nil {
		return fmt.Errorf("delete session %q: %w", name, err)
	}
	log.Printf("[tmux] deleted session %s", logutil.SanitizeForLog(name))
	return nil
}

// RenameSession renames oldName to newName unless newName is taken.
func (s *Service) RenameSession(ctx context.Context, oldName, newName string) error {
	if oldName == "" {
		return &ValidationError{Field: "session name", Reason: "must not be empty"}
	}
	if err := ValidateSessionName(newName); err != nil {
		return err
	}
	end, err := s.begin()
	if err != nil {
		return err
	}
	defer end()

	exists, err := s.existsLocked(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return &AlreadyExistsError{Name: newName}
	}
	if _, err := s.exec.ExecuteCommand(ctx, tmux.RenameSession(oldName, newName)); err != nil {
		return fmt.Errorf("rename session %q: %w", oldName, err)
	}
	log.Printf("[tmux] renamed session %s -> %s", logutil.SanitizeForLog(oldName), logutil.SanitizeForLog(newName))
	return nil
}

// SessionInfo returns one session's record, including creation time.
func (s *Service) SessionInfo(ctx context.Context, name string) (tmux.Session, error) {
	end, err := s.begin()
	if err != nil {
		return tmux.Session{}, err
	}
	defer end()

	out, err := s.exec.ExecuteCommand(ctx, tmux.SessionInfo(name))
	if err != nil {
		return tmux.Session{}, fmt.Errorf("session info %q: %w", name, err)
	}
	sess, ok := tmux.ParseSessionInfo(out, s.now())
	if !ok {
		return tmux.Session{}, fmt.Errorf("session info %q: unexpected output %q", name, out)
	}
	if countOut, err := s.exec.ExecuteCommand(ctx, tmux.SessionAttached(name)); err == nil {
		sess.State = tmux.StateFromAttached(tmux.ParseAttachedCount(countOut))
	}
	return sess, nil
}

// SendKeys types keys into the session's active pane.
func (s *Service) SendKeys(ctx context.Context, name, keys string) error {
	if keys == "" {
		return &ValidationError{Field: "keys", Reason: "must not be empty"}
	}
	end, err := s.begin()
	if err != nil {
		return err
	}
	defer end()
	return s.sendLocked(ctx, name, tmux.SendKeys(name, keys))
}

// SendKey presses one named key in the session.
func (s *Service) SendKey(ctx context.Context, name string, key tmux.Key) error {
	end, err := s.begin()
	if err != nil {
		return err
	}
	defer end()
	return s.sendLocked(ctx, name, tmux.SendKey(name, key))
}

// SendCommand types cmd and presses Enter.
func (s *Service) SendCommand(ctx context.Context, name, cmd string) error {
	if cmd == "" {
		return &ValidationError{Field: "command", Reason: "must not be empty"}
	}
	end, err := s.begin()
	if err != nil {
		return err
	}
	defer end()
	if err := s.sendLocked(ctx, name, tmux.SendKeys(name, cmd)); err != nil {
		return err
	}
	return s.sendLocked(ctx, name, tmux.SendKey(name, tmux.KeyEnter))
}

// SendInterrupt presses Ctrl+C in the session.
func (s *Service) SendInterrupt(ctx context.Context, name string) error {
	return s.SendKey(ctx, name, tmux.KeyInterrupt)
}

func (s *Service) sendLocked(ctx context.Context, name, cmd string) error {
	if _, err := s.exec.ExecuteCommand(ctx, cmd); err != nil {
		return fmt.Errorf("send keys to %q: %w", name, err)
	}
	return nil
}

// CapturePane returns the pane text with escape sequences removed.
// A non-positive lines uses tmux.DefaultCaptureLines.
func (s *Service) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	end, err := s.begin()
	if err != nil {
		return "", err
	}
	defer end()

	out, err := s.exec.ExecuteCommand(ctx, tmux.CapturePane(name, lines))
	if err != nil {
		return "", fmt.Errorf("capture pane %q: %w", name, err)
	}
	return tmux.StripANSI(out), nil
}

// CaptureLines captures the pane as display lines.
func (s *Service) CaptureLines(ctx context.Context, name string, lines int) ([]sshterminal.TerminalLine, error) {
	text, err := s.CapturePane(ctx, name, lines)
	if err != nil {
		return nil, err
	}
	at := s.now()
	var out []sshterminal.TerminalLine
	for _, line := range tmux.ParseCapturePane(text) {
		out = append(out, sshterminal.TerminalLine{Content: line, Type: sshterminal.LineOutput, Timestamp: at})
	}
	return out, nil
}
