package tmuxsession

import (
	"context"
	"log"
	"time"

	"github.com/gluk-w/tmuxremote/internal/tmux"
)

// DefaultMonitorInterval is used when Monitor is given a non-positive interval.
const DefaultMonitorInterval = 5 * time.Second

// Snapshot is one monitor poll result.
type Snapshot struct {
	Sessions []tmux.Session `json:"sessions"`
	Diff     Diff           `json:"diff"`
	At       time.Time      `json:"at"`
}

// Monitor polls ListSessions every interval and sends each result, with
// its diff against the previous one, on the returned channel. A failed
// poll is skipped. The channel is closed when ctx is done or
// StopMonitoring is called. Starting a monitor stops the previous one.
//
// Stopping takes effect between polls: a listing already in flight runs
// to completion so the connection is never left mid-command.
func (s *Service) Monitor(ctx context.Context, interval time.Duration) <-chan Snapshot {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	s.monMu.Lock()
	if s.monCancel != nil {
		s.monCancel()
	}
	mctx, cancel := context.WithCancel(ctx)
	s.monCancel = cancel
	s.monMu.Unlock()

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer cancel()

		pollCtx := context.WithoutCancel(mctx)
		timer := time.NewTimer(0)
		defer timer.Stop()

		var prev []tmux.Session
		for {
			select {
			case <-mctx.Done():
				return
			case <-timer.C:
			}

			sessions, err := s.ListSessions(pollCtx)
			if err != nil {
				log.Printf("[monitor] poll skipped: %v", err)
			} else {
				snap := Snapshot{Sessions: sessions, Diff: ComputeDiff(prev, sessions), At: s.now()}
				select {
				case out <- snap:
					prev = sessions
				case <-mctx.Done():
					return
				}
			}
			timer.Reset(interval)
		}
	}()
	return out
}

// StopMonitoring ends the running monitor, if any.
func (s *Service) StopMonitoring() {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	if s.monCancel != nil {
		s.monCancel()
		s.monCancel = nil
	}
}
