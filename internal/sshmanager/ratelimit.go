package sshmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Connection attempt limits. A profile is refused when it exceeds the
// per-minute budget, and blocked for BlockDuration after MaxConsecFailures
// failures in a row.
const (
	DefaultMaxAttemptsPerMinute = 10
	DefaultMaxConsecFailures    = 5
	DefaultBlockDuration        = 5 * time.Minute
)

// ErrRateLimited is wrapped by every error returned from ConnectLimiter.Allow.
var ErrRateLimited = errors.New("connection rate limited")

// RateLimitConfig configures a ConnectLimiter.
type RateLimitConfig struct {
	MaxAttemptsPerMinute int
	MaxConsecFailures    int
	BlockDuration        time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttemptsPerMinute: DefaultMaxAttemptsPerMinute,
		MaxConsecFailures:    DefaultMaxConsecFailures,
		BlockDuration:        DefaultBlockDuration,
	}
}

type attemptState struct {
	attempts       []time.Time
	consecFailures int
	blockedUntil   time.Time
}

// ConnectLimiter throttles connection attempts per profile.
type ConnectLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	state  map[string]*attemptState
	nowFn  func() time.Time
}

func NewConnectLimiter(config RateLimitConfig) *ConnectLimiter {
	return &ConnectLimiter{
		config: config,
		state:  make(map[string]*attemptState),
		nowFn:  time.Now,
	}
}

// Allow records an attempt for profileID, or refuses it with an error
// wrapping ErrRateLimited.
func (cl *ConnectLimiter) Allow(profileID string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.nowFn()
	s := cl.stateFor(profileID)

	if now.Before(s.blockedUntil) {
		remaining := s.blockedUntil.Sub(now).Truncate(time.Second)
		return fmt.Errorf("%w: blocked after %d consecutive failures, retry in %s",
			ErrRateLimited, s.consecFailures, remaining)
	}

	s.attempts = pruneBefore(s.attempts, now.Add(-time.Minute))
	if cl.config.MaxAttemptsPerMinute > 0 && len(s.attempts) >= cl.config.MaxAttemptsPerMinute {
		return fmt.Errorf("%w: %d attempts in the last minute (max %d)",
			ErrRateLimited, len(s.attempts), cl.config.MaxAttemptsPerMinute)
	}
	s.attempts = append(s.attempts, now)
	return nil
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RecordSuccess clears the failure streak and any block.
func (cl *ConnectLimiter) RecordSuccess(profileID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	s := cl.stateFor(profileID)
	s.consecFailures = 0
	s.blockedUntil = time.Time{}
}

// RecordFailure extends the failure streak, blocking the profile once it
// reaches MaxConsecFailures.
func (cl *ConnectLimiter) RecordFailure(profileID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	s := cl.stateFor(profileID)
	s.consecFailures++
	if cl.config.MaxConsecFailures > 0 && s.consecFailures >= cl.config.MaxConsecFailures {
		s.blockedUntil = cl.nowFn().Add(cl.config.BlockDuration)
	}
}

// RateLimitStatus describes a profile's standing with the limiter.
type RateLimitStatus struct {
	RecentAttempts    int        `json:"recent_attempts"`
	MaxAttemptsPerMin int        `json:"max_attempts_per_min"`
	ConsecFailures    int        `json:"consec_failures"`
	MaxConsecFailures int        `json:"max_consec_failures"`
	Blocked           bool       `json:"blocked"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

func (cl *ConnectLimiter) Status(profileID string) RateLimitStatus {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	status := RateLimitStatus{
		MaxAttemptsPerMin: cl.config.MaxAttemptsPerMinute,
		MaxConsecFailures: cl.config.MaxConsecFailures,
	}
	s, ok := cl.state[profileID]
	if !ok {
		return status
	}

	now := cl.nowFn()
	cutoff := now.Add(-time.Minute)
	for _, t := range s.attempts {
		if t.After(cutoff) {
			status.RecentAttempts++
		}
	}
	status.ConsecFailures = s.consecFailures
	if now.Before(s.blockedUntil) {
		until := s.blockedUntil
		status.Blocked = true
		status.BlockedUntil = &until
	}
	return status
}

// Reset forgets everything about profileID.
func (cl *ConnectLimiter) Reset(profileID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.state, profileID)
}

// stateFor must be called with cl.mu held.
func (cl *ConnectLimiter) stateFor(profileID string) *attemptState {
	s, ok := cl.state[profileID]
	if !ok {
		s = &attemptState{}
		cl.state[profileID] = s
	}
	return s
}
