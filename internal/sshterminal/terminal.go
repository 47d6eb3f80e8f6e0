package sshterminal

import (
	"fmt"
	"sync"
	"time"
)

// Limits applied to input arriving from shell clients.
const (
	// MaxInputMessageSize caps a single input frame.
	MaxInputMessageSize = 64 * 1024

	MinTermCols = 10
	MinTermRows = 2
	MaxTermCols = 500
	MaxTermRows = 200

	// MessageRateLimit and MessageRateBurst bound client frames per second.
	MessageRateLimit = 100
	MessageRateBurst = 200
)

// ValidateResize rejects terminal dimensions outside the supported range.
func ValidateResize(cols, rows int) error {
	if cols < MinTermCols || cols > MaxTermCols {
		return fmt.Errorf("cols %d out of range %d-%d", cols, MinTermCols, MaxTermCols)
	}
	if rows < MinTermRows || rows > MaxTermRows {
		return fmt.Errorf("rows %d out of range %d-%d", rows, MinTermRows, MaxTermRows)
	}
	return nil
}

// ValidateInput rejects input frames larger than MaxInputMessageSize.
func ValidateInput(p []byte) error {
	if len(p) > MaxInputMessageSize {
		return fmt.Errorf("input of %d bytes exceeds limit of %d", len(p), MaxInputMessageSize)
	}
	return nil
}

// RateLimiter is a token bucket used to throttle client frames.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter refilling rate tokens per second up to burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes a token, reporting false when none is left.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	rl.lastRefill = now
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
