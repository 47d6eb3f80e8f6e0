package sshterminal

import (
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// defaultScrollbackSize is the default maximum scrollback buffer size (1 MB).
const defaultScrollbackSize = 1024 * 1024

// ScrollbackBuffer keeps the most recent shell output so a client that
// attaches late, or re-attaches, can be shown what it missed. Older bytes
// are dropped from the front once maxLen is exceeded.
type ScrollbackBuffer struct {
	mu     sync.Mutex
	data   []byte
	maxLen int
	// total counts every byte ever written, trimmed ones included.
	total  int
	closed bool
	notify chan struct{}
}

// NewScrollbackBuffer creates a buffer holding at most maxLen bytes.
// If maxLen <= 0, defaultScrollbackSize is used.
func NewScrollbackBuffer(maxLen int) *ScrollbackBuffer {
	if maxLen <= 0 {
		maxLen = defaultScrollbackSize
	}
	return &ScrollbackBuffer{
		maxLen: maxLen,
		notify: make(chan struct{}, 1),
	}
}

// Write appends p and wakes one waiting reader. Writes after Close are dropped.
func (s *ScrollbackBuffer) Write(p []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.data = append(s.data, p...)
	s.total += len(p)
	if len(s.data) > s.maxLen {
		s.data = append([]byte(nil), s.data[len(s.data)-s.maxLen:]...)
	}
	s.mu.Unlock()
	s.signal()
}

// Close marks the buffer as closed and wakes readers.
func (s *ScrollbackBuffer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *ScrollbackBuffer) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current contents.
func (s *ScrollbackBuffer) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]byte, len(s.data))
	copy(result, s.data)
	return result
}

// Since returns the bytes written after the first offset bytes ever
// written, together with the new offset. When part of that range has
// already been trimmed, what is still buffered is returned.
func (s *ScrollbackBuffer) Since(offset int) ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := offset - (s.total - len(s.data))
	if start < 0 || start > len(s.data) {
		start = 0
	}
	out := make([]byte, len(s.data)-start)
	copy(out, s.data[start:])
	return out, s.total
}

// Lines renders the buffer as OUTPUT lines with escape sequences removed.
func (s *ScrollbackBuffer) Lines(at time.Time) []TerminalLine {
	return SplitLines(ansi.Strip(string(s.Snapshot())), LineOutput, at)
}

// Len returns the current buffer length.
func (s *ScrollbackBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IsClosed reports whether Close has been called.
func (s *ScrollbackBuffer) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Notify is signaled when new data arrives or the buffer closes.
func (s *ScrollbackBuffer) Notify() <-chan struct{} {
	return s.notify
}
