package sshterminal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Recording event codes, as used by asciicast v2.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventResize = "r"
)

// RecordingEvent is one timestamped event of a shell recording.
type RecordingEvent struct {
	Elapsed float64
	Code    string
	Data    string
}

// MarshalJSON encodes the event as an asciicast [time, code, data] triple.
func (e RecordingEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Elapsed, e.Code, e.Data})
}

type castHeader struct {
	Version   int    `json:"version"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title,omitempty"`
}

// SessionRecording captures a shell's traffic so it can be exported as an
// asciicast v2 file. It is safe for concurrent use.
type SessionRecording struct {
	mu        sync.Mutex
	title     string
	start     time.Time
	width     int
	height    int
	events    []RecordingEvent
	maxEvents int
	dropped   int
}

// NewSessionRecording starts a recording at the given terminal size.
// maxEvents <= 0 means unbounded.
func NewSessionRecording(title string, cols, rows, maxEvents int) *SessionRecording {
	return &SessionRecording{
		title:     title,
		start:     time.Now(),
		width:     cols,
		height:    rows,
		maxEvents: maxEvents,
	}
}

func (sr *SessionRecording) add(code, data string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.maxEvents > 0 && len(sr.events) >= sr.maxEvents {
		sr.dropped++
		return
	}
	sr.events = append(sr.events, RecordingEvent{
		Elapsed: time.Since(sr.start).Seconds(),
		Code:    code,
		Data:    data,
	})
}

func (sr *SessionRecording) RecordOutput(data []byte) { sr.add(EventOutput, string(data)) }

func (sr *SessionRecording) RecordInput(data []byte) { sr.add(EventInput, string(data)) }

func (sr *SessionRecording) RecordResize(cols, rows int) {
	sr.add(EventResize, fmt.Sprintf("%dx%d", cols, rows))
}

// Events returns a copy of the recorded events.
func (sr *SessionRecording) Events() []RecordingEvent {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]RecordingEvent(nil), sr.events...)
}

// Dropped returns how many events were discarded after the cap was hit.
func (sr *SessionRecording) Dropped() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.dropped
}

// ExportCast renders the recording as asciicast v2: a JSON header line
// followed by one JSON array per event.
func (sr *SessionRecording) ExportCast() ([]byte, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	err := enc.Encode(castHeader{
		Version:   2,
		Width:     sr.width,
		Height:    sr.height,
		Timestamp: sr.start.Unix(),
		Title:     sr.title,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cast header: %w", err)
	}
	for _, e := range sr.events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode cast event: %w", err)
		}
	}
	return buf.Bytes(), nil
}
