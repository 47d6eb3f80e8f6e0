package sshterminal

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSessionRecording_Events(t *testing.T) {
	rec := NewSessionRecording("prod", 80, 24, 0)
	rec.RecordOutput([]byte("$ "))
	rec.RecordInput([]byte("ls\r"))
	rec.RecordResize(120, 40)

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	want := []struct{ code, data string }{
		{EventOutput, "$ "},
		{EventInput, "ls\r"},
		{EventResize, "120x40"},
	}
	for i, w := range want {
		if events[i].Code != w.code || events[i].Data != w.data {
			t.Errorf("event %d = %+v, want %s %q", i, events[i], w.code, w.data)
		}
	}
	if events[2].Elapsed < events[0].Elapsed {
		t.Error("elapsed times go backwards")
	}
}

func TestSessionRecording_Cap(t *testing.T) {
	rec := NewSessionRecording("", 80, 24, 2)
	for i := 0; i < 5; i++ {
		rec.RecordOutput([]byte("x"))
	}
	if n := len(rec.Events()); n != 2 {
		t.Errorf("kept %d events, want 2", n)
	}
	if rec.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", rec.Dropped())
	}
}

func TestSessionRecording_ExportCast(t *testing.T) {
	rec := NewSessionRecording("dev", 80, 24, 0)
	rec.RecordOutput([]byte("hi\n"))

	data, err := rec.ExportCast()
	if err != nil {
		t.Fatalf("ExportCast: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), data)
	}

	var header castHeader
	if err := json.Unmarshal(lines[0], &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if header.Version != 2 || header.Width != 80 || header.Height != 24 || header.Title != "dev" {
		t.Errorf("header = %+v", header)
	}

	var event []any
	if err := json.Unmarshal(lines[1], &event); err != nil {
		t.Fatalf("event: %v", err)
	}
	if len(event) != 3 || event[1] != "o" || event[2] != "hi\n" {
		t.Errorf("event = %v", event)
	}
}

func TestSessionRecording_EventsIsCopy(t *testing.T) {
	rec := NewSessionRecording("", 80, 24, 0)
	rec.RecordOutput([]byte("a"))
	events := rec.Events()
	events[0].Data = "changed"
	if rec.Events()[0].Data != "a" {
		t.Error("Events returned the internal slice")
	}
}
