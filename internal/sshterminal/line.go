package sshterminal

import (
	"strings"
	"time"
)

// LineType tags where a TerminalLine came from.
type LineType string

const (
	LineOutput  LineType = "OUTPUT"
	LineError   LineType = "ERROR"
	LineCommand LineType = "COMMAND"
	LineSystem  LineType = "SYSTEM"
)

// TerminalLine is one rendered line of terminal output. It is a display
// artifact only; nothing is stored on the remote host.
type TerminalLine struct {
	Content   string    `json:"content"`
	Type      LineType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLine stamps content with the current time.
func NewLine(content string, typ LineType) TerminalLine {
	return TerminalLine{Content: content, Type: typ, Timestamp: time.Now()}
}

// FormattedTime renders the timestamp as HH:MM:SS.
func (l TerminalLine) FormattedTime() string {
	return l.Timestamp.Format("15:04:05")
}

// SplitLines turns a block of text into lines of one type sharing a
// timestamp. A trailing newline does not produce an empty final line.
func SplitLines(text string, typ LineType, at time.Time) []TerminalLine {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	lines := make([]TerminalLine, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, TerminalLine{Content: p, Type: typ, Timestamp: at})
	}
	return lines
}
