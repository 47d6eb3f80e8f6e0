package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
)

type execRequest struct {
	Command string `json:"command"`
}

// execResult is the final NDJSON record of an exec stream.
type execResult struct {
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// lineSplitter turns arbitrary output chunks into whole lines, holding a
// partial last line until more output or flush.
type lineSplitter struct {
	typ     sshterminal.LineType
	partial string
	emit    func(sshterminal.TerminalLine)
}

func (s *lineSplitter) write(chunk string) {
	text := s.partial + strings.ReplaceAll(chunk, "\r\n", "\n")
	idx := strings.LastIndex(text, "\n")
	if idx < 0 {
		s.partial = text
		return
	}
	s.partial = text[idx+1:]
	for _, line := range sshterminal.SplitLines(text[:idx+1], s.typ, time.Now()) {
		s.emit(line)
	}
}

func (s *lineSplitter) flush() {
	if s.partial != "" {
		s.emit(sshterminal.NewLine(s.partial, s.typ))
		s.partial = ""
	}
}

// ExecCommand runs a one-off command on the profile's host and streams its
// output as newline-delimited JSON: the command echo, one TerminalLine per
// output line (OUTPUT for stdout, ERROR for stderr), then an execResult.
func ExecCommand(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	var req execRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	send := func(v interface{}) {
		if err := enc.Encode(v); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	sendLine := func(l sshterminal.TerminalLine) { send(l) }

	send(sshterminal.NewLine("$ "+req.Command, sshterminal.LineCommand))
	stdout := &lineSplitter{typ: sshterminal.LineOutput, emit: sendLine}
	stderr := &lineSplitter{typ: sshterminal.LineError, emit: sendLine}

	log.Printf("[ssh] exec on %s: %s", logutil.SanitizeForLog(entry.ProfileID), logutil.Truncate(req.Command))
	code, err := entry.Conn.ExecuteCommandStream(r.Context(), req.Command, stdout.write, stderr.write)
	stdout.flush()
	stderr.flush()

	result := execResult{ExitCode: code}
	if err != nil {
		result.Error = err.Error()
	}
	send(result)
}
