package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
	"github.com/gluk-w/tmuxremote/internal/tmux"
	"github.com/gluk-w/tmuxremote/internal/tmuxsession"
)

type sessionResponse struct {
	tmux.Session
	StateText string `json:"state_text"`
}

func toSessionResponses(sessions []tmux.Session) []sessionResponse {
	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionResponse{Session: s, StateText: s.StateText()}
	}
	return resp
}

func ListSessions(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	sessions, err := entry.Service.ListSessions(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponses(sessions))
}

type sessionNameRequest struct {
	Name string `json:"name"`
}

func CreateSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	var req sessionNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := entry.Service.CreateSession(r.Context(), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: sess, StateText: sess.StateText()})
}

func GetSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	exists, err := entry.Service.SessionExists(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	sess, err := entry.Service.SessionInfo(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, StateText: sess.StateText()})
}

func DeleteSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	if err := entry.Service.DeleteSession(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameSession renames {name} to the name in the body.
func RenameSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	var req sessionNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := entry.Service.RenameSession(r.Context(), chi.URLParam(r, "name"), req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})
}

// keysRequest carries exactly one of its fields.
type keysRequest struct {
	Text    string `json:"text,omitempty"`
	Key     string `json:"key,omitempty"`
	Command string `json:"command,omitempty"`
}

func SendSessionKeys(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	var req keysRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	set := 0
	for _, v := range []string{req.Text, req.Key, req.Command} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		writeError(w, http.StatusBadRequest, "Exactly one of text, key or command is required")
		return
	}

	name := chi.URLParam(r, "name")
	var err error
	switch {
	case req.Text != "":
		err = entry.Service.SendKeys(r.Context(), name, req.Text)
	case req.Command != "":
		err = entry.Service.SendCommand(r.Context(), name, req.Command)
	default:
		key, known := tmux.ParseKey(req.Key)
		if !known {
			writeError(w, http.StatusBadRequest, "Unknown key: "+req.Key)
			return
		}
		err = entry.Service.SendKey(r.Context(), name, key)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CaptureSession returns the pane as display lines. ?format=text returns
// the raw captured text instead.
func CaptureSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	lines := captureLines(r)

	if r.URL.Query().Get("format") == "text" {
		text, err := entry.Service.CapturePane(r.Context(), name, lines)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))
		return
	}

	out, err := entry.Service.CaptureLines(r.Context(), name, lines)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []sshterminal.TerminalLine{}
	}
	writeJSON(w, http.StatusOK, out)
}

// MonitorSessions streams session snapshots over a WebSocket until the
// client goes away or another monitor takes over the profile.
//
// Query parameters:
//   - interval: poll interval as a Go duration (default from settings).
func MonitorSessions(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}

	interval := durationSetting("monitor_interval", config.Cfg.MonitorInterval)
	if q := r.URL.Query().Get("interval"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d < 100*time.Millisecond {
			writeError(w, http.StatusBadRequest, "Invalid interval")
			return
		}
		interval = d
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[monitor] accept websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	// The client only listens; CloseRead cancels ctx when it goes away.
	ctx := clientConn.CloseRead(r.Context())
	snapshots := entry.Service.Monitor(ctx, interval)
	log.Printf("[monitor] streaming %s every %s", logutil.SanitizeForLog(entry.ProfileID), interval)

	for snap := range snapshots {
		data, err := json.Marshal(monitorFrame(snap))
		if err != nil {
			continue
		}
		if err := clientConn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}

	if ctx.Err() == nil {
		clientConn.Close(websocket.StatusGoingAway, "Monitor stopped")
		return
	}
	clientConn.Close(websocket.StatusNormalClosure, "")
}

type monitorMessage struct {
	Sessions []sessionResponse `json:"sessions"`
	Diff     tmuxsession.Diff  `json:"diff"`
	At       time.Time         `json:"at"`
}

func monitorFrame(snap tmuxsession.Snapshot) monitorMessage {
	return monitorMessage{
		Sessions: toSessionResponses(snap.Sessions),
		Diff:     snap.Diff,
		At:       snap.At,
	}
}

// StopMonitor stops whatever monitor is running for the profile.
func StopMonitor(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	entry.Service.StopMonitoring()
	w.WriteHeader(http.StatusNoContent)
}
