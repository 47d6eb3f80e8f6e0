package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/tmuxremote/internal/sshterminal"
)

type termResizeMsg struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// ShellWS relays an interactive shell on the profile's host over a WebSocket.
// Binary frames carry terminal bytes both ways; text frames from the client
// carry resize messages.
//
// Query parameters:
//   - session_id: (optional) re-attach to a detached shell of this profile.
//     Missing or unknown IDs start a new shell.
//
// Shells outlive the WebSocket: on disconnect the shell is detached and its
// output keeps accumulating in scrollback, which is replayed on re-attach.
func ShellWS(w http.ResponseWriter, r *http.Request) {
	entry, ok := liveEntry(w, r)
	if !ok {
		return
	}
	if TermSessionMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "Shell manager not initialized")
		return
	}

	var ss *sshterminal.ShellSession
	if id := r.URL.Query().Get("session_id"); id != "" {
		ss = TermSessionMgr.Get(id)
		if ss != nil && (ss.ProfileID != entry.ProfileID || ss.State() == sshterminal.SessionClosed) {
			ss = nil
		}
		if ss != nil && ss.State() == sshterminal.SessionActive {
			writeError(w, http.StatusConflict, "Shell already attached")
			return
		}
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[session-mgr] accept websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	ctx := r.Context()
	if ss == nil {
		ss, err = TermSessionMgr.Open(ctx, entry.Conn, entry.ProfileID)
		if err != nil {
			log.Printf("[session-mgr] open shell for %s: %v", entry.ProfileID, err)
			clientConn.Close(4500, "Failed to start shell")
			return
		}
	} else if err := ss.Attach(); err != nil {
		clientConn.Close(4410, "Shell closed")
		return
	} else {
		log.Printf("[session-mgr] shell %s re-attached", ss.ID)
	}

	clientConn.SetReadLimit(sshterminal.MaxInputMessageSize + 1024)

	info, _ := json.Marshal(map[string]string{
		"type":       "session_info",
		"session_id": ss.ID,
	})
	if err := clientConn.Write(ctx, websocket.MessageText, info); err != nil {
		ss.Detach()
		return
	}

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	// Shell -> client, starting with the scrollback.
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		defer relayCancel()
		relayOutput(relayCtx, clientConn, ss)
	}()

	limiter := sshterminal.NewRateLimiter(sshterminal.MessageRateLimit, sshterminal.MessageRateBurst)

	// Client -> shell.
	for {
		msgType, data, err := clientConn.Read(relayCtx)
		if err != nil {
			break
		}
		if !limiter.Allow() {
			continue
		}
		if msgType == websocket.MessageBinary {
			if _, err := ss.Write(data); err != nil {
				log.Printf("[session-mgr] shell %s input: %v", ss.ID, err)
				if ss.State() == sshterminal.SessionClosed {
					break
				}
			}
			continue
		}
		var msg termResizeMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "resize" {
			continue
		}
		if err := ss.Resize(msg.Cols, msg.Rows); err != nil {
			log.Printf("[session-mgr] shell %s resize: %v", ss.ID, err)
		}
	}
	relayCancel()
	<-relayDone

	if ss.State() == sshterminal.SessionClosed {
		clientConn.Close(websocket.StatusNormalClosure, "Shell exited")
		return
	}
	ss.Detach()
	log.Printf("[session-mgr] shell %s detached", ss.ID)
	clientConn.Close(websocket.StatusNormalClosure, "")
}

// relayOutput sends scrollback from the start, then new output as it
// arrives, until ctx ends or the shell closes.
func relayOutput(ctx context.Context, conn *websocket.Conn, ss *sshterminal.ShellSession) {
	offset := 0
	for {
		data, next := ss.Scrollback.Since(offset)
		offset = next
		if len(data) > 0 {
			if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
				return
			}
		}
		if ss.Scrollback.IsClosed() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ss.Scrollback.Notify():
		}
	}
}

type shellResponse struct {
	ID           string                   `json:"id"`
	State        sshterminal.SessionState `json:"state"`
	CreatedAt    time.Time                `json:"created_at"`
	ClosedAt     *time.Time               `json:"closed_at,omitempty"`
	LastActivity time.Time                `json:"last_activity"`
	Scrollback   int                      `json:"scrollback_bytes"`
	Recording    bool                     `json:"recording"`
}

func toShellResponse(ss *sshterminal.ShellSession) shellResponse {
	return shellResponse{
		ID:           ss.ID,
		State:        ss.State(),
		CreatedAt:    ss.CreatedAt,
		ClosedAt:     ss.ClosedAt,
		LastActivity: ss.LastActivity(),
		Scrollback:   ss.Scrollback.Len(),
		Recording:    ss.Recording != nil,
	}
}

// ListShells returns the profile's shells. ?all=true includes closed ones.
func ListShells(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok {
		return
	}
	resp := []shellResponse{}
	if TermSessionMgr != nil {
		for _, ss := range TermSessionMgr.List(p.ID, r.URL.Query().Get("all") != "true") {
			resp = append(resp, toShellResponse(ss))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// profileShell finds the {sessionId} shell of the {id} profile.
func profileShell(w http.ResponseWriter, r *http.Request) (*sshterminal.ShellSession, bool) {
	p, ok := loadProfile(w, r)
	if !ok {
		return nil, false
	}
	if TermSessionMgr == nil {
		writeError(w, http.StatusNotFound, "Shell not found")
		return nil, false
	}
	ss := TermSessionMgr.Get(chi.URLParam(r, "sessionId"))
	if ss == nil || ss.ProfileID != p.ID {
		writeError(w, http.StatusNotFound, "Shell not found")
		return nil, false
	}
	return ss, true
}

func CloseShell(w http.ResponseWriter, r *http.Request) {
	ss, ok := profileShell(w, r)
	if !ok {
		return
	}
	if err := TermSessionMgr.Close(ss.ID); err != nil {
		writeErr(w, err)
		return
	}
	TermSessionMgr.Remove(ss.ID)
	w.WriteHeader(http.StatusNoContent)
}

// GetShellScrollback returns the buffered output as display lines.
func GetShellScrollback(w http.ResponseWriter, r *http.Request) {
	ss, ok := profileShell(w, r)
	if !ok {
		return
	}
	lines := ss.Scrollback.Lines(time.Now())
	if lines == nil {
		lines = []sshterminal.TerminalLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// GetShellRecording downloads the shell's recording as an asciicast v2 file.
func GetShellRecording(w http.ResponseWriter, r *http.Request) {
	ss, ok := profileShell(w, r)
	if !ok {
		return
	}
	if ss.Recording == nil {
		writeError(w, http.StatusNotFound, "Recording not enabled for this shell")
		return
	}
	data, err := ss.Recording.ExportCast()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-asciicast")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ss.ID+`.cast"`)
	w.Write(data)
}
