package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
)

// statusEvents is how many transitions and events a status response carries.
const statusEvents = 20

func requireManager(w http.ResponseWriter) bool {
	if SSHMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "SSH manager not initialized")
		return false
	}
	return true
}

// ConnectProfile connects the profile and brings up tmux on the host.
func ConnectProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok || !requireManager(w) {
		return
	}

	entry, err := SSHMgr.Connect(r.Context(), p.ID, p.ConnProfile())
	if err != nil {
		log.Printf("[ssh] connect profile %s: %v", logutil.SanitizeForLog(p.Name), err)
		writeErr(w, err)
		return
	}
	if err := Profiles.TouchLastConnected(r.Context(), p.ID); err != nil {
		log.Printf("[profiles] touch %s: %v", logutil.SanitizeForLog(p.Name), err)
	}
	log.Printf("[ssh] profile %s connected (tmux %s)", logutil.SanitizeForLog(p.Name), entry.TmuxVersion)
	writeJSON(w, http.StatusOK, SSHMgr.Status(p.ID, statusEvents))
}

func DisconnectProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok || !requireManager(w) {
		return
	}
	if TermSessionMgr != nil {
		TermSessionMgr.CloseAllForProfile(p.ID)
	}
	if err := SSHMgr.Disconnect(p.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SSHMgr.Status(p.ID, statusEvents))
}

func ReconnectProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok || !requireManager(w) {
		return
	}
	if _, err := SSHMgr.Reconnect(r.Context(), p.ID); err != nil {
		writeErr(w, err)
		return
	}
	if err := Profiles.TouchLastConnected(r.Context(), p.ID); err != nil {
		log.Printf("[profiles] touch %s: %v", logutil.SanitizeForLog(p.Name), err)
	}
	writeJSON(w, http.StatusOK, SSHMgr.Status(p.ID, statusEvents))
}

func GetConnectionStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok || !requireManager(w) {
		return
	}
	n := statusEvents
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = v
		}
	}
	writeJSON(w, http.StatusOK, SSHMgr.Status(p.ID, n))
}

// ListConnections reports the state of every profile seen since startup.
func ListConnections(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"states":           SSHMgr.States(),
		"count":            SSHMgr.Count(),
		"connect_failed":   SSHMgr.EventCounts(sshmanager.EventConnectFailed),
		"tmux_unavailable": SSHMgr.EventCounts(sshmanager.EventTmuxUnavailable),
	})
}

// TestProfileConnection dials the profile on a throwaway connection, runs
// a trivial command and reports the outcome. It never touches the managed
// connection.
func TestProfileConnection(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.ConnProfile().ConnectTimeout+5*time.Second)
	defer cancel()

	start := time.Now()
	conn := sshconn.New(p.ConnProfile())
	okConn := conn.TestConnection(ctx)
	latency := time.Since(start).Milliseconds()

	status := "ok"
	if !okConn {
		status = "error"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"address":    p.DisplayAddress(),
		"latency_ms": latency,
	})
}

func ResetConnectRateLimit(w http.ResponseWriter, r *http.Request) {
	p, ok := loadProfile(w, r)
	if !ok || !requireManager(w) {
		return
	}
	SSHMgr.ResetRateLimit(p.ID)
	writeJSON(w, http.StatusOK, SSHMgr.RateLimitStatus(p.ID))
}
