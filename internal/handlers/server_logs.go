package handlers

import (
	"net/http"
	"strconv"

	"github.com/gluk-w/tmuxremote/internal/logging"
)

const (
	defaultLogTail = 200
	maxLogTail     = 10000
)

type serverLogsResponse struct {
	Logs  string `json:"logs"`
	Lines int    `json:"lines"`
}

// GetServerLogs returns the tail of the server log file. ?lines is clamped
// to maxLogTail.
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogTail
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid lines")
			return
		}
		lines = min(n, maxLogTail)
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read server logs")
		return
	}
	writeJSON(w, http.StatusOK, serverLogsResponse{Logs: content, Lines: lines})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear server logs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
