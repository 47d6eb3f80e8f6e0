package handlers

import (
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gluk-w/tmuxremote/internal/logging"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
)

func TestServerLogs(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})
	logging.Init(filepath.Join(t.TempDir(), "server.log"))
	t.Cleanup(func() { logging.Close() })

	log.Printf("[tmux] marker line")

	rec := do(t, http.MethodGet, "/api/v1/server-logs?lines=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var body serverLogsResponse
	decode(t, rec, &body)
	if !strings.Contains(body.Logs, "marker line") || body.Lines != 5 {
		t.Errorf("body = %+v", body)
	}

	decode(t, do(t, http.MethodGet, "/api/v1/server-logs?lines=999999", nil), &body)
	if body.Lines != maxLogTail {
		t.Errorf("lines = %d, want clamp to %d", body.Lines, maxLogTail)
	}

	if rec := do(t, http.MethodGet, "/api/v1/server-logs?lines=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("lines=0 status = %d", rec.Code)
	}

	if rec := do(t, http.MethodDelete, "/api/v1/server-logs", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	decode(t, do(t, http.MethodGet, "/api/v1/server-logs", nil), &body)
	if strings.Contains(body.Logs, "marker line") {
		t.Errorf("logs not cleared: %q", body.Logs)
	}
}
