package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/database"
	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
	"github.com/gluk-w/tmuxremote/internal/sshtest"
	"github.com/gluk-w/tmuxremote/internal/tmuxsession"
)

// setupHandlers installs an in-memory database, a profile store, and fresh
// managers as the package globals for the duration of the test.
func setupHandlers(t *testing.T, opts sshmanager.Options) {
	t.Helper()

	db, err := database.Open(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	mgr, err := sshmanager.NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	prevDB, prevProfiles, prevMgr, prevTerm, prevCfg := database.DB, Profiles, SSHMgr, TermSessionMgr, config.Cfg
	database.DB = db
	Profiles = profiles.NewGormStore(db)
	SSHMgr = mgr
	TermSessionMgr = sshterminal.NewSessionManager()
	config.Cfg.ConnectTimeout = 5 * time.Second
	config.Cfg.KeepAliveInterval = time.Minute
	config.Cfg.CaptureLines = 100
	config.Cfg.MonitorInterval = time.Second

	t.Cleanup(func() {
		TermSessionMgr.CloseAll()
		SSHMgr.CloseAll()
		database.DB, Profiles, SSHMgr, TermSessionMgr, config.Cfg = prevDB, prevProfiles, prevMgr, prevTerm, prevCfg
	})
}

// addProfile stores a profile pointing at srv with the test credentials.
func addProfile(t *testing.T, name string, srv *sshtest.Server) profiles.Profile {
	t.Helper()
	p := &profiles.Profile{
		Name:     name,
		Host:     srv.Host,
		Port:     srv.Port,
		Username: sshtest.User,
		Password: sshtest.Password,
	}
	if err := Profiles.Add(context.Background(), p); err != nil {
		t.Fatalf("add profile: %v", err)
	}
	return *p
}

// connectedProfile starts a server backed by fake, stores a profile for it,
// and connects it through the API.
func connectedProfile(t *testing.T, fake *sshtest.FakeTmux) (profiles.Profile, *sshtest.Server) {
	t.Helper()
	srv := sshtest.NewServer(t, fake.Exec)
	p := addProfile(t, "box", srv)
	rec := do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/connect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: %d %s", rec.Code, rec.Body.String())
	}
	return p, srv
}

func do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["detail"]
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&profiles.InvalidError{Reason: "x"}, http.StatusBadRequest},
		{&tmuxsession.ValidationError{Field: "name", Reason: "x"}, http.StatusBadRequest},
		{sshmanager.ErrHostNotAllowed, http.StatusForbidden},
		{fmt.Errorf("wrap: %w", profiles.ErrNotFound), http.StatusNotFound},
		{sshmanager.ErrNoConnection, http.StatusNotFound},
		{&sshconn.RemoteCommandError{Command: "x", Err: sshconn.ErrNotConnected}, http.StatusNotFound},
		{profiles.ErrDuplicateName, http.StatusConflict},
		{&tmuxsession.AlreadyExistsError{Name: "a"}, http.StatusConflict},
		{tmuxsession.ErrPrerequisiteMissing, http.StatusPreconditionFailed},
		{tmuxsession.ErrNotInitialized, http.StatusPreconditionFailed},
		{fmt.Errorf("x: %w", sshmanager.ErrRateLimited), http.StatusTooManyRequests},
		{sshmanager.ErrTooManyConnections, http.StatusServiceUnavailable},
		{&sshconn.RemoteCommandError{Command: "x", Stderr: "boom"}, http.StatusBadGateway},
		{&sshconn.ConnectionError{Addr: "h:22", Err: errors.New("refused")}, http.StatusBadGateway},
		{&tmuxsession.CreationVerificationError{Name: "a"}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})

	rec := do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	decode(t, rec, &body)
	if body["status"] != "healthy" || body["database"] != "connected" {
		t.Errorf("body = %v", body)
	}
}

func TestSettings(t *testing.T) {
	setupHandlers(t, sshmanager.Options{})

	rec := do(t, http.MethodPut, "/api/v1/settings", map[string]string{"capture_lines": "250", "monitor_interval": "2s"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	var got map[string]string
	decode(t, do(t, http.MethodGet, "/api/v1/settings", nil), &got)
	if got["capture_lines"] != "250" || got["monitor_interval"] != "2s" {
		t.Errorf("settings = %v", got)
	}

	for _, body := range []map[string]string{
		{"capture_lines": "zero"},
		{"monitor_interval": "1ms"},
		{"unknown": "1"},
	} {
		if rec := do(t, http.MethodPut, "/api/v1/settings", body); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %v = %d", body, rec.Code)
		}
	}
}
