package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/database"
	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
	"github.com/gluk-w/tmuxremote/internal/tmuxsession"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		invalidProfile *profiles.InvalidError
		invalidInput   *tmuxsession.ValidationError
		exists         *tmuxsession.AlreadyExistsError
		remote         *sshconn.RemoteCommandError
		connErr        *sshconn.ConnectionError
	)
	switch {
	case errors.As(err, &invalidProfile), errors.As(err, &invalidInput):
		return http.StatusBadRequest
	case errors.Is(err, sshmanager.ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, profiles.ErrNotFound),
		errors.Is(err, sshmanager.ErrNoConnection),
		errors.Is(err, sshconn.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, profiles.ErrDuplicateName), errors.As(err, &exists):
		return http.StatusConflict
	case errors.Is(err, tmuxsession.ErrPrerequisiteMissing),
		errors.Is(err, tmuxsession.ErrNotInitialized):
		return http.StatusPreconditionFailed
	case errors.Is(err, sshmanager.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, sshmanager.ErrTooManyConnections):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote), errors.As(err, &connErr):
		return http.StatusBadGateway
	}
	var verify *tmuxsession.CreationVerificationError
	if errors.As(err, &verify) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// loadProfile resolves the {id} URL parameter, writing a response on failure.
func loadProfile(w http.ResponseWriter, r *http.Request) (profiles.Profile, bool) {
	if Profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "Profile store not initialized")
		return profiles.Profile{}, false
	}
	p, err := profiles.Resolve(r.Context(), Profiles, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return profiles.Profile{}, false
	}
	return p, true
}

// liveEntry returns the connected entry for the {id} profile, writing a
// response on failure.
func liveEntry(w http.ResponseWriter, r *http.Request) (*sshmanager.Entry, bool) {
	p, ok := loadProfile(w, r)
	if !ok {
		return nil, false
	}
	if SSHMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "SSH manager not initialized")
		return nil, false
	}
	entry, err := SSHMgr.Get(p.ID)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return entry, true
}

// intSetting reads a numeric setting, falling back to def.
func intSetting(key string, def int) int {
	if database.DB == nil {
		return def
	}
	v, err := database.GetSetting(key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// durationSetting reads a duration setting, falling back to def.
func durationSetting(key string, def time.Duration) time.Duration {
	if database.DB == nil {
		return def
	}
	v, err := database.GetSetting(key)
	if err != nil {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func captureLines(r *http.Request) int {
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			return n
		}
	}
	return intSetting("capture_lines", config.Cfg.CaptureLines)
}
