package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/database"
)

// settingValidators lists the runtime-tunable settings and how each value
// is checked before it is stored.
var settingValidators = map[string]func(string) error{
	"monitor_interval": func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		if d < 100*time.Millisecond {
			return fmt.Errorf("must be at least 100ms")
		}
		return nil
	},
	"capture_lines": func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if n < 1 || n > 100000 {
			return fmt.Errorf("must be between 1 and 100000")
		}
		return nil
	},
}

func currentSettings() map[string]string {
	return map[string]string{
		"monitor_interval": durationSetting("monitor_interval", config.Cfg.MonitorInterval).String(),
		"capture_lines":    strconv.Itoa(intSetting("capture_lines", config.Cfg.CaptureLines)),
	}
}

func GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentSettings())
}

// UpdateSettings stores the given settings. Nothing is written unless
// every key is known and every value valid.
func UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for key, value := range req {
		validate, ok := settingValidators[key]
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown setting: "+key)
			return
		}
		if err := validate(value); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %v", key, err))
			return
		}
	}
	for key, value := range req {
		if err := database.SetSetting(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}
	writeJSON(w, http.StatusOK, currentSettings())
}
