package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("TMUXREMOTE_DATA_PATH")
	os.Unsetenv("TMUXREMOTE_DATABASE_PATH")
	os.Unsetenv("TMUXREMOTE_LOG_PATH")

	Load()

	if Cfg.DataPath != "/var/lib/tmuxremote" {
		t.Errorf("DataPath = %q", Cfg.DataPath)
	}
	if Cfg.DatabasePath != "/var/lib/tmuxremote/tmuxremote.db" {
		t.Errorf("DatabasePath = %q", Cfg.DatabasePath)
	}
	if Cfg.LogPath != "/var/lib/tmuxremote/tmuxremote.log" {
		t.Errorf("LogPath = %q", Cfg.LogPath)
	}
	if Cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %s", Cfg.ConnectTimeout)
	}
	if Cfg.KeepAliveInterval != 60*time.Second {
		t.Errorf("KeepAliveInterval = %s", Cfg.KeepAliveInterval)
	}
	if Cfg.MonitorInterval != 5*time.Second {
		t.Errorf("MonitorInterval = %s", Cfg.MonitorInterval)
	}
	if Cfg.CaptureLines != 100 {
		t.Errorf("CaptureLines = %d", Cfg.CaptureLines)
	}
	if Cfg.MaxConnections != 0 || Cfg.AllowedHosts != "" {
		t.Errorf("admission = %d %q", Cfg.MaxConnections, Cfg.AllowedHosts)
	}
	if Cfg.ShellScrollback != 1<<20 || Cfg.ShellRecording {
		t.Errorf("shell = %d %v", Cfg.ShellScrollback, Cfg.ShellRecording)
	}
	if Cfg.CleanupSchedule != "@every 10m" {
		t.Errorf("CleanupSchedule = %q", Cfg.CleanupSchedule)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TMUXREMOTE_DATA_PATH", "/tmp/tr")
	t.Setenv("TMUXREMOTE_MONITOR_INTERVAL", "750ms")
	t.Setenv("TMUXREMOTE_CAPTURE_LINES", "500")

	Load()

	if Cfg.DatabasePath != "/tmp/tr/tmuxremote.db" {
		t.Errorf("DatabasePath = %q", Cfg.DatabasePath)
	}
	if Cfg.MonitorInterval != 750*time.Millisecond {
		t.Errorf("MonitorInterval = %s", Cfg.MonitorInterval)
	}
	if Cfg.CaptureLines != 500 {
		t.Errorf("CaptureLines = %d", Cfg.CaptureLines)
	}
}
