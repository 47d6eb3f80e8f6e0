package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"/var/lib/tmuxremote"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8080"`

	// SSH connection defaults, applied when a profile leaves them unset
	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s"`
	KeepAliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"60s"`

	// Connection admission
	MaxConnections int    `envconfig:"MAX_CONNECTIONS" default:"0"`
	AllowedHosts   string `envconfig:"ALLOWED_HOSTS" default:""`

	// tmux session settings
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"5s"`
	CaptureLines    int           `envconfig:"CAPTURE_LINES" default:"100"`

	// Interactive shell settings
	ShellIdleTimeout time.Duration `envconfig:"SHELL_IDLE_TIMEOUT" default:"30m"`
	ShellScrollback  int           `envconfig:"SHELL_SCROLLBACK" default:"1048576"`
	ShellRecording   bool          `envconfig:"SHELL_RECORDING" default:"false"`
	CleanupSchedule  string        `envconfig:"CLEANUP_SCHEDULE" default:"@every 10m"`
}

var Cfg Settings

func Load() {
	Cfg = Settings{}
	if err := envconfig.Process("TMUXREMOTE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg.applyDerived()
}

// applyDerived fills paths that default to locations under DataPath.
func (s *Settings) applyDerived() {
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "tmuxremote.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "tmuxremote.log")
	}
}
