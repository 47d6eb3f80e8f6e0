package profiles

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gluk-w/tmuxremote/internal/config"
)

func TestValidate(t *testing.T) {
	base := Profile{Name: "web", Host: "h", Port: 22, Username: "u", Password: "p"}

	tests := []struct {
		name   string
		mutate func(*Profile)
		reason string
	}{
		{"valid", func(*Profile) {}, ""},
		{"key only", func(p *Profile) { p.Password = ""; p.PrivateKey = "k" }, ""},
		{"no name", func(p *Profile) { p.Name = "  " }, "name"},
		{"no host", func(p *Profile) { p.Host = "" }, "host"},
		{"port zero", func(p *Profile) { p.Port = 0 }, "port"},
		{"port high", func(p *Profile) { p.Port = 70000 }, "port"},
		{"no user", func(p *Profile) { p.Username = "" }, "username"},
		{"no secret", func(p *Profile) { p.Password = "" }, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := p.Validate()
			if tt.reason == "" {
				if err != nil || !p.IsValid() {
					t.Errorf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("Validate = %v, want mention of %q", err, tt.reason)
			}
			if p.IsValid() {
				t.Error("IsValid = true")
			}
		})
	}
}

func TestDisplayAddress(t *testing.T) {
	if got := (Profile{Host: "h", Port: 22}).DisplayAddress(); got != "h" {
		t.Errorf("port 22: %q", got)
	}
	if got := (Profile{Host: "h", Port: 2200}).DisplayAddress(); got != "h:2200" {
		t.Errorf("port 2200: %q", got)
	}
}

func TestConnProfile(t *testing.T) {
	prev := config.Cfg
	t.Cleanup(func() { config.Cfg = prev })
	config.Cfg.ConnectTimeout = 7 * time.Second
	config.Cfg.KeepAliveInterval = 11 * time.Second

	cp := Profile{Host: "h", Port: 2222, Username: "u", Password: "p", PrivateKey: "k"}.ConnProfile()
	if cp.Host != "h" || cp.Port != 2222 || cp.Username != "u" || cp.Password != "p" || string(cp.PrivateKey) != "k" {
		t.Errorf("ConnProfile = %+v", cp)
	}
	if cp.ConnectTimeout != 7*time.Second || cp.KeepAliveInterval != 11*time.Second {
		t.Errorf("timeouts = %v, %v", cp.ConnectTimeout, cp.KeepAliveInterval)
	}
}

func TestProfileJSONHidesSecrets(t *testing.T) {
	b, err := json.Marshal(Profile{Name: "web", Password: "hunter2", PrivateKey: "KEY"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "hunter2") || strings.Contains(string(b), "KEY") {
		t.Errorf("secrets leaked: %s", b)
	}
}
