// Package profiles stores SSH host profiles and converts them into
// connection settings.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
)

var (
	ErrNotFound      = errors.New("profile not found")
	ErrDuplicateName = errors.New("profile name already in use")
)

// InvalidError explains why a profile was rejected.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "invalid profile: " + e.Reason
}

// Profile is a named SSH host with credentials in plaintext. Stores keep
// the secrets encrypted at rest.
type Profile struct {
	ID              string     `json:"id" yaml:"id,omitempty"`
	Name            string     `json:"name" yaml:"name"`
	Host            string     `json:"host" yaml:"host"`
	Port            int        `json:"port" yaml:"port,omitempty"`
	Username        string     `json:"username" yaml:"username"`
	Password        string     `json:"-" yaml:"password,omitempty"`
	PrivateKey      string     `json:"-" yaml:"private_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at" yaml:"-"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty" yaml:"-"`
}

// withDefaults fills the fields a caller may leave zero.
func (p Profile) withDefaults() Profile {
	if p.Port == 0 {
		p.Port = 22
	}
	return p
}

// Validate reports the first problem with p, or nil.
func (p Profile) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return &InvalidError{Reason: "name is required"}
	case strings.TrimSpace(p.Host) == "":
		return &InvalidError{Reason: "host is required"}
	case p.Port < 1 || p.Port > 65535:
		return &InvalidError{Reason: fmt.Sprintf("port %d out of range 1-65535", p.Port)}
	case strings.TrimSpace(p.Username) == "":
		return &InvalidError{Reason: "username is required"}
	case strings.TrimSpace(p.Password) == "" && strings.TrimSpace(p.PrivateKey) == "":
		return &InvalidError{Reason: "password or private key is required"}
	}
	return nil
}

func (p Profile) IsValid() bool {
	return p.Validate() == nil
}

// DisplayAddress renders the host, with the port only when it is not 22.
func (p Profile) DisplayAddress() string {
	if p.Port == 22 {
		return p.Host
	}
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// ConnProfile builds connection settings using the configured timeouts.
func (p Profile) ConnProfile() sshconn.Profile {
	return sshconn.Profile{
		Host:              p.Host,
		Port:              p.Port,
		Username:          p.Username,
		Password:          p.Password,
		PrivateKey:        []byte(p.PrivateKey),
		ConnectTimeout:    config.Cfg.ConnectTimeout,
		KeepAliveInterval: config.Cfg.KeepAliveInterval,
	}
}

// Store is the contract every profile backend satisfies.
type Store interface {
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, id string) (Profile, bool, error)
	// Add assigns an ID when p has none.
	Add(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p Profile) error
	Delete(ctx context.Context, id string) error
	TouchLastConnected(ctx context.Context, id string) error
}

// Resolve finds a profile by ID, falling back to an exact name match.
func Resolve(ctx context.Context, s Store, ref string) (Profile, error) {
	p, ok, err := s.Get(ctx, ref)
	if err != nil {
		return Profile{}, err
	}
	if ok {
		return p, nil
	}
	all, err := s.List(ctx)
	if err != nil {
		return Profile{}, err
	}
	for _, p := range all {
		if p.Name == ref {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
}
