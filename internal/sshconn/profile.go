package sshconn

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	DefaultPort              = 22
	DefaultConnectTimeout    = 30 * time.Second
	DefaultKeepAliveInterval = 60 * time.Second
)

// Profile describes how to reach and authenticate against a remote host.
// It is treated as an immutable value once handed to New.
type Profile struct {
	Host     string
	Port     int
	Username string
	// Password is used for password and keyboard-interactive authentication.
	Password string
	// PrivateKey is an optional PEM-encoded key for public key authentication.
	PrivateKey []byte

	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration

	// HostKeyCallback verifies the server host key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// withDefaults returns a copy of p with zero-valued settings replaced by defaults.
func (p Profile) withDefaults() Profile {
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.KeepAliveInterval <= 0 {
		p.KeepAliveInterval = DefaultKeepAliveInterval
	}
	return p
}

// Validate reports whether the profile has enough information to dial.
func (p Profile) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("profile: host is empty")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("profile: invalid port %d", p.Port)
	}
	if p.Username == "" {
		return fmt.Errorf("profile: username is empty")
	}
	if p.Password == "" && len(p.PrivateKey) == 0 {
		return fmt.Errorf("profile: no password or private key")
	}
	return nil
}

// Addr returns the host:port dial address.
func (p Profile) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ID returns the connection identity string host:port@user.
func (p Profile) ID() string {
	return fmt.Sprintf("%s:%d@%s", p.Host, p.Port, p.Username)
}

// clientConfig builds the x/crypto/ssh client configuration for the profile.
func (p Profile) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(p.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(p.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if p.Password != "" {
		password := p.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKeyCallback := p.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            p.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         p.ConnectTimeout,
	}, nil
}
