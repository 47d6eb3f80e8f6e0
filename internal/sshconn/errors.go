package sshconn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by any operation attempted without a live connection.
var ErrNotConnected = errors.New("ssh: not connected")

// ConnectionError reports a failure to establish the connection or to open
// a session on it.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteCommandError reports a command that produced only error output, or
// whose session failed after it was opened.
type RemoteCommandError struct {
	Command  string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *RemoteCommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return fmt.Sprintf("remote command failed: %s", msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote command failed: %v", e.Err)
	}
	return fmt.Sprintf("remote command failed (exit %d)", e.ExitCode)
}

func (e *RemoteCommandError) Unwrap() error { return e.Err }
