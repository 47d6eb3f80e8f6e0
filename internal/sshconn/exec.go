package sshconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/tmuxremote/internal/logutil"
)

const (
	execPollInterval   = 100 * time.Millisecond
	streamPollInterval = 50 * time.Millisecond
	slowCommand        = 500 * time.Millisecond
)

// Executor runs one-shot commands on a remote host. Higher layers depend on
// this rather than on *Connection so they can be exercised with fakes.
type Executor interface {
	ExecuteCommand(ctx context.Context, cmd string) (string, error)
}

var _ Executor = (*Connection)(nil)

// ExecuteCommand runs cmd in a dedicated session and returns its trimmed
// standard output. It returns only after the remote command has exited and
// both output streams are drained. If the command wrote to stderr and
// nothing to stdout, the result is a *RemoteCommandError carrying stderr.
func (c *Connection) ExecuteCommand(ctx context.Context, cmd string) (string, error) {
	start := time.Now()

	client, session, err := c.newSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	stdout, stderr, err := pipes(session)
	if err != nil {
		return "", &RemoteCommandError{Command: cmd, ExitCode: -1, Err: err}
	}
	if err := session.Start(cmd); err != nil {
		return "", &RemoteCommandError{Command: cmd, ExitCode: -1, Err: fmt.Errorf("start command: %w", err)}
	}

	var outBuf, errBuf bytes.Buffer
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		io.Copy(&outBuf, stdout)
	}()
	go func() {
		defer readers.Done()
		io.Copy(&errBuf, stderr)
	}()
	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- session.Wait() }()

	var (
		closed  bool
		waitErr error
	)
	finished := func() bool {
		if !closed {
			select {
			case waitErr = <-waitCh:
				closed = true
			default:
			}
		}
		if !closed {
			return false
		}
		select {
		case <-drained:
			return true
		default:
			return false
		}
	}

	ticker := time.NewTicker(execPollInterval)
	defer ticker.Stop()
	for !finished() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	logSlow(cmd, time.Since(start))

	out := strings.TrimSpace(outBuf.String())
	errText := strings.TrimSpace(errBuf.String())
	code := exitCode(waitErr)
	tErr := transportError(client, waitErr)
	if errText != "" && out == "" {
		return "", &RemoteCommandError{Command: cmd, Stderr: errText, ExitCode: code, Err: tErr}
	}
	if tErr != nil {
		return "", &RemoteCommandError{Command: cmd, ExitCode: code, Err: tErr}
	}
	return out, nil
}

// ExecuteCommandStream runs cmd in a dedicated session and hands each chunk
// of output to onOutput (stdout) or onError (stderr) as it arrives.
// Callbacks run on the calling goroutine, one at a time. It returns the
// remote exit status, or -1 when the server did not report one.
func (c *Connection) ExecuteCommandStream(ctx context.Context, cmd string, onOutput, onError func(string)) (int, error) {
	client, session, err := c.newSession()
	if err != nil {
		return -1, err
	}
	defer session.Close()

	stdout, stderr, err := pipes(session)
	if err != nil {
		return -1, &RemoteCommandError{Command: cmd, ExitCode: -1, Err: err}
	}
	if err := session.Start(cmd); err != nil {
		return -1, &RemoteCommandError{Command: cmd, ExitCode: -1, Err: fmt.Errorf("start command: %w", err)}
	}

	type chunk struct {
		data   string
		stderr bool
	}
	chunks := make(chan chunk, 64)
	var readers sync.WaitGroup
	pump := func(r io.Reader, isErr bool) {
		defer readers.Done()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case chunks <- chunk{data: string(buf[:n]), stderr: isErr}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}
	readers.Add(2)
	go pump(stdout, false)
	go pump(stderr, true)
	go func() {
		readers.Wait()
		close(chunks)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- session.Wait() }()

	emit := func(ch chunk) {
		if ch.stderr {
			if onError != nil {
				onError(ch.data)
			}
			return
		}
		if onOutput != nil {
			onOutput(ch.data)
		}
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var (
		closed  bool
		waitErr error
		pending = chunks
	)
	for pending != nil || !closed {
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case ch, ok := <-pending:
			if !ok {
				pending = nil
				continue
			}
			emit(ch)
		case <-ticker.C:
			if !closed {
				select {
				case waitErr = <-waitCh:
					closed = true
				default:
				}
			}
		}
	}

	if tErr := transportError(client, waitErr); tErr != nil {
		return -1, &RemoteCommandError{Command: cmd, ExitCode: -1, Err: tErr}
	}
	return exitCode(waitErr), nil
}

func pipes(session *ssh.Session) (io.Reader, io.Reader, error) {
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return stdout, stderr, nil
}

// exitCode maps the result of session.Wait to a process exit status.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}

// transportError returns a non-nil error when waitErr reflects a broken
// session rather than a command that ran and exited. A session that closed
// without an exit status is only a normal exit if client still answers a
// keepalive: a dropped transport closes every channel the same way.
func transportError(client *ssh.Client, waitErr error) error {
	if waitErr == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(waitErr, &missing) {
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			return fmt.Errorf("connection lost before exit status: %w", err)
		}
		return nil
	}
	return waitErr
}

func logSlow(cmd string, elapsed time.Duration) {
	if elapsed > slowCommand {
		log.Printf("[ssh] SLOW command (%s): %s", elapsed, logutil.SanitizeForLog(logutil.Truncate(cmd)))
	}
}
