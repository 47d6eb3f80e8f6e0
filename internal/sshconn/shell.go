package sshconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/tmuxremote/internal/logutil"
)

const (
	ShellTerm = "xterm"
	ShellCols = 80
	ShellRows = 24

	shellCloseTimeout = 5 * time.Second
)

// Shell is an interactive PTY-backed shell running in its own session.
// A background goroutine forwards output to the callback passed to
// OpenShell until the remote side closes the channel or Close is called.
type Shell struct {
	conn    *Connection
	session *ssh.Session
	stdin   io.WriteCloser

	writeMu sync.Mutex

	closing   chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

// OpenShell starts an interactive shell with a fixed 80x24 xterm PTY.
// onOutput receives every chunk read from the shell. onError receives the
// read error that ended the reader, unless the shell was closed locally.
func (c *Connection) OpenShell(ctx context.Context, onOutput func([]byte), onError func(error)) (*Shell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(ShellTerm, ShellRows, ShellCols, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	sh := &Shell{
		conn:     c,
		session:  session,
		stdin:    stdin,
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	c.addShell(sh)
	go sh.readLoop(stdout, onOutput, onError)

	log.Printf("[ssh] shell opened on %s", logutil.SanitizeForLog(c.ID()))
	return sh, nil
}

func (s *Shell) readLoop(r io.Reader, onOutput func([]byte), onError func(error)) {
	defer close(s.readDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && onOutput != nil {
			out := make([]byte, n)
			copy(out, buf[:n])
			onOutput(out)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-s.closing:
			default:
				if onError != nil {
					onError(err)
				}
			}
			return
		}
	}
}

// Write sends raw bytes to the shell's standard input.
func (s *Shell) Write(p []byte) (int, error) {
	select {
	case <-s.closing:
		return 0, io.ErrClosedPipe
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.stdin.Write(p)
}

// SendLine writes cmd followed by a newline.
func (s *Shell) SendLine(cmd string) error {
	_, err := s.Write([]byte(cmd + "\n"))
	return err
}

// Resize changes the PTY dimensions.
func (s *Shell) Resize(cols, rows int) error {
	return s.session.WindowChange(rows, cols)
}

// Done is closed once the reader goroutine has exited.
func (s *Shell) Done() <-chan struct{} {
	return s.readDone
}

// Close closes stdin and the session, then waits for the reader goroutine
// to exit. It is safe to call more than once.
func (s *Shell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.writeMu.Lock()
		s.stdin.Close()
		s.writeMu.Unlock()
		err = s.session.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
		select {
		case <-s.readDone:
		case <-time.After(shellCloseTimeout):
			// The peer never acknowledged the close; the reader is released
			// when the client itself is closed.
			log.Printf("[ssh] shell reader on %s did not stop within %s", logutil.SanitizeForLog(s.conn.ID()), shellCloseTimeout)
		}
		s.conn.removeShell(s)
		log.Printf("[ssh] shell closed on %s", logutil.SanitizeForLog(s.conn.ID()))
	})
	return err
}
