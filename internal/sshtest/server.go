// Package sshtest runs an in-process SSH server for tests.
//
// The server accepts password authentication, hands exec requests to an
// ExecFunc, and serves PTY shells that echo their input. FakeTmux is an
// ExecFunc that understands the command lines produced by package tmux.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

const (
	User     = "tester"
	Password = "secret"

	// NoExitStatus makes the server close an exec channel without sending
	// an exit-status request.
	NoExitStatus = -1
)

// ExecFunc handles one exec request and returns what the command writes
// to stdout and stderr plus its exit status.
type ExecFunc func(cmd string) (stdout, stderr string, status int)

// Server is an in-process SSH server bound to 127.0.0.1.
type Server struct {
	Host string
	Port int

	listener net.Listener
	exec     ExecFunc
	done     chan struct{}

	mu       sync.Mutex
	commands []string
	conns    map[*ssh.ServerConn]struct{}
	shells   int
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
// A nil exec answers every command with empty output and status 0.
func NewServer(t testing.TB, exec ExecFunc) *Server {
	t.Helper()

	hostSigner, _, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == User && string(password) == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	tcpAddr := listener.Addr().(*net.TCPAddr)

	if exec == nil {
		exec = func(string) (string, string, int) { return "", "", 0 }
	}
	s := &Server{
		Host:     "127.0.0.1",
		Port:     tcpAddr.Port,
		listener: listener,
		exec:     exec,
		done:     make(chan struct{}),
		conns:    make(map[*ssh.ServerConn]struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handleConn(netConn, config)
		}
	}()

	t.Cleanup(s.Close)
	return s
}

// GenerateKey returns a fresh ed25519 signer and its PEM-encoded private key.
func GenerateKey() (ssh.Signer, []byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, nil, err
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, nil, err
	}
	return signer, pem.EncodeToMemory(block), nil
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Commands returns every exec command received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// ResetCommands forgets recorded commands.
func (s *Server) ResetCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// ShellCount returns the number of shell requests served.
func (s *Server) ShellCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shells
}

// DropConnections closes every live server-side connection, simulating a
// network failure from the client's point of view.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*ssh.ServerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops accepting and drops live connections.
func (s *Server) Close() {
	s.listener.Close()
	<-s.done
	s.DropConnections()
}

func (s *Server) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		netConn.Close()
		return
	}
	s.mu.Lock()
	s.conns[sshConn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sshConn)
		s.mu.Unlock()
		sshConn.Close()
	}()

	go replyToGlobalRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

// replyToGlobalRequests acknowledges keepalives and refuses everything else.
func replyToGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		if req.WantReply {
			req.Reply(req.Type == "keepalive@openssh.com", nil)
		}
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	var hasPTY bool
	for req := range requests {
		switch req.Type {
		case "pty-req":
			hasPTY = true
			req.Reply(true, nil)

		case "window-change":
			if len(req.Payload) >= 8 {
				cols := binary.BigEndian.Uint32(req.Payload[0:4])
				rows := binary.BigEndian.Uint32(req.Payload[4:8])
				ch.Write([]byte(fmt.Sprintf("resize:%dx%d\n", cols, rows)))
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.runExec(ch, payload.Command)
			return

		case "shell":
			req.Reply(true, nil)
			s.mu.Lock()
			s.shells++
			s.mu.Unlock()
			go echo(ch, hasPTY)

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) runExec(ch ssh.Channel, cmd string) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	stdout, stderr, status := s.exec(cmd)
	if stdout != "" {
		ch.Write([]byte(stdout))
	}
	if stderr != "" {
		ch.Stderr().Write([]byte(stderr))
	}
	if status != NoExitStatus {
		ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
	}
}

// echo copies shell input back to the client. With a PTY it prints a
// prompt first.
func echo(ch ssh.Channel, pty bool) {
	if pty {
		ch.Write([]byte("$ "))
	}
	buf := make([]byte, 4096)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			ch.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
