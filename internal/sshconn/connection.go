package sshconn

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/tmuxremote/internal/logutil"
)

// DisconnectHandler is called when a live connection is lost without an
// explicit Disconnect. reason is the error that ended the connection.
type DisconnectHandler func(reason error)

// Connection wraps one authenticated SSH client. The zero value is not
// usable; create connections with New.
type Connection struct {
	profile Profile

	mu           sync.Mutex
	client       *ssh.Client
	shells       map[*Shell]struct{}
	onDisconnect DisconnectHandler

	// keepalive and client watcher lifecycle
	bgCancel context.CancelFunc
	bgWg     sync.WaitGroup
}

// New returns a disconnected Connection for the given profile.
func New(profile Profile) *Connection {
	return &Connection{
		profile: profile.withDefaults(),
		shells:  make(map[*Shell]struct{}),
	}
}

// Profile returns the profile the connection was created with.
func (c *Connection) Profile() Profile {
	return c.profile
}

// ID returns the connection identity string host:port@user.
func (c *Connection) ID() string {
	return c.profile.ID()
}

// OnDisconnect registers the handler invoked when the connection drops.
func (c *Connection) OnDisconnect(fn DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// IsConnected reports whether the connection currently holds a live client.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// Connect dials the host and authenticates. If the connection is already
// established it returns nil without dialing again. On failure no partial
// state is retained and the error is a *ConnectionError.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	addr := c.profile.Addr()
	if err := c.profile.Validate(); err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	client, err := dial(ctx, c.profile)
	if err != nil {
		log.Printf("[ssh] connect to %s failed: %v", logutil.SanitizeForLog(c.ID()), err)
		return &ConnectionError{Addr: addr, Err: err}
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	c.client = client
	c.bgCancel = cancel

	c.bgWg.Add(2)
	go c.keepaliveLoop(bgCtx, client, c.profile.KeepAliveInterval)
	go c.watchClient(client)

	log.Printf("[ssh] connected to %s", logutil.SanitizeForLog(c.ID()))
	return nil
}

// dial opens the TCP connection and runs the SSH handshake. Both phases are
// bounded by the profile's ConnectTimeout and abandoned when ctx is done.
func dial(ctx context.Context, p Profile) (*ssh.Client, error) {
	config, err := p.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: p.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, err
	}

	// Closing netConn unblocks the handshake if ctx is cancelled mid-way.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			netConn.Close()
		case <-handshakeDone:
		}
	}()

	netConn.SetDeadline(time.Now().Add(p.ConnectTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, p.Addr(), config)
	close(handshakeDone)
	if err != nil {
		netConn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("context cancelled: %w", ctxErr)
		}
		return nil, err
	}
	netConn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Disconnect closes open shells and the client. It is safe to call at any
// time and any number of times.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	client := c.client
	shells := c.takeShellsLocked()
	cancel := c.bgCancel
	c.client = nil
	c.bgCancel = nil
	c.mu.Unlock()

	for _, sh := range shells {
		sh.Close()
	}
	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Close()
		log.Printf("[ssh] disconnected from %s", logutil.SanitizeForLog(c.ID()))
	}
	c.bgWg.Wait()
}

// Reconnect tears down the current client, if any, and dials again.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// TestConnection connects, runs a trivial command, and disconnects again.
// It reports whether the host answered as expected.
func (c *Connection) TestConnection(ctx context.Context) bool {
	if err := c.Connect(ctx); err != nil {
		return false
	}
	defer c.Disconnect()
	out, err := c.ExecuteCommand(ctx, "echo 'test'")
	if err != nil {
		return false
	}
	return strings.Contains(out, "test")
}

// currentClient returns the live client or ErrNotConnected.
func (c *Connection) currentClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// newSession opens a session on the live client and returns that client
// alongside it.
func (c *Connection) newSession() (*ssh.Client, *ssh.Session, error) {
	client, err := c.currentClient()
	if err != nil {
		return nil, nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, nil, &ConnectionError{Addr: c.profile.Addr(), Err: fmt.Errorf("open ssh session: %w", err)}
	}
	return client, session, nil
}

func (c *Connection) takeShellsLocked() []*Shell {
	shells := make([]*Shell, 0, len(c.shells))
	for sh := range c.shells {
		shells = append(shells, sh)
	}
	c.shells = make(map[*Shell]struct{})
	return shells
}

func (c *Connection) addShell(sh *Shell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shells[sh] = struct{}{}
}

func (c *Connection) removeShell(sh *Shell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shells, sh)
}

// keepaliveLoop sends periodic keepalive requests. A failed request closes
// the client, which lets watchClient finish the teardown.
func (c *Connection) keepaliveLoop(ctx context.Context, client *ssh.Client, interval time.Duration) {
	defer c.bgWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.Printf("[ssh] keepalive failed for %s: %v, closing connection", logutil.SanitizeForLog(c.ID()), err)
				client.Close()
				return
			}
		}
	}
}

// watchClient waits for the client transport to end. If the client is still
// the current one, the loss was not requested and state is torn down here.
// The handler runs after this goroutine has left bgWg, so it may call
// Disconnect or Reconnect.
func (c *Connection) watchClient(client *ssh.Client) {
	err := client.Wait()

	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		c.bgWg.Done()
		return
	}
	shells := c.takeShellsLocked()
	cancel := c.bgCancel
	handler := c.onDisconnect
	c.client = nil
	c.bgCancel = nil
	c.mu.Unlock()

	for _, sh := range shells {
		sh.Close()
	}
	if cancel != nil {
		cancel()
	}
	if err == nil {
		err = fmt.Errorf("connection closed by remote host")
	}
	log.Printf("[ssh] connection to %s lost: %v", logutil.SanitizeForLog(c.ID()), err)
	c.bgWg.Done()
	if handler != nil {
		handler(err)
	}
}
