package sshterminal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshtest"
)

func connect(t *testing.T) (*sshconn.Connection, *sshtest.Server) {
	t.Helper()
	srv := sshtest.NewServer(t, nil)
	conn := sshconn.New(sshconn.Profile{
		Host:           srv.Host,
		Port:           srv.Port,
		Username:       sshtest.User,
		Password:       sshtest.Password,
		ConnectTimeout: 5 * time.Second,
	})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(conn.Disconnect)
	return conn, srv
}

func waitScrollback(t *testing.T, ss *ShellSession, target string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !strings.Contains(string(ss.Scrollback.Snapshot()), target) {
		select {
		case <-ss.Scrollback.Notify():
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timeout waiting for %q in scrollback %q", target, ss.Scrollback.Snapshot())
		}
	}
}

func waitClosed(t *testing.T, ss *ShellSession) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for ss.State() != SessionClosed {
		select {
		case <-deadline:
			t.Fatalf("shell %s still %s", ss.ID, ss.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionManager_Open(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()

	ss, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ss.Close()

	if ss.ID == "" || ss.ProfileID != "p1" {
		t.Errorf("session = %+v", ss)
	}
	if ss.State() != SessionActive {
		t.Errorf("state = %s", ss.State())
	}
	if ss.Recording != nil {
		t.Error("recording enabled by default")
	}

	waitScrollback(t, ss, "$ ")
	if _, err := ss.Write([]byte("uptime\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitScrollback(t, ss, "uptime")

	if mgr.Get(ss.ID) != ss {
		t.Error("Get did not return the opened shell")
	}
	if mgr.Count() != 1 || mgr.ActiveCount() != 1 {
		t.Errorf("Count=%d ActiveCount=%d", mgr.Count(), mgr.ActiveCount())
	}
}

func TestSessionManager_OpenNotConnected(t *testing.T) {
	conn := sshconn.New(sshconn.Profile{Host: "127.0.0.1", Username: "u", Password: "p"})
	mgr := NewSessionManager()
	if _, err := mgr.Open(context.Background(), conn, "p1"); err == nil {
		t.Fatal("expected error opening shell on a closed connection")
	}
	if mgr.Count() != 0 {
		t.Errorf("failed open was registered")
	}
}

func TestSessionManager_DetachReattachKeepsOutput(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()
	ss, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	ss.Detach()
	if ss.State() != SessionDetached {
		t.Fatalf("state = %s", ss.State())
	}
	ss.Write([]byte("while-away\n"))
	waitScrollback(t, ss, "while-away")

	if err := ss.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if ss.State() != SessionActive {
		t.Errorf("state = %s", ss.State())
	}
}

func TestSessionManager_CloseAndAttach(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()
	ss, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Close(ss.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ss.State() != SessionClosed || ss.ClosedAt == nil {
		t.Errorf("after close: state=%s closedAt=%v", ss.State(), ss.ClosedAt)
	}
	if !ss.Scrollback.IsClosed() {
		t.Error("scrollback left open")
	}
	select {
	case <-ss.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader not joined")
	}
	if err := ss.Attach(); err == nil {
		t.Error("attached to a closed shell")
	}
	if _, err := ss.Write([]byte("x")); err == nil {
		t.Error("write to closed shell succeeded")
	}
	ss.Close()

	if err := mgr.Close("nope"); err == nil {
		t.Error("closing unknown shell succeeded")
	}
	if mgr.ActiveCount() != 0 || mgr.Count() != 1 {
		t.Errorf("Count=%d ActiveCount=%d", mgr.Count(), mgr.ActiveCount())
	}
	mgr.Remove(ss.ID)
	if mgr.Get(ss.ID) != nil {
		t.Error("Remove left the shell registered")
	}
}

func TestSessionManager_RemoteDropClosesShell(t *testing.T) {
	conn, srv := connect(t)
	mgr := NewSessionManager()
	ss, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}
	waitScrollback(t, ss, "$ ")

	srv.DropConnections()
	waitClosed(t, ss)
}

func TestSessionManager_ListAndCloseAllForProfile(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()

	var p1 []*ShellSession
	for i := 0; i < 2; i++ {
		ss, err := mgr.Open(context.Background(), conn, "p1")
		if err != nil {
			t.Fatal(err)
		}
		p1 = append(p1, ss)
	}
	other, err := mgr.Open(context.Background(), conn, "p2")
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	if n := len(mgr.List("p1", true)); n != 2 {
		t.Fatalf("List(p1) = %d", n)
	}
	p1[0].Close()
	if n := len(mgr.List("p1", true)); n != 1 {
		t.Errorf("active List(p1) = %d, want 1", n)
	}
	if n := len(mgr.List("p1", false)); n != 2 {
		t.Errorf("all List(p1) = %d, want 2", n)
	}

	mgr.CloseAllForProfile("p1")
	if p1[1].State() != SessionClosed {
		t.Error("CloseAllForProfile left a shell open")
	}
	if other.State() == SessionClosed {
		t.Error("CloseAllForProfile closed another profile's shell")
	}

	mgr.CloseAll()
	if other.State() != SessionClosed {
		t.Error("CloseAll left a shell open")
	}
	if mgr.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after CloseAll", mgr.ActiveCount())
	}
}

func TestSessionManager_Recording(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()
	mgr.RecordingEnabled = true
	ss, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	ss.Write([]byte("id\n"))
	waitScrollback(t, ss, "id")
	if err := ss.Resize(100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	var input, resize bool
	for _, e := range ss.Recording.Events() {
		switch {
		case e.Code == EventInput && e.Data == "id\n":
			input = true
		case e.Code == EventResize && e.Data == "100x30":
			resize = true
		}
	}
	if !input || !resize {
		t.Errorf("recording missing events: %+v", ss.Recording.Events())
	}
	if err := ss.Resize(5, 30); err == nil {
		t.Error("undersized resize accepted")
	}
}

func TestSessionManager_CleanupIdle(t *testing.T) {
	conn, _ := connect(t)
	mgr := NewSessionManager()
	mgr.IdleTimeout = 50 * time.Millisecond

	idle, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}
	busy, err := mgr.Open(context.Background(), conn, "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	waitScrollback(t, idle, "$ ")
	idle.Detach()

	time.Sleep(100 * time.Millisecond)
	if n := mgr.CleanupIdle(); n != 1 {
		t.Fatalf("CleanupIdle closed %d, want 1", n)
	}
	if idle.State() != SessionClosed || mgr.Get(idle.ID) != nil {
		t.Error("idle shell not closed and removed")
	}
	if busy.State() != SessionActive {
		t.Errorf("attached shell state = %s", busy.State())
	}

	mgr.IdleTimeout = 0
	if mgr.CleanupIdle() != 0 {
		t.Error("cleanup ran with zero timeout")
	}
}
