package tmuxsession

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshtest"
	"github.com/gluk-w/tmuxremote/internal/tmux"
)

// remoteService connects a Service to an in-process SSH server backed by
// a fake tmux.
func remoteService(t *testing.T, fake *sshtest.FakeTmux) *Service {
	t.Helper()
	svc, _ := remoteServiceExec(t, fake.Exec)
	return svc
}

func remoteServiceExec(t *testing.T, exec sshtest.ExecFunc) (*Service, *sshtest.Server) {
	t.Helper()
	srv := sshtest.NewServer(t, exec)
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
	return New(conn), srv
}

func TestRemote_Lifecycle(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	svc := remoteService(t, fake)
	ctx := context.Background()

	if _, err := svc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sessions, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions on empty server: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", sessions)
	}

	created, err := svc.CreateSession(ctx, "work")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.Name != "work" || created.Windows != 1 {
		t.Errorf("created = %+v", created)
	}

	_, err = svc.CreateSession(ctx, "work")
	var exists *AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("second CreateSession: expected AlreadyExistsError, got %v", err)
	}

	if err := svc.SendCommand(ctx, "work", "echo 'hi there'"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	sent := fake.SentKeys("work")
	if len(sent) != 2 || sent[0] != "echo 'hi there'" || sent[1] != "Enter" {
		t.Errorf("sent keys = %q", sent)
	}

	fake.SetPane("work", "\x1b[1m$ echo 'hi there'\x1b[0m\nhi there\n")
	text, err := svc.CapturePane(ctx, "work", 20)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	if text != "$ echo 'hi there'\nhi there" {
		t.Errorf("capture = %q", text)
	}

	if err := svc.RenameSession(ctx, "work", "play"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	if ok, _ := svc.SessionExists(ctx, "work"); ok {
		t.Error("old name still exists after rename")
	}
	if ok, _ := svc.SessionExists(ctx, "play"); !ok {
		t.Error("new name missing after rename")
	}

	if err := svc.DeleteSession(ctx, "play"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got := fake.Names(); len(got) != 0 {
		t.Errorf("sessions left: %v", got)
	}
}

func TestRemote_ListSessionsActiveState(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	fake.AddSession("w1", 2, 1, at)
	fake.AddSession("w2", 1, 0, at.Add(65*time.Minute))
	svc := remoteService(t, fake)
	ctx := context.Background()

	if _, err := svc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sessions, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %+v", sessions)
	}
	if sessions[0].Name != "w1" || !sessions[0].IsActive() || sessions[0].Windows != 2 || !sessions[0].LastActivity.Equal(at) {
		t.Errorf("w1 = %+v", sessions[0])
	}
	if sessions[1].Name != "w2" || sessions[1].IsActive() || !sessions[1].LastActivity.Equal(at.Add(65*time.Minute)) {
		t.Errorf("w2 = %+v", sessions[1])
	}
}

func TestRemote_TmuxMissing(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	fake.SetInstalled(false)
	svc := remoteService(t, fake)

	if _, err := svc.Initialize(context.Background()); !errors.Is(err, ErrPrerequisiteMissing) {
		t.Fatalf("expected ErrPrerequisiteMissing, got %v", err)
	}
	if _, err := svc.ListSessions(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestRemote_CreationVerification(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	fake.SetFailCreate(true)
	svc := remoteService(t, fake)
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CreateSession(context.Background(), "phantom")
	var verr *CreationVerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected CreationVerificationError, got %v", err)
	}
}

func TestRemote_Monitor(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	fake.AddSession("a", 1, 0, time.Now())
	fake.AddSession("b", 1, 0, time.Now())
	svc := remoteService(t, fake)
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	ch := svc.Monitor(context.Background(), 20*time.Millisecond)
	defer svc.StopMonitoring()

	first := recv(t, ch)
	if len(first.Sessions) != 2 {
		t.Fatalf("first snapshot = %+v", first.Sessions)
	}

	if _, stderr, status := fake.Exec(tmux.DeleteSession("a")); status != 0 {
		t.Fatalf("kill a: %s", stderr)
	}
	fake.AddSession("c", 1, 1, time.Now())

	added, removed := map[string]bool{}, map[string]bool{}
	deadline := time.After(5 * time.Second)
	for !added["c"] || !removed["a"] {
		select {
		case snap := <-ch:
			for _, s := range snap.Diff.Added {
				added[s.Name] = true
			}
			for _, s := range snap.Diff.Removed {
				removed[s.Name] = true
			}
		case <-deadline:
			t.Fatalf("diffs never reported c added and a removed: added=%v removed=%v", added, removed)
		}
	}
	if removed["b"] {
		t.Error("b reported removed")
	}
}

func TestRemote_MonitorSkipsPollCutByDrop(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	fake.AddSession("w1", 1, 0, time.Now())
	fake.AddSession("w2", 1, 0, time.Now())

	var cut atomic.Bool
	stalled := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	exec := func(cmd string) (string, string, int) {
		if cut.Load() && cmd == tmux.ListSessions() {
			select {
			case stalled <- struct{}{}:
			default:
			}
			<-release
		}
		return fake.Exec(cmd)
	}

	svc, srv := remoteServiceExec(t, exec)
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch := svc.Monitor(context.Background(), 20*time.Millisecond)
	defer svc.StopMonitoring()

	first := recv(t, ch)
	if len(first.Sessions) != 2 {
		t.Fatalf("first snapshot = %+v", first.Sessions)
	}

	cut.Store(true)
	select {
	case <-stalled:
	case <-time.After(5 * time.Second):
		t.Fatal("list-sessions never reached the server")
	}
	srv.DropConnections()

	select {
	case snap := <-ch:
		t.Fatalf("snapshot after drop: sessions=%d removed=%d", len(snap.Sessions), len(snap.Diff.Removed))
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRemote_PrefixNameDoesNotMatchLongerSession(t *testing.T) {
	fake := sshtest.NewFakeTmux()
	fake.AddSession("w1", 1, 0, time.Now())
	fake.SetPane("w1", "w1 pane\n")
	svc := remoteService(t, fake)
	ctx := context.Background()
	if _, err := svc.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	if ok, err := svc.SessionExists(ctx, "w"); err != nil || ok {
		t.Fatalf("SessionExists(w) = %v, %v with only w1 present", ok, err)
	}
	if err := svc.DeleteSession(ctx, "w"); err == nil {
		t.Error("DeleteSession(w) succeeded with only w1 present")
	}
	if got := fake.Names(); len(got) != 1 || got[0] != "w1" {
		t.Fatalf("w1 touched by prefix delete: %v", got)
	}

	if _, err := svc.CreateSession(ctx, "w"); err != nil {
		t.Fatalf("CreateSession(w) alongside w1: %v", err)
	}
	if err := svc.SendKeys(ctx, "w", "ls"); err != nil {
		t.Fatalf("SendKeys(w): %v", err)
	}
	if sent := fake.SentKeys("w1"); len(sent) != 0 {
		t.Errorf("keys for w reached w1: %v", sent)
	}
	if err := svc.DeleteSession(ctx, "w"); err != nil {
		t.Fatalf("DeleteSession(w): %v", err)
	}
	if got := fake.Names(); len(got) != 1 || got[0] != "w1" {
		t.Errorf("sessions after deleting w: %v", got)
	}
}
