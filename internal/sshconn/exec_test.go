package sshconn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/tmuxremote/internal/sshtest"
)

func TestExecuteCommand_TrimsStdout(t *testing.T) {
	conn, srv := connected(t, func(cmd string) (string, string, int) {
		return "  hello world \n\n", "", 0
	})
	out, err := conn.ExecuteCommand(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if out != "hello world" {
		t.Errorf("out = %q", out)
	}
	if cmds := srv.Commands(); len(cmds) != 1 || cmds[0] != "echo hello" {
		t.Errorf("server saw %q", cmds)
	}
}

func TestExecuteCommand_InstantCloseNoOutput(t *testing.T) {
	conn, _ := connected(t, nil)

	start := time.Now()
	out, err := conn.ExecuteCommand(context.Background(), "true")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %s for a command with no output", elapsed)
	}
}

func TestExecuteCommand_NoExitStatus(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) {
		return "partial\n", "", sshtest.NoExitStatus
	})
	out, err := conn.ExecuteCommand(context.Background(), "x")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if out != "partial" {
		t.Errorf("out = %q", out)
	}
}

// dropWhenStarted cuts the server's connections once the first command is
// running.
func dropWhenStarted(t *testing.T, srv *sshtest.Server) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for len(srv.Commands()) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		srv.DropConnections()
	}()
}

func TestExecuteCommand_NetworkDropIsRemoteError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	conn, srv := connected(t, func(string) (string, string, int) {
		<-release
		return "w1:1:20240101120000\n", "", 0
	})
	dropWhenStarted(t, srv)

	out, err := conn.ExecuteCommand(context.Background(), "tmux ls")
	var remoteErr *RemoteCommandError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteCommandError after drop, got out=%q err=%v", out, err)
	}
	if remoteErr.Err == nil {
		t.Error("RemoteCommandError should carry the transport cause")
	}
}

func TestExecuteCommandStream_NetworkDropIsRemoteError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	conn, srv := connected(t, func(string) (string, string, int) {
		<-release
		return "", "", 0
	})
	dropWhenStarted(t, srv)

	code, err := conn.ExecuteCommandStream(context.Background(), "tail -f log", nil, nil)
	var remoteErr *RemoteCommandError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteCommandError after drop, got code=%d err=%v", code, err)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestExecuteCommand_StderrOnlyIsRemoteError(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) {
		return "", "no server running on /tmp/tmux-1000/default\n", 1
	})
	_, err := conn.ExecuteCommand(context.Background(), "tmux ls")

	var remoteErr *RemoteCommandError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteCommandError, got %T: %v", err, err)
	}
	if remoteErr.Stderr != "no server running on /tmp/tmux-1000/default" {
		t.Errorf("Stderr = %q", remoteErr.Stderr)
	}
	if remoteErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", remoteErr.ExitCode)
	}
	if remoteErr.Command != "tmux ls" {
		t.Errorf("Command = %q", remoteErr.Command)
	}
	if !strings.Contains(err.Error(), "no server running") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExecuteCommand_StdoutWinsOverStderr(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) {
		return "result\n", "warning: something\n", 0
	})
	out, err := conn.ExecuteCommand(context.Background(), "x")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if out != "result" {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteCommand_NonZeroExitWithoutStderr(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) { return "", "", 1 })
	out, err := conn.ExecuteCommand(context.Background(), "false")
	if err != nil || out != "" {
		t.Errorf("got out=%q err=%v, want empty success", out, err)
	}
}

func TestExecuteCommand_WaitsForSlowOutput(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) {
		time.Sleep(300 * time.Millisecond)
		return "late\n", "", 0
	})
	out, err := conn.ExecuteCommand(context.Background(), "sleep")
	if err != nil || out != "late" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestExecuteCommand_DrainsLargeOutput(t *testing.T) {
	payload := strings.Repeat("0123456789abcdef\n", 16*1024)
	conn, _ := connected(t, func(string) (string, string, int) { return payload, "", 0 })
	out, err := conn.ExecuteCommand(context.Background(), "cat big")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if want := strings.TrimSpace(payload); out != want {
		t.Errorf("got %d bytes, want %d", len(out), len(want))
	}
}

func TestExecuteCommand_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	conn, _ := connected(t, func(string) (string, string, int) {
		<-release
		return "", "", 0
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := conn.ExecuteCommand(ctx, "hang")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestExecuteCommand_Concurrent(t *testing.T) {
	conn, _ := connected(t, func(cmd string) (string, string, int) { return cmd + "\n", "", 0 })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := "job" + string(rune('a'+i))
			out, err := conn.ExecuteCommand(context.Background(), cmd)
			if err != nil || out != cmd {
				t.Errorf("%s: out=%q err=%v", cmd, out, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestExecuteCommandStream_Callbacks(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) {
		return "line1\nline2\n", "oops\n", 3
	})

	var stdout, stderr strings.Builder
	code, err := conn.ExecuteCommandStream(context.Background(), "build",
		func(s string) { stdout.WriteString(s) },
		func(s string) { stderr.WriteString(s) },
	)
	if err != nil {
		t.Fatalf("ExecuteCommandStream: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if stdout.String() != "line1\nline2\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "oops\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExecuteCommandStream_ExitZeroAndNilCallbacks(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) { return "ignored", "also ignored", 0 })
	code, err := conn.ExecuteCommandStream(context.Background(), "x", nil, nil)
	if err != nil || code != 0 {
		t.Fatalf("code=%d err=%v", code, err)
	}
}

func TestExecuteCommandStream_MissingExitStatus(t *testing.T) {
	conn, _ := connected(t, func(string) (string, string, int) { return "", "", sshtest.NoExitStatus })
	code, err := conn.ExecuteCommandStream(context.Background(), "x", nil, nil)
	if err != nil {
		t.Fatalf("ExecuteCommandStream: %v", err)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestExecuteCommandStream_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	conn, _ := connected(t, func(string) (string, string, int) {
		<-release
		return "", "", 0
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	code, err := conn.ExecuteCommandStream(ctx, "hang", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(nil) != 0 {
		t.Error("nil error should be exit 0")
	}
	if exitCode(errors.New("boom")) != -1 {
		t.Error("unknown error should be -1")
	}
	if transportError(nil, nil) != nil {
		t.Error("nil is not a transport error")
	}
	if transportError(nil, errors.New("boom")) == nil {
		t.Error("plain error is a transport error")
	}
}
