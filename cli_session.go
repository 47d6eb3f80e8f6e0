package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gluk-w/tmuxremote/internal/complete"
	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/tmux"
	"github.com/gluk-w/tmuxremote/internal/tmuxsession"
)

// remote is a direct connection opened for a single CLI command.
type remote struct {
	profile profiles.Profile
	conn    *sshconn.Connection
	svc     *tmuxsession.Service
}

// dialProfile connects to the profile named by ref and brings up tmux.
// The returned func disconnects and closes the store.
func dialProfile(ctx context.Context, ref string) (*remote, func(), error) {
	store, done, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	p, err := profiles.Resolve(ctx, store, ref)
	if err != nil {
		done()
		return nil, nil, err
	}

	conn := sshconn.New(p.ConnProfile())
	if err := conn.Connect(ctx); err != nil {
		done()
		return nil, nil, err
	}
	cleanup := func() {
		conn.Disconnect()
		done()
	}
	if err := store.TouchLastConnected(ctx, p.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: record last connection: %v\n", err)
	}

	svc := tmuxsession.New(conn)
	if _, err := svc.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return &remote{profile: p, conn: conn, svc: svc}, cleanup, nil
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Manage tmux sessions on a profile's host",
	}
	cmd.AddCommand(newSessionLsCmd())
	cmd.AddCommand(newSessionNewCmd())
	cmd.AddCommand(newSessionKillCmd())
	cmd.AddCommand(newSessionRenameCmd())
	cmd.AddCommand(newSessionSendCmd())
	cmd.AddCommand(newSessionCaptureCmd())
	cmd.AddCommand(newSessionWatchCmd())
	return cmd
}

func newSessionLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <profile>",
		Short: "List sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			sessions, err := r.svc.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return writeSessionTable(cmd.OutOrStdout(), sessions)
		},
	}
}

func writeSessionTable(w io.Writer, sessions []tmux.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tWINDOWS\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.StateText(), s.Windows, s.LastActivity.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func newSessionNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <profile> <name>",
		Short: "Create a detached session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			s, err := r.svc.CreateSession(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%d window(s))\n", s.Name, s.Windows)
			return nil
		},
	}
}

func newSessionKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <profile> <name>",
		Short: "Kill a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			if err := r.svc.DeleteSession(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Killed session %s\n", args[1])
			return nil
		},
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <profile> <old> <new>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			if err := r.svc.RenameSession(cmd.Context(), args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed session %s to %s\n", args[1], args[2])
			return nil
		},
	}
}

func newSessionSendCmd() *cobra.Command {
	var (
		keyName string
		literal bool
	)
	cmd := &cobra.Command{
		Use:   "send <profile> <name> [command...]",
		Short: "Run a command in a session, or send a named key with --key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[2:], " ")
			if keyName == "" && text == "" {
				return errors.New("a command or --key is required")
			}
			if keyName != "" && text != "" {
				return errors.New("--key cannot be combined with a command")
			}
			var key tmux.Key
			if keyName != "" {
				k, ok := tmux.ParseKey(keyName)
				if !ok {
					return fmt.Errorf("unknown key %q", keyName)
				}
				key = k
			}

			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			switch {
			case key != "":
				return r.svc.SendKey(cmd.Context(), args[1], key)
			case literal:
				return r.svc.SendKeys(cmd.Context(), args[1], text)
			default:
				return r.svc.SendCommand(cmd.Context(), args[1], text)
			}
		},
	}
	cmd.Flags().StringVarP(&keyName, "key", "k", "", "named key to send (enter, up, down, tab, ctrl-c)")
	cmd.Flags().BoolVar(&literal, "no-enter", false, "type the text without pressing Enter")
	return cmd
}

func newSessionCaptureCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "capture <profile> <name>",
		Short: "Print the visible pane of a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			out, err := r.svc.CapturePane(cmd.Context(), args[1], lines)
			if err != nil {
				return err
			}
			for _, line := range tmux.ParseCapturePane(out) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", tmux.DefaultCaptureLines, "scrollback lines to include")
	return cmd
}

func newSessionWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <profile>",
		Short: "Poll sessions and print what changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, done, err := dialProfile(ctx, args[0])
			if err != nil {
				return err
			}
			defer done()
			if interval <= 0 {
				interval = config.Cfg.MonitorInterval
			}

			out := cmd.OutOrStdout()
			first := true
			for snap := range r.svc.Monitor(ctx, interval) {
				if first {
					if err := writeSessionTable(out, snap.Sessions); err != nil {
						return err
					}
					first = false
					continue
				}
				writeDiff(out, snap)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "poll interval (default from MONITOR_INTERVAL)")
	return cmd
}

func writeDiff(w io.Writer, snap tmuxsession.Snapshot) {
	ts := snap.At.Local().Format(time.TimeOnly)
	for _, s := range snap.Diff.Added {
		fmt.Fprintf(w, "%s + %s (%s)\n", ts, s.Name, s.StateText())
	}
	for _, s := range snap.Diff.Removed {
		fmt.Fprintf(w, "%s - %s\n", ts, s.Name)
	}
	for _, s := range snap.Diff.Changed {
		fmt.Fprintf(w, "%s ~ %s is now %s\n", ts, s.Name, s.StateText())
	}
}

func newCompleteCmd() *cobra.Command {
	var sessions bool
	cmd := &cobra.Command{
		Use:   "complete <profile> <input>",
		Short: "Tab-complete a command line against the remote host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := dialProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()

			engine := complete.New(r.conn)
			input := args[1]
			var suggestions []string
			if sessions {
				suggestions = engine.SessionNames(cmd.Context(), input)
			} else {
				suggestions = engine.Suggest(cmd.Context(), input)
			}

			out := cmd.OutOrStdout()
			if len(suggestions) > 1 {
				fmt.Fprintln(out, complete.FormatSuggestions(suggestions))
			}
			if sessions {
				fmt.Fprintln(out, complete.LongestCommonPrefix(suggestions))
				return nil
			}
			fmt.Fprintln(out, complete.Complete(input, suggestions))
			return nil
		},
	}
	cmd.Flags().BoolVar(&sessions, "sessions", false, "complete tmux session names instead")
	return cmd
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <profile> <command...>",
		Short: "Run a command on the remote host, streaming its output",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			p, err := profiles.Resolve(ctx, store, args[0])
			if err != nil {
				return err
			}
			conn := sshconn.New(p.ConnProfile())
			if err := conn.Connect(ctx); err != nil {
				return err
			}
			defer conn.Disconnect()

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			code, err := conn.ExecuteCommandStream(ctx, strings.Join(args[1:], " "),
				func(s string) { io.WriteString(stdout, s) },
				func(s string) { io.WriteString(stderr, s) },
			)
			if err != nil {
				return err
			}
			if code != 0 {
				return fmt.Errorf("remote command exited with status %d", code)
			}
			return nil
		},
	}
}
