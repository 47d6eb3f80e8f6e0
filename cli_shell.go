package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshconn"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <profile>",
		Short: "Open an interactive shell on a profile's host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("shell requires a terminal on stdin")
			}

			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			p, err := profiles.Resolve(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			conn := sshconn.New(p.ConnProfile())
			if err := conn.Connect(cmd.Context()); err != nil {
				return err
			}
			defer conn.Disconnect()

			shell, err := conn.OpenShell(cmd.Context(),
				func(b []byte) { os.Stdout.Write(b) },
				func(err error) { log.Printf("[ssh] shell read: %v", err) },
			)
			if err != nil {
				return err
			}
			defer shell.Close()

			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("raw mode: %w", err)
			}
			defer term.Restore(fd, oldState)

			resize := func() {
				cols, rows, err := term.GetSize(fd)
				if err != nil {
					return
				}
				if sshterminal.ValidateResize(cols, rows) != nil {
					return
				}
				if err := shell.Resize(cols, rows); err != nil {
					log.Printf("[ssh] resize: %v", err)
				}
			}
			resize()

			winch := make(chan os.Signal, 1)
			signal.Notify(winch, syscall.SIGWINCH)
			defer signal.Stop(winch)

			stdinDone := make(chan struct{})
			go func() {
				defer close(stdinDone)
				buf := make([]byte, 4096)
				for {
					n, err := os.Stdin.Read(buf)
					if n > 0 {
						if _, werr := shell.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()

			for {
				select {
				case <-winch:
					resize()
				case <-shell.Done():
					return nil
				case <-stdinDone:
					return nil
				}
			}
		},
	}
}
