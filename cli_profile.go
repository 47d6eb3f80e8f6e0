package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/profiles"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage SSH host profiles",
	}
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileRmCmd())
	cmd.AddCommand(newProfileImportCmd())
	cmd.AddCommand(newProfileExportCmd())
	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var (
		host     string
		port     int
		username string
		keyFile  string
		stdinPW  bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := profiles.Profile{
				Name:     args[0],
				Host:     host,
				Port:     port,
				Username: username,
			}
			switch {
			case keyFile != "":
				key, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				p.PrivateKey = string(key)
			case stdinPW:
				pw, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				p.Password = pw
			default:
				pw, err := promptPassword(cmd.ErrOrStderr(), fmt.Sprintf("Password for %s@%s: ", username, host))
				if err != nil {
					return err
				}
				p.Password = pw
			}

			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			if err := store.Add(cmd.Context(), &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added profile %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "remote host name or address")
	cmd.Flags().IntVar(&port, "port", 22, "remote SSH port")
	cmd.Flags().StringVarP(&username, "user", "u", "", "remote user name")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "private key file to authenticate with")
	cmd.Flags().BoolVar(&stdinPW, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			all, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeProfileTable(cmd.OutOrStdout(), all)
		},
	}
}

// writeProfileTable prints profiles with their secrets redacted.
func writeProfileTable(w io.Writer, all []profiles.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tUSER\tAUTH\tLAST CONNECTED\tID")
	for _, p := range all {
		auth := "password " + logutil.Redact(p.Password)
		if p.PrivateKey != "" {
			auth = "key"
		}
		last := "never"
		if p.LastConnectedAt != nil {
			last = p.LastConnectedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Name, p.DisplayAddress(), p.Username, auth, last, p.ID)
	}
	return tw.Flush()
}

func newProfileRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <profile>",
		Short: "Delete a profile by name or ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			p, err := profiles.Resolve(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", p.Name)
			return nil
		},
	}
}

func newProfileImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import profiles from YAML, updating those with matching names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			added, updated, err := profiles.ImportYAML(cmd.Context(), store, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new, %d updated\n", added, updated)
			return nil
		},
	}
}

func newProfileExportCmd() *cobra.Command {
	var withSecrets bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all profiles as YAML to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			return profiles.ExportYAML(cmd.Context(), store, cmd.OutOrStdout(), withSecrets)
		},
	}
	cmd.Flags().BoolVar(&withSecrets, "secrets", false, "include passwords and private keys")
	return cmd
}

// promptPassword reads a password without echo. It needs a terminal on stdin.
func promptPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin or --key-file")
	}
	fmt.Fprint(w, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
