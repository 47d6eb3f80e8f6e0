package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gluk-w/tmuxremote/internal/config"
	"github.com/gluk-w/tmuxremote/internal/database"
	"github.com/gluk-w/tmuxremote/internal/handlers"
	"github.com/gluk-w/tmuxremote/internal/logging"
	"github.com/gluk-w/tmuxremote/internal/logutil"
	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tmuxremote",
		Short:         "Drive tmux sessions on remote hosts over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newCompleteCmd())
	rootCmd.AddCommand(newShellCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	config.Load()
	logging.Init(config.Cfg.LogPath)
	defer logging.Close()

	if err := database.Init(); err != nil {
		return err
	}
	defer database.Close()

	handlers.Profiles = profiles.NewGormStore(database.DB)

	sshMgr, err := sshmanager.NewManager(sshmanager.Options{
		MaxConnections: config.Cfg.MaxConnections,
		AllowedHosts:   config.Cfg.AllowedHosts,
		RateLimit:      sshmanager.DefaultRateLimitConfig(),
	})
	if err != nil {
		return err
	}
	sshMgr.OnStateChange(func(profileID string, from, to sshmanager.ConnectionState) {
		log.Printf("[ssh] profile %s: %s -> %s", logutil.SanitizeForLog(profileID), from, to)
	})
	handlers.SSHMgr = sshMgr
	log.Printf("SSH manager initialized (max_connections=%d, allowed_hosts=%q)",
		config.Cfg.MaxConnections, config.Cfg.AllowedHosts)

	termMgr := sshterminal.NewSessionManager()
	termMgr.IdleTimeout = config.Cfg.ShellIdleTimeout
	termMgr.ScrollbackSize = config.Cfg.ShellScrollback
	termMgr.RecordingEnabled = config.Cfg.ShellRecording
	handlers.TermSessionMgr = termMgr
	log.Printf("Shell manager initialized (scrollback=%d bytes, recording=%v, idle_timeout=%s)",
		config.Cfg.ShellScrollback, config.Cfg.ShellRecording, config.Cfg.ShellIdleTimeout)

	scheduler, err := scheduleMaintenance(config.Cfg.CleanupSchedule, termMgr, sshMgr)
	if err != nil {
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.NewRouter(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-scheduler.Stop().Done()
	termMgr.CloseAll()
	sshMgr.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("Server stopped")
	return nil
}

// openStore loads config and the database for one-shot CLI commands.
// Logging stays on stderr.
func openStore() (profiles.Store, func(), error) {
	config.Load()
	log.SetOutput(os.Stderr)
	if err := database.Init(); err != nil {
		return nil, nil, err
	}
	return profiles.NewGormStore(database.DB), func() { database.Close() }, nil
}
