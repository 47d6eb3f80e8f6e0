package handlers

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/tmuxremote/internal/profiles"
	"github.com/gluk-w/tmuxremote/internal/sshmanager"
	"github.com/gluk-w/tmuxremote/internal/sshterminal"
)

// Set from main.go during init.
var (
	Profiles       profiles.Store
	SSHMgr         *sshmanager.Manager
	TermSessionMgr *sshterminal.SessionManager
)

// NewRouter wires every API route.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/connections", ListConnections)

		r.Get("/settings", GetSettings)
		r.Put("/settings", UpdateSettings)
		r.Get("/server-logs", GetServerLogs)
		r.Delete("/server-logs", ClearServerLogs)

		r.Get("/profiles", ListProfiles)
		r.Post("/profiles", CreateProfile)

		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Get("/", GetProfile)
			r.Put("/", UpdateProfile)
			r.Delete("/", DeleteProfile)

			// Connection lifecycle
			r.Post("/connect", ConnectProfile)
			r.Post("/disconnect", DisconnectProfile)
			r.Post("/reconnect", ReconnectProfile)
			r.Post("/test", TestProfileConnection)
			r.Get("/status", GetConnectionStatus)
			r.Post("/rate-limit/reset", ResetConnectRateLimit)

			// tmux sessions
			r.Get("/sessions", ListSessions)
			r.Post("/sessions", CreateSession)
			r.Get("/sessions/monitor", MonitorSessions)
			r.Delete("/sessions/monitor", StopMonitor)
			r.Get("/sessions/{name}", GetSession)
			r.Put("/sessions/{name}", RenameSession)
			r.Delete("/sessions/{name}", DeleteSession)
			r.Post("/sessions/{name}/keys", SendSessionKeys)
			r.Get("/sessions/{name}/capture", CaptureSession)

			// Completion and one-off commands
			r.Get("/complete", Complete)
			r.Get("/complete/sessions", CompleteSessions)
			r.Post("/exec", ExecCommand)

			// Interactive shells
			r.Get("/shell", ShellWS)
			r.Get("/shells", ListShells)
			r.Delete("/shells/{sessionId}", CloseShell)
			r.Get("/shells/{sessionId}/scrollback", GetShellScrollback)
			r.Get("/shells/{sessionId}/recording", GetShellRecording)
		})
	})

	return r
}
