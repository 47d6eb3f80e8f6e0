package handlers

import (
	"net/http"

	"github.com/gluk-w/tmuxremote/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	connections, shells := 0, 0
	if SSHMgr != nil {
		connections = SSHMgr.Count()
	}
	if TermSessionMgr != nil {
		shells = TermSessionMgr.ActiveCount()
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"database":    dbStatus,
		"connections": connections,
		"shells":      shells,
	})
}
