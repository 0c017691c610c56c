package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/middleware"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/services"
)

// Version is the reported service version
const Version = "1.0.0"

// StatusHandler reports connection and system statistics
type StatusHandler struct {
	control     *services.ControlPlane
	environment string
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(control *services.ControlPlane, environment string) *StatusHandler {
	return &StatusHandler{control: control, environment: environment}
}

// Connections returns connection statistics and the caller's active sessions.
// Admins see every session.
// GET /api/connections
func (h *StatusHandler) Connections(c *gin.Context) {
	tenant := c.GetString(middleware.ContextTenantID)
	admin := c.GetBool(middleware.ContextIsAdmin)

	sessions := make([]models.Session, 0)
	for _, s := range h.control.Sessions() {
		if admin || s.TenantId == tenant {
			sessions = append(sessions, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":    h.control.Stats(),
		"sessions": sessions,
	})
}

// Status returns the overall system status. Admins also get the live
// worker processes.
// GET /api/status
func (h *StatusHandler) Status(c *gin.Context) {
	response := gin.H{
		"status":      "online",
		"version":     Version,
		"uptime":      h.control.Uptime().Seconds(),
		"environment": h.environment,
		"stats":       h.control.Stats(),
	}
	if c.GetBool(middleware.ContextIsAdmin) {
		response["processes"] = h.control.Processes()
	}
	c.JSON(http.StatusOK, response)
}
