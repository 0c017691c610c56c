package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the health and descriptor endpoints
const ServiceName = "mcphost"

// HealthHandler handles health check requests
type HealthHandler struct {
	environment string
	wsPath      string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(environment, wsPath string) *HealthHandler {
	return &HealthHandler{environment: environment, wsPath: wsPath}
}

// Check handles the health check endpoint
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now(),
		"service":     ServiceName,
		"environment": h.environment,
	})
}

// Describe lists the service entry points
func (h *HealthHandler) Describe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": Version,
		"endpoints": gin.H{
			"health":    "/health",
			"api":       "/api",
			"websocket": h.wsPath,
		},
	})
}
