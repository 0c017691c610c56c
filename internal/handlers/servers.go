package handlers

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/services"
)

// DefaultLogLimit is the number of log entries returned when no limit is given
const DefaultLogLimit = 100

// ServerHandler handles hosted server management requests
type ServerHandler struct {
	control *services.ControlPlane
	tokens  *auth.TokenService
	wsPort  string
	wsPath  string
}

// NewServerHandler creates a new server handler
func NewServerHandler(control *services.ControlPlane, tokens *auth.TokenService, wsPort, wsPath string) *ServerHandler {
	return &ServerHandler{
		control: control,
		tokens:  tokens,
		wsPort:  wsPort,
		wsPath:  wsPath,
	}
}

// List returns the caller's servers
// GET /api/servers
func (h *ServerHandler) List(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	statuses := h.control.ListServers(tenant)
	response := models.MCPServerListResponse{
		Servers: make([]models.MCPServerResponse, 0, len(statuses)),
		Total:   len(statuses),
	}
	for _, s := range statuses {
		response.Servers = append(response.Servers, s.ToResponse())
	}
	c.JSON(http.StatusOK, response)
}

// Create stores a new server config for the caller
// POST /api/servers
func (h *ServerHandler) Create(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req models.CreateMCPServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Name and type are required",
		})
		return
	}

	cfg, err := h.control.CreateServer(tenant, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant,
		"server_id": cfg.Id,
		"type":      cfg.Type,
		"name":      cfg.Name,
	}).Info("MCP server created")

	c.JSON(http.StatusCreated, models.MCPServerResponse{
		Id:          cfg.Id,
		TenantId:    cfg.TenantId,
		Name:        cfg.Name,
		Type:        cfg.Type,
		Description: cfg.Description,
		Status:      cfg.Status,
		CreatedAt:   cfg.CreatedAt,
	})
}

// Get returns one of the caller's servers
// GET /api/servers/:id
func (h *ServerHandler) Get(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	status, err := h.control.GetServer(tenant, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status.ToResponse())
}

// Delete stops and removes one of the caller's servers
// DELETE /api/servers/:id
func (h *ServerHandler) Delete(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.control.DeleteServer(tenant, id); err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant,
		"server_id": id,
	}).Info("MCP server deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted successfully"})
}

// Connect issues a short-lived connection token and the websocket URL to use it with
// POST /api/servers/:id/connect
func (h *ServerHandler) Connect(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	status, err := h.control.GetServer(tenant, id)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.IssueConnectionToken(tenant, id, auth.DefaultConnectionTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	connectionURL := h.connectionURL(c.Request.Host, tenant, id, token)
	c.JSON(http.StatusOK, models.ConnectResponse{
		ConnectionURL: connectionURL,
		Token:         token,
		ExpiresIn:     auth.DefaultConnectionTTL.String(),
		Server:        status.ToResponse(),
	})
}

func (h *ServerHandler) connectionURL(requestHost, tenant, serverID, token string) string {
	host := requestHost
	if hostOnly, _, err := net.SplitHostPort(requestHost); err == nil {
		host = hostOnly
	}

	q := url.Values{}
	q.Set("tenant", tenant)
	q.Set("server", serverID)
	q.Set("token", token)

	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(host, h.wsPort),
		Path:     h.wsPath,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Start launches the worker process of one of the caller's servers
// POST /api/servers/:id/start
func (h *ServerHandler) Start(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	status, err := h.control.StartServer(tenant, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Stop terminates the worker process of one of the caller's servers
// POST /api/servers/:id/stop
func (h *ServerHandler) Stop(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.control.StopServer(tenant, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"server_id": id,
		"status":    models.ProcessStopped,
	})
}

// Runtime reports the worker process state
// GET /api/servers/:id/runtime
func (h *ServerHandler) Runtime(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	status, err := h.control.ProcessStatus(tenant, id)
	if err != nil {
		respondError(c, err)
		return
	}
	startable, problem, err := h.control.CheckStartable(tenant, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{
		"process":   status,
		"startable": startable,
	}
	if problem != "" {
		response["problem"] = problem
	}
	c.JSON(http.StatusOK, response)
}

// Logs returns the most recent captured worker output
// GET /api/servers/:id/logs?limit=N
func (h *ServerHandler) Logs(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	limit := DefaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: fmt.Sprintf("limit must be a positive integer (got '%s')", raw),
			})
			return
		}
		limit = n
	}

	id := c.Param("id")
	entries, err := h.control.Logs(tenant, id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LogsResponse{
		ServerId: id,
		Logs:     entries,
		Total:    len(entries),
	})
}
