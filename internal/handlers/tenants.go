package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/repository"
	"github.com/imyashkale/mcphost/internal/services"
)

// TenantHandler handles admin tenant management
type TenantHandler struct {
	tenants repository.TenantRepository
	control *services.ControlPlane
	tokens  *auth.TokenService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants repository.TenantRepository, control *services.ControlPlane, tokens *auth.TokenService) *TenantHandler {
	return &TenantHandler{tenants: tenants, control: control, tokens: tokens}
}

type tenantListItem struct {
	models.TenantResponse
	ServerCount int `json:"server_count"`
}

// List returns every tenant with its server count
// GET /api/tenants
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]tenantListItem, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantListItem{
			TenantResponse: t.ToResponse(),
			ServerCount:    len(h.control.ListServers(t.Id)),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tenants": out,
		"total":   len(out),
	})
}

// Create adds a non-admin tenant and returns it with a management token
// POST /api/tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var req models.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Valid name and email required",
		})
		return
	}

	tenant := &models.Tenant{
		Id:        "tenant_" + uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt: time.Now(),
	}
	if err := h.tenants.Create(c.Request.Context(), tenant); err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.IssueManagementToken(tenant, auth.DefaultManagementTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant.Id,
		"email":     tenant.Email,
	}).Info("Tenant created")

	c.JSON(http.StatusCreated, models.LoginResponse{
		Token:  token,
		Tenant: tenant.ToResponse(),
	})
}

// Delete removes a tenant and every server it owns
// DELETE /api/tenants/:id
func (h *TenantHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == repository.AdminTenantID {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Cannot delete admin tenant",
		})
		return
	}

	if err := h.tenants.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	for _, s := range h.control.ListServers(id) {
		if err := h.control.DeleteServer(id, s.Id); err != nil {
			logger.WithFields(map[string]interface{}{
				"tenant_id": id,
				"server_id": s.Id,
				"error":     err.Error(),
			}).Warn("Failed to delete server of removed tenant")
		}
	}

	logger.WithField("tenant_id", id).Info("Tenant deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Tenant deleted successfully"})
}
