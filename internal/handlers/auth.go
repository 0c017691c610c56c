package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/middleware"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/repository"
)

// AuthHandler handles login and token verification
type AuthHandler struct {
	tenants       repository.TenantRepository
	tokens        *auth.TokenService
	adminPassword string
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(tenants repository.TenantRepository, tokens *auth.TokenService, adminPassword string) *AuthHandler {
	return &AuthHandler{
		tenants:       tenants,
		tokens:        tokens,
		adminPassword: adminPassword,
	}
}

// Login exchanges a tenant email and the shared password for a management token
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Email and password required",
		})
		return
	}

	tenant, err := h.tenants.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			respondError(c, err)
			return
		}
		h.rejectLogin(c, req.Email, "unknown email")
		return
	}

	if h.adminPassword == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.adminPassword)) != 1 {
		h.rejectLogin(c, req.Email, "bad password")
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
	}).Info("Successful login")

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:  token,
		Tenant: tenant.ToResponse(),
	})
}

func (h *AuthHandler) rejectLogin(c *gin.Context, email, reason string) {
	logger.WithFields(map[string]interface{}{
		"email":  email,
		"reason": reason,
	}).Warn("Login rejected")
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "invalid_credentials",
		Message: "Invalid credentials",
	})
}

// Verify echoes the identity carried by a valid management token
// POST /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"tenant": gin.H{
			"id":       c.GetString(middleware.ContextTenantID),
			"email":    c.GetString(middleware.ContextEmail),
			"is_admin": c.GetBool(middleware.ContextIsAdmin),
		},
	})
}
