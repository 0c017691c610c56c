package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/logger"
)

// Context keys set by Authentication
const (
	ContextTenantID = "tenant_id"
	ContextEmail    = "email"
	ContextIsAdmin  = "is_admin"
	ContextClaims   = "token_claims"
)

// Authentication validates the bearer management token and stores the
// tenant identity in the gin context.
func Authentication(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Access token required",
			})
			return
		}

		claims, err := tokens.VerifyManagement(strings.TrimSpace(authHeader[len(prefix):]))
		if err != nil {
			code := "invalid_token"
			message := "Invalid access token"
			if errors.Is(err, auth.ErrTokenExpired) {
				code = "token_expired"
				message = "Token has expired"
			}
			logger.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   code,
				"message": message,
			})
			return
		}

		c.Set(ContextTenantID, claims.TenantID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextIsAdmin, claims.IsAdmin)
		c.Set(ContextClaims, claims)

		logger.WithFields(map[string]interface{}{
			"tenant_id": claims.TenantID,
			"path":      c.Request.URL.Path,
		}).Debug("Authentication successful")

		c.Next()
	}
}

// RequireAdmin rejects callers whose token does not carry the admin flag.
// It must run after Authentication.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			logger.WithFields(map[string]interface{}{
				"tenant_id": c.GetString(ContextTenantID),
				"path":      c.Request.URL.Path,
			}).Warn("Admin access denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Next()
	}
}
