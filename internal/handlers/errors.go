package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/middleware"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/repository"
)

// statusFor maps the shared error taxonomy onto HTTP status codes and
// machine-readable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusConflict, "quota_exceeded"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, models.ErrConfig):
		return http.StatusBadRequest, "configuration_error"
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, models.ErrProcessFailure):
		return http.StatusBadGateway, "process_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged
// and their detail is hidden from the caller.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("Request failed")
		message = "Internal server error"
	}
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// tenantID reads the caller's tenant id set by the auth middleware
func tenantID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.ContextTenantID)
	if id == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "Tenant ID not found in context",
		})
		return "", false
	}
	return id, true
}
