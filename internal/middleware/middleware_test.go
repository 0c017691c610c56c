package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/models"
)

func newEngine(tokens *auth.TokenService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(), CORS([]string{"http://app.example"}))

	api := r.Group("/api", Authentication(tokens))
	api.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.GetString(ContextTenantID)})
	})
	api.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthentication(t *testing.T) {
	tokens := auth.NewTokenService("test-secret")
	r := newEngine(tokens)

	userToken, err := tokens.IssueManagementToken(&models.Tenant{Id: "t1"}, time.Hour)
	require.NoError(t, err)
	adminToken, err := tokens.IssueManagementToken(&models.Tenant{Id: "admin", IsAdmin: true}, time.Hour)
	require.NoError(t, err)
	connToken, err := tokens.IssueConnectionToken("t1", "s1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no header", path: "/api/whoami", want: http.StatusUnauthorized},
		{name: "not bearer", path: "/api/whoami", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", path: "/api/whoami", header: "Bearer junk", want: http.StatusUnauthorized},
		{name: "connection token", path: "/api/whoami", header: "Bearer " + connToken, want: http.StatusUnauthorized},
		{name: "valid", path: "/api/whoami", header: "Bearer " + userToken, want: http.StatusOK},
		{name: "admin route as user", path: "/api/admin", header: "Bearer " + userToken, want: http.StatusForbidden},
		{name: "admin route as admin", path: "/api/admin", header: "Bearer " + adminToken, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	r := newEngine(auth.NewTokenService("test-secret"))

	req := httptest.NewRequest(http.MethodOptions, "/api/whoami", nil)
	req.Header.Set("Origin", "http://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/whoami", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
