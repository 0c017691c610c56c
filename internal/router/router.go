package router

import (
	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/handlers"
	"github.com/imyashkale/mcphost/internal/middleware"
	"github.com/imyashkale/mcphost/internal/session"
)

// Setup configures and returns the management API router
func Setup(
	tokens *auth.TokenService,
	allowedOrigins []string,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	tenantHandler *handlers.TenantHandler,
	serverHandler *handlers.ServerHandler,
	statusHandler *handlers.StatusHandler,
) *gin.Engine {

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	// Apply CORS middleware globally
	router.Use(middleware.CORS(allowedOrigins))

	router.GET("/", healthHandler.Describe)
	router.GET("/health", healthHandler.Check)

	api := router.Group("/api")

	// Login is the only unauthenticated API route
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.Authentication(tokens))
	{
		protected.POST("/auth/verify", authHandler.Verify)
		protected.GET("/connections", statusHandler.Connections)
		protected.GET("/status", statusHandler.Status)
	}

	tenants := protected.Group("/tenants")
	tenants.Use(middleware.RequireAdmin())
	{
		tenants.GET("", tenantHandler.List)
		tenants.POST("", tenantHandler.Create)
		tenants.DELETE("/:id", tenantHandler.Delete)
	}

	servers := protected.Group("/servers")
	{
		servers.GET("", serverHandler.List)
		servers.POST("", serverHandler.Create)
		servers.GET("/:id", serverHandler.Get)
		servers.DELETE("/:id", serverHandler.Delete)
		servers.POST("/:id/connect", serverHandler.Connect)
		servers.POST("/:id/start", serverHandler.Start)
		servers.POST("/:id/stop", serverHandler.Stop)
		servers.GET("/:id/runtime", serverHandler.Runtime)
		servers.GET("/:id/logs", serverHandler.Logs)
	}

	return router
}

// SetupWebSocket returns the router of the websocket listener. Only the
// session endpoint is mounted there.
func SetupWebSocket(path string, sessions *session.Router) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(path, sessions.Handler())
	return router
}
