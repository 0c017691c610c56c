package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphost/internal/auth"
	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/config"
	"github.com/imyashkale/mcphost/internal/database"
	"github.com/imyashkale/mcphost/internal/handlers"
	"github.com/imyashkale/mcphost/internal/logbuffer"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/registry"
	"github.com/imyashkale/mcphost/internal/repository"
	"github.com/imyashkale/mcphost/internal/router"
	"github.com/imyashkale/mcphost/internal/services"
	"github.com/imyashkale/mcphost/internal/session"
	"github.com/imyashkale/mcphost/internal/supervisor"
)

const shutdownTimeout = 30 * time.Second

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()
	logger.InitWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("environment", cfg.Environment).Info("Configuration loaded successfully")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize tenant directory
	tenants, err := newTenantRepository(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize tenant store: %v", err)
	}
	if err := repository.SeedAdmin(ctx, tenants, cfg.AdminEmail); err != nil {
		logger.Fatalf("Failed to seed admin tenant: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"store":       cfg.TenantStore,
		"admin_email": cfg.AdminEmail,
	}).Info("Tenant directory initialized")

	// Load server type catalog
	cat := catalog.Default()
	if cfg.ServerCatalogPath != "" {
		n, err := cat.LoadFile(cfg.ServerCatalogPath)
		if err != nil {
			logger.Fatalf("Failed to load server catalog: %v", err)
		}
		logger.WithFields(map[string]interface{}{
			"path":  cfg.ServerCatalogPath,
			"types": n,
		}).Info("Server catalog overlay loaded")
	}

	// Hosting core
	logs := logbuffer.New(cfg.LogBufferCapacity)
	sup := supervisor.New(cat, logs,
		supervisor.WithStartConfirmWindow(cfg.StartConfirmWindow),
		supervisor.WithStopGracePeriod(cfg.StopGracePeriod),
	)
	reg := registry.New(cat, registry.WithMaxServersPerTenant(cfg.MaxServersPerTenant))

	tokens := auth.NewTokenService(cfg.JWTSecret)
	sessions := session.New(reg, auth.ConnectionAuthenticator{Tokens: tokens},
		session.WithMaxConnections(cfg.MaxConcurrentConnections),
		session.WithAllowedOrigins(cfg.AllowedOrigins),
	)
	control := services.NewControlPlane(reg, sup, sessions)
	logger.Info("Control plane initialized")

	// Initialize handlers
	api := router.Setup(
		tokens,
		cfg.AllowedOrigins,
		handlers.NewHealthHandler(cfg.Environment, cfg.WSPath),
		handlers.NewAuthHandler(tenants, tokens, cfg.AdminPassword),
		handlers.NewTenantHandler(tenants, control, tokens),
		handlers.NewServerHandler(control, tokens, cfg.WSPort, cfg.WSPath),
		handlers.NewStatusHandler(control, cfg.Environment),
	)

	apiServer := &http.Server{Addr: cfg.ManagementAddr(), Handler: api}
	wsServer := &http.Server{Addr: cfg.WebSocketAddr(), Handler: router.SetupWebSocket(cfg.WSPath, sessions)}

	serveErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		logger.WithFields(map[string]interface{}{
			"listener": name,
			"addr":     srv.Addr,
		}).Info("Starting listener")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}
	go serve("management", apiServer)
	go serve("websocket", wsServer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutting down server gracefully...")
	case err := <-serveErr:
		logger.WithField("error", err.Error()).Error("Listener failed")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)

	// Stop accepting new HTTP work. Hijacked websocket connections are not
	// tracked by http.Server and are closed by the control plane.
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Warn("Management listener shutdown incomplete")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Warn("Websocket listener shutdown incomplete")
	}

	if err := control.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Error("Control plane shutdown completed with errors")
		exitCode = 1
	}
	cancel()

	logger.Info("Shutdown complete")
	os.Exit(exitCode)
}

func newTenantRepository(ctx context.Context, cfg *config.Config) (repository.TenantRepository, error) {
	if cfg.TenantStore != "dynamodb" {
		return repository.NewMemoryTenantRepository(), nil
	}

	dbConfig := database.NewConfig(cfg)
	logger.WithFields(map[string]interface{}{
		"table":  dbConfig.TenantsTableName,
		"region": dbConfig.Region,
	}).Info("Initializing DynamoDB client")

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	return repository.NewTenantRepository(database.NewTenantTable(dbClient, dbConfig.TenantsTableName)), nil
}
