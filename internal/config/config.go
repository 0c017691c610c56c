package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Development-only fallback used when JWT_SECRET is unset outside production
const devJWTSecret = "mcphost-development-secret-change-me"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host        string
	Port        string
	WSPort      string
	WSPath      string
	Environment string

	// Logging configuration
	LogLevel  string
	LogFormat string

	// Security configuration
	JWTSecret      string
	AdminEmail     string
	AdminPassword  string
	AllowedOrigins []string

	// Hosting limits
	MaxServersPerTenant      int
	MaxConcurrentConnections int

	// Process supervision
	StartConfirmWindow time.Duration
	StopGracePeriod    time.Duration
	LogBufferCapacity  int
	ServerCatalogPath  string

	// Tenant directory
	TenantStore              string
	AWSRegion                string
	DynamoDBTenantsTableName string
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values.
// Panics if required configuration values are missing or invalid.
func New() *Config {
	// Load .env file from the working directory (silently ignore if not found)
	envPath := filepath.Join(".", ".env")
	_ = godotenv.Load(envPath)

	return Load()
}

// Load builds a Config from the current process environment without reading .env
func Load() *Config {
	environment := getEnvOrDefault("NODE_ENV", getEnvOrDefault("APP_ENV", "development"))

	cfg := &Config{
		// Server configuration
		Host:        getEnvOrDefault("HOST", "0.0.0.0"),
		Port:        getEnvOrDefault("PORT", "3000"),
		WSPort:      getEnvOrDefault("WS_PORT", "3001"),
		WSPath:      getEnvOrDefault("WS_PATH", "/mcp-ws"),
		Environment: environment,

		// Logging configuration
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		// Security configuration
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AdminEmail:     getEnvOrDefault("ADMIN_EMAIL", "admin@localhost"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Hosting limits
		MaxServersPerTenant:      getIntOrDefault("MAX_SERVERS_PER_TENANT", 10),
		MaxConcurrentConnections: getIntOrDefault("MAX_CONCURRENT_CONNECTIONS", 100),

		// Process supervision
		StartConfirmWindow: getDurationOrDefault("START_CONFIRM_WINDOW", 2*time.Second),
		StopGracePeriod:    getDurationOrDefault("STOP_GRACE_PERIOD", 5*time.Second),
		LogBufferCapacity:  getIntOrDefault("LOG_BUFFER_CAPACITY", 1000),
		ServerCatalogPath:  os.Getenv("SERVER_CATALOG_PATH"),

		// Tenant directory
		TenantStore:              strings.ToLower(getEnvOrDefault("TENANT_STORE", "memory")),
		AWSRegion:                getEnvOrDefault("AWS_REGION", "us-east-1"),
		DynamoDBTenantsTableName: getEnvOrDefault("DYNAMODB_TENANTS_TABLE", "McpTenants"),
	}

	// Validate required configuration
	cfg.validate()

	return cfg
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() {
	var missing []string

	if c.IsProduction() {
		if c.JWTSecret == "" {
			missing = append(missing, "JWT_SECRET")
		}
		if c.AdminPassword == "" {
			missing = append(missing, "ADMIN_PASSWORD")
		}
	}

	if len(missing) > 0 {
		panic(fmt.Sprintf("Missing required configuration values: %v", missing))
	}

	if c.JWTSecret == "" {
		c.JWTSecret = devJWTSecret
	}

	if c.MaxServersPerTenant <= 0 {
		panic(fmt.Sprintf("MAX_SERVERS_PER_TENANT must be positive (got %d)", c.MaxServersPerTenant))
	}
	if c.MaxConcurrentConnections <= 0 {
		panic(fmt.Sprintf("MAX_CONCURRENT_CONNECTIONS must be positive (got %d)", c.MaxConcurrentConnections))
	}
	if c.LogBufferCapacity <= 0 {
		panic(fmt.Sprintf("LOG_BUFFER_CAPACITY must be positive (got %d)", c.LogBufferCapacity))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		panic(fmt.Sprintf("WS_PATH must start with '/' (got '%s')", c.WSPath))
	}

	switch c.TenantStore {
	case "memory", "dynamodb":
	default:
		panic(fmt.Sprintf("TENANT_STORE must be 'memory' or 'dynamodb' (got '%s')", c.TenantStore))
	}
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer (got '%s')", key, value))
	}
	return n
}

// getDurationOrDefault accepts Go durations ("2s") or bare milliseconds ("2000")
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		panic(fmt.Sprintf("%s must be a positive duration (got '%s')", key, value))
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ManagementAddr returns the listen address of the management API
func (c *Config) ManagementAddr() string {
	return c.Host + ":" + c.Port
}

// WebSocketAddr returns the listen address of the websocket listener
func (c *Config) WebSocketAddr() string {
	return c.Host + ":" + c.WSPort
}
