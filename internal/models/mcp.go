package models

import "time"

// Server config statuses
const (
	StatusCreated = "created"
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// ServerConfig is the declarative description of a hosted MCP server.
// It exists independently of any live instance or worker process.
type ServerConfig struct {
	Id          string
	TenantId    string
	Type        string // key into the toolset table and the process catalog
	Name        string
	Description string
	Version     string
	Environment map[string]string
	CreatedAt   time.Time
	Status      string // "created" until first reported otherwise
}

// Clone returns a deep copy so callers never share the registry's maps
func (c *ServerConfig) Clone() *ServerConfig {
	out := *c
	out.Environment = make(map[string]string, len(c.Environment))
	for k, v := range c.Environment {
		out.Environment[k] = v
	}
	return &out
}

// ServerStatus is the read-only view of a config joined with its live instance
type ServerStatus struct {
	Id          string
	TenantId    string
	Name        string
	Type        string
	Description string
	Status      string // "running" iff a live instance exists
	CreatedAt   time.Time
	StartedAt   *time.Time
	SessionId   string
}
