// Package registry owns hosted server configs and the live protocol server
// instance bound to each of them.
package registry

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/toolset"
)

// DefaultMaxServersPerTenant is the quota applied when none is configured
const DefaultMaxServersPerTenant = 10

// ErrInstanceBusy is returned when a config already has a live instance
var ErrInstanceBusy = fmt.Errorf("instance busy: %w", models.ErrAlreadyRunning)

// ProtocolServerFactory builds the protocol server for a config
type ProtocolServerFactory func(cfg *models.ServerConfig) (*server.MCPServer, error)

// Option configures a Registry
type Option func(*Registry)

// WithProtocolServerFactory replaces the toolset-based protocol server builder
func WithProtocolServerFactory(f ProtocolServerFactory) Option {
	return func(r *Registry) {
		r.newServer = f
	}
}

// WithMaxServersPerTenant sets the per-tenant config quota
func WithMaxServersPerTenant(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPerTenant = n
		}
	}
}

// Registry holds server configs and instances. All check-then-act sequences
// run under a single acquisition of mu.
type Registry struct {
	mu           sync.Mutex
	catalog      *catalog.Catalog
	maxPerTenant int
	newServer    ProtocolServerFactory

	configs   map[string]*models.ServerConfig
	instances map[string]*Instance
	deleting  map[string]struct{}
}

// New creates a registry validating types against cat
func New(cat *catalog.Catalog, opts ...Option) *Registry {
	r := &Registry{
		catalog:      cat,
		maxPerTenant: DefaultMaxServersPerTenant,
		newServer: func(cfg *models.ServerConfig) (*server.MCPServer, error) {
			return toolset.NewProtocolServer(cfg), nil
		},
		configs:   make(map[string]*models.ServerConfig),
		instances: make(map[string]*Instance),
		deleting:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) knownType(t string) bool {
	if r.catalog != nil {
		if _, ok := r.catalog.Lookup(t); ok {
			return true
		}
	}
	for _, hosted := range toolset.Types() {
		if hosted == t {
			return true
		}
	}
	return false
}

// CreateServer stores a new config for tenantID. The quota check and the
// insert are atomic; a rejected create leaves the registry unchanged.
func (r *Registry) CreateServer(tenantID string, req *models.CreateMCPServerRequest) (*models.ServerConfig, error) {
	if tenantID == "" {
		return nil, &models.ConfigError{Field: "tenant", Reason: "tenant id is required"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, &models.ConfigError{Field: "name", Reason: "name is required"}
	}
	if !r.knownType(req.Type) {
		return nil, &models.ConfigError{Field: "type", Reason: fmt.Sprintf("unknown server type %q", req.Type)}
	}

	cfg := req.ToDomain()
	cfg.Id = uuid.New().String()
	cfg.TenantId = tenantID

	r.mu.Lock()
	owned := 0
	for _, c := range r.configs {
		if c.TenantId == tenantID {
			owned++
		}
	}
	if owned >= r.maxPerTenant {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", models.ErrQuotaExceeded, r.maxPerTenant)
	}
	r.configs[cfg.Id] = cfg
	r.mu.Unlock()

	logger.WithComponent("registry").WithFields(map[string]interface{}{
		"tenant_id":   tenantID,
		"server_id":   cfg.Id,
		"server_type": cfg.Type,
	}).Info("Server config created")

	return cfg.Clone(), nil
}

// DeleteServer closes any live instance and then removes the config
func (r *Registry) DeleteServer(tenantID, serverID string) error {
	r.mu.Lock()
	cfg, ok := r.configs[serverID]
	if !ok || cfg.TenantId != tenantID {
		r.mu.Unlock()
		return fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	if _, busy := r.deleting[serverID]; busy {
		r.mu.Unlock()
		return fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	inst := r.instances[serverID]
	delete(r.instances, serverID)
	r.deleting[serverID] = struct{}{}
	r.mu.Unlock()

	if inst != nil {
		if err := inst.Close(); err != nil {
			logger.WithComponent("registry").WithFields(map[string]interface{}{
				"server_id":  serverID,
				"session_id": inst.SessionID,
				"error":      err.Error(),
			}).Warn("Error closing instance transport")
		}
	}

	r.mu.Lock()
	delete(r.configs, serverID)
	delete(r.deleting, serverID)
	r.mu.Unlock()

	logger.WithComponent("registry").WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"server_id": serverID,
	}).Info("Server config deleted")
	return nil
}

// GetServer returns a copy of a config owned by tenantID
func (r *Registry) GetServer(tenantID, serverID string) (*models.ServerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[serverID]
	if !ok || cfg.TenantId != tenantID {
		return nil, fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	return cfg.Clone(), nil
}

// Lookup returns a copy of a config regardless of owner
func (r *Registry) Lookup(serverID string) (*models.ServerConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[serverID]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

func (r *Registry) statusLocked(cfg *models.ServerConfig) *models.ServerStatus {
	st := &models.ServerStatus{
		Id:          cfg.Id,
		TenantId:    cfg.TenantId,
		Name:        cfg.Name,
		Type:        cfg.Type,
		Description: cfg.Description,
		Status:      models.StatusStopped,
		CreatedAt:   cfg.CreatedAt,
	}
	if inst, ok := r.instances[cfg.Id]; ok {
		startedAt := inst.StartedAt
		st.Status = models.StatusRunning
		st.StartedAt = &startedAt
		st.SessionId = inst.SessionID
	}
	return st
}

// GetServerStatus reports a config with running meaning "a live instance exists"
func (r *Registry) GetServerStatus(tenantID, serverID string) (*models.ServerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[serverID]
	if !ok || cfg.TenantId != tenantID {
		return nil, fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	return r.statusLocked(cfg), nil
}

// ListServers returns the tenant's configs ordered by creation time
func (r *Registry) ListServers(tenantID string) []*models.ServerStatus {
	r.mu.Lock()
	out := make([]*models.ServerStatus, 0)
	for _, cfg := range r.configs {
		if cfg.TenantId == tenantID {
			out = append(out, r.statusLocked(cfg))
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AttachInstance creates the single live instance for a config and binds it
// to transport.
func (r *Registry) AttachInstance(tenantID, serverID, sessionID string, transport io.Closer) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[serverID]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	if _, gone := r.deleting[serverID]; gone {
		return nil, fmt.Errorf("server %s: %w", serverID, models.ErrNotFound)
	}
	if cfg.TenantId != tenantID {
		return nil, fmt.Errorf("server %s does not belong to tenant %s: %w", serverID, tenantID, models.ErrUnauthorized)
	}
	if existing, ok := r.instances[serverID]; ok {
		return nil, fmt.Errorf("server %s bound to session %s: %w", serverID, existing.SessionID, ErrInstanceBusy)
	}

	srv, err := r.buildServer(cfg.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: building protocol server: %v", models.ErrInternal, err)
	}
	if srv == nil {
		return nil, fmt.Errorf("%w: no protocol server for %s", models.ErrInternal, serverID)
	}

	inst := newInstance(tenantID, serverID, sessionID, srv, transport)
	r.instances[serverID] = inst
	cfg.Status = models.StatusRunning
	return inst, nil
}

// buildServer runs the factory, turning a panic into an error
func (r *Registry) buildServer(cfg *models.ServerConfig) (srv *server.MCPServer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithComponent("registry").WithFields(map[string]interface{}{
				"server_id": cfg.Id,
				"panic":     fmt.Sprint(rec),
				"stack":     string(debug.Stack()),
			}).Error("Protocol server factory panicked")
			srv, err = nil, fmt.Errorf("factory panic: %v", rec)
		}
	}()
	return r.newServer(cfg)
}

// DetachInstance removes the instance of serverID if it is still bound to
// sessionID. It reports whether anything was removed.
func (r *Registry) DetachInstance(serverID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[serverID]
	if !ok || inst.SessionID != sessionID {
		return false
	}
	delete(r.instances, serverID)
	if cfg, ok := r.configs[serverID]; ok {
		cfg.Status = models.StatusStopped
	}
	return true
}

// Instance returns the live instance of a config
func (r *Registry) Instance(serverID string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[serverID]
	return inst, ok
}

// CloseAll closes and forgets every live instance
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for id, inst := range r.instances {
		instances = append(instances, inst)
		if cfg, ok := r.configs[id]; ok {
			cfg.Status = models.StatusStopped
		}
	}
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	var errs []error
	for _, inst := range instances {
		if err := inst.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", inst.ServerID, err))
		}
	}
	return errors.Join(errs...)
}

// Counts returns the number of configs and the number with a live instance
func (r *Registry) Counts() (total, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs), len(r.instances)
}
