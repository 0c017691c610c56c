package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/registry"
	"github.com/imyashkale/mcphost/internal/session"
	"github.com/imyashkale/mcphost/internal/supervisor"
)

// ControlPlane ties the registry, the process supervisor and the session
// router together for the management API and for shutdown.
type ControlPlane struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	sessions   *session.Router
	startedAt  time.Time

	// lifecycle serializes start and delete of the same server
	lifecycle serverLocks
}

type serverLock struct {
	sync.Mutex
	refs int
}

// serverLocks hands out one mutex per server id, dropped when unused
type serverLocks struct {
	mu    sync.Mutex
	locks map[string]*serverLock
}

func (l *serverLocks) lock(serverID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*serverLock)
	}
	sl, ok := l.locks[serverID]
	if !ok {
		sl = &serverLock{}
		l.locks[serverID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, serverID)
		}
		l.mu.Unlock()
	}
}

// NewControlPlane creates a new control plane
func NewControlPlane(reg *registry.Registry, sup *supervisor.Supervisor, sessions *session.Router) *ControlPlane {
	return &ControlPlane{
		registry:   reg,
		supervisor: sup,
		sessions:   sessions,
		startedAt:  time.Now(),
	}
}

// CreateServer stores a new server config for tenantID
func (cp *ControlPlane) CreateServer(tenantID string, req *models.CreateMCPServerRequest) (*models.ServerConfig, error) {
	return cp.registry.CreateServer(tenantID, req)
}

// ListServers returns the tenant's servers
func (cp *ControlPlane) ListServers(tenantID string) []*models.ServerStatus {
	return cp.registry.ListServers(tenantID)
}

// GetServer returns the status of one of the tenant's servers
func (cp *ControlPlane) GetServer(tenantID, serverID string) (*models.ServerStatus, error) {
	return cp.registry.GetServerStatus(tenantID, serverID)
}

// StartServer starts the worker process of a server owned by tenantID.
// It never overlaps a DeleteServer of the same server.
func (cp *ControlPlane) StartServer(tenantID, serverID string) (*models.ProcessStatus, error) {
	unlock := cp.lifecycle.lock(serverID)
	defer unlock()

	cfg, err := cp.registry.GetServer(tenantID, serverID)
	if err != nil {
		return nil, err
	}
	return cp.supervisor.StartServer(cfg.Id, cfg.Type, cfg.Environment)
}

// StopServer stops the worker process of a server owned by tenantID
func (cp *ControlPlane) StopServer(tenantID, serverID string) error {
	if _, err := cp.registry.GetServer(tenantID, serverID); err != nil {
		return err
	}
	return cp.supervisor.StopServer(serverID)
}

// ProcessStatus reports the worker runtime state of a server owned by tenantID
func (cp *ControlPlane) ProcessStatus(tenantID, serverID string) (models.ProcessStatus, error) {
	if _, err := cp.registry.GetServer(tenantID, serverID); err != nil {
		return models.ProcessStatus{}, err
	}
	return cp.supervisor.Status(serverID), nil
}

// CheckStartable reports whether the worker of a server owned by tenantID can
// be started. problem explains why not.
func (cp *ControlPlane) CheckStartable(tenantID, serverID string) (ok bool, problem string, err error) {
	cfg, err := cp.registry.GetServer(tenantID, serverID)
	if err != nil {
		return false, "", err
	}
	if verr := cp.supervisor.ValidateEnvironment(cfg.Type, cfg.Environment); verr != nil {
		return false, verr.Error(), nil
	}
	return true, "", nil
}

// Processes returns the runtime state of every live worker process
func (cp *ControlPlane) Processes() []models.ProcessStatus {
	return cp.supervisor.ListRunning()
}

// Logs returns captured worker output of a server owned by tenantID
func (cp *ControlPlane) Logs(tenantID, serverID string, limit int) ([]models.LogEntry, error) {
	if _, err := cp.registry.GetServer(tenantID, serverID); err != nil {
		return nil, err
	}
	return cp.supervisor.Logs(serverID, limit), nil
}

// DeleteServer stops any worker, closes any live instance, removes the
// config and drops its logs. A concurrent StartServer either finishes first
// and is stopped here, or runs afterwards and finds no config.
func (cp *ControlPlane) DeleteServer(tenantID, serverID string) error {
	unlock := cp.lifecycle.lock(serverID)
	defer unlock()

	if _, err := cp.registry.GetServer(tenantID, serverID); err != nil {
		return err
	}

	if err := cp.supervisor.StopServer(serverID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to stop worker of %s: %w", serverID, err)
	}
	if err := cp.registry.DeleteServer(tenantID, serverID); err != nil {
		return err
	}
	cp.supervisor.ClearLogs(serverID)
	return nil
}

// Sessions returns the active sessions
func (cp *ControlPlane) Sessions() []models.Session {
	return cp.sessions.Sessions()
}

// Stats aggregates connection, server and process counts
func (cp *ControlPlane) Stats() models.Stats {
	total, running := cp.registry.Counts()
	return models.Stats{
		ActiveConnections: cp.sessions.Count(),
		TotalServers:      total,
		RunningServers:    running,
		RunningProcesses:  cp.supervisor.Count(),
	}
}

// Uptime returns the time since the control plane was created
func (cp *ControlPlane) Uptime() time.Duration {
	return time.Since(cp.startedAt)
}

// Shutdown stops accepting sessions, closes sessions and instances, then
// stops every worker process concurrently.
func (cp *ControlPlane) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down control plane")
	cp.sessions.StopAccepting()

	var errs []error
	if err := cp.sessions.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sessions: %w", err))
	}
	// instances whose session already went away
	if err := cp.registry.CloseAll(); err != nil {
		errs = append(errs, fmt.Errorf("closing instances: %w", err))
	}

	for _, res := range cp.supervisor.StopAll() {
		if res.Err != nil {
			logger.WithFields(map[string]interface{}{
				"server_id": res.ServerId,
				"error":     res.Err.Error(),
			}).Error("Failed to stop worker process")
			errs = append(errs, fmt.Errorf("server %s: %w", res.ServerId, res.Err))
		}
	}

	logger.WithFields(map[string]interface{}{
		"uptime": cp.Uptime().String(),
	}).Info("Control plane stopped")
	return errors.Join(errs...)
}
