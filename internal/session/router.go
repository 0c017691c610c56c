// Package session accepts websocket connections and binds each one to the
// protocol server instance of a tenant's hosted server.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/registry"
)

// Application close codes
const (
	CloseNotFound     = 4404
	CloseInstanceBusy = 4409
)

// DefaultMaxConnections caps concurrent sessions when no limit is configured
const DefaultMaxConnections = 100

// Authenticator validates the credential presented with a connection
type Authenticator interface {
	Authenticate(ctx context.Context, tenantID, serverID, token string) error
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, tenantID, serverID, token string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, tenantID, serverID, token string) error {
	return f(ctx, tenantID, serverID, token)
}

// InstanceRegistry is the part of the registry the router needs
type InstanceRegistry interface {
	Lookup(serverID string) (*models.ServerConfig, bool)
	AttachInstance(tenantID, serverID, sessionID string, transport io.Closer) (*registry.Instance, error)
	DetachInstance(serverID, sessionID string) bool
}

// Option configures a Router
type Option func(*Router)

// WithMaxConnections caps the number of concurrent sessions
func WithMaxConnections(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxConnections = n
		}
	}
}

// WithAllowedOrigins restricts browser origins; "*" allows any
func WithAllowedOrigins(origins []string) Option {
	return func(r *Router) {
		r.allowedOrigins = origins
	}
}

// Router owns the session table
type Router struct {
	registry       InstanceRegistry
	auth           Authenticator
	upgrader       websocket.Upgrader
	maxConnections int
	allowedOrigins []string

	mu        sync.Mutex
	sessions  map[string]*session
	pending   int
	accepting bool
	active    sync.WaitGroup
}

// New creates a router attaching sessions through reg
func New(reg InstanceRegistry, auth Authenticator, opts ...Option) *Router {
	r := &Router{
		registry:       reg,
		auth:           auth,
		maxConnections: DefaultMaxConnections,
		sessions:       make(map[string]*session),
		accepting:      true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}
	return r
}

func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" || len(r.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range r.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Handler mounts the router on a gin engine
func (r *Router) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r.ServeHTTP(c.Writer, c.Request)
	}
}

func reject(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeTimeout))
	_ = conn.Close()
}

// admit reserves a connection slot
func (r *Router) admit() (int, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting {
		return websocket.CloseGoingAway, "Server shutting down", false
	}
	if len(r.sessions)+r.pending >= r.maxConnections {
		return websocket.CloseTryAgainLater, "Maximum connections reached", false
	}
	r.pending++
	return 0, "", true
}

func (r *Router) release() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}

// ServeHTTP upgrades the connection, validates it and runs the session until it closes
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.WithComponent("session").WithField("error", err.Error()).Warn("Websocket upgrade failed")
		return
	}

	if code, reason, ok := r.admit(); !ok {
		logger.WithComponent("session").WithField("remote_addr", req.RemoteAddr).Warn("Connection rejected: " + reason)
		reject(conn, code, reason)
		return
	}

	s, ok := r.safeAccept(req, conn)
	if !ok {
		r.release()
		return
	}

	r.mu.Lock()
	r.pending--
	if !r.accepting {
		r.mu.Unlock()
		_ = s.closeWith(websocket.CloseGoingAway, "Server shutting down")
		r.teardown(s, false)
		return
	}
	r.sessions[s.id] = s
	r.active.Add(1)
	r.mu.Unlock()

	logger.WithComponent("session").WithFields(s.fields()).Info("Session connected")

	s.readLoop()
	r.teardown(s, true)
}

// safeAccept runs accept and closes conn with an internal error if any step panics
func (r *Router) safeAccept(req *http.Request, conn *websocket.Conn) (s *session, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithComponent("session").WithFields(map[string]interface{}{
				"remote_addr": req.RemoteAddr,
				"panic":       fmt.Sprint(rec),
			}).Error("Session setup panicked")
			reject(conn, websocket.CloseInternalServerErr, "Internal server error")
			s, ok = nil, false
		}
	}()
	return r.accept(req, conn)
}

// accept validates the request and binds a new instance to conn
func (r *Router) accept(req *http.Request, conn *websocket.Conn) (*session, bool) {
	q := req.URL.Query()
	tenantID := q.Get("tenant")
	serverID := q.Get("server")
	token := q.Get("token")

	fields := map[string]interface{}{
		"tenant_id":   tenantID,
		"server_id":   serverID,
		"remote_addr": req.RemoteAddr,
	}

	if tenantID == "" || serverID == "" || token == "" {
		logger.WithComponent("session").WithFields(fields).Warn("Connection missing tenant, server or token")
		reject(conn, websocket.ClosePolicyViolation, "Missing required parameters")
		return nil, false
	}

	cfg, ok := r.registry.Lookup(serverID)
	if !ok {
		logger.WithComponent("session").WithFields(fields).Warn("Connection for unknown server")
		reject(conn, CloseNotFound, "Server not found")
		return nil, false
	}
	if cfg.TenantId != tenantID {
		logger.WithComponent("session").WithFields(fields).Warn("Connection for server owned by another tenant")
		reject(conn, websocket.ClosePolicyViolation, "Unauthorized")
		return nil, false
	}
	if err := r.auth.Authenticate(req.Context(), tenantID, serverID, token); err != nil {
		logger.WithComponent("session").WithFields(fields).WithField("error", err.Error()).Warn("Connection failed authentication")
		reject(conn, websocket.ClosePolicyViolation, "Unauthorized")
		return nil, false
	}

	s := newSession(ulid.Make().String(), tenantID, serverID, conn)
	inst, err := r.registry.AttachInstance(tenantID, serverID, s.id, s)
	if err != nil {
		fields["session_id"] = s.id
		fields["error"] = err.Error()
		code, reason := closeCodeFor(err)
		logger.WithComponent("session").WithFields(fields).Warn("Failed to attach instance")
		reject(conn, code, reason)
		return nil, false
	}
	s.instance = inst
	return s, true
}

func closeCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrInstanceBusy):
		return CloseInstanceBusy, "Server already has an active session"
	case errors.Is(err, models.ErrNotFound):
		return CloseNotFound, "Server not found"
	case errors.Is(err, models.ErrUnauthorized):
		return websocket.ClosePolicyViolation, "Unauthorized"
	default:
		return websocket.CloseInternalServerErr, "Internal server error"
	}
}

// teardown runs once per session: cancel, close the instance, forget the
// session and detach the instance from the registry.
func (r *Router) teardown(s *session, tracked bool) {
	s.teardownOnce.Do(func() {
		s.cancel()
		if err := s.instance.Close(); err != nil {
			logger.WithComponent("session").WithFields(s.fields()).WithField("error", err.Error()).Debug("Error closing connection")
		}

		if tracked {
			r.mu.Lock()
			delete(r.sessions, s.id)
			r.mu.Unlock()
		}

		r.registry.DetachInstance(s.serverID, s.id)
		close(s.done)

		logger.WithComponent("session").WithFields(s.fields()).Info("Session disconnected")
		if tracked {
			r.active.Done()
		}
	})
}

// Sessions returns the active sessions ordered by connection time
func (r *Router) Sessions() []models.Session {
	r.mu.Lock()
	out := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Count returns the number of active sessions
func (r *Router) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseSession closes one session and waits for its teardown
func (r *Router) CloseSession(sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
	}

	_ = s.closeWith(websocket.CloseNormalClosure, "Session closed")
	<-s.done
	return nil
}

// StopAccepting makes every later connection close with going-away
func (r *Router) StopAccepting() {
	r.mu.Lock()
	r.accepting = false
	r.mu.Unlock()
}

// Accepting reports whether new connections are admitted
func (r *Router) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepting
}

// CloseAll stops accepting, closes every session with going-away and waits
// for their teardowns or ctx.
func (r *Router) CloseAll(ctx context.Context) error {
	r.StopAccepting()

	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.closeWith(websocket.CloseGoingAway, "Server shutting down")
	}

	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
