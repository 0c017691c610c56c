package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/registry"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
	maxFrameSize = 4 << 20
)

// session is one accepted connection bound to one instance. It is also the
// transport the instance closes when the registry tears it down.
type session struct {
	id          string
	tenantID    string
	serverID    string
	remoteAddr  string
	connectedAt time.Time
	lastActive  atomic.Int64

	conn     *websocket.Conn
	writeMu  sync.Mutex
	instance *registry.Instance

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce    sync.Once
	closeCode    atomic.Int32
	closeReason  atomic.Value
	teardownOnce sync.Once
	done         chan struct{}
	inflight     sync.WaitGroup
}

func newSession(id, tenantID, serverID string, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &session{
		id:          id,
		tenantID:    tenantID,
		serverID:    serverID,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: now,
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	s.closeCode.Store(websocket.CloseNormalClosure)
	s.closeReason.Store("Session closed")
	return s
}

func (s *session) fields() map[string]interface{} {
	return map[string]interface{}{
		"session_id": s.id,
		"tenant_id":  s.tenantID,
		"server_id":  s.serverID,
	}
}

func (s *session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *session) snapshot() models.Session {
	return models.Session{
		Id:           s.id,
		TenantId:     s.tenantID,
		ServerId:     s.serverID,
		RemoteAddr:   s.remoteAddr,
		ConnectedAt:  s.connectedAt,
		LastActivity: time.Unix(0, s.lastActive.Load()),
	}
}

// closeWith records the close code sent on the first Close
func (s *session) closeWith(code int, reason string) error {
	if s.closeCode.CompareAndSwap(websocket.CloseNormalClosure, int32(code)) {
		s.closeReason.Store(reason)
	}
	return s.Close()
}

// Close sends a close frame and closes the connection. Safe to call more than once.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		reason, _ := s.closeReason.Load().(string)
		msg := websocket.FormatCloseMessage(int(s.closeCode.Load()), reason)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

// readLoop treats each frame as one JSON document and answers it on its own goroutine
func (s *session) readLoop() {
	s.conn.SetReadLimit(maxFrameSize)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.WithComponent("session").WithFields(s.fields()).WithField("error", err.Error()).Debug("Connection read ended")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.touch()

		if !json.Valid(data) {
			logger.WithComponent("session").WithFields(s.fields()).Warn("Discarding frame that is not valid JSON")
			continue
		}

		s.inflight.Add(1)
		go func(raw json.RawMessage) {
			defer s.inflight.Done()
			resp := s.instance.Handle(s.ctx, raw)
			if resp == nil {
				return
			}
			if err := s.writeJSON(resp); err != nil {
				logger.WithComponent("session").WithFields(s.fields()).WithField("error", err.Error()).Debug("Failed to write response")
			}
		}(json.RawMessage(data))
	}
}

func (s *session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}
