//go:build !windows

package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/logbuffer"
	"github.com/imyashkale/mcphost/internal/models"
	"github.com/imyashkale/mcphost/internal/registry"
	"github.com/imyashkale/mcphost/internal/session"
	"github.com/imyashkale/mcphost/internal/supervisor"
)

type fixture struct {
	cp       *ControlPlane
	reg      *registry.Registry
	sup      *supervisor.Supervisor
	sessions *session.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.Default()
	cat.Register(catalog.ServerType{
		Name:    "sleeper",
		Process: &catalog.ProcessSpec{Command: "sh", Args: []string{"-c", "echo up; exec sleep 30"}},
	})

	reg := registry.New(cat)
	sup := supervisor.New(cat, logbuffer.New(100),
		supervisor.WithStartConfirmWindow(100*time.Millisecond),
		supervisor.WithStopGracePeriod(500*time.Millisecond),
	)
	allow := session.AuthenticatorFunc(func(ctx context.Context, tenantID, serverID, token string) error { return nil })
	sessions := session.New(reg, allow)

	f := &fixture{cp: NewControlPlane(reg, sup, sessions), reg: reg, sup: sup, sessions: sessions}
	t.Cleanup(func() { sup.StopAll() })
	return f
}

func (f *fixture) create(t *testing.T, tenantID, typ string) *models.ServerConfig {
	t.Helper()
	cfg, err := f.cp.CreateServer(tenantID, &models.CreateMCPServerRequest{Name: "srv", Type: typ})
	require.NoError(t, err)
	return cfg
}

func TestStartStopThroughControlPlane(t *testing.T) {
	f := newFixture(t)
	cfg := f.create(t, "t1", "sleeper")

	st, err := f.cp.StartServer("t1", cfg.Id)
	require.NoError(t, err)
	assert.Greater(t, st.PID, 0)

	_, err = f.cp.StartServer("t1", cfg.Id)
	assert.ErrorIs(t, err, models.ErrAlreadyRunning)

	runtime, err := f.cp.ProcessStatus("t1", cfg.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessRunning, runtime.Status)
	assert.Equal(t, 1, f.cp.Stats().RunningProcesses)

	require.NoError(t, f.cp.StopServer("t1", cfg.Id))
	assert.ErrorIs(t, f.cp.StopServer("t1", cfg.Id), models.ErrNotFound)
}

func TestTenantOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	cfg := f.create(t, "t1", "sleeper")

	_, err := f.cp.StartServer("t2", cfg.Id)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, f.cp.StopServer("t2", cfg.Id), models.ErrNotFound)
	_, err = f.cp.Logs("t2", cfg.Id, 10)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, f.cp.DeleteServer("t2", cfg.Id), models.ErrNotFound)
	assert.Equal(t, 0, f.sup.Count())
}

func TestStartHostedTypeWithoutWorker(t *testing.T) {
	f := newFixture(t)
	cfg := f.create(t, "t1", "custom")

	_, err := f.cp.StartServer("t1", cfg.Id)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	cfg := f.create(t, "t1", "sleeper")

	_, err := f.cp.StartServer("t1", cfg.Id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		logs, _ := f.cp.Logs("t1", cfg.Id, 0)
		return len(logs) > 0
	}, 2*time.Second, 20*time.Millisecond)

	transport := &closeRecorder{}
	_, err = f.reg.AttachInstance("t1", cfg.Id, "sess-1", transport)
	require.NoError(t, err)

	require.NoError(t, f.cp.DeleteServer("t1", cfg.Id))

	assert.Equal(t, 0, f.sup.Count())
	assert.True(t, transport.closed)
	assert.Empty(t, f.sup.Logs(cfg.Id, 0))
	_, err = f.cp.GetServer("t1", cfg.Id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	stats := f.cp.Stats()
	assert.Zero(t, stats.TotalServers)
	assert.Zero(t, stats.RunningServers)
}

func TestDeleteRacingStartLeavesNoWorker(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		cfg := f.create(t, "t1", "sleeper")

		var wg sync.WaitGroup
		wg.Add(2)
		var startErr, deleteErr error
		go func() {
			defer wg.Done()
			_, startErr = f.cp.StartServer("t1", cfg.Id)
		}()
		go func() {
			defer wg.Done()
			deleteErr = f.cp.DeleteServer("t1", cfg.Id)
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if startErr != nil {
			assert.ErrorIs(t, startErr, models.ErrNotFound)
		}
		assert.Zero(t, f.sup.Count(), "round %d left a worker without a config", i)
		_, ok := f.reg.Lookup(cfg.Id)
		assert.False(t, ok)
	}
}

func TestShutdownOrder(t *testing.T) {
	f := newFixture(t)
	worker := f.create(t, "t1", "sleeper")
	hosted := f.create(t, "t1", "custom")

	_, err := f.cp.StartServer("t1", worker.Id)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/ws", f.sessions.Handler())
	srv := httptest.NewServer(engine)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant=t1&server=" + hosted.Id + "&token=x"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, 1, f.cp.Stats().ActiveConnections)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.cp.Shutdown(ctx))

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)

	stats := f.cp.Stats()
	assert.Zero(t, stats.ActiveConnections)
	assert.Zero(t, stats.RunningServers)
	assert.Zero(t, stats.RunningProcesses)
	assert.Equal(t, 2, stats.TotalServers)
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
