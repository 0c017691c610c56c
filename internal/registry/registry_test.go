package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphost/internal/catalog"
	"github.com/imyashkale/mcphost/internal/models"
)

type fakeTransport struct {
	closes  atomic.Int32
	onClose func()
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

func createReq(name, typ string) *models.CreateMCPServerRequest {
	return &models.CreateMCPServerRequest{Name: name, Type: typ}
}

func TestCreateServerValidation(t *testing.T) {
	r := New(catalog.Default())

	tests := []struct {
		name    string
		tenant  string
		req     *models.CreateMCPServerRequest
		wantErr error
	}{
		{name: "hosted type", tenant: "t1", req: createReq("files", "file-manager")},
		{name: "catalog worker type", tenant: "t1", req: createReq("gh", "github")},
		{name: "unknown type", tenant: "t1", req: createReq("x", "fax-machine"), wantErr: models.ErrConfig},
		{name: "blank name", tenant: "t1", req: createReq("  ", "custom"), wantErr: models.ErrConfig},
		{name: "missing tenant", tenant: "", req: createReq("x", "custom"), wantErr: models.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := r.CreateServer(tt.tenant, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Id)
			assert.Equal(t, tt.tenant, cfg.TenantId)
			assert.Equal(t, models.StatusCreated, cfg.Status)
		})
	}
}

func TestQuotaIsPerTenantAndSideEffectFree(t *testing.T) {
	r := New(catalog.Default(), WithMaxServersPerTenant(10))

	for i := 0; i < 10; i++ {
		_, err := r.CreateServer("t1", createReq(fmt.Sprintf("s%d", i), "custom"))
		require.NoError(t, err)
	}

	_, err := r.CreateServer("t1", createReq("eleventh", "custom"))
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	assert.Len(t, r.ListServers("t1"), 10)

	_, err = r.CreateServer("t2", createReq("other tenant", "custom"))
	assert.NoError(t, err)
}

func TestQuotaUnderConcurrency(t *testing.T) {
	r := New(catalog.Default(), WithMaxServersPerTenant(5))

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.CreateServer("t1", createReq(fmt.Sprintf("s%d", i), "custom")); err == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Len(t, r.ListServers("t1"), 5)
}

func TestTenantIsolation(t *testing.T) {
	r := New(catalog.Default())
	cfg, err := r.CreateServer("t1", createReq("files", "file-manager"))
	require.NoError(t, err)

	_, err = r.GetServer("t2", cfg.Id)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = r.GetServerStatus("t2", cfg.Id)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, r.DeleteServer("t2", cfg.Id), models.ErrNotFound)
	assert.Empty(t, r.ListServers("t2"))

	_, err = r.AttachInstance("t2", cfg.Id, "sess", &fakeTransport{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAttachDetachLifecycle(t *testing.T) {
	r := New(catalog.Default())
	cfg, err := r.CreateServer("t1", createReq("files", "file-manager"))
	require.NoError(t, err)

	st, err := r.GetServerStatus("t1", cfg.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopped, st.Status)
	assert.Nil(t, st.StartedAt)

	inst, err := r.AttachInstance("t1", cfg.Id, "sess-1", &fakeTransport{})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", inst.SessionID)

	st, err = r.GetServerStatus("t1", cfg.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, st.Status)
	require.NotNil(t, st.StartedAt)

	_, err = r.AttachInstance("t1", cfg.Id, "sess-2", &fakeTransport{})
	assert.ErrorIs(t, err, ErrInstanceBusy)
	assert.ErrorIs(t, err, models.ErrAlreadyRunning)

	assert.False(t, r.DetachInstance(cfg.Id, "sess-2"), "foreign session must not detach")
	assert.True(t, r.DetachInstance(cfg.Id, "sess-1"))
	assert.False(t, r.DetachInstance(cfg.Id, "sess-1"))

	total, running := r.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, running)
}

func TestAttachUnknownServer(t *testing.T) {
	r := New(catalog.Default())
	_, err := r.AttachInstance("t1", "missing", "sess", &fakeTransport{})
	assert.ErrorIs(t, err, models.ErrNotFound)

	total, running := r.Counts()
	assert.Zero(t, total)
	assert.Zero(t, running)
}

func TestAttachFactoryFailureIsInternal(t *testing.T) {
	r := New(catalog.Default(), WithProtocolServerFactory(func(cfg *models.ServerConfig) (*server.MCPServer, error) {
		return nil, errors.New("no capacity")
	}))
	cfg, err := r.CreateServer("t1", createReq("files", "file-manager"))
	require.NoError(t, err)

	_, err = r.AttachInstance("t1", cfg.Id, "sess", &fakeTransport{})
	assert.ErrorIs(t, err, models.ErrInternal)

	_, ok := r.Instance(cfg.Id)
	assert.False(t, ok, "failed setup must not leave an instance behind")
}

func TestAttachFactoryPanicIsInternal(t *testing.T) {
	calls := 0
	r := New(catalog.Default(), WithProtocolServerFactory(func(cfg *models.ServerConfig) (*server.MCPServer, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return server.NewMCPServer(cfg.Name, "1.0.0"), nil
	}))
	cfg, err := r.CreateServer("t1", createReq("files", "file-manager"))
	require.NoError(t, err)

	_, err = r.AttachInstance("t1", cfg.Id, "sess-1", &fakeTransport{})
	assert.ErrorIs(t, err, models.ErrInternal)
	_, ok := r.Instance(cfg.Id)
	assert.False(t, ok)

	// the registry lock was released and a retry succeeds
	inst, err := r.AttachInstance("t1", cfg.Id, "sess-2", &fakeTransport{})
	require.NoError(t, err)
	assert.Equal(t, "sess-2", inst.SessionID)
}

func TestDeleteClosesInstanceBeforeConfigRemoval(t *testing.T) {
	r := New(catalog.Default())
	cfg, err := r.CreateServer("t1", createReq("files", "file-manager"))
	require.NoError(t, err)

	var configPresentAtClose atomic.Bool
	transport := &fakeTransport{}
	transport.onClose = func() {
		_, ok := r.Lookup(cfg.Id)
		configPresentAtClose.Store(ok)
	}

	inst, err := r.AttachInstance("t1", cfg.Id, "sess", transport)
	require.NoError(t, err)

	require.NoError(t, r.DeleteServer("t1", cfg.Id))

	assert.True(t, configPresentAtClose.Load())
	assert.True(t, inst.Closed())
	assert.Equal(t, int32(1), transport.closes.Load())
	_, ok := r.Lookup(cfg.Id)
	assert.False(t, ok)

	assert.ErrorIs(t, r.DeleteServer("t1", cfg.Id), models.ErrNotFound)
}

func TestInstanceCloseIsIdempotent(t *testing.T) {
	r := New(catalog.Default())
	cfg, err := r.CreateServer("t1", createReq("misc", "custom"))
	require.NoError(t, err)

	transport := &fakeTransport{}
	inst, err := r.AttachInstance("t1", cfg.Id, "sess", transport)
	require.NoError(t, err)

	require.NoError(t, inst.Close())
	require.NoError(t, inst.Close())
	assert.Equal(t, int32(1), transport.closes.Load())

	select {
	case <-inst.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}

	assert.Nil(t, inst.Handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
}

func TestInstanceHandlesMessages(t *testing.T) {
	r := New(catalog.Default())
	cfg, err := r.CreateServer("t1", createReq("misc", "custom"))
	require.NoError(t, err)

	inst, err := r.AttachInstance("t1", cfg.Id, "sess", &fakeTransport{})
	require.NoError(t, err)

	resp := inst.Handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"echo"`)
}

func TestCloseAll(t *testing.T) {
	r := New(catalog.Default())
	var transports []*fakeTransport
	for i := 0; i < 3; i++ {
		cfg, err := r.CreateServer("t1", createReq(fmt.Sprintf("s%d", i), "custom"))
		require.NoError(t, err)
		tr := &fakeTransport{}
		transports = append(transports, tr)
		_, err = r.AttachInstance("t1", cfg.Id, fmt.Sprintf("sess-%d", i), tr)
		require.NoError(t, err)
	}

	require.NoError(t, r.CloseAll())

	for _, tr := range transports {
		assert.Equal(t, int32(1), tr.closes.Load())
	}
	total, running := r.Counts()
	assert.Equal(t, 3, total)
	assert.Zero(t, running)
}

func TestListServersOrderedByCreation(t *testing.T) {
	r := New(catalog.Default())
	var ids []string
	for i := 0; i < 4; i++ {
		cfg, err := r.CreateServer("t1", createReq(fmt.Sprintf("s%d", i), "custom"))
		require.NoError(t, err)
		ids = append(ids, cfg.Id)
		time.Sleep(2 * time.Millisecond)
	}

	list := r.ListServers("t1")
	require.Len(t, list, 4)
	for i, st := range list {
		assert.Equal(t, ids[i], st.Id)
	}
}
