package registry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Instance is a live protocol server bound to exactly one session transport
type Instance struct {
	ServerID  string
	TenantID  string
	SessionID string
	StartedAt time.Time
	Server    *server.MCPServer

	transport io.Closer
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newInstance(tenantID, serverID, sessionID string, srv *server.MCPServer, transport io.Closer) *Instance {
	ctx, cancel := context.WithCancel(context.Background())
	return &Instance{
		ServerID:  serverID,
		TenantID:  tenantID,
		SessionID: sessionID,
		StartedAt: time.Now(),
		Server:    srv,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handle processes one JSON-RPC document. Notifications return nil.
// Calls made after Close are dropped.
func (i *Instance) Handle(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	if i.ctx.Err() != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(i.ctx, cancel)
	defer stop()

	return i.Server.HandleMessage(ctx, raw)
}

// Close cancels in-flight calls and closes the bound transport. Safe to call more than once.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		i.cancel()
		if i.transport != nil {
			i.closeErr = i.transport.Close()
		}
	})
	return i.closeErr
}

// Done is closed once the instance has been closed
func (i *Instance) Done() <-chan struct{} {
	return i.ctx.Done()
}

// Closed reports whether Close has been called
func (i *Instance) Closed() bool {
	return i.ctx.Err() != nil
}
