// Package toolset holds the closed table mapping a server type to the tools
// it exposes and the function that dispatches calls to them.
package toolset

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
)

// DefaultType is the table entry used for types without their own toolset
const DefaultType = "default"

// DispatchFunc executes one named tool for a server config
type DispatchFunc func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error)

// Toolset is a tool manifest paired with its dispatcher
type Toolset struct {
	Tools    []mcp.Tool
	Dispatch DispatchFunc
}

// Has reports whether name is part of the manifest
func (t Toolset) Has(name string) bool {
	for _, tool := range t.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// Names returns the tool names in manifest order
func (t Toolset) Names() []string {
	names := make([]string, 0, len(t.Tools))
	for _, tool := range t.Tools {
		names = append(names, tool.Name)
	}
	return names
}

var table = map[string]Toolset{
	"file-manager": fileManager,
	"database":     database,
	"api-client":   apiClient,
	"custom":       custom,
	DefaultType:    defaultTools,
}

// Lookup returns the toolset for a server type, falling back to the default entry
func Lookup(serverType string) Toolset {
	if ts, ok := table[serverType]; ok {
		return ts
	}
	return table[DefaultType]
}

// Types returns the server types with a dedicated toolset
func Types() []string {
	types := make([]string, 0, len(table))
	for t := range table {
		if t != DefaultType {
			types = append(types, t)
		}
	}
	return types
}

// CallTool runs a tool against the toolset of cfg.Type. Names outside the
// manifest fail with ErrUnknownTool; dispatch errors and panics come back as
// tool-level error results.
func CallTool(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return call(ctx, Lookup(cfg.Type), cfg, name, args)
}

func call(ctx context.Context, ts Toolset, cfg *models.ServerConfig, name string, args map[string]any) (result *mcp.CallToolResult, err error) {
	if !ts.Has(name) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"server_id": cfg.Id,
				"tool":      name,
				"panic":     fmt.Sprint(r),
				"stack":     string(debug.Stack()),
			}).Error("Tool dispatch panicked")
			result = mcp.NewToolResultError(fmt.Sprintf("tool %s failed: %v", name, r))
			err = nil
		}
	}()

	result, err = ts.Dispatch(ctx, cfg, name, args)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"server_id": cfg.Id,
			"tool":      name,
			"error":     err.Error(),
		}).Warn("Tool call failed")
		return mcp.NewToolResultError(err.Error()), nil
	}
	if result == nil {
		result = mcp.NewToolResultText("")
	}
	return result, nil
}

// NewProtocolServer builds the protocol server for a config and registers
// every tool of its type.
func NewProtocolServer(cfg *models.ServerConfig) *server.MCPServer {
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	s := server.NewMCPServer(cfg.Name, version, server.WithToolCapabilities(true))

	ts := Lookup(cfg.Type)
	for _, tool := range ts.Tools {
		toolName := tool.Name
		s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, err := call(ctx, ts, cfg, toolName, request.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return result, nil
		})
	}

	return s
}

func unknownTool(name string) error {
	return fmt.Errorf("%w: %s", models.ErrUnknownTool, name)
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}
