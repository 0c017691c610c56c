package toolset

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imyashkale/mcphost/internal/models"
)

// Tool implementations report what would be done; the actual file, database
// and HTTP access lives behind the hosting operator's policies.

var fileManager = Toolset{
	Tools: []mcp.Tool{
		mcp.NewTool("read_file",
			mcp.WithDescription("Read contents of a file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path to read")),
		),
		mcp.NewTool("write_file",
			mcp.WithDescription("Write contents to a file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path to write")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Content to write")),
		),
		mcp.NewTool("list_files",
			mcp.WithDescription("List files in a directory"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Directory path to list")),
		),
	},
	Dispatch: func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
		path, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}

		switch name {
		case "read_file":
			return mcp.NewToolResultText(fmt.Sprintf("File read operation for: %s", path)), nil
		case "write_file":
			if _, ok := args["content"].(string); !ok {
				return nil, fmt.Errorf("content is required")
			}
			return mcp.NewToolResultText(fmt.Sprintf("File write operation for: %s", path)), nil
		case "list_files":
			return mcp.NewToolResultText(fmt.Sprintf("List files operation for: %s", path)), nil
		default:
			return nil, unknownTool(name)
		}
	},
}

var database = Toolset{
	Tools: []mcp.Tool{
		mcp.NewTool("query_database",
			mcp.WithDescription("Execute a database query"),
			mcp.WithString("query", mcp.Required(), mcp.Description("SQL query to execute")),
			mcp.WithArray("params", mcp.Description("Query parameters")),
		),
	},
	Dispatch: func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
		if name != "query_database" {
			return nil, unknownTool(name)
		}
		query, err := stringArg(args, "query")
		if err != nil {
			return nil, err
		}
		params, _ := args["params"].([]any)
		return mcp.NewToolResultText(fmt.Sprintf("Database query executed on %s: %s (%d params)", cfg.Name, query, len(params))), nil
	},
}

var httpMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

var apiClient = Toolset{
	Tools: []mcp.Tool{
		mcp.NewTool("api_request",
			mcp.WithDescription("Make HTTP API request"),
			mcp.WithString("method", mcp.Required(), mcp.Enum(httpMethods...)),
			mcp.WithString("url", mcp.Required(), mcp.Description("API endpoint URL")),
			mcp.WithObject("headers", mcp.Description("Request headers")),
			mcp.WithObject("body", mcp.Description("Request body")),
		),
	},
	Dispatch: func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
		if name != "api_request" {
			return nil, unknownTool(name)
		}
		method, err := stringArg(args, "method")
		if err != nil {
			return nil, err
		}
		method = strings.ToUpper(method)
		valid := false
		for _, m := range httpMethods {
			if m == method {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unsupported method %s", method)
		}
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(fmt.Sprintf("API request: %s %s", method, url)), nil
	},
}

var pingTool = mcp.NewTool("ping",
	mcp.WithDescription("Test connectivity"),
	mcp.WithString("message", mcp.Description("Message to echo back")),
)

func pong(args map[string]any) *mcp.CallToolResult {
	msg, _ := args["message"].(string)
	if msg == "" {
		msg = "Hello from MCP server!"
	}
	return mcp.NewToolResultText("Pong: " + msg)
}

var defaultTools = Toolset{
	Tools: []mcp.Tool{pingTool},
	Dispatch: func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
		if name != "ping" {
			return nil, unknownTool(name)
		}
		return pong(args), nil
	},
}

var custom = Toolset{
	Tools: []mcp.Tool{
		pingTool,
		mcp.NewTool("echo",
			mcp.WithDescription("Return the given text unchanged"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to return")),
		),
	},
	Dispatch: func(ctx context.Context, cfg *models.ServerConfig, name string, args map[string]any) (*mcp.CallToolResult, error) {
		switch name {
		case "ping":
			return pong(args), nil
		case "echo":
			text, err := stringArg(args, "text")
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		default:
			return nil, unknownTool(name)
		}
	},
}
