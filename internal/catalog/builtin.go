package catalog

// Hosted server types served in-process over websocket sessions
const (
	TypeFileManager = "file-manager"
	TypeDatabase    = "database"
	TypeAPIClient   = "api-client"
	TypeCustom      = "custom"
)

func npx(pkg string) *ProcessSpec {
	return &ProcessSpec{Command: "npx", Args: []string{"-y", pkg}}
}

func builtinTypes() []ServerType {
	fileManager := &ProcessSpec{
		Command:     "npx",
		Args:        []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
		OptionalEnv: []string{"MCP_FS_ROOT"},
	}
	database := &ProcessSpec{
		Command:     "npx",
		Args:        []string{"-y", "@modelcontextprotocol/server-postgres"},
		RequiredEnv: []string{"DATABASE_URL"},
	}

	digitalocean := npx("@digitalocean/mcp")
	digitalocean.RequiredEnv = []string{"DIGITALOCEAN_API_TOKEN"}

	memory := npx("@modelcontextprotocol/server-memory")
	memory.OptionalEnv = []string{"MEMORY_FILE_PATH"}

	github := npx("@modelcontextprotocol/server-github")
	github.RequiredEnv = []string{"GITHUB_PERSONAL_ACCESS_TOKEN"}

	knowledgeGraph := npx("@itseasy21/mcp-knowledge-graph")
	knowledgeGraph.OptionalEnv = []string{"MEMORY_FILE_PATH"}

	return []ServerType{
		{Name: TypeFileManager, DisplayName: "File Manager", Description: "Read, write and list files", Category: "storage", Hosted: true, Process: fileManager},
		{Name: TypeDatabase, DisplayName: "Database", Description: "Query a configured database", Category: "storage", Hosted: true, Process: database},
		{Name: TypeAPIClient, DisplayName: "API Client", Description: "Make HTTP API requests", Category: "network", Hosted: true},
		{Name: TypeCustom, DisplayName: "Custom", Description: "Connectivity and echo tools", Category: "utility", Hosted: true},

		{Name: "digitalocean", DisplayName: "DigitalOcean MCP Server", Description: "Deploy and manage apps on DigitalOcean App Platform", Category: "cloud", Process: digitalocean},
		{Name: "sequential-thinking", DisplayName: "Sequential Thinking MCP Server", Description: "Dynamic problem-solving through structured thinking", Category: "ai", Process: npx("@modelcontextprotocol/server-sequential-thinking")},
		{Name: "puppeteer", DisplayName: "Puppeteer MCP Server", Description: "Browser automation and web scraping", Category: "automation", Process: npx("@modelcontextprotocol/server-puppeteer")},
		{Name: "playwright", DisplayName: "Playwright MCP Server", Description: "Advanced browser testing and automation", Category: "automation", Process: &ProcessSpec{Command: "npx", Args: []string{"@playwright/mcp@latest"}}},
		{Name: "memory", DisplayName: "Memory MCP Server", Description: "Persistent memory and knowledge storage", Category: "storage", Process: memory},
		{Name: "mcp-compass", DisplayName: "MCP Compass", Description: "Navigate and discover MCP servers", Category: "utility", Process: npx("@liuyoshio/mcp-compass")},
		{
			Name: "brave-search", DisplayName: "Brave Search MCP Server", Description: "Web and local search capabilities", Category: "search",
			Process: &ProcessSpec{
				Command:     "docker",
				Args:        []string{"run", "-i", "--rm", "-e", "BRAVE_API_KEY", "mcp/brave-search"},
				RequiredEnv: []string{"BRAVE_API_KEY"},
			},
		},
		{Name: "github", DisplayName: "GitHub MCP Server", Description: "Repository management, issues, and PRs", Category: "development", Process: github},
		{Name: "knowledge-graph", DisplayName: "Knowledge Graph MCP Server", Description: "Graph-based knowledge storage and retrieval", Category: "storage", Process: knowledgeGraph},
	}
}
