package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

type healthResult struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Pools     int                      `json:"pools"`
	Databases []datasource.DialectInfo `json:"databases"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and open pool count.
func RegisterHealthTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pools := 0
		if deps.Manager != nil {
			pools = len(deps.Manager.Stats())
		}
		return jsonResult(healthResult{
			Status:    "ok",
			Version:   deps.Version,
			Pools:     pools,
			Databases: datasource.RegisteredDialects(),
		})
	})
}
