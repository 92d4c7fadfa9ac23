// Package tools provides the MCP tools over workspaces, table analysis and
// sessions.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// ToolDeps contains the services the tools call into.
type ToolDeps struct {
	Workspaces services.WorkspaceService
	Sessions   services.SessionService
	Analyzer   services.SchemaAnalyzer
	Manager    *datasource.ConnectionManager
	Version    string
	Logger     *zap.Logger
}

// RegisterAll registers every tool on s.
func RegisterAll(s *server.MCPServer, deps *ToolDeps) {
	RegisterHealthTool(s, deps)
	RegisterWorkspaceTools(s, deps)
	RegisterAnalysisTools(s, deps)
	RegisterSessionTools(s, deps)
}
