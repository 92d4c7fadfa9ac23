package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterSessionTools registers the session tools.
func RegisterSessionTools(s *server.MCPServer, deps *ToolDeps) {
	registerCreateSessionTool(s, deps)
	registerListSessionsTool(s, deps)
	registerLatestSessionTool(s, deps)
}

func registerCreateSessionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"create_session",
		mcp.WithDescription("Start a session on an active workspace."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Id of an active workspace")),
		mcp.WithString("name", mcp.Description("Optional - session label")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		session, err := deps.Sessions.Create(ctx, id, getOptionalString(req, "name"))
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(session)
	})
}

func registerListSessionsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_sessions",
		mcp.WithDescription("List a workspace's sessions, most recently used first."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		sessions, err := deps.Sessions.List(ctx, id)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(map[string]any{"sessions": sessions})
	})
}

func registerLatestSessionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"latest_session",
		mcp.WithDescription("Return the workspace's most recently used session and mark it used."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		latest, err := deps.Sessions.MostRecent(ctx, id)
		if err != nil {
			return resultForError(err)
		}
		touched, err := deps.Sessions.Touch(ctx, latest.ID)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(touched)
	})
}
