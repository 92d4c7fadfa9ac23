package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// RegisterWorkspaceTools registers the workspace lifecycle tools.
func RegisterWorkspaceTools(s *server.MCPServer, deps *ToolDeps) {
	registerCreateWorkspaceTool(s, deps)
	registerUpdateWorkspaceTool(s, deps)
	registerDeleteWorkspaceTool(s, deps)
	registerActivateWorkspaceTool(s, deps)
	registerDeactivateWorkspaceTool(s, deps)
	registerWorkspaceStatusTool(s, deps)
	registerListWorkspacesTool(s, deps)
}

// connectionOptions are the config parameters shared by create and update.
func connectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("host", mcp.Description("Server host name or address (network engines)")),
		mcp.WithNumber("port", mcp.Description("Server port; the engine default when omitted")),
		mcp.WithString("database", mcp.Description("Database name (network engines)")),
		mcp.WithString("username", mcp.Description("Login name (network engines)")),
		mcp.WithString("password", mcp.Description("Login password; never echoed back")),
		mcp.WithString("file_path", mcp.Description("Database file path (sqlite)")),
		mcp.WithObject("options", mcp.Description("Driver options, e.g. {\"sslmode\": \"disable\"}")),
	}
}

// connectionConfigFromRequest reads the config parameters. Unset fields
// are zero, which UpdateConfig treats as "keep".
func connectionConfigFromRequest(req mcp.CallToolRequest) models.ConnectionConfig {
	cfg := models.ConnectionConfig{
		Type:     models.DatabaseType(getOptionalString(req, "db_type")),
		Host:     getOptionalString(req, "host"),
		Database: getOptionalString(req, "database"),
		Username: getOptionalString(req, "username"),
		FilePath: getOptionalString(req, "file_path"),
		Options:  getOptionalStringMap(req, "options"),
	}
	// Passwords may legitimately start or end with spaces.
	cfg.Password, _ = arguments(req)["password"].(string)
	if port, ok := getOptionalInt(req, "port"); ok {
		cfg.Port = port
	}
	return cfg
}

func redacted(ws *models.Workspace) models.Workspace {
	return ws.Redacted()
}

func registerCreateWorkspaceTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Register a target database as a new, inactive workspace. " +
				"Call activate_workspace before analyzing tables. " +
				"Example: create_workspace(name='analytics', db_type='postgres', host='db.internal', database='analytics', username='reader', password='...')",
		),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique workspace name")),
		mcp.WithString("db_type", mcp.Required(), mcp.Description("One of: postgres, mysql, sqlserver, sqlite")),
	}
	opts = append(opts, connectionOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
	)
	tool := mcp.NewTool("create_workspace", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := getOptionalString(req, "name")
		if name == "" {
			return NewErrorResult("invalid_input", "parameter 'name' cannot be empty"), nil
		}

		ws, err := deps.Workspaces.Create(ctx, name, connectionConfigFromRequest(req))
		if err != nil {
			return resultForError(err)
		}
		deps.Logger.Info("Workspace created via MCP", zap.String("workspace_id", ws.ID.String()))
		return jsonResult(redacted(ws))
	})
}

func registerUpdateWorkspaceTool(s *server.MCPServer, deps *ToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Change a workspace's connection settings. Omitted parameters keep their values. " +
				"An active workspace is deactivated and must be activated again.",
		),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithString("db_type", mcp.Description("One of: postgres, mysql, sqlserver, sqlite")),
	}
	opts = append(opts, connectionOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
	tool := mcp.NewTool("update_workspace", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		ws, err := deps.Workspaces.UpdateConfig(ctx, id, connectionConfigFromRequest(req))
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(redacted(ws))
	})
}

func registerDeleteWorkspaceTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"delete_workspace",
		mcp.WithDescription("Deactivate and remove a workspace together with its sessions."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		if err := deps.Workspaces.Delete(ctx, id); err != nil {
			return resultForError(err)
		}
		return jsonResult(map[string]any{"deleted": true, "workspace_id": id.String()})
	})
}

func registerActivateWorkspaceTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"activate_workspace",
		mcp.WithDescription(
			"Connect a workspace to its database. Workspaces that point at the same database share one connection pool. "+
				"Activating an active workspace re-checks that the connection is alive.",
		),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		ws, err := deps.Workspaces.Activate(ctx, id)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(redacted(ws))
	})
}

func registerDeactivateWorkspaceTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"deactivate_workspace",
		mcp.WithDescription("Release a workspace's connection pool. Sessions are kept."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		ws, err := deps.Workspaces.Deactivate(ctx, id)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(redacted(ws))
	})
}

type workspaceStatusResult struct {
	Workspace models.Workspace      `json:"workspace"`
	Pool      *datasource.PoolStats `json:"pool,omitempty"`
}

func registerWorkspaceStatusTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"workspace_status",
		mcp.WithDescription("Report a workspace's state, last connection error and pool statistics."),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "workspace_id")
		if errResult != nil {
			return errResult, nil
		}
		status, err := deps.Workspaces.Status(ctx, id)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(statusResult(status))
	})
}

func statusResult(status *services.WorkspaceStatus) workspaceStatusResult {
	return workspaceStatusResult{Workspace: redacted(status.Workspace), Pool: status.Pool}
}

func registerListWorkspacesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_workspaces",
		mcp.WithDescription("List every workspace with its current state."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaces, err := deps.Workspaces.List(ctx)
		if err != nil {
			return resultForError(err)
		}
		out := make([]models.Workspace, 0, len(workspaces))
		for _, ws := range workspaces {
			out = append(out, redacted(ws))
		}
		return jsonResult(map[string]any{"workspaces": out})
	})
}
