package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// RegisterAnalysisTools registers the schema and table analysis tools.
func RegisterAnalysisTools(s *server.MCPServer, deps *ToolDeps) {
	registerListTablesTool(s, deps)
	registerGetSchemaContextTool(s, deps)
	registerAnalyzeTableTool(s, deps)
	registerGetTableContextTool(s, deps)
}

func schemaOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Id of an active workspace")),
		mcp.WithString("schema", mcp.Description("Optional - schema name; the engine default when omitted")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	}
}

// listTables runs the schema listing for a tool request. A non-nil result
// is an error result to hand back as is.
func listTables(ctx context.Context, deps *ToolDeps, req mcp.CallToolRequest) (*models.SchemaSummary, *mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "workspace_id")
	if errResult != nil {
		return nil, errResult, nil
	}
	summary, err := deps.Analyzer.ListTables(ctx, id, getOptionalString(req, "schema"))
	if err != nil {
		result, err := resultForError(err)
		return nil, result, err
	}
	return summary, nil, nil
}

func registerListTablesTool(s *server.MCPServer, deps *ToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"List the tables of a schema with their primary key columns and row counts, as JSON. " +
				"Use it to find table names before calling analyze_table.",
		),
	}, schemaOptions()...)
	tool := mcp.NewTool("list_tables", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, errResult, err := listTables(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}
		return jsonResult(summary)
	})
}

func registerGetSchemaContextTool(s *server.MCPServer, deps *ToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Summarize a schema as plain text: every table with its primary key and row count, " +
				"and the tables that have no primary key.",
		),
	}, schemaOptions()...)
	tool := mcp.NewTool("get_schema_context", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, errResult, err := listTables(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}
		return mcp.NewToolResultText(services.GetSchemaContext(summary)), nil
	})
}

func tableOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Id of an active workspace")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name (e.g., 'orders')")),
		mcp.WithString("schema", mcp.Description("Optional - schema name; the engine default when omitted")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	}
}

// analyze runs the analyzer for a tool request. A non-nil result is an
// error result to hand back as is.
func analyze(ctx context.Context, deps *ToolDeps, req mcp.CallToolRequest) (*models.TableAnalysis, *mcp.CallToolResult, error) {
	id, errResult := requireUUID(req, "workspace_id")
	if errResult != nil {
		return nil, errResult, nil
	}
	table := getOptionalString(req, "table")
	if table == "" {
		return nil, NewErrorResult("invalid_input", "parameter 'table' cannot be empty"), nil
	}

	a, err := deps.Analyzer.Analyze(ctx, id, table, getOptionalString(req, "schema"))
	if err != nil {
		result, err := resultForError(err)
		return nil, result, err
	}
	if partial := a.PartialFailure(); partial != nil {
		deps.Logger.Warn("Table analysis degraded",
			zap.String("workspace_id", id.String()),
			zap.String("table", a.QualifiedName()),
			zap.String("error", logging.SanitizeError(partial)),
		)
	}
	return a, nil, nil
}

type analyzeTableResult struct {
	*models.TableAnalysis
	Degraded bool `json:"degraded"`
}

func registerAnalyzeTableTool(s *server.MCPServer, deps *ToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Introspect one table: columns, keys, indexes, size, column statistics, likely relationships, " +
				"data quality issues and recommendations, as JSON. " +
				"Steps that fail without losing the connection are listed in quality_issues and set degraded=true.",
		),
	}, tableOptions()...)
	tool := mcp.NewTool("analyze_table", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, errResult, err := analyze(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}
		return jsonResult(analyzeTableResult{TableAnalysis: a, Degraded: a.Degraded()})
	})
}

func registerGetTableContextTool(s *server.MCPServer, deps *ToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Analyze one table and return a compact plain-text description for writing queries against it: " +
				"columns with statistics, keys, relationships, data quality notes and sample rows.",
		),
	}, tableOptions()...)
	tool := mcp.NewTool("get_table_context", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, errResult, err := analyze(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}
		return mcp.NewToolResultText(services.GetLLMContext(a)), nil
	})
}
