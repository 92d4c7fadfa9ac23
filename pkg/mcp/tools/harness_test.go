package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/postgres" // Register postgres adapter
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/sqlite"   // Register sqlite adapter
	"github.com/ekaya-inc/ekaya-workspace/pkg/repositories"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// newTestServer registers every tool against an in-memory store.
func newTestServer(t *testing.T) (*server.MCPServer, *ToolDeps) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		Pool: datasource.PoolOptions{MaxSize: 2, BorrowTimeout: 2 * time.Second},
	}, nil, logger)
	t.Cleanup(func() { _ = manager.Close() })

	store := repositories.NewMemoryStore()
	workspaces := services.NewWorkspaceService(store.Workspaces(), manager, logger)
	deps := &ToolDeps{
		Workspaces: workspaces,
		Sessions:   services.NewSessionService(store.Sessions(), workspaces, logger),
		Analyzer:   services.NewSchemaAnalyzer(workspaces, services.DefaultAnalysisOptions(), logger),
		Manager:    manager,
		Version:    "test",
		Logger:     logger,
	}

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, deps)
	return s, deps
}

// toolResponse is the JSON-RPC envelope of a tools/call.
type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r toolResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected JSON-RPC error")
	require.Len(t, r.Result.Content, 1)
	return r.Result.Content[0].Text
}

// callTool sends a tools/call request through the server.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()

	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","id":1,"params":%s}`, params)

	result := s.HandleMessage(context.Background(), []byte(msg))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// callJSON calls a tool that must succeed and decodes its JSON result.
func callJSON(t *testing.T, s *server.MCPServer, name string, args map[string]any, out any) {
	t.Helper()
	resp := callTool(t, s, name, args)
	text := resp.text(t)
	require.False(t, resp.Result.IsError, text)
	require.NoError(t, json.Unmarshal([]byte(text), out))
}

// callError calls a tool that must return a structured error.
func callError(t *testing.T, s *server.MCPServer, name string, args map[string]any) ErrorResponse {
	t.Helper()
	resp := callTool(t, s, name, args)
	text := resp.text(t)
	require.True(t, resp.Result.IsError, text)

	var er ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text), &er))
	return er
}
