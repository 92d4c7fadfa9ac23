package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCallLogger_CountsOutcomes(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zaptest.NewLogger(t))

	s.RegisterTool(mcp.NewTool("fine"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	s.RegisterTool(mcp.NewTool("refuses"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("nope"), nil
	})
	s.RegisterTool(mcp.NewTool("breaks"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("boom")
	})

	call := func(id int, name string) {
		msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","id":%d,"params":{"name":%q,"arguments":{}}}`, id, name)
		s.MCP().HandleMessage(context.Background(), []byte(msg))
	}
	call(1, "fine")
	call(2, "fine")
	call(3, "refuses")
	call(4, "breaks")

	calls := s.Calls()
	assert.Equal(t, 2.0, testutil.ToFloat64(calls.calls.WithLabelValues("fine", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(calls.calls.WithLabelValues("refuses", "error_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(calls.calls.WithLabelValues("breaks", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(calls.duration))

	remaining := 0
	calls.startTimes.Range(func(_, _ any) bool {
		remaining++
		return true
	})
	assert.Zero(t, remaining, "start times are dropped once a call finishes")
}

func TestCallLogger_Register(t *testing.T) {
	c := NewCallLogger(zaptest.NewLogger(t))
	reg := prometheus.NewRegistry()

	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg), "collectors register once per registry")
}
