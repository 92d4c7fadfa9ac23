package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CallLogger logs MCP tool calls and counts them by tool and outcome.
type CallLogger struct {
	logger   *zap.Logger
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewCallLogger creates a CallLogger. Its collectors are unregistered until
// Register is called.
func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{
		logger: logger.Named("mcp-calls"),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ekaya_workspace",
			Name:      "mcp_tool_calls_total",
			Help:      "MCP tool calls by tool and outcome (ok, error_result, failed).",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ekaya_workspace",
			Name:      "mcp_tool_call_seconds",
			Help:      "MCP tool call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

// Register adds the collectors to reg.
func (c *CallLogger) Register(reg prometheus.Registerer) error {
	if err := reg.Register(c.calls); err != nil {
		return err
	}
	return reg.Register(c.duration)
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := c.elapsed(id)
	outcome := "ok"
	if result != nil && result.IsError {
		outcome = "error_result"
	}
	c.calls.WithLabelValues(req.Params.Name, outcome).Inc()
	c.duration.WithLabelValues(req.Params.Name).Observe(elapsed.Seconds())

	c.logger.Debug("Tool call completed",
		zap.String("tool", req.Params.Name),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	)
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	c.elapsed(id)

	tool := ""
	if req, ok := message.(*mcplib.CallToolRequest); ok {
		tool = req.Params.Name
	}
	c.calls.WithLabelValues(tool, "failed").Inc()
	c.logger.Warn("Tool call failed", zap.String("tool", tool), zap.Error(err))
}

func (c *CallLogger) elapsed(id any) time.Duration {
	v, ok := c.startTimes.LoadAndDelete(id)
	if !ok {
		return 0
	}
	return time.Since(v.(time.Time))
}
