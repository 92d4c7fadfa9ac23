package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"workspace-test","version":"0.0.1"}}}`

func newEchoServer(t *testing.T) (*Server, *atomic.Int32) {
	t.Helper()
	s := NewServer("workspace-test", "1.2.3", zaptest.NewLogger(t))

	var calls atomic.Int32
	s.RegisterTool(mcp.NewTool("echo", mcp.WithString("text")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls.Add(1)
		return mcp.NewToolResultText(req.GetString("text", "")), nil
	})
	return s, &calls
}

func marshalResponse(t *testing.T, msg mcp.JSONRPCMessage) string {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(raw)
}

func TestNewServer_ToolCallsGoThroughCallLogger(t *testing.T) {
	s, handled := newEchoServer(t)
	require.NotNil(t, s.Calls())

	resp := s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"text":"orders"}}}`))

	assert.Contains(t, marshalResponse(t, resp), `"text":"orders"`)
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Calls().calls.WithLabelValues("echo", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.Calls().duration))
}

func TestNewServer_ListsRegisteredTools(t *testing.T) {
	s, handled := newEchoServer(t)

	resp := s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	body := marshalResponse(t, resp)
	assert.Contains(t, body, `"name":"echo"`)
	assert.Zero(t, handled.Load(), "listing never invokes a handler")
}

func TestServer_ServeStdio(t *testing.T) {
	s, _ := newEchoServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeStdio(ctx, inR, outW) }()

	go func() { _, _ = io.WriteString(inW, initializeRequest+"\n") }()

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(outR).ReadString('\n')
		lines <- line
	}()

	select {
	case line := <-lines:
		assert.Contains(t, line, `"id":1`)
		assert.Contains(t, line, `"serverInfo"`)
		assert.Contains(t, line, `"workspace-test"`)
	case <-time.After(5 * time.Second):
		t.Fatal("no initialize response on stdout")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeStdio did not return after cancel")
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s, _ := newEchoServer(t)

	ts := httptest.NewServer(s.NewStreamableHTTPServer())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(initializeRequest))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"workspace-test"`)
}
