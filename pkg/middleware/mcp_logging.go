package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
)

// maxLoggedArgument bounds string argument values in logs.
const maxLoggedArgument = 200

// sensitiveArguments are substrings of argument names whose values are never logged.
var sensitiveArguments = []string{"password", "secret", "token", "credential", "options"}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls with the
// tool name, target workspace and table, and the JSON-RPC error if any.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				// Batches and malformed bodies are the transport's to reject.
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}

			fields := []zap.Field{
				zap.String("method", rpcReq.Method),
				zap.String("tool", rpcReq.Params.Name),
			}
			if ws, ok := rpcReq.Params.Arguments["workspace_id"].(string); ok {
				fields = append(fields, zap.String("workspace_id", ws))
			}
			if table, ok := rpcReq.Params.Arguments["table"].(string); ok {
				fields = append(fields, zap.String("table", logging.TruncateString(table, maxLoggedArgument)))
			}
			logger.Debug("MCP request", append(fields, zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)))...)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Warn("MCP response error", append(fields,
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", logging.SanitizeConnectionString(rpcResp.Error.Message)),
				)...)
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool returned error result", fields...)
			default:
				logger.Debug("MCP response success", fields...)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder is a response writer that captures the response body.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts credential-bearing arguments and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveArgument(k) {
			result[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok {
			result[k] = logging.TruncateString(s, maxLoggedArgument)
			continue
		}
		result[k] = v
	}
	return result
}

func isSensitiveArgument(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveArguments {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
