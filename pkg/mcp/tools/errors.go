package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Errors are returned as successful tool results so the calling model can
// read the code and act on it instead of seeing a transport failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
//
// Example:
//
//	if table == "" {
//	    return NewErrorResult("invalid_input", "parameter 'table' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// errorDetails names what a structured error was about.
type errorDetails struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	Table       string `json:"table,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// resultForError turns err into a tool result when it carries one of the
// apperrors kinds. Anything else is a server failure and is returned as a
// Go error for the transport to report.
func resultForError(err error) (*mcp.CallToolResult, error) {
	code := apperrors.Code(err)
	if code == apperrors.CodeInternal {
		return nil, err
	}

	var details any
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		details = errorDetails{WorkspaceID: ae.WorkspaceID, Table: ae.Table, Fingerprint: shortFingerprint(ae.Fingerprint)}
	}
	return NewErrorResultWithDetails(code, logging.SanitizeError(err), details), nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
