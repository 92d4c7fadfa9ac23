package apperrors

import (
	"errors"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidConfig          = errors.New("invalid connection config")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConnection             = errors.New("connection error")
	ErrAuthentication         = errors.New("authentication failed")
	ErrPoolExhausted          = errors.New("pool exhausted")
	ErrWorkspaceNotActive     = errors.New("workspace not active")
	ErrTableNotFound          = errors.New("table not found")
	ErrAnalysisPartialFailure = errors.New("analysis partially degraded")
	ErrCredentialsKeyMismatch = errors.New("workspace credentials were encrypted with a different key")
)

// Error attaches the offending workspace, table or pool to one of the sentinel
// kinds above. errors.Is matches both the kind and the underlying cause.
type Error struct {
	Kind        error
	WorkspaceID string
	Table       string
	Fingerprint string
	Err         error
}

// New wraps cause with kind. cause may be nil.
func New(kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.WorkspaceID != "" {
		b.WriteString(" (workspace ")
		b.WriteString(e.WorkspaceID)
		b.WriteString(")")
	}
	if e.Table != "" {
		b.WriteString(" (table ")
		b.WriteString(e.Table)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WithWorkspace returns a copy of e carrying the workspace id.
func (e *Error) WithWorkspace(id string) *Error {
	c := *e
	c.WorkspaceID = id
	return &c
}

// WithTable returns a copy of e carrying the table name.
func (e *Error) WithTable(table string) *Error {
	c := *e
	c.Table = table
	return &c
}

// WithFingerprint returns a copy of e carrying the pool fingerprint.
func (e *Error) WithFingerprint(fp string) *Error {
	c := *e
	c.Fingerprint = fp
	return &c
}

// codes is ordered most specific first; an authentication failure is also
// reported by drivers as a connection failure.
var codes = []struct {
	kind error
	code string
}{
	{ErrAuthentication, "authentication_error"},
	{ErrPoolExhausted, "pool_exhausted"},
	{ErrWorkspaceNotActive, "workspace_not_active"},
	{ErrTableNotFound, "table_not_found"},
	{ErrAnalysisPartialFailure, "analysis_partial_failure"},
	{ErrConnection, "connection_error"},
	{ErrInvalidConfig, "invalid_config"},
	{ErrInvalidInput, "invalid_input"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrCredentialsKeyMismatch, "credentials_key_mismatch"},
}

// CodeInternal is the code of errors that carry none of the kinds above.
const CodeInternal = "internal_error"

// Code returns a stable identifier for the kind of err, or CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeInternal
}

// WorkspaceOf returns the workspace id recorded anywhere in err's chain.
func WorkspaceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.WorkspaceID
	}
	return ""
}
