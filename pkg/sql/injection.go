// Package sql screens caller-supplied names before they reach a query as
// quoted identifiers.
package sql

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
)

// MaxIdentifierLength is the longest name accepted, in characters. It is
// the SQL Server limit; PostgreSQL and MySQL allow less.
const MaxIdentifierLength = 128

// InjectionCheckResult describes a name libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Which input carried the value (table, schema)
	Value       string
}

// CheckIdentifierForInjection runs libinjection over value.
// Returns nil when nothing is detected.
//
// Example:
//
//	result := CheckIdentifierForInjection("table", "orders")
//	// result == nil
//
//	result = CheckIdentifierForInjection("table", "x'; DROP TABLE users--")
//	// result.IsSQLi == true
func CheckIdentifierForInjection(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Field:       field,
		Value:       value,
	}
}

// ValidateIdentifier rejects names that are too long, contain control
// characters, or look like an injection attempt. Empty names are accepted;
// callers decide whether a field is required.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return nil
	}
	if !utf8.ValidString(value) {
		return invalid(field, errors.New("is not valid UTF-8"))
	}
	if n := utf8.RuneCountInString(value); n > MaxIdentifierLength {
		return invalid(field, fmt.Errorf("is %d characters, the limit is %d", n, MaxIdentifierLength))
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return invalid(field, errors.New("contains control characters"))
		}
	}
	if result := CheckIdentifierForInjection(field, value); result != nil {
		return invalid(field, fmt.Errorf("matches SQL injection pattern %s", result.Fingerprint))
	}
	return nil
}

// ValidateTableReference checks the table and optional schema of an
// analysis request.
func ValidateTableReference(table, schema string) error {
	if table == "" {
		return invalid("table", errors.New("is required"))
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return err
	}
	return ValidateIdentifier("schema", schema)
}

func invalid(field string, err error) error {
	return apperrors.New(apperrors.ErrInvalidInput, fmt.Errorf("%s %w", field, err))
}
