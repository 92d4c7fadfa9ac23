package datasource

import (
	"context"
	"errors"
	"strings"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/retry"
)

var opaqueTypes = []string{
	"json", "xml", "blob", "bytea", "binary", "image", "geometry", "geography",
	"hierarchyid", "sql_variant", "tsvector", "tsquery", "array", "[]",
	"point", "polygon", "circle", "lseg", "box",
}

var numericTypes = []string{"int", "numeric", "decimal", "float", "double", "real", "money", "serial"}

var textTypes = []string{"char", "text", "string", "clob"}

// ClassifyDataType maps a declared column type to the statistics it supports.
// Checks run most specific first: "interval" and "point" both contain "int".
func ClassifyDataType(dataType string) models.ColumnKind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case t == "":
		return models.ColumnKindOther
	case containsAny(t, opaqueTypes):
		return models.ColumnKindOpaque
	case strings.Contains(t, "interval"):
		return models.ColumnKindOther
	case strings.HasPrefix(t, "bool") || t == "bit":
		return models.ColumnKindBoolean
	case strings.Contains(t, "date") || strings.Contains(t, "time"):
		return models.ColumnKindTemporal
	case containsAny(t, numericTypes):
		return models.ColumnKindNumeric
	case containsAny(t, textTypes):
		return models.ColumnKindText
	}
	return models.ColumnKindOther
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyConnectError turns a driver error from opening a connection into
// an AuthenticationError or a ConnectionError.
func classifyConnectError(d Dialect, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d.IsAuthError(err) {
		return apperrors.New(apperrors.ErrAuthentication, err)
	}
	return apperrors.New(apperrors.ErrConnection, err)
}

// shouldRetryConnect reports whether opening a connection is worth a second try.
func shouldRetryConnect(d Dialect) func(error) bool {
	return func(err error) bool {
		return !d.IsAuthError(err) && retry.IsRetryable(err)
	}
}

// IsConnectionLoss reports whether err means the connection itself is no
// longer usable, as opposed to a failed statement on a healthy connection.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return retry.IsRetryable(err) && !strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
