package sqlite

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// Dialect is the SQLite capability set. Workspaces open the file read-only.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Type() models.DatabaseType { return models.DatabaseTypeSQLite }

func (Dialect) DriverName() string { return "sqlite" }

func (Dialect) ValidateConfig(cfg models.ConnectionConfig) error { return validateConfig(cfg) }

func (Dialect) DSN(cfg models.ConnectionConfig) (string, error) { return buildDSN(cfg), nil }

// DefaultSchema is empty: tables are addressed unqualified.
func (Dialect) DefaultSchema(models.ConnectionConfig) string { return "" }

// IsAuthError is always false; file databases have no credentials.
func (Dialect) IsAuthError(error) bool { return false }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) QualifiedTableName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (Dialect) LimitClause(orderBy string, n int) string {
	if orderBy == "" {
		return fmt.Sprintf(" LIMIT %d", n)
	}
	return fmt.Sprintf(" ORDER BY %s LIMIT %d", orderBy, n)
}

func (Dialect) FloatExpr(expr string) string {
	return "CAST(" + expr + " AS REAL)"
}

func (Dialect) LengthFunc() string { return "LENGTH" }

// StddevFunc is empty; SQLite has no standard deviation aggregate.
func (Dialect) StddevFunc() string { return "" }
