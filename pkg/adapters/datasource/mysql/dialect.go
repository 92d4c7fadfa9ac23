package mysql

import (
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// Server error numbers for rejected credentials.
const (
	erAccessDenied       = 1045
	erDBAccessDenied     = 1044
	erAccessDeniedNoPass = 1698
)

// Dialect is the MySQL and MariaDB capability set.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Type() models.DatabaseType { return models.DatabaseTypeMySQL }

func (Dialect) DriverName() string { return "mysql" }

func (Dialect) ValidateConfig(cfg models.ConnectionConfig) error { return validateConfig(cfg) }

func (Dialect) DSN(cfg models.ConnectionConfig) (string, error) { return buildDSN(cfg), nil }

// DefaultSchema is the connected database; MySQL has no separate schema level.
func (Dialect) DefaultSchema(cfg models.ConnectionConfig) string { return cfg.Database }

func (Dialect) IsAuthError(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erAccessDenied, erDBAccessDenied, erAccessDeniedNoPass:
			return true
		}
	}
	return false
}

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks.
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
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

// FloatExpr leaves the expression alone: DECIMAL results arrive as text and
// database/sql converts them when scanning into float64.
func (Dialect) FloatExpr(expr string) string { return expr }

func (Dialect) LengthFunc() string { return "CHAR_LENGTH" }

func (Dialect) StddevFunc() string { return "STDDEV_POP" }
