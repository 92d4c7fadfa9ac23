package mssql

import (
	"errors"
	"fmt"
	"strings"

	mssqldriver "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// loginFailed is the server error number for rejected credentials.
const loginFailed = 18456

// Dialect is the SQL Server capability set.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Type() models.DatabaseType { return models.DatabaseTypeSQLServer }

func (Dialect) DriverName() string { return "sqlserver" }

func (Dialect) ValidateConfig(cfg models.ConnectionConfig) error { return validateConfig(cfg) }

func (Dialect) DSN(cfg models.ConnectionConfig) (string, error) {
	return buildConnectionString(cfg), nil
}

// DefaultSchema is "dbo" in SQL Server.
func (Dialect) DefaultSchema(models.ConnectionConfig) string { return "dbo" }

func (Dialect) IsAuthError(err error) bool {
	var sqlErr mssqldriver.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Number == loginFailed
	}
	return false
}

// QuoteIdentifier brackets the name the way QUOTENAME does, escaping ] as ]].
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QualifiedTableName builds [schema].[table].
func (d Dialect) QualifiedTableName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// LimitClause uses OFFSET/FETCH, which requires an ORDER BY.
func (Dialect) LimitClause(orderBy string, n int) string {
	if orderBy == "" {
		orderBy = "(SELECT NULL)"
	}
	return fmt.Sprintf(" ORDER BY %s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", orderBy, n)
}

func (Dialect) FloatExpr(expr string) string {
	return "CAST(" + expr + " AS FLOAT)"
}

func (Dialect) LengthFunc() string { return "LEN" }

func (Dialect) StddevFunc() string { return "STDEVP" }
