package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// SQLSTATE codes PostgreSQL returns for rejected credentials.
const (
	invalidPassword              = "28P01"
	invalidAuthorizationSpecific = "28000"
)

// Dialect is the PostgreSQL capability set.
type Dialect struct{}

var _ datasource.Dialect = Dialect{}

func (Dialect) Type() models.DatabaseType { return models.DatabaseTypePostgres }

func (Dialect) DriverName() string { return "pgx" }

func (Dialect) ValidateConfig(cfg models.ConnectionConfig) error { return validateConfig(cfg) }

func (Dialect) DSN(cfg models.ConnectionConfig) (string, error) {
	return buildConnectionString(cfg), nil
}

func (Dialect) DefaultSchema(models.ConnectionConfig) string { return "public" }

// IsAuthError matches invalid_password and invalid_authorization_specification.
func (Dialect) IsAuthError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == invalidPassword || pgErr.Code == invalidAuthorizationSpecific
	}
	return false
}

func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QualifiedTableName returns "schema"."table", or just "table" when schema is empty.
func (Dialect) QualifiedTableName(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (Dialect) LimitClause(orderBy string, n int) string {
	if orderBy == "" {
		return fmt.Sprintf(" LIMIT %d", n)
	}
	return fmt.Sprintf(" ORDER BY %s LIMIT %d", orderBy, n)
}

func (Dialect) FloatExpr(expr string) string {
	return "CAST(" + expr + " AS DOUBLE PRECISION)"
}

func (Dialect) LengthFunc() string { return "LENGTH" }

func (Dialect) StddevFunc() string { return "STDDEV_POP" }
