package datasource

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// Querier is what introspection queries run against. *Conn satisfies it;
// tests may pass a *sqlx.DB directly.
type Querier interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// Dialect is the capability set of one database engine: how to reach it,
// how to write SQL for it, and how to read its catalog. Each engine package
// registers exactly one Dialect from init().
type Dialect interface {
	// Type is the ConnectionConfig db_type this dialect serves.
	Type() models.DatabaseType

	// DriverName is the database/sql driver the engine package registers.
	DriverName() string

	// ValidateConfig checks the fields this engine requires.
	ValidateConfig(cfg models.ConnectionConfig) error

	// DSN builds the driver connection string. The result contains the password.
	DSN(cfg models.ConnectionConfig) (string, error)

	// DefaultSchema is used when the caller names no schema.
	// Empty for engines without schemas.
	DefaultSchema(cfg models.ConnectionConfig) string

	// IsAuthError reports whether err means the credentials were rejected.
	IsAuthError(err error) bool

	// QuoteIdentifier quotes one identifier part.
	QuoteIdentifier(name string) string

	// QualifiedTableName quotes schema and table into one reference.
	QualifiedTableName(schema, table string) string

	// LimitClause returns the ORDER BY and row limit suffix for a SELECT.
	// orderBy may be empty.
	LimitClause(orderBy string, n int) string

	// FloatExpr casts a numeric expression so aggregates scan as float64.
	FloatExpr(expr string) string

	// LengthFunc is the character-length function.
	LengthFunc() string

	// StddevFunc is the population standard deviation aggregate,
	// or "" when the engine has none.
	StddevFunc() string

	SchemaIntrospector
}

// SchemaIntrospector reads catalog metadata for one table. Absence of a
// constraint is an empty result, never an error.
type SchemaIntrospector interface {
	TableExists(ctx context.Context, q Querier, schema, table string) (bool, error)
	Columns(ctx context.Context, q Querier, schema, table string) ([]ColumnMetadata, error)
	PrimaryKey(ctx context.Context, q Querier, schema, table string) (*PrimaryKeyMetadata, error)
	ForeignKeys(ctx context.Context, q Querier, schema, table string) ([]ForeignKeyMetadata, error)
	UniqueConstraints(ctx context.Context, q Querier, schema, table string) ([]UniqueConstraintMetadata, error)
	Indexes(ctx context.Context, q Querier, schema, table string) ([]IndexMetadata, error)

	// Storage reports the engine's size for the table. SizeBytes < 0 means the
	// engine could not say.
	Storage(ctx context.Context, q Querier, schema, table string) (*StorageMetadata, error)

	// TableKeys lists every table in schema with its primary-key columns.
	TableKeys(ctx context.Context, q Querier, schema string) ([]TableKeyMetadata, error)
}
