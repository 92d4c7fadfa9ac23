package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

// User-defined types report "USER-DEFINED" in information_schema; the udt
// name is more useful for classification.
const columnsQuery = `
	SELECT
		c.column_name,
		CASE WHEN c.data_type = 'USER-DEFINED' THEN c.udt_name ELSE c.data_type END AS data_type,
		c.is_nullable = 'YES' AS is_nullable,
		c.ordinal_position,
		c.column_default
	FROM information_schema.columns c
	WHERE c.table_schema = ? AND c.table_name = ?
	ORDER BY c.ordinal_position`

// constraintColumnsQuery lists primary key ('p') or unique ('u') constraint
// columns in key order.
const constraintColumnsQuery = `
	SELECT
		con.conname AS name,
		a.attname AS column_name,
		k.ord AS position
	FROM pg_constraint con
	JOIN pg_class t ON t.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
	WHERE con.contype = ? AND n.nspname = ? AND t.relname = ?
	ORDER BY con.conname, k.ord`

// Multi-column foreign keys pair conkey and confkey by position.
const foreignKeysQuery = `
	SELECT
		con.conname AS name,
		a.attname AS column_name,
		k.ord AS position,
		fn.nspname AS ref_schema,
		ft.relname AS ref_table,
		fa.attname AS ref_column
	FROM pg_constraint con
	JOIN pg_class t ON t.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, ref_attnum, ord)
	JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
	JOIN pg_class ft ON ft.oid = con.confrelid
	JOIN pg_namespace fn ON fn.oid = ft.relnamespace
	JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.ref_attnum
	WHERE con.contype = 'f' AND n.nspname = ? AND t.relname = ?
	ORDER BY con.conname, k.ord`

// Uses pg_index.indisprimary which detects PKs even when created as unique
// indexes by ORMs. Expression index members have attnum 0 and drop out.
const indexesQuery = `
	SELECT
		i.relname AS name,
		a.attname AS column_name,
		k.ord AS position,
		ix.indisunique AS is_unique,
		ix.indisprimary AS is_primary
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname = ? AND t.relname = ?
	ORDER BY i.relname, k.ord`

const storageQuery = `
	SELECT
		pg_total_relation_size(c.oid) AS size_bytes,
		(c.relkind = 'p' OR EXISTS (SELECT 1 FROM pg_inherits inh WHERE inh.inhparent = c.oid)) AS partitioned
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = ? AND c.relname = ?`

const tableKeysQuery = `
	SELECT
		t.relname AS name,
		COALESCE(a.attname, '') AS column_name,
		COALESCE(k.ord, 0) AS position
	FROM pg_class t
	JOIN pg_namespace n ON n.oid = t.relnamespace
	LEFT JOIN pg_constraint con ON con.conrelid = t.oid AND con.contype = 'p'
	LEFT JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
	LEFT JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname = ? AND t.relkind IN ('r', 'p') AND NOT t.relispartition
	ORDER BY t.relname, k.ord`

func (Dialect) TableExists(ctx context.Context, q datasource.Querier, schema, table string) (bool, error) {
	return datasource.CountExists(ctx, q, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ? AND table_type IN ('BASE TABLE', 'VIEW')`,
		schema, table)
}

func (Dialect) Columns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	return datasource.SelectColumns(ctx, q, columnsQuery, schema, table)
}

func (Dialect) PrimaryKey(ctx context.Context, q datasource.Querier, schema, table string) (*datasource.PrimaryKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, constraintColumnsQuery, "p", schema, table)
	if err != nil {
		return nil, fmt.Errorf("query primary key: %w", err)
	}
	return datasource.PrimaryKeyFromRows(rows), nil
}

func (Dialect) ForeignKeys(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ForeignKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, foreignKeysQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	return datasource.ForeignKeysFromRows(rows), nil
}

func (Dialect) UniqueConstraints(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.UniqueConstraintMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, constraintColumnsQuery, "u", schema, table)
	if err != nil {
		return nil, fmt.Errorf("query unique constraints: %w", err)
	}
	return datasource.UniqueConstraintsFromRows(rows), nil
}

func (Dialect) Indexes(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.IndexMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, indexesQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	return datasource.IndexesFromRows(rows), nil
}

func (Dialect) Storage(ctx context.Context, q datasource.Querier, schema, table string) (*datasource.StorageMetadata, error) {
	return datasource.GetStorage(ctx, q, storageQuery, schema, table)
}

func (Dialect) TableKeys(ctx context.Context, q datasource.Querier, schema string) ([]datasource.TableKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, tableKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query table keys: %w", err)
	}
	return datasource.TableKeysFromRows(rows), nil
}
