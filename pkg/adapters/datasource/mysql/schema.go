package mysql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

const columnsQuery = `
	SELECT
		c.COLUMN_NAME AS column_name,
		c.DATA_TYPE AS data_type,
		c.IS_NULLABLE = 'YES' AS is_nullable,
		c.ORDINAL_POSITION AS ordinal_position,
		c.COLUMN_DEFAULT AS column_default
	FROM INFORMATION_SCHEMA.COLUMNS c
	WHERE c.TABLE_SCHEMA = ? AND c.TABLE_NAME = ?
	ORDER BY c.ORDINAL_POSITION`

const primaryKeyQuery = `
	SELECT
		kcu.CONSTRAINT_NAME AS name,
		kcu.COLUMN_NAME AS column_name,
		kcu.ORDINAL_POSITION AS position
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ? AND kcu.CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY kcu.ORDINAL_POSITION`

const foreignKeysQuery = `
	SELECT
		kcu.CONSTRAINT_NAME AS name,
		kcu.COLUMN_NAME AS column_name,
		kcu.ORDINAL_POSITION AS position,
		kcu.REFERENCED_TABLE_SCHEMA AS ref_schema,
		kcu.REFERENCED_TABLE_NAME AS ref_table,
		kcu.REFERENCED_COLUMN_NAME AS ref_column
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

const uniqueConstraintsQuery = `
	SELECT
		tc.CONSTRAINT_NAME AS name,
		kcu.COLUMN_NAME AS column_name,
		kcu.ORDINAL_POSITION AS position
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		AND kcu.TABLE_NAME = tc.TABLE_NAME
	WHERE tc.CONSTRAINT_TYPE = 'UNIQUE' AND tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ?
	ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

// Functional index parts have no column name and are skipped.
const indexesQuery = `
	SELECT
		s.INDEX_NAME AS name,
		s.COLUMN_NAME AS column_name,
		s.SEQ_IN_INDEX AS position,
		s.NON_UNIQUE = 0 AS is_unique,
		s.INDEX_NAME = 'PRIMARY' AS is_primary
	FROM INFORMATION_SCHEMA.STATISTICS s
	WHERE s.TABLE_SCHEMA = ? AND s.TABLE_NAME = ? AND s.COLUMN_NAME IS NOT NULL
	ORDER BY s.INDEX_NAME, s.SEQ_IN_INDEX`

const storageQuery = `
	SELECT
		COALESCE(t.DATA_LENGTH + t.INDEX_LENGTH, -1) AS size_bytes,
		COALESCE(t.CREATE_OPTIONS, '') LIKE '%partitioned%' AS partitioned
	FROM INFORMATION_SCHEMA.TABLES t
	WHERE t.TABLE_SCHEMA = ? AND t.TABLE_NAME = ?`

const tableKeysQuery = `
	SELECT
		t.TABLE_NAME AS name,
		COALESCE(kcu.COLUMN_NAME, '') AS column_name,
		COALESCE(kcu.ORDINAL_POSITION, 0) AS position
	FROM INFORMATION_SCHEMA.TABLES t
	LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		ON kcu.TABLE_SCHEMA = t.TABLE_SCHEMA
		AND kcu.TABLE_NAME = t.TABLE_NAME
		AND kcu.CONSTRAINT_NAME = 'PRIMARY'
	WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
	ORDER BY t.TABLE_NAME, kcu.ORDINAL_POSITION`

func (Dialect) TableExists(ctx context.Context, q datasource.Querier, schema, table string) (bool, error) {
	return datasource.CountExists(ctx, q, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		schema, table)
}

func (Dialect) Columns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	return datasource.SelectColumns(ctx, q, columnsQuery, schema, table)
}

func (Dialect) PrimaryKey(ctx context.Context, q datasource.Querier, schema, table string) (*datasource.PrimaryKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, primaryKeyQuery, schema, table)
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
	rows, err := datasource.SelectKeyColumns(ctx, q, uniqueConstraintsQuery, schema, table)
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
