package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

const tableExistsQuery = `
	SELECT COUNT(*)
	FROM sys.objects o
	INNER JOIN sys.schemas s ON s.schema_id = o.schema_id
	WHERE s.name = ? AND o.name = ? AND o.type IN ('U', 'V')`

const columnsQuery = `
	SELECT
		c.name AS column_name,
		tp.name AS data_type,
		c.is_nullable AS is_nullable,
		c.column_id AS ordinal_position,
		dc.definition AS column_default
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	INNER JOIN sys.objects o ON o.object_id = c.object_id
	INNER JOIN sys.schemas s ON s.schema_id = o.schema_id
	LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
	WHERE s.name = ? AND o.name = ?
	ORDER BY c.column_id`

// keyConstraintQuery lists PRIMARY KEY ('PK') or UNIQUE ('UQ') constraint
// columns in key order.
const keyConstraintQuery = `
	SELECT
		kc.name AS name,
		col.name AS column_name,
		CAST(ic.key_ordinal AS INT) AS position
	FROM sys.key_constraints kc
	INNER JOIN sys.tables t ON t.object_id = kc.parent_object_id
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
	INNER JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
	WHERE kc.type = ? AND s.name = ? AND t.name = ?
	ORDER BY kc.name, ic.key_ordinal`

const foreignKeysQuery = `
	SELECT
		fk.name AS name,
		pc.name AS column_name,
		fkc.constraint_column_id AS position,
		rs.name AS ref_schema,
		rt.name AS ref_table,
		rc.name AS ref_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	INNER JOIN sys.tables t ON t.object_id = fk.parent_object_id
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	INNER JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
	INNER JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
	INNER JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE s.name = ? AND t.name = ?
	ORDER BY fk.name, fkc.constraint_column_id`

// Included columns are not part of the key and are skipped.
const indexesQuery = `
	SELECT
		i.name AS name,
		col.name AS column_name,
		CAST(ic.key_ordinal AS INT) AS position,
		i.is_unique AS is_unique,
		i.is_primary_key AS is_primary
	FROM sys.indexes i
	INNER JOIN sys.tables t ON t.object_id = i.object_id
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id AND ic.is_included_column = 0
	INNER JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
	WHERE i.name IS NOT NULL AND s.name = ? AND t.name = ?
	ORDER BY i.name, ic.key_ordinal`

// Pages are 8 KiB. A table is partitioned when any index has more than one
// partition.
const storageQuery = `
	SELECT
		CAST(COALESCE(SUM(a.total_pages), 0) AS BIGINT) * 8192 AS size_bytes,
		CAST(CASE WHEN MAX(p.partition_number) > 1 THEN 1 ELSE 0 END AS BIT) AS partitioned
	FROM sys.tables t
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	INNER JOIN sys.partitions p ON p.object_id = t.object_id
	INNER JOIN sys.allocation_units a ON a.container_id = p.partition_id
	WHERE s.name = ? AND t.name = ?
	HAVING COUNT(*) > 0`

const tableKeysQuery = `
	SELECT
		t.name AS name,
		COALESCE(col.name, '') AS column_name,
		CAST(COALESCE(ic.key_ordinal, 0) AS INT) AS position
	FROM sys.tables t
	INNER JOIN sys.schemas s ON s.schema_id = t.schema_id
	LEFT JOIN sys.key_constraints kc ON kc.parent_object_id = t.object_id AND kc.type = 'PK'
	LEFT JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
	LEFT JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
	WHERE s.name = ?
	ORDER BY t.name, ic.key_ordinal`

func (Dialect) TableExists(ctx context.Context, q datasource.Querier, schema, table string) (bool, error) {
	return datasource.CountExists(ctx, q, tableExistsQuery, schema, table)
}

func (Dialect) Columns(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ColumnMetadata, error) {
	return datasource.SelectColumns(ctx, q, columnsQuery, schema, table)
}

func (Dialect) PrimaryKey(ctx context.Context, q datasource.Querier, schema, table string) (*datasource.PrimaryKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, keyConstraintQuery, "PK", schema, table)
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
	rows, err := datasource.SelectKeyColumns(ctx, q, keyConstraintQuery, "UQ", schema, table)
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
