package sqlite

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

// An INTEGER PRIMARY KEY column is the rowid; it reports notnull = 0 but
// cannot hold NULL.
const columnsQuery = `
	SELECT
		name AS column_name,
		type AS data_type,
		("notnull" = 0 AND pk = 0) AS is_nullable,
		cid + 1 AS ordinal_position,
		dflt_value AS column_default
	FROM pragma_table_info(?)
	ORDER BY cid`

const primaryKeyQuery = `
	SELECT 'primary' AS name, name AS column_name, pk AS position
	FROM pragma_table_info(?)
	WHERE pk > 0
	ORDER BY pk`

// "to" is NULL when the reference names the parent's primary key implicitly.
const foreignKeysQuery = `
	SELECT
		'fk_' || id AS name,
		"from" AS column_name,
		seq + 1 AS position,
		'' AS ref_schema,
		"table" AS ref_table,
		COALESCE("to", '') AS ref_column
	FROM pragma_foreign_key_list(?)
	ORDER BY id, seq`

const indexesQuery = `
	SELECT
		il.name AS name,
		ii.name AS column_name,
		ii.seqno + 1 AS position,
		il."unique" AS is_unique,
		il.origin = 'pk' AS is_primary
	FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
	WHERE ii.name IS NOT NULL
	ORDER BY il.name, ii.seqno`

const uniqueConstraintsQuery = `
	SELECT
		il.name AS name,
		ii.name AS column_name,
		ii.seqno + 1 AS position
	FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
	WHERE il.origin = 'u' AND ii.name IS NOT NULL
	ORDER BY il.name, ii.seqno`

// dbstat is an optional compile-time module.
const storageQuery = `
	SELECT COALESCE(SUM(pgsize), -1) AS size_bytes, 0 AS partitioned
	FROM dbstat
	WHERE name = ? OR name IN (SELECT name FROM pragma_index_list(?))`

const tableKeysQuery = `
	SELECT
		m.name AS name,
		COALESCE(p.name, '') AS column_name,
		COALESCE(p.pk, 0) AS position
	FROM sqlite_master m
	LEFT JOIN pragma_table_info(m.name) p ON p.pk > 0
	WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.pk`

// rowidIndexName labels the implicit index behind an INTEGER PRIMARY KEY.
const rowidIndexName = "rowid"

func (Dialect) TableExists(ctx context.Context, q datasource.Querier, _, table string) (bool, error) {
	return datasource.CountExists(ctx, q, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type IN ('table', 'view') AND name = ?`,
		table)
}

func (Dialect) Columns(ctx context.Context, q datasource.Querier, _, table string) ([]datasource.ColumnMetadata, error) {
	return datasource.SelectColumns(ctx, q, columnsQuery, table)
}

func (Dialect) PrimaryKey(ctx context.Context, q datasource.Querier, _, table string) (*datasource.PrimaryKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, primaryKeyQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query primary key: %w", err)
	}
	return datasource.PrimaryKeyFromRows(rows), nil
}

// ForeignKeys resolves implicit references against the parent's primary key.
func (d Dialect) ForeignKeys(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.ForeignKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, foreignKeysQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	fks := datasource.ForeignKeysFromRows(rows)

	for i := range fks {
		if !hasImplicitTarget(fks[i]) {
			continue
		}
		pk, err := d.PrimaryKey(ctx, q, schema, fks[i].TargetTable)
		if err != nil {
			return nil, err
		}
		if pk == nil {
			continue
		}
		for j := range fks[i].TargetColumns {
			if fks[i].TargetColumns[j] == "" && j < len(pk.Columns) {
				fks[i].TargetColumns[j] = pk.Columns[j]
			}
		}
	}
	return fks, nil
}

func hasImplicitTarget(fk datasource.ForeignKeyMetadata) bool {
	for _, c := range fk.TargetColumns {
		if c == "" {
			return true
		}
	}
	return false
}

func (Dialect) UniqueConstraints(ctx context.Context, q datasource.Querier, _, table string) ([]datasource.UniqueConstraintMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, uniqueConstraintsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query unique constraints: %w", err)
	}
	return datasource.UniqueConstraintsFromRows(rows), nil
}

// Indexes includes the implicit rowid index when the primary key is an
// INTEGER PRIMARY KEY, which SQLite does not list.
func (d Dialect) Indexes(ctx context.Context, q datasource.Querier, schema, table string) ([]datasource.IndexMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, indexesQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	indexes := datasource.IndexesFromRows(rows)
	for _, idx := range indexes {
		if idx.IsPrimary {
			return indexes, nil
		}
	}

	pk, err := d.PrimaryKey(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	if pk != nil {
		indexes = append(indexes, datasource.IndexMetadata{
			IndexName: rowidIndexName,
			Columns:   pk.Columns,
			IsUnique:  true,
			IsPrimary: true,
		})
	}
	return indexes, nil
}

// Storage sums dbstat pages for the table and its indexes. Builds without
// dbstat report an unknown size.
func (Dialect) Storage(ctx context.Context, q datasource.Querier, _, table string) (*datasource.StorageMetadata, error) {
	s, err := datasource.GetStorage(ctx, q, storageQuery, table, table)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return &datasource.StorageMetadata{SizeBytes: -1}, nil
	}
	return s, nil
}

func (Dialect) TableKeys(ctx context.Context, q datasource.Querier, _ string) ([]datasource.TableKeyMetadata, error) {
	rows, err := datasource.SelectKeyColumns(ctx, q, tableKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query table keys: %w", err)
	}
	return datasource.TableKeysFromRows(rows), nil
}
