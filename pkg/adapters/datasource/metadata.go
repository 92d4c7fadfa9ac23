package datasource

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	ColumnName      string  `db:"column_name"`
	DataType        string  `db:"data_type"`
	IsNullable      bool    `db:"is_nullable"`
	OrdinalPosition int     `db:"ordinal_position"`
	DefaultValue    *string `db:"column_default"`
}

// PrimaryKeyMetadata lists the key columns in key order.
type PrimaryKeyMetadata struct {
	ConstraintName string
	Columns        []string
}

// ForeignKeyMetadata is one outbound foreign key; multi-column keys keep
// their columns paired by position.
type ForeignKeyMetadata struct {
	ConstraintName string
	Columns        []string
	TargetSchema   string
	TargetTable    string
	TargetColumns  []string
}

// UniqueConstraintMetadata is a declared UNIQUE constraint.
type UniqueConstraintMetadata struct {
	ConstraintName string
	Columns        []string
}

// IndexMetadata is one index definition.
type IndexMetadata struct {
	IndexName string
	Columns   []string
	IsUnique  bool
	IsPrimary bool
}

// StorageMetadata is what the engine reports about a table's footprint.
type StorageMetadata struct {
	SizeBytes   int64 `db:"size_bytes"`
	Partitioned bool  `db:"partitioned"`
}

// TableKeyMetadata names a table and its primary-key columns.
type TableKeyMetadata struct {
	TableName         string
	PrimaryKeyColumns []string
}

// KeyColumn is the row shape shared by the constraint and index queries:
// one row per (constraint, column) in key order. Engine packages scan into it
// with sqlx and fold with GroupKeyColumns.
type KeyColumn struct {
	Name      string `db:"name"`
	Column    string `db:"column_name"`
	Position  int    `db:"position"`
	IsUnique  bool   `db:"is_unique"`
	IsPrimary bool   `db:"is_primary"`
	RefSchema string `db:"ref_schema"`
	RefTable  string `db:"ref_table"`
	RefColumn string `db:"ref_column"`
}

// GroupKeyColumns folds rows ordered by (name, position) into one entry per
// name, preserving first-seen order.
func GroupKeyColumns(rows []KeyColumn) [][]KeyColumn {
	var groups [][]KeyColumn
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Name]
		if !ok {
			i = len(groups)
			index[r.Name] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

// ForeignKeysFromRows converts grouped key rows into ForeignKeyMetadata.
func ForeignKeysFromRows(rows []KeyColumn) []ForeignKeyMetadata {
	result := make([]ForeignKeyMetadata, 0)
	for _, g := range GroupKeyColumns(rows) {
		fk := ForeignKeyMetadata{
			ConstraintName: g[0].Name,
			TargetSchema:   g[0].RefSchema,
			TargetTable:    g[0].RefTable,
		}
		for _, r := range g {
			fk.Columns = append(fk.Columns, r.Column)
			fk.TargetColumns = append(fk.TargetColumns, r.RefColumn)
		}
		result = append(result, fk)
	}
	return result
}

// IndexesFromRows converts grouped key rows into IndexMetadata.
func IndexesFromRows(rows []KeyColumn) []IndexMetadata {
	result := make([]IndexMetadata, 0)
	for _, g := range GroupKeyColumns(rows) {
		idx := IndexMetadata{IndexName: g[0].Name, IsUnique: g[0].IsUnique, IsPrimary: g[0].IsPrimary}
		for _, r := range g {
			idx.Columns = append(idx.Columns, r.Column)
		}
		result = append(result, idx)
	}
	return result
}

// UniqueConstraintsFromRows converts grouped key rows into UniqueConstraintMetadata.
func UniqueConstraintsFromRows(rows []KeyColumn) []UniqueConstraintMetadata {
	result := make([]UniqueConstraintMetadata, 0)
	for _, g := range GroupKeyColumns(rows) {
		uc := UniqueConstraintMetadata{ConstraintName: g[0].Name}
		for _, r := range g {
			uc.Columns = append(uc.Columns, r.Column)
		}
		result = append(result, uc)
	}
	return result
}

// PrimaryKeyFromRows returns nil when rows is empty.
func PrimaryKeyFromRows(rows []KeyColumn) *PrimaryKeyMetadata {
	if len(rows) == 0 {
		return nil
	}
	pk := &PrimaryKeyMetadata{ConstraintName: rows[0].Name}
	for _, r := range rows {
		pk.Columns = append(pk.Columns, r.Column)
	}
	return pk
}

// TableKeysFromRows folds (table, pk column) rows into TableKeyMetadata.
// Rows with an empty column name are tables without a primary key.
func TableKeysFromRows(rows []KeyColumn) []TableKeyMetadata {
	result := make([]TableKeyMetadata, 0)
	for _, g := range GroupKeyColumns(rows) {
		tk := TableKeyMetadata{TableName: g[0].Name}
		for _, r := range g {
			if r.Column != "" {
				tk.PrimaryKeyColumns = append(tk.PrimaryKeyColumns, r.Column)
			}
		}
		result = append(result, tk)
	}
	return result
}
