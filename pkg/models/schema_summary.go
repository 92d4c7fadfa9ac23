package models

import "time"

// TableSummary is one table of a schema listing.
type TableSummary struct {
	Name       string   `json:"name"`
	PrimaryKey []string `json:"primary_key"`
	RowCount   int64    `json:"row_count"` // -1 when the count failed
}

// SchemaSummary lists the tables of one schema of a workspace, sorted by name.
type SchemaSummary struct {
	WorkspaceID   string         `json:"workspace_id"`
	SchemaName    string         `json:"schema_name,omitempty"`
	DatabaseType  DatabaseType   `json:"db_type"`
	Tables        []TableSummary `json:"tables"`
	QualityIssues []QualityIssue `json:"quality_issues"`
	ListedAt      time.Time      `json:"listed_at"`
}

// QualifiedName returns schema.table, or table when the schema is empty.
func (s *SchemaSummary) QualifiedName(table string) string {
	if s.SchemaName == "" {
		return table
	}
	return s.SchemaName + "." + table
}

// TablesWithoutPrimaryKey returns the names of tables that have no primary key.
func (s *SchemaSummary) TablesWithoutPrimaryKey() []string {
	var names []string
	for _, t := range s.Tables {
		if len(t.PrimaryKey) == 0 {
			names = append(names, t.Name)
		}
	}
	return names
}
