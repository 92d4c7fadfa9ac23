package models

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
)

// ColumnKind groups declared types by which statistics apply to them.
type ColumnKind string

const (
	ColumnKindNumeric  ColumnKind = "numeric"
	ColumnKindText     ColumnKind = "text"
	ColumnKindBoolean  ColumnKind = "boolean"
	ColumnKindTemporal ColumnKind = "temporal"
	ColumnKindOpaque   ColumnKind = "opaque" // json, xml, blobs: null counts only
	ColumnKindOther    ColumnKind = "other"
)

// Groupable reports whether values of this kind can be compared for
// DISTINCT, GROUP BY and duplicate detection on every supported engine.
func (k ColumnKind) Groupable() bool {
	return k != ColumnKindOpaque
}

// ColumnMeta describes one column in its native ordinal position.
type ColumnMeta struct {
	Name            string     `json:"name"`
	DataType        string     `json:"data_type"`
	Nullable        bool       `json:"nullable"`
	Default         *string    `json:"default,omitempty"`
	OrdinalPosition int        `json:"ordinal_position"`
	Kind            ColumnKind `json:"kind"`
}

// PrimaryKey lists the key columns in key order.
type PrimaryKey struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
}

// ForeignKey is a declared reference from this table to another.
type ForeignKey struct {
	Name             string   `json:"name,omitempty"`
	Columns          []string `json:"columns"`
	ReferencedSchema string   `json:"referenced_schema,omitempty"`
	ReferencedTable  string   `json:"referenced_table"`
	ReferencedColumn []string `json:"referenced_columns"`
}

// UniqueConstraint is a declared UNIQUE constraint.
type UniqueConstraint struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Index is one index definition on the table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Primary bool     `json:"primary"`
}

// RelationshipSource tells an authoritative foreign key apart from a
// relationship guessed from naming.
type RelationshipSource string

const (
	RelationshipSourceForeignKey RelationshipSource = "foreign_key"
	RelationshipSourceCandidate  RelationshipSource = "candidate"
)

// Relationship links a column of the analyzed table to another table.
type Relationship struct {
	Column           string             `json:"column"`
	ReferencedTable  string             `json:"referenced_table"`
	ReferencedColumn string             `json:"referenced_column,omitempty"`
	Source           RelationshipSource `json:"source"`
	Reason           string             `json:"reason,omitempty"`
}

// ValueCount is one entry of a top-N frequency histogram.
type ValueCount struct {
	Value     string `json:"value"`
	Frequency int64  `json:"frequency"`
}

// ColumnStat holds per-column statistics. Numeric aggregates are nil for
// non-numeric columns and length aggregates are nil for non-text columns.
type ColumnStat struct {
	NullCount     int64        `json:"null_count"`
	NullRatio     float64      `json:"null_ratio"`
	DistinctCount int64        `json:"distinct_count"`
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Avg           *float64     `json:"avg,omitempty"`
	Stddev        *float64     `json:"stddev,omitempty"`
	MinLength     *int64       `json:"min_length,omitempty"`
	MaxLength     *int64       `json:"max_length,omitempty"`
	AvgLength     *float64     `json:"avg_length,omitempty"`
	TopValues     []ValueCount `json:"top_values,omitempty"`
}

// Issue tags used in TableAnalysis.QualityIssues.
const (
	IssueIntrospectionDegraded = "introspection-degraded"
	IssueStatisticsDegraded    = "statistics-degraded"
	IssueHighNullRatio         = "high-null-ratio"
	IssueLikelyUnused          = "likely-unused"
	IssueDuplicateRows         = "duplicate-rows"
	IssueDuplicateCheckSkipped = "duplicate-check-skipped"
)

// QualityIssue is one data-quality or degraded-introspection finding.
type QualityIssue struct {
	Tag     string `json:"tag"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// Severity ranks recommendations.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Recommendation is one rule outcome.
type Recommendation struct {
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
}

// Row is one sample row, values in column order.
type Row []any

// TableAnalysis is the structured description of one table at one point in
// time. It is built once per analysis call and never mutated afterwards.
type TableAnalysis struct {
	WorkspaceID       string                `json:"workspace_id"`
	TableName         string                `json:"table_name"`
	SchemaName        string                `json:"schema_name,omitempty"`
	DatabaseType      DatabaseType          `json:"db_type"`
	Columns           []ColumnMeta          `json:"columns"`
	RowCount          int64                 `json:"row_count"`
	SizeBytes         int64                 `json:"size_bytes"`
	SizeApproximate   bool                  `json:"size_approximate"`
	Partitioned       bool                  `json:"partitioned"`
	PrimaryKey        *PrimaryKey           `json:"primary_key"`
	ForeignKeys       []ForeignKey          `json:"foreign_keys"`
	UniqueConstraints []UniqueConstraint    `json:"unique_constraints"`
	Indexes           []Index               `json:"indexes"`
	Relationships     []Relationship        `json:"relationships"`
	RelatedTables     []string              `json:"related_tables"`
	ColumnStatistics  map[string]ColumnStat `json:"column_statistics"`
	DuplicateRows     *int64                `json:"duplicate_rows,omitempty"`
	StatisticsSample  int64                 `json:"statistics_sample_size"`
	QualityIssues     []QualityIssue        `json:"quality_issues"`
	Recommendations   []Recommendation      `json:"recommendations"`
	SampleRows        []Row                 `json:"sample_rows"`
	AnalyzedAt        time.Time             `json:"analyzed_at"`
}

// QualifiedName is schema.table, or table alone when no schema applies.
func (a *TableAnalysis) QualifiedName() string {
	if a.SchemaName == "" {
		return a.TableName
	}
	return a.SchemaName + "." + a.TableName
}

// Column returns the metadata for name.
func (a *TableAnalysis) Column(name string) (ColumnMeta, bool) {
	for _, c := range a.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// Degraded reports whether any introspection or statistics step fell back
// to a best-effort result.
func (a *TableAnalysis) Degraded() bool {
	for _, issue := range a.QualityIssues {
		if issue.Tag == IssueIntrospectionDegraded || issue.Tag == IssueStatisticsDegraded {
			return true
		}
	}
	return false
}

// PartialFailure returns an AnalysisPartialFailure error describing the
// degraded steps, or nil for a complete analysis. The analysis itself is
// still valid either way.
func (a *TableAnalysis) PartialFailure() error {
	var degraded int
	for _, issue := range a.QualityIssues {
		if issue.Tag == IssueIntrospectionDegraded || issue.Tag == IssueStatisticsDegraded {
			degraded++
		}
	}
	if degraded == 0 {
		return nil
	}
	return apperrors.New(apperrors.ErrAnalysisPartialFailure, fmt.Errorf("%d step(s) degraded", degraded)).
		WithWorkspace(a.WorkspaceID).
		WithTable(a.QualifiedName())
}
