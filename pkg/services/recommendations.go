package services

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// Recommendation rule identifiers.
const (
	RuleMissingPrimaryKey  = "missing-primary-key"
	RuleMissingIndexes     = "missing-indexes"
	RuleSparseColumns      = "sparse-columns"
	RuleDuplicateRows      = "duplicate-rows"
	RuleLargeUnpartitioned = "large-unpartitioned"
)

type recommendationRule struct {
	id       string
	severity models.Severity
	check    func(a *models.TableAnalysis, opts AnalysisOptions) (string, bool)
}

// recommendationRules run in this order; every matching rule fires.
var recommendationRules = []recommendationRule{
	{RuleMissingPrimaryKey, models.SeverityHigh, missingPrimaryKey},
	{RuleMissingIndexes, models.SeverityMedium, missingIndexes},
	{RuleSparseColumns, models.SeverityMedium, sparseColumns},
	{RuleDuplicateRows, models.SeverityMedium, duplicateRows},
	{RuleLargeUnpartitioned, models.SeverityLow, largeUnpartitioned},
}

// Recommend evaluates the rule table against a. The result depends only on
// a and opts.
func Recommend(a *models.TableAnalysis, opts AnalysisOptions) []models.Recommendation {
	recs := []models.Recommendation{}
	for _, rule := range recommendationRules {
		if msg, ok := rule.check(a, opts); ok {
			recs = append(recs, models.Recommendation{Severity: rule.severity, Rule: rule.id, Message: msg})
		}
	}
	return recs
}

func missingPrimaryKey(a *models.TableAnalysis, _ AnalysisOptions) (string, bool) {
	if a.PrimaryKey != nil && len(a.PrimaryKey.Columns) > 0 {
		return "", false
	}
	return fmt.Sprintf("Table %s has no primary key. Rows cannot be identified uniquely, so updates and joins risk touching the wrong rows. Add a primary key.", a.QualifiedName()), true
}

func missingIndexes(a *models.TableAnalysis, opts AnalysisOptions) (string, bool) {
	if len(a.Indexes) > 0 || a.RowCount <= opts.IndexRowThreshold {
		return "", false
	}
	return fmt.Sprintf("Table %s has %d rows and no indexes. Every filtered query scans the whole table; index the columns used in joins and filters.", a.QualifiedName(), a.RowCount), true
}

func sparseColumns(a *models.TableAnalysis, _ AnalysisOptions) (string, bool) {
	var sparse []string
	for _, c := range a.Columns {
		if stat, ok := a.ColumnStatistics[c.Name]; ok && stat.NullRatio > sparseNullRatio {
			sparse = append(sparse, fmt.Sprintf("%s (%.1f%% null)", c.Name, stat.NullRatio*100))
		}
	}
	if len(sparse) == 0 {
		return "", false
	}
	return fmt.Sprintf("Mostly null columns: %s. Check whether they are still populated or should be dropped, and filter on them with care.", strings.Join(sparse, ", ")), true
}

func duplicateRows(a *models.TableAnalysis, _ AnalysisOptions) (string, bool) {
	if a.DuplicateRows == nil || *a.DuplicateRows == 0 {
		return "", false
	}
	return fmt.Sprintf("Table %s contains %d fully duplicated row(s). Deduplicate and add a unique constraint to keep aggregates correct.", a.QualifiedName(), *a.DuplicateRows), true
}

func largeUnpartitioned(a *models.TableAnalysis, opts AnalysisOptions) (string, bool) {
	if a.Partitioned || a.SizeBytes <= opts.LargeTableBytes {
		return "", false
	}
	return fmt.Sprintf("Table %s is %s and not partitioned. Consider partitioning by a date or tenant column as it grows.", a.QualifiedName(), formatBytes(a.SizeBytes)), true
}

// formatBytes renders n with a binary unit and one decimal.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
