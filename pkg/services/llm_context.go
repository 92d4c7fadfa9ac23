package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// GetLLMContext renders a as plain text for a model that has to write
// queries against the table. It does no I/O and iterates slices only, so
// the same analysis always yields the same bytes.
func GetLLMContext(a *models.TableAnalysis) string {
	if a == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Table: %s\n", a.QualifiedName())
	fmt.Fprintf(&b, "Database: %s\n", a.DatabaseType)
	fmt.Fprintf(&b, "Rows: %d\n", a.RowCount)
	size := formatBytes(a.SizeBytes)
	if a.SizeBytes < 0 {
		size = "unknown"
	} else if a.SizeApproximate {
		size += " (estimated)"
	}
	fmt.Fprintf(&b, "Size: %s\n", size)
	if a.Partitioned {
		b.WriteString("Partitioned: yes\n")
	}

	writeColumns(&b, a)
	writeKeys(&b, a)
	writeRelationships(&b, a)
	writeIssues(&b, a)
	writeRecommendations(&b, a)
	writeSampleRows(&b, a)

	return b.String()
}

func writeColumns(b *strings.Builder, a *models.TableAnalysis) {
	b.WriteString("\n## Columns\n")
	for _, c := range a.Columns {
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		fmt.Fprintf(b, "- %s %s %s", c.Name, c.DataType, null)
		if c.Default != nil {
			fmt.Fprintf(b, " DEFAULT %s", *c.Default)
		}
		b.WriteString("\n")

		stat, ok := a.ColumnStatistics[c.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "  nulls: %d (%s%%), distinct: %d\n",
			stat.NullCount, formatFloat(stat.NullRatio*100), stat.DistinctCount)
		if stat.Min != nil && stat.Max != nil {
			fmt.Fprintf(b, "  range: %s to %s", formatFloat(*stat.Min), formatFloat(*stat.Max))
			if stat.Avg != nil {
				fmt.Fprintf(b, ", avg %s", formatFloat(*stat.Avg))
			}
			if stat.Stddev != nil {
				fmt.Fprintf(b, ", stddev %s", formatFloat(*stat.Stddev))
			}
			b.WriteString("\n")
		}
		if stat.MinLength != nil && stat.MaxLength != nil {
			fmt.Fprintf(b, "  length: %d to %d", *stat.MinLength, *stat.MaxLength)
			if stat.AvgLength != nil {
				fmt.Fprintf(b, ", avg %s", formatFloat(*stat.AvgLength))
			}
			b.WriteString("\n")
		}
		if len(stat.TopValues) > 0 {
			values := make([]string, 0, len(stat.TopValues))
			for _, v := range stat.TopValues {
				values = append(values, fmt.Sprintf("%q (%d)", v.Value, v.Frequency))
			}
			fmt.Fprintf(b, "  top values: %s\n", strings.Join(values, ", "))
		}
	}
}

func writeKeys(b *strings.Builder, a *models.TableAnalysis) {
	b.WriteString("\n## Keys and indexes\n")
	if a.PrimaryKey != nil && len(a.PrimaryKey.Columns) > 0 {
		fmt.Fprintf(b, "Primary key: (%s)\n", strings.Join(a.PrimaryKey.Columns, ", "))
	} else {
		b.WriteString("Primary key: none\n")
	}
	for _, u := range a.UniqueConstraints {
		fmt.Fprintf(b, "Unique: %s (%s)\n", u.Name, strings.Join(u.Columns, ", "))
	}
	for _, idx := range a.Indexes {
		kind := "index"
		switch {
		case idx.Primary:
			kind = "primary index"
		case idx.Unique:
			kind = "unique index"
		}
		fmt.Fprintf(b, "Index: %s on (%s) [%s]\n", idx.Name, strings.Join(idx.Columns, ", "), kind)
	}
}

func writeRelationships(b *strings.Builder, a *models.TableAnalysis) {
	if len(a.Relationships) == 0 {
		return
	}
	b.WriteString("\n## Relationships\n")
	for _, r := range a.Relationships {
		target := r.ReferencedTable
		if r.ReferencedColumn != "" {
			target += "." + r.ReferencedColumn
		}
		label := "foreign key"
		if r.Source == models.RelationshipSourceCandidate {
			label = "likely, by name"
		}
		fmt.Fprintf(b, "- %s -> %s (%s)\n", r.Column, target, label)
	}
	fmt.Fprintf(b, "Related tables: %s\n", strings.Join(a.RelatedTables, ", "))
}

func writeIssues(b *strings.Builder, a *models.TableAnalysis) {
	if len(a.QualityIssues) == 0 {
		return
	}
	b.WriteString("\n## Data quality\n")
	for _, issue := range a.QualityIssues {
		fmt.Fprintf(b, "- [%s] %s\n", issue.Tag, issue.Message)
	}
}

func writeRecommendations(b *strings.Builder, a *models.TableAnalysis) {
	if len(a.Recommendations) == 0 {
		return
	}
	b.WriteString("\n## Recommendations\n")
	for _, r := range a.Recommendations {
		fmt.Fprintf(b, "- %s %s: %s\n", r.Severity, r.Rule, r.Message)
	}
}

func writeSampleRows(b *strings.Builder, a *models.TableAnalysis) {
	fmt.Fprintf(b, "\n## Sample rows (%d)\n", len(a.SampleRows))
	if len(a.SampleRows) == 0 {
		b.WriteString("(no rows)\n")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(a.Columns))
	for i, c := range a.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)
	for _, row := range a.SampleRows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatCell(v)
		}
		t.AppendRow(out)
	}
	b.WriteString(t.Render())
	b.WriteString("\n")
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return formatFloat(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
