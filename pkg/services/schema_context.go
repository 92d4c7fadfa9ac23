package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// GetSchemaContext renders a schema listing as plain text: a table of
// names, primary keys and row counts, then tables lacking a primary key
// and any degraded counts. Deterministic for a given summary.
func GetSchemaContext(s *models.SchemaSummary) string {
	if s == nil {
		return ""
	}

	var b strings.Builder
	name := s.SchemaName
	if name == "" {
		name = "(default)"
	}
	fmt.Fprintf(&b, "# Schema: %s\n", name)
	fmt.Fprintf(&b, "Database: %s\n", s.DatabaseType)
	fmt.Fprintf(&b, "Tables: %d\n", len(s.Tables))

	if len(s.Tables) == 0 {
		b.WriteString("\n(no tables)\n")
		return b.String()
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"table", "primary key", "rows"})
	for _, tbl := range s.Tables {
		pk := "-"
		if len(tbl.PrimaryKey) > 0 {
			pk = strings.Join(tbl.PrimaryKey, ", ")
		}
		rows := "unknown"
		if tbl.RowCount >= 0 {
			rows = strconv.FormatInt(tbl.RowCount, 10)
		}
		t.AppendRow(table.Row{tbl.Name, pk, rows})
	}
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")

	if missing := s.TablesWithoutPrimaryKey(); len(missing) > 0 {
		fmt.Fprintf(&b, "\nWithout primary key: %s\n", strings.Join(missing, ", "))
	}
	if len(s.QualityIssues) > 0 {
		b.WriteString("\n## Data quality\n")
		for _, issue := range s.QualityIssues {
			fmt.Fprintf(&b, "- [%s] %s\n", issue.Tag, issue.Message)
		}
	}
	return b.String()
}
