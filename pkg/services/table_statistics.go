package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// statsTarget is the table the statistics queries run against.
type statsTarget struct {
	conn      *datasource.Conn
	dialect   datasource.Dialect
	qualified string
}

// TableStatistics computes per-column statistics. Null counts and numeric
// and length aggregates scan the full table; distinct counts and top values
// are computed over the first StatisticsSampleRows rows.
type TableStatistics struct {
	opts   AnalysisOptions
	logger *zap.Logger
}

// NewTableStatistics creates a statistics engine.
func NewTableStatistics(opts AnalysisOptions, logger *zap.Logger) *TableStatistics {
	return &TableStatistics{opts: opts, logger: logger}
}

// columnResult is one column's statistics or the step that failed.
type columnResult struct {
	stat models.ColumnStat
	err  error
	step string
}

// Compute returns statistics for every column that could be analyzed plus
// one statistics-degraded issue per column that could not. A returned
// error means the connection is gone and the analysis must stop.
func (s *TableStatistics) Compute(ctx context.Context, t statsTarget, columns []models.ColumnMeta, rowCount int64) (map[string]models.ColumnStat, []models.QualityIssue, error) {
	stats := make(map[string]models.ColumnStat, len(columns))
	var issues []models.QualityIssue

	for _, col := range columns {
		res := s.column(ctx, t, col, rowCount)
		if res.err != nil {
			if fatal := abortError(ctx, t.conn, res.err); fatal != nil {
				return nil, nil, fatal
			}
			s.logger.Warn("Column statistics degraded",
				zap.String("table", t.qualified),
				zap.String("column", col.Name),
				zap.String("step", res.step),
				zap.String("error", logging.SanitizeError(res.err)),
			)
			issues = append(issues, models.QualityIssue{
				Tag:     models.IssueStatisticsDegraded,
				Column:  col.Name,
				Message: fmt.Sprintf("%s failed: %v", res.step, res.err),
			})
		}
		// Partial results are still useful: the null count usually succeeds
		// even when an aggregate cannot be computed for the type.
		stats[col.Name] = res.stat
	}
	return stats, issues, nil
}

// SampleSize is how many rows the distinct and top-value queries see.
func (s *TableStatistics) SampleSize(rowCount int64) int64 {
	if rowCount < 0 {
		return 0
	}
	return min(rowCount, int64(s.opts.StatisticsSampleRows))
}

func (s *TableStatistics) column(ctx context.Context, t statsTarget, col models.ColumnMeta, rowCount int64) columnResult {
	var res columnResult
	q := t.dialect.QuoteIdentifier(col.Name)

	total, nulls, err := s.nullCount(ctx, t, q)
	if err != nil {
		return columnResult{err: err, step: "null count"}
	}
	res.stat.NullCount = nulls
	if total > 0 {
		res.stat.NullRatio = float64(nulls) / float64(total)
	}
	if total == 0 || !col.Kind.Groupable() {
		return res
	}

	sampled := s.SampleSize(rowCount)
	if rowCount < 0 {
		sampled = min(total, int64(s.opts.StatisticsSampleRows))
	}
	distinct, err := s.distinctCount(ctx, t, q)
	if err != nil {
		res.err, res.step = err, "distinct count"
		return res
	}
	res.stat.DistinctCount = distinct

	if s.lowCardinality(distinct, sampled) {
		top, err := s.topValues(ctx, t, q)
		if err != nil {
			res.err, res.step = err, "top values"
			return res
		}
		res.stat.TopValues = top
	}

	switch col.Kind {
	case models.ColumnKindNumeric:
		if err := s.numericAggregates(ctx, t, q, &res.stat); err != nil {
			res.err, res.step = err, "numeric aggregates"
		}
	case models.ColumnKindText:
		if err := s.lengthAggregates(ctx, t, q, &res.stat); err != nil {
			res.err, res.step = err, "length aggregates"
		}
	}
	return res
}

func (s *TableStatistics) lowCardinality(distinct, sampled int64) bool {
	if distinct == 0 || sampled == 0 {
		return false
	}
	return distinct <= s.opts.TopValuesMaxDistinct &&
		float64(distinct)/float64(sampled) <= s.opts.LowCardinalityRatio
}

func (s *TableStatistics) nullCount(ctx context.Context, t statsTarget, col string) (total, nulls int64, err error) {
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(%s) FROM %s", col, t.qualified)
	var nonNull int64
	if err := t.conn.QueryRowxContext(ctx, query).Scan(&total, &nonNull); err != nil {
		return 0, 0, err
	}
	return total, total - nonNull, nil
}

// sample is a derived table over the first StatisticsSampleRows rows.
func (s *TableStatistics) sample(t statsTarget, col string) string {
	return fmt.Sprintf("(SELECT %s AS v FROM %s%s) s", col, t.qualified, t.dialect.LimitClause("", s.opts.StatisticsSampleRows))
}

func (s *TableStatistics) distinctCount(ctx context.Context, t statsTarget, col string) (int64, error) {
	var n int64
	err := t.conn.QueryRowxContext(ctx, "SELECT COUNT(DISTINCT v) FROM "+s.sample(t, col)).Scan(&n)
	return n, err
}

func (s *TableStatistics) topValues(ctx context.Context, t statsTarget, col string) ([]models.ValueCount, error) {
	query := fmt.Sprintf("SELECT v AS value, COUNT(*) AS frequency FROM %s WHERE v IS NOT NULL GROUP BY v%s",
		s.sample(t, col), t.dialect.LimitClause("COUNT(*) DESC, v ASC", s.opts.TopValues))

	var rows []struct {
		Value     sql.NullString `db:"value"`
		Frequency int64          `db:"frequency"`
	}
	if err := sqlx.SelectContext(ctx, t.conn, &rows, query); err != nil {
		return nil, err
	}

	top := make([]models.ValueCount, 0, len(rows))
	for _, r := range rows {
		top = append(top, models.ValueCount{Value: r.Value.String, Frequency: r.Frequency})
	}
	return top, nil
}

func (s *TableStatistics) numericAggregates(ctx context.Context, t statsTarget, col string, stat *models.ColumnStat) error {
	x := t.dialect.FloatExpr(col)
	spread := "AVG(" + x + " * " + x + ")"
	nativeStddev := t.dialect.StddevFunc() != ""
	if nativeStddev {
		spread = t.dialect.StddevFunc() + "(" + x + ")"
	}
	query := fmt.Sprintf("SELECT MIN(%s), MAX(%s), AVG(%s), %s FROM %s", x, x, x, spread, t.qualified)

	var lo, hi, avg, sp sql.NullFloat64
	if err := t.conn.QueryRowxContext(ctx, query).Scan(&lo, &hi, &avg, &sp); err != nil {
		return err
	}
	stat.Min = nullableFloat(lo)
	stat.Max = nullableFloat(hi)
	stat.Avg = nullableFloat(avg)
	if !sp.Valid || !avg.Valid {
		return nil
	}
	stddev := sp.Float64
	if !nativeStddev {
		// Population variance from the first two moments.
		stddev = math.Sqrt(math.Max(0, sp.Float64-avg.Float64*avg.Float64))
	}
	stat.Stddev = &stddev
	return nil
}

func (s *TableStatistics) lengthAggregates(ctx context.Context, t statsTarget, col string, stat *models.ColumnStat) error {
	l := t.dialect.LengthFunc() + "(" + col + ")"
	query := fmt.Sprintf("SELECT MIN(%s), MAX(%s), AVG(%s) FROM %s", l, l, t.dialect.FloatExpr(l), t.qualified)

	var lo, hi sql.NullInt64
	var avg sql.NullFloat64
	if err := t.conn.QueryRowxContext(ctx, query).Scan(&lo, &hi, &avg); err != nil {
		return err
	}
	if lo.Valid {
		stat.MinLength = &lo.Int64
	}
	if hi.Valid {
		stat.MaxLength = &hi.Int64
	}
	stat.AvgLength = nullableFloat(avg)
	return nil
}

// DuplicateRows counts rows that repeat an earlier row across all columns.
// It returns skipped=true with a reason when the check would be too
// expensive or the column types cannot be grouped.
func (s *TableStatistics) DuplicateRows(ctx context.Context, t statsTarget, columns []models.ColumnMeta, rowCount int64) (dups int64, skipped string, err error) {
	switch {
	case len(columns) == 0:
		return 0, "no columns were introspected", nil
	case rowCount < 0:
		return 0, "row count is unknown", nil
	case rowCount > s.opts.DuplicateCheckMaxRows:
		return 0, fmt.Sprintf("table has %d rows, above the %d row cap", rowCount, s.opts.DuplicateCheckMaxRows), nil
	case rowCount == 0:
		return 0, "", nil
	}

	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		if !c.Kind.Groupable() {
			return 0, fmt.Sprintf("column %s (%s) cannot be grouped", c.Name, c.DataType), nil
		}
		quoted = append(quoted, t.dialect.QuoteIdentifier(c.Name))
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT 1 AS one FROM %s GROUP BY %s) g",
		t.qualified, strings.Join(quoted, ", "))
	var groups int64
	if err := t.conn.QueryRowxContext(ctx, query).Scan(&groups); err != nil {
		return 0, "", err
	}
	return rowCount - groups, "", nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
