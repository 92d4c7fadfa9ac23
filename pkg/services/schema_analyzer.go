package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-workspace/pkg/sql"
)

// ConnectionSource lends connections for an active workspace.
// WorkspaceService satisfies it.
type ConnectionSource interface {
	Borrow(ctx context.Context, id uuid.UUID) (*datasource.Conn, error)
}

// SchemaAnalyzer introspects the tables of an active workspace.
type SchemaAnalyzer interface {
	// Analyze introspects table on one borrowed connection. schema may be
	// empty to use the engine default. Steps that fail without losing the
	// connection are recorded as quality issues instead of failing the call.
	Analyze(ctx context.Context, workspaceID uuid.UUID, table, schema string) (*models.TableAnalysis, error)

	// ListTables lists the tables of schema with primary keys and row counts.
	ListTables(ctx context.Context, workspaceID uuid.UUID, schema string) (*models.SchemaSummary, error)
}

type schemaAnalyzer struct {
	source ConnectionSource
	stats  *TableStatistics
	opts   AnalysisOptions
	logger *zap.Logger
	now    func() time.Time
}

// NewSchemaAnalyzer creates a schema analyzer.
func NewSchemaAnalyzer(source ConnectionSource, opts AnalysisOptions, logger *zap.Logger) SchemaAnalyzer {
	logger = logger.Named("analyzer")
	return &schemaAnalyzer{
		source: source,
		stats:  NewTableStatistics(opts, logger),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

var _ SchemaAnalyzer = (*schemaAnalyzer)(nil)

// analysisRun carries the state of one Analyze call.
type analysisRun struct {
	conn     *datasource.Conn
	dialect  datasource.Dialect
	result   *models.TableAnalysis
	rowCount int64 // -1 when unknown
	logger   *zap.Logger
}

func (a *schemaAnalyzer) Analyze(ctx context.Context, workspaceID uuid.UUID, table, schema string) (*models.TableAnalysis, error) {
	table = strings.TrimSpace(table)
	schema = strings.TrimSpace(schema)
	if err := sqlguard.ValidateTableReference(table, schema); err != nil {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			return nil, ae.WithWorkspace(workspaceID.String())
		}
		return nil, err
	}

	conn, err := a.source.Borrow(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	// Released on every path; a connection interrupted mid-query was marked
	// broken and is discarded instead of returned.
	defer conn.Release()

	if schema == "" {
		schema = conn.DefaultSchema()
	}

	start := a.now()
	run := &analysisRun{
		conn:    conn,
		dialect: conn.Dialect(),
		result: &models.TableAnalysis{
			WorkspaceID:       workspaceID.String(),
			TableName:         table,
			SchemaName:        schema,
			DatabaseType:      conn.Dialect().Type(),
			Columns:           []models.ColumnMeta{},
			ForeignKeys:       []models.ForeignKey{},
			UniqueConstraints: []models.UniqueConstraint{},
			Indexes:           []models.Index{},
			Relationships:     []models.Relationship{},
			RelatedTables:     []string{},
			ColumnStatistics:  map[string]models.ColumnStat{},
			QualityIssues:     []models.QualityIssue{},
			SampleRows:        []models.Row{},
		},
		rowCount: -1,
		logger: a.logger.With(
			zap.String("workspace_id", workspaceID.String()),
			zap.String("table", table),
		),
	}
	tableErr := func(err error) error {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			return ae.WithWorkspace(workspaceID.String()).WithTable(run.result.QualifiedName())
		}
		return err
	}

	exists, err := run.dialect.TableExists(ctx, conn, schema, table)
	if err != nil {
		if fatal := abortError(ctx, conn, err); fatal != nil {
			return nil, tableErr(fatal)
		}
		// Without an answer from the catalog the table cannot be analyzed.
		return nil, tableErr(apperrors.New(apperrors.ErrConnection, fmt.Errorf("failed to check table existence: %w", err)))
	}
	if !exists {
		return nil, apperrors.New(apperrors.ErrTableNotFound, nil).
			WithWorkspace(workspaceID.String()).
			WithTable(run.result.QualifiedName())
	}

	steps := []func(context.Context, *analysisRun) error{
		a.introspectColumns,
		a.introspectConstraints,
		a.measureSize,
		a.inferRelationships,
		a.computeStatistics,
		a.collectSampleRows,
		a.checkDuplicates,
	}
	for _, step := range steps {
		if err := step(ctx, run); err != nil {
			run.logger.Warn("Analysis aborted", zap.String("error", logging.SanitizeError(err)))
			return nil, tableErr(err)
		}
	}

	addNullIssues(run.result)
	run.result.Recommendations = Recommend(run.result, a.opts)
	run.result.AnalyzedAt = a.now().UTC()

	run.logger.Info("Analyzed table",
		zap.Int64("row_count", run.result.RowCount),
		zap.Int("columns", len(run.result.Columns)),
		zap.Int("quality_issues", len(run.result.QualityIssues)),
		zap.Duration("elapsed", a.now().Sub(start)),
	)
	return run.result, nil
}

// abortError returns the error the whole analysis must fail with when err
// means the connection or the caller's context is gone, or nil when the
// failure is local to one step.
func abortError(ctx context.Context, conn *datasource.Conn, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		conn.MarkBroken()
		return ctxErr
	}
	if conn.Broken() || datasource.IsConnectionLoss(err) {
		conn.MarkBroken()
		return apperrors.New(apperrors.ErrConnection, err)
	}
	return nil
}

// degrade records a non-fatal step failure, or returns the abort error.
func (r *analysisRun) degrade(ctx context.Context, tag, step string, err error) error {
	if fatal := abortError(ctx, r.conn, err); fatal != nil {
		return fatal
	}
	r.logger.Warn("Analysis step degraded", zap.String("step", step), zap.String("error", logging.SanitizeError(err)))
	r.result.QualityIssues = append(r.result.QualityIssues, models.QualityIssue{
		Tag:     tag,
		Message: fmt.Sprintf("%s failed: %v", step, err),
	})
	return nil
}

func (a *schemaAnalyzer) introspectColumns(ctx context.Context, r *analysisRun) error {
	cols, err := r.dialect.Columns(ctx, r.conn, r.result.SchemaName, r.result.TableName)
	if err != nil {
		return r.degrade(ctx, models.IssueIntrospectionDegraded, "column introspection", err)
	}
	for _, c := range cols {
		r.result.Columns = append(r.result.Columns, models.ColumnMeta{
			Name:            c.ColumnName,
			DataType:        c.DataType,
			Nullable:        c.IsNullable,
			Default:         c.DefaultValue,
			OrdinalPosition: c.OrdinalPosition,
			Kind:            datasource.ClassifyDataType(c.DataType),
		})
	}
	return nil
}

func (a *schemaAnalyzer) introspectConstraints(ctx context.Context, r *analysisRun) error {
	schema, table := r.result.SchemaName, r.result.TableName

	pk, err := r.dialect.PrimaryKey(ctx, r.conn, schema, table)
	if err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "primary key introspection", err); err != nil {
			return err
		}
	} else if pk != nil && len(pk.Columns) > 0 {
		r.result.PrimaryKey = &models.PrimaryKey{Name: pk.ConstraintName, Columns: pk.Columns}
	}

	fks, err := r.dialect.ForeignKeys(ctx, r.conn, schema, table)
	if err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "foreign key introspection", err); err != nil {
			return err
		}
	}
	for _, fk := range fks {
		r.result.ForeignKeys = append(r.result.ForeignKeys, models.ForeignKey{
			Name:             fk.ConstraintName,
			Columns:          fk.Columns,
			ReferencedSchema: fk.TargetSchema,
			ReferencedTable:  fk.TargetTable,
			ReferencedColumn: fk.TargetColumns,
		})
	}

	uniques, err := r.dialect.UniqueConstraints(ctx, r.conn, schema, table)
	if err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "unique constraint introspection", err); err != nil {
			return err
		}
	}
	for _, u := range uniques {
		r.result.UniqueConstraints = append(r.result.UniqueConstraints, models.UniqueConstraint{Name: u.ConstraintName, Columns: u.Columns})
	}

	indexes, err := r.dialect.Indexes(ctx, r.conn, schema, table)
	if err != nil {
		return r.degrade(ctx, models.IssueIntrospectionDegraded, "index introspection", err)
	}
	for _, idx := range indexes {
		r.result.Indexes = append(r.result.Indexes, models.Index{
			Name:    idx.IndexName,
			Columns: idx.Columns,
			Unique:  idx.IsUnique,
			Primary: idx.IsPrimary,
		})
	}
	return nil
}

func (a *schemaAnalyzer) measureSize(ctx context.Context, r *analysisRun) error {
	qualified := r.dialect.QualifiedTableName(r.result.SchemaName, r.result.TableName)

	var n int64
	if err := r.conn.QueryRowxContext(ctx, "SELECT COUNT(*) FROM "+qualified).Scan(&n); err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "row count", err); err != nil {
			return err
		}
	} else {
		r.rowCount = n
		r.result.RowCount = n
	}

	storage, err := r.dialect.Storage(ctx, r.conn, r.result.SchemaName, r.result.TableName)
	if err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "storage size", err); err != nil {
			return err
		}
		storage = &datasource.StorageMetadata{SizeBytes: -1}
	}
	r.result.Partitioned = storage.Partitioned
	if storage.SizeBytes >= 0 {
		r.result.SizeBytes = storage.SizeBytes
		return nil
	}

	r.result.SizeApproximate = true
	if r.rowCount > 0 {
		r.result.SizeBytes = r.rowCount * estimateRowWidth(r.result.Columns)
	}
	return nil
}

// rowOverhead approximates per-row header bytes across engines.
const rowOverhead = 24

// estimateRowWidth guesses average stored bytes per row from column kinds.
func estimateRowWidth(columns []models.ColumnMeta) int64 {
	width := int64(rowOverhead)
	for _, c := range columns {
		switch c.Kind {
		case models.ColumnKindBoolean:
			width++
		case models.ColumnKindNumeric, models.ColumnKindTemporal:
			width += 8
		case models.ColumnKindText:
			width += 32
		case models.ColumnKindOpaque:
			width += 256
		default:
			width += 16
		}
	}
	return width
}

func (a *schemaAnalyzer) inferRelationships(ctx context.Context, r *analysisRun) error {
	keys, err := r.dialect.TableKeys(ctx, r.conn, r.result.SchemaName)
	if err != nil {
		if err := r.degrade(ctx, models.IssueIntrospectionDegraded, "table key listing", err); err != nil {
			return err
		}
	}
	r.result.Relationships = InferRelationships(r.result.TableName, r.result.Columns, r.result.ForeignKeys, keys)
	r.result.RelatedTables = RelatedTables(r.result.Relationships)
	return nil
}

func (a *schemaAnalyzer) computeStatistics(ctx context.Context, r *analysisRun) error {
	if len(r.result.Columns) == 0 {
		return nil
	}
	target := statsTarget{
		conn:      r.conn,
		dialect:   r.dialect,
		qualified: r.dialect.QualifiedTableName(r.result.SchemaName, r.result.TableName),
	}
	stats, issues, err := a.stats.Compute(ctx, target, r.result.Columns, r.rowCount)
	if err != nil {
		return err
	}
	r.result.ColumnStatistics = stats
	r.result.StatisticsSample = a.stats.SampleSize(r.rowCount)
	r.result.QualityIssues = append(r.result.QualityIssues, issues...)
	return nil
}

func (a *schemaAnalyzer) collectSampleRows(ctx context.Context, r *analysisRun) error {
	if a.opts.SampleRows <= 0 || len(r.result.Columns) == 0 || r.rowCount == 0 {
		return nil
	}

	quoted := make([]string, 0, len(r.result.Columns))
	for _, c := range r.result.Columns {
		quoted = append(quoted, r.dialect.QuoteIdentifier(c.Name))
	}
	var orderBy string
	if r.result.PrimaryKey != nil {
		keys := make([]string, 0, len(r.result.PrimaryKey.Columns))
		for _, k := range r.result.PrimaryKey.Columns {
			keys = append(keys, r.dialect.QuoteIdentifier(k))
		}
		orderBy = strings.Join(keys, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s",
		strings.Join(quoted, ", "),
		r.dialect.QualifiedTableName(r.result.SchemaName, r.result.TableName),
		r.dialect.LimitClause(orderBy, a.opts.SampleRows))

	rows, err := r.conn.QueryxContext(ctx, query)
	if err != nil {
		return r.degrade(ctx, models.IssueStatisticsDegraded, "sample rows", err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return r.degrade(ctx, models.IssueStatisticsDegraded, "sample rows", err)
		}
		row := make(models.Row, len(values))
		for i, v := range values {
			row[i] = displayValue(v)
		}
		r.result.SampleRows = append(r.result.SampleRows, row)
	}
	if err := rows.Err(); err != nil {
		r.result.SampleRows = []models.Row{}
		return r.degrade(ctx, models.IssueStatisticsDegraded, "sample rows", err)
	}
	return nil
}

// displayValue converts a driver value into something that renders the
// same way in JSON and in the LLM context.
func displayValue(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return fmt.Sprintf("<%d bytes>", len(x))
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func (a *schemaAnalyzer) checkDuplicates(ctx context.Context, r *analysisRun) error {
	target := statsTarget{
		conn:      r.conn,
		dialect:   r.dialect,
		qualified: r.dialect.QualifiedTableName(r.result.SchemaName, r.result.TableName),
	}
	dups, skipped, err := a.stats.DuplicateRows(ctx, target, r.result.Columns, r.rowCount)
	if err != nil {
		return r.degrade(ctx, models.IssueStatisticsDegraded, "duplicate check", err)
	}
	if skipped != "" {
		r.result.QualityIssues = append(r.result.QualityIssues, models.QualityIssue{
			Tag:     models.IssueDuplicateCheckSkipped,
			Message: "duplicate check skipped: " + skipped,
		})
		return nil
	}
	r.result.DuplicateRows = &dups
	if dups > 0 {
		r.result.QualityIssues = append(r.result.QualityIssues, models.QualityIssue{
			Tag:     models.IssueDuplicateRows,
			Message: fmt.Sprintf("%d row(s) duplicate another row across all columns", dups),
		})
	}
	return nil
}

// sparseNullRatio is the null ratio above which a column is reported sparse.
const sparseNullRatio = 0.5

// addNullIssues flags sparse and entirely null columns in column order.
func addNullIssues(result *models.TableAnalysis) {
	if result.RowCount == 0 {
		return
	}
	for _, c := range result.Columns {
		stat, ok := result.ColumnStatistics[c.Name]
		if !ok {
			continue
		}
		switch {
		case stat.NullRatio >= 1:
			result.QualityIssues = append(result.QualityIssues, models.QualityIssue{
				Tag:     models.IssueLikelyUnused,
				Column:  c.Name,
				Message: fmt.Sprintf("column %s is null in every row", c.Name),
			})
		case stat.NullRatio > sparseNullRatio:
			result.QualityIssues = append(result.QualityIssues, models.QualityIssue{
				Tag:     models.IssueHighNullRatio,
				Column:  c.Name,
				Message: fmt.Sprintf("column %s is %.1f%% null", c.Name, stat.NullRatio*100),
			})
		}
	}
}
