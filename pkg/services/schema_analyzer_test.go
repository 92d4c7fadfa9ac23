package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/testhelpers"
)

func TestSchemaAnalyzer_OrdersScenario(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	id := h.activeWorkspace(t, "orders", testhelpers.NewSQLiteDB(t, testhelpers.OrdersFixture...))

	a, err := h.analyzer.Analyze(context.Background(), id, "orders", "")
	require.NoError(t, err)
	require.NoError(t, a.PartialFailure())

	assert.Equal(t, "orders", a.TableName)
	assert.Equal(t, models.DatabaseTypeSQLite, a.DatabaseType)
	assert.Equal(t, int64(10), a.RowCount)
	assert.Nil(t, a.PrimaryKey)
	require.Len(t, a.Columns, 4)
	assert.Equal(t, []string{"order_number", "customer_id", "amount", "status"},
		[]string{a.Columns[0].Name, a.Columns[1].Name, a.Columns[2].Name, a.Columns[3].Name})

	customer := a.ColumnStatistics["customer_id"]
	assert.Equal(t, int64(10), customer.NullCount)
	assert.InDelta(t, 1.0, customer.NullRatio, 1e-9)
	assert.Nil(t, customer.Min)

	amount := a.ColumnStatistics["amount"]
	require.NotNil(t, amount.Min)
	require.NotNil(t, amount.Max)
	require.NotNil(t, amount.Avg)
	require.NotNil(t, amount.Stddev)
	assert.InDelta(t, 10.0, *amount.Min, 1e-9)
	assert.InDelta(t, 100.0, *amount.Max, 1e-9)
	assert.InDelta(t, 55.0, *amount.Avg, 1e-9)
	assert.InDelta(t, 28.72, *amount.Stddev, 0.01)
	assert.Equal(t, int64(10), amount.DistinctCount)
	assert.Empty(t, amount.TopValues, "high cardinality columns get no histogram")

	status := a.ColumnStatistics["status"]
	assert.Equal(t, int64(3), status.DistinctCount)
	assert.Equal(t, []models.ValueCount{
		{Value: "paid", Frequency: 7},
		{Value: "pending", Frequency: 2},
		{Value: "refunded", Frequency: 1},
	}, status.TopValues)
	require.NotNil(t, status.MinLength)
	assert.Equal(t, int64(4), *status.MinLength)
	assert.Equal(t, int64(8), *status.MaxLength)

	require.NotNil(t, a.DuplicateRows)
	assert.Equal(t, int64(0), *a.DuplicateRows)
	assert.Len(t, a.SampleRows, DefaultAnalysisOptions().SampleRows)
	assert.Equal(t, int64(10), a.StatisticsSample)

	require.GreaterOrEqual(t, len(a.Recommendations), 2)
	assert.Equal(t, models.SeverityHigh, a.Recommendations[0].Severity)
	assert.Equal(t, RuleMissingPrimaryKey, a.Recommendations[0].Rule)
	assert.Equal(t, models.SeverityMedium, a.Recommendations[1].Severity)
	assert.Equal(t, RuleSparseColumns, a.Recommendations[1].Rule)
	assert.Contains(t, a.Recommendations[1].Message, "customer_id")

	assert.Contains(t, a.QualityIssues, models.QualityIssue{
		Tag:     models.IssueLikelyUnused,
		Column:  "customer_id",
		Message: "column customer_id is null in every row",
	})
}

func TestSchemaAnalyzer_ZeroRowTable(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	cfg := testhelpers.NewSQLiteDB(t, `CREATE TABLE audit_log (event TEXT, payload BLOB)`)
	id := h.activeWorkspace(t, "empty", cfg)

	a, err := h.analyzer.Analyze(context.Background(), id, "audit_log", "")
	require.NoError(t, err)

	assert.Equal(t, int64(0), a.RowCount)
	assert.Empty(t, a.SampleRows)
	assert.NotNil(t, a.SampleRows)
	require.NotNil(t, a.DuplicateRows)
	assert.Equal(t, int64(0), *a.DuplicateRows)
	for _, issue := range a.QualityIssues {
		assert.NotEqual(t, models.IssueLikelyUnused, issue.Tag, "empty tables have no null ratios to judge")
	}

	require.NotEmpty(t, a.Recommendations)
	assert.Equal(t, RuleMissingPrimaryKey, a.Recommendations[0].Rule)
	assert.Equal(t, models.SeverityHigh, a.Recommendations[0].Severity)
}

func TestSchemaAnalyzer_Relationships(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	id := h.activeWorkspace(t, "store", testhelpers.NewSQLiteDB(t, testhelpers.StoreFixture...))

	a, err := h.analyzer.Analyze(context.Background(), id, "purchases", "")
	require.NoError(t, err)

	require.NotNil(t, a.PrimaryKey)
	assert.Equal(t, []string{"id"}, a.PrimaryKey.Columns)
	require.Len(t, a.ForeignKeys, 1)
	assert.Equal(t, "customers", a.ForeignKeys[0].ReferencedTable)

	require.Len(t, a.Relationships, 2)
	assert.Equal(t, "customer_id", a.Relationships[0].Column)
	assert.Equal(t, models.RelationshipSourceForeignKey, a.Relationships[0].Source)
	assert.Equal(t, "id", a.Relationships[0].ReferencedColumn)
	assert.Equal(t, "sku", a.Relationships[1].Column)
	assert.Equal(t, "products", a.Relationships[1].ReferencedTable)
	assert.Equal(t, models.RelationshipSourceCandidate, a.Relationships[1].Source)
	assert.Equal(t, []string{"customers", "products"}, a.RelatedTables)

	names := make([]string, 0, len(a.Indexes))
	for _, idx := range a.Indexes {
		names = append(names, idx.Name)
	}
	assert.Contains(t, names, "idx_purchases_customer")

	// Sample rows follow the primary key.
	require.Len(t, a.SampleRows, 4)
	assert.Equal(t, int64(1), a.SampleRows[0][0])
	assert.Equal(t, int64(4), a.SampleRows[3][0])

	note := a.ColumnStatistics["note"]
	assert.InDelta(t, 0.75, note.NullRatio, 1e-9)
	assert.Contains(t, a.QualityIssues, models.QualityIssue{
		Tag:     models.IssueHighNullRatio,
		Column:  "note",
		Message: "column note is 75.0% null",
	})
}

func TestSchemaAnalyzer_DuplicateRows(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	cfg := testhelpers.NewSQLiteDB(t, `CREATE TABLE events (kind TEXT, value INTEGER)`)
	testhelpers.InsertRows(t, cfg, "events", 6, func(i int) []any {
		return []any{"click", i % 2}
	})
	id := h.activeWorkspace(t, "dups", cfg)

	a, err := h.analyzer.Analyze(context.Background(), id, "events", "")
	require.NoError(t, err)

	require.NotNil(t, a.DuplicateRows)
	assert.Equal(t, int64(4), *a.DuplicateRows)

	rules := make([]string, 0, len(a.Recommendations))
	for _, r := range a.Recommendations {
		rules = append(rules, r.Rule)
	}
	assert.Equal(t, []string{RuleMissingPrimaryKey, RuleDuplicateRows}, rules)
}

func TestSchemaAnalyzer_TableNotFound(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	cfg := testhelpers.NewSQLiteDB(t, testhelpers.OrdersFixture...)
	id := h.activeWorkspace(t, "orders", cfg)

	_, err := h.analyzer.Analyze(context.Background(), id, "nope", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTableNotFound)
	assert.Equal(t, "table_not_found", apperrors.Code(err))

	_, err = h.analyzer.Analyze(context.Background(), id, " ", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.analyzer.Analyze(context.Background(), id, "orders", "' OR '1'='1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// The borrowed connection went back to the pool.
	status, err := h.workspaces.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pool.Leased)
}

func TestSchemaAnalyzer_CanceledContext(t *testing.T) {
	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 2})
	id := h.activeWorkspace(t, "orders", testhelpers.NewSQLiteDB(t, testhelpers.OrdersFixture...))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.analyzer.Analyze(ctx, id, "orders", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// lossyDialect reads its "catalog" from constants and runs the row count
// against a sqlmock connection that can be made to drop.
type lossyDialect struct{ sqlite.Dialect }

const lossyType models.DatabaseType = "sqlmock"

func init() {
	datasource.Register(datasource.DialectRegistration{
		Info:    datasource.DialectInfo{Type: lossyType, DisplayName: "sqlmock"},
		Dialect: lossyDialect{},
	})
}

func (lossyDialect) Type() models.DatabaseType { return lossyType }
func (lossyDialect) DriverName() string        { return "sqlmock" }
func (lossyDialect) ValidateConfig(cfg models.ConnectionConfig) error {
	if cfg.Database == "" {
		return errors.New("database is required")
	}
	return nil
}
func (lossyDialect) DSN(cfg models.ConnectionConfig) (string, error) { return cfg.Database, nil }

// unreadableTable is a table whose catalog lookup is refused.
const unreadableTable = "audit_log"

func (lossyDialect) TableExists(_ context.Context, _ datasource.Querier, _, table string) (bool, error) {
	if table == unreadableTable {
		return false, errors.New("permission denied for schema audit")
	}
	return true, nil
}
func (lossyDialect) Columns(context.Context, datasource.Querier, string, string) ([]datasource.ColumnMetadata, error) {
	return []datasource.ColumnMetadata{{ColumnName: "id", DataType: "INTEGER", OrdinalPosition: 1}}, nil
}
func (lossyDialect) PrimaryKey(context.Context, datasource.Querier, string, string) (*datasource.PrimaryKeyMetadata, error) {
	return nil, nil
}
func (lossyDialect) ForeignKeys(context.Context, datasource.Querier, string, string) ([]datasource.ForeignKeyMetadata, error) {
	return nil, nil
}
func (lossyDialect) UniqueConstraints(context.Context, datasource.Querier, string, string) ([]datasource.UniqueConstraintMetadata, error) {
	return nil, nil
}
func (lossyDialect) Indexes(context.Context, datasource.Querier, string, string) ([]datasource.IndexMetadata, error) {
	return nil, errors.New("catalog unavailable")
}

func TestSchemaAnalyzer_ConnectionLossMidAnalysis(t *testing.T) {
	db, mock, err := sqlmock.NewWithDSN("lossy_"+t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "events"`).WillReturnError(driver.ErrBadConn)

	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 1})
	id := h.activeWorkspace(t, "lossy", models.ConnectionConfig{Type: lossyType, Database: "lossy_" + t.Name()})

	_, err = h.analyzer.Analyze(context.Background(), id, "events", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Equal(t, "connection_error", apperrors.Code(err))

	var ae *apperrors.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "events", ae.Table)

	// The dropped connection was discarded, not returned to the pool.
	status, err := h.workspaces.Status(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, status.Pool)
	assert.Equal(t, 0, status.Pool.Size)
	assert.Equal(t, 0, status.Pool.Leased)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaAnalyzer_DegradedStepIsRecorded(t *testing.T) {
	db, mock, err := sqlmock.NewWithDSN("degraded_"+t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "events"$`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\("id"\)`).WillReturnRows(sqlmock.NewRows([]string{"total", "non_null"}).AddRow(0, 0))

	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 1})
	id := h.activeWorkspace(t, "degraded", models.ConnectionConfig{Type: lossyType, Database: "degraded_" + t.Name()})

	a, err := h.analyzer.Analyze(context.Background(), id, "events", "")
	require.NoError(t, err)

	assert.True(t, a.Degraded())
	partial := a.PartialFailure()
	require.Error(t, partial)
	assert.ErrorIs(t, partial, apperrors.ErrAnalysisPartialFailure)

	var tags []string
	for _, issue := range a.QualityIssues {
		tags = append(tags, issue.Tag)
	}
	assert.Contains(t, tags, models.IssueIntrospectionDegraded)
}

func TestSchemaAnalyzer_ExistenceCheckFailureKeepsIdentifiers(t *testing.T) {
	db, mock, err := sqlmock.NewWithDSN("unreadable_"+t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	h := newHarness(t, datasource.PoolOptions{MinSize: 1, MaxSize: 1})
	id := h.activeWorkspace(t, "unreadable", models.ConnectionConfig{Type: lossyType, Database: "unreadable_" + t.Name()})

	_, err = h.analyzer.Analyze(context.Background(), id, unreadableTable, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Contains(t, err.Error(), "permission denied")

	var ae *apperrors.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, id.String(), ae.WorkspaceID)
	assert.Equal(t, unreadableTable, ae.Table)

	// A refused catalog query leaves the connection usable.
	status, err := h.workspaces.Status(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, status.Pool)
	assert.Equal(t, 1, status.Pool.Size)
	assert.Equal(t, 1, status.Pool.Idle)
}
