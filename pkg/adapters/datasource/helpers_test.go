package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/testhelpers"
)

// fileDialect is a minimal read-only SQLite capability set. Engine packages
// import this one, so tests here cannot import them back.
type fileDialect struct{}

func init() {
	Register(DialectRegistration{
		Info:    DialectInfo{Type: models.DatabaseTypeSQLite, DisplayName: "SQLite (test)"},
		Dialect: fileDialect{},
	})
}

func (fileDialect) Type() models.DatabaseType { return models.DatabaseTypeSQLite }
func (fileDialect) DriverName() string        { return "sqlite" }
func (fileDialect) ValidateConfig(cfg models.ConnectionConfig) error {
	if cfg.FilePath == "" {
		return errors.New("file_path is required")
	}
	return nil
}
func (fileDialect) DSN(cfg models.ConnectionConfig) (string, error) {
	return "file:" + cfg.FilePath + "?mode=ro", nil
}
func (fileDialect) DefaultSchema(models.ConnectionConfig) string { return "" }
func (fileDialect) IsAuthError(error) bool                      { return false }
func (fileDialect) QuoteIdentifier(name string) string          { return `"` + name + `"` }
func (d fileDialect) QualifiedTableName(_, table string) string  { return d.QuoteIdentifier(table) }
func (fileDialect) LimitClause(string, int) string              { return "" }
func (fileDialect) FloatExpr(expr string) string                { return expr }
func (fileDialect) LengthFunc() string                          { return "LENGTH" }
func (fileDialect) StddevFunc() string                          { return "" }

func (fileDialect) TableExists(context.Context, Querier, string, string) (bool, error) {
	return false, nil
}
func (fileDialect) Columns(context.Context, Querier, string, string) ([]ColumnMetadata, error) {
	return nil, nil
}
func (fileDialect) PrimaryKey(context.Context, Querier, string, string) (*PrimaryKeyMetadata, error) {
	return nil, nil
}
func (fileDialect) ForeignKeys(context.Context, Querier, string, string) ([]ForeignKeyMetadata, error) {
	return nil, nil
}
func (fileDialect) UniqueConstraints(context.Context, Querier, string, string) ([]UniqueConstraintMetadata, error) {
	return nil, nil
}
func (fileDialect) Indexes(context.Context, Querier, string, string) ([]IndexMetadata, error) {
	return nil, nil
}
func (fileDialect) Storage(context.Context, Querier, string, string) (*StorageMetadata, error) {
	return &StorageMetadata{SizeBytes: -1}, nil
}
func (fileDialect) TableKeys(context.Context, Querier, string) ([]TableKeyMetadata, error) {
	return nil, nil
}

func newTestManager(t *testing.T, opts PoolOptions) *ConnectionManager {
	t.Helper()
	if opts.BorrowTimeout == 0 {
		opts.BorrowTimeout = 2 * time.Second
	}
	m := NewConnectionManager(ConnectionManagerConfig{Pool: opts}, NewMetrics(nil), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newFixture(t *testing.T) models.ConnectionConfig {
	t.Helper()
	return testhelpers.NewSQLiteDB(t, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
}

func acquire(t *testing.T, m *ConnectionManager, cfg models.ConnectionConfig, holder string) *Pool {
	t.Helper()
	pool, err := m.AcquirePool(context.Background(), cfg.Fingerprint(), cfg, holder)
	require.NoError(t, err)
	return pool
}
