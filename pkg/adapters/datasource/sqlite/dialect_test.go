package sqlite

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/testhelpers"
)

func TestRegistered(t *testing.T) {
	d, err := datasource.GetDialect(models.DatabaseTypeSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.DriverName())
	assert.Equal(t, sqlx.QUESTION, sqlx.BindType("sqlite"))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, Dialect{}.ValidateConfig(models.ConnectionConfig{Type: "sqlite", FilePath: "/data/app.db"}))
	assert.ErrorContains(t, Dialect{}.ValidateConfig(models.ConnectionConfig{Type: "sqlite"}), "file_path is required")
	assert.Error(t, Dialect{}.ValidateConfig(models.ConnectionConfig{Type: "sqlite", FilePath: ":memory:"}))
}

func TestBuildDSN_ReadOnly(t *testing.T) {
	dsn := buildDSN(models.ConnectionConfig{FilePath: "/data/my app.db"})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "/data/my app.db", u.Path)
	assert.Equal(t, "ro", u.Query().Get("mode"))
	assert.Equal(t, "busy_timeout(5000)", u.Query().Get("_pragma"))
}

func TestReadOnlyOpen_MissingFileFails(t *testing.T) {
	cfg := models.ConnectionConfig{Type: "sqlite", FilePath: filepath.Join(t.TempDir(), "absent.db")}
	db, err := sqlx.Open("sqlite", buildDSN(cfg))
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, db.PingContext(context.Background()))
	assert.NoFileExists(t, cfg.FilePath)
}

func TestSQLFragments(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `"a""b"`, d.QuoteIdentifier(`a"b`))
	assert.Equal(t, `"orders"`, d.QualifiedTableName("", "orders"))
	assert.Equal(t, ` ORDER BY "id" LIMIT 5`, d.LimitClause(`"id"`, 5))
	assert.Equal(t, "CAST(x AS REAL)", d.FloatExpr("x"))
	assert.Empty(t, d.StddevFunc())
	assert.False(t, d.IsAuthError(assert.AnError))
}

func openFixture(t *testing.T, statements ...string) *sqlx.DB {
	t.Helper()
	cfg := testhelpers.NewSQLiteDB(t, statements...)
	db, err := sqlx.Open("sqlite", buildDSN(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
