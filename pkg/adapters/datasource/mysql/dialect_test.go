package mysql

import (
	"errors"
	"fmt"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

func validConfig() models.ConnectionConfig {
	return models.ConnectionConfig{
		Type:     models.DatabaseTypeMySQL,
		Host:     "mysql.internal",
		Port:     3306,
		Database: "shop",
		Username: "reader",
		Password: "p@ss/word",
	}
}

func TestRegistered(t *testing.T) {
	d, err := datasource.GetDialect(models.DatabaseTypeMySQL)
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.DriverName())
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, Dialect{}.ValidateConfig(validConfig()))

	cfg := validConfig()
	cfg.Database = ""
	assert.ErrorContains(t, Dialect{}.ValidateConfig(cfg), "database_name is required")

	cfg = validConfig()
	cfg.Options = map[string]string{"tls": "maybe"}
	assert.ErrorContains(t, Dialect{}.ValidateConfig(cfg), "invalid tls option")
}

func TestBuildDSN_RoundTrips(t *testing.T) {
	dsn, err := Dialect{}.DSN(validConfig())
	require.NoError(t, err)

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "reader", parsed.User)
	assert.Equal(t, "p@ss/word", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "mysql.internal:3306", parsed.Addr)
	assert.Equal(t, "shop", parsed.DBName)
	assert.Equal(t, DefaultDialTimeout, parsed.Timeout)
	assert.True(t, parsed.ParseTime)
}

func TestIsAuthError(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsAuthError(&mysqldriver.MySQLError{Number: 1045, Message: "Access denied"}))
	assert.True(t, d.IsAuthError(fmt.Errorf("dial: %w", &mysqldriver.MySQLError{Number: 1044})))
	assert.False(t, d.IsAuthError(&mysqldriver.MySQLError{Number: 1146}))
	assert.False(t, d.IsAuthError(errors.New("i/o timeout")))
}

func TestSQLFragments(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "`we``ird`", d.QuoteIdentifier("we`ird"))
	assert.Equal(t, "`shop`.`orders`", d.QualifiedTableName("shop", "orders"))
	assert.Equal(t, " ORDER BY `id` LIMIT 5", d.LimitClause("`id`", 5))
	assert.Equal(t, "AVG(x)", d.FloatExpr("AVG(x)"))
	assert.Equal(t, "CHAR_LENGTH", d.LengthFunc())
	assert.Equal(t, "shop", d.DefaultSchema(validConfig()))
}

func TestDefaultDialTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, DefaultDialTimeout)
}
