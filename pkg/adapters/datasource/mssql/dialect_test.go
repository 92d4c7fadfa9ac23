package mssql

import (
	"fmt"
	"net/url"
	"testing"

	mssqldriver "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

func validConfig() models.ConnectionConfig {
	return models.ConnectionConfig{
		Type:     models.DatabaseTypeSQLServer,
		Host:     "sql.internal",
		Port:     1433,
		Database: "warehouse",
		Username: "sa",
		Password: "Str0ng;Pass@word",
	}
}

func TestRegistered(t *testing.T) {
	d, err := datasource.GetDialect(models.DatabaseTypeSQLServer)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", d.DriverName())
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, Dialect{}.ValidateConfig(validConfig()))

	cfg := validConfig()
	cfg.Username = ""
	assert.ErrorContains(t, Dialect{}.ValidateConfig(cfg), "username is required")

	cfg = validConfig()
	cfg.Options = map[string]string{"connection_timeout": "soon"}
	assert.ErrorContains(t, Dialect{}.ValidateConfig(cfg), "invalid connection_timeout")
}

func TestBuildConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.Options = map[string]string{"encrypt": "false", "trust_server_certificate": "true"}

	u, err := url.Parse(buildConnectionString(cfg))
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "sql.internal:1433", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "Str0ng;Pass@word", pw)
	assert.Equal(t, "warehouse", u.Query().Get("database"))
	assert.Equal(t, "false", u.Query().Get("encrypt"))
	assert.Equal(t, "true", u.Query().Get("TrustServerCertificate"))
	assert.Equal(t, "30", u.Query().Get("connection timeout"))
}

func TestIsAuthError(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsAuthError(mssqldriver.Error{Number: 18456}))
	assert.True(t, d.IsAuthError(fmt.Errorf("login: %w", mssqldriver.Error{Number: 18456})))
	assert.False(t, d.IsAuthError(mssqldriver.Error{Number: 208}))
}

func TestSQLFragments(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "[odd]]name]", d.QuoteIdentifier("odd]name"))
	assert.Equal(t, "[dbo].[orders]", d.QualifiedTableName("dbo", "orders"))
	assert.Equal(t, " ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY", d.LimitClause("", 5))
	assert.Equal(t, " ORDER BY [id] OFFSET 0 ROWS FETCH NEXT 3 ROWS ONLY", d.LimitClause("[id]", 3))
	assert.Equal(t, "CAST(x AS FLOAT)", d.FloatExpr("x"))
	assert.Equal(t, "STDEVP", d.StddevFunc())
	assert.Equal(t, "dbo", d.DefaultSchema(validConfig()))
}
