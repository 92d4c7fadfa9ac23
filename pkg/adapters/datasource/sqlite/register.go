package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)

	datasource.Register(datasource.DialectRegistration{
		Info: datasource.DialectInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Analyze a local SQLite 3 database file (opened read-only)",
		},
		Dialect: Dialect{},
	})
}
