package mysql

import "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.DialectRegistration{
		Info: datasource.DialectInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB 10.3+, Aurora MySQL",
		},
		Dialect: Dialect{},
	})
}
