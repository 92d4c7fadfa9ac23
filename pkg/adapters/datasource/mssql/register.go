package mssql

import "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"

func init() {
	datasource.Register(datasource.DialectRegistration{
		Info: datasource.DialectInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+, Azure SQL Database",
		},
		Dialect: Dialect{},
	})
}
