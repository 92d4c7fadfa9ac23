// Package cli holds the ekaya-workspace command tree.
package cli

import (
	"github.com/spf13/cobra"

	// Database engines available to workspaces.
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/sqlite"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "config.yaml"

// Execute builds the command tree and runs it.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd creates the root command. Exposed for tests.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ekaya-workspace",
		Short: "Workspace connection pools and table analysis for AI agents",
		Long: `ekaya-workspace keeps named workspaces pointing at customer databases,
shares one connection pool between workspaces that target the same database,
and describes tables (columns, keys, statistics, relationships, data quality)
for agents over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath, "config file (optional; environment variables override it)")

	cmd.AddCommand(newServeCmd(version, &configPath))
	cmd.AddCommand(newAnalyzeCmd(version, &configPath))
	cmd.AddCommand(newTablesCmd(version, &configPath))
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}
