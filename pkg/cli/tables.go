package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

func newTablesCmd(version string, configPath *string) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a schema with primary keys and row counts",
		Long: `List every table of a schema through a temporary workspace, the same
way analyze does.

The text output is the same summary an agent gets from get_schema_context.`,
		Example: `  ekaya-workspace tables --db-type sqlite --file ./shop.db
  ekaya-workspace tables --db-type postgres --host db.internal --database analytics \
      --username reader --schema public -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, *configPath, func(ctx context.Context, a *app) error {
				var summary *models.SchemaSummary
				err := withWorkspace(ctx, a, opts.connection(), func(id uuid.UUID) error {
					var err error
					summary, err = a.analyzer.ListTables(ctx, id, opts.schema)
					return err
				})
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), summary, opts.output, func() string {
					return services.GetSchemaContext(summary)
				})
			})
		},
	}
	bindConnectionFlags(cmd, opts)

	return cmd
}
