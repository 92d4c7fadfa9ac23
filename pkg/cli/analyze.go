package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// PasswordEnv supplies the analyze password when --password is not given,
// keeping it out of shell history and process listings.
const PasswordEnv = "WORKSPACE_PASSWORD"

type analyzeOptions struct {
	conn    models.ConnectionConfig
	dbType  string
	schema  string
	output  string
	options map[string]string
}

func newAnalyzeCmd(version string, configPath *string) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze TABLE",
		Short: "Analyze one table and print its description",
		Long: `Analyze one table without a persistent store: a temporary workspace is
created from the flags, activated, analyzed and torn down.

The text output is the same context an agent gets from get_table_context.`,
		Example: `  ekaya-workspace analyze orders --db-type sqlite --file ./shop.db
  WORKSPACE_PASSWORD=... ekaya-workspace analyze events --db-type postgres \
      --host db.internal --database analytics --username reader --schema public -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, *configPath, func(ctx context.Context, a *app) error {
				analysis, err := analyzeOnce(ctx, a, opts.connection(), args[0], opts.schema)
				if err != nil {
					return err
				}
				return writeAnalysis(cmd.OutOrStdout(), analysis, opts.output)
			})
		},
	}
	bindConnectionFlags(cmd, opts)

	return cmd
}

func bindConnectionFlags(cmd *cobra.Command, opts *analyzeOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.dbType, "db-type", "", "postgres, mysql, sqlserver or sqlite")
	f.StringVar(&opts.conn.Host, "host", "", "server host")
	f.IntVar(&opts.conn.Port, "port", 0, "server port (engine default when 0)")
	f.StringVar(&opts.conn.Database, "database", "", "database name")
	f.StringVar(&opts.conn.Username, "username", "", "login name")
	f.StringVar(&opts.conn.Password, "password", "", "login password (prefer "+PasswordEnv+")")
	f.StringVar(&opts.conn.FilePath, "file", "", "database file (sqlite)")
	f.StringToStringVar(&opts.options, "option", nil, "driver option key=value, repeatable (e.g. sslmode=disable)")
	f.StringVar(&opts.schema, "schema", "", "schema name (engine default when empty)")
	f.StringVarP(&opts.output, "output", "o", "text", "text, json or yaml")
	_ = cmd.MarkFlagRequired("db-type")
}

// connection builds the target config from the flags.
func (o *analyzeOptions) connection() models.ConnectionConfig {
	conn := o.conn
	conn.Type = models.DatabaseType(o.dbType)
	conn.Options = o.options
	if conn.Password == "" {
		conn.Password = os.Getenv(PasswordEnv)
	}
	return conn
}

// withApp runs fn against an app backed by the in-memory store.
func withApp(cmd *cobra.Command, version, configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig(version, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	cfg.Store.Driver = "memory"

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("Cleanup failed", zap.Error(err))
		}
	}()
	return fn(cmd.Context(), a)
}

// withWorkspace runs fn against a throwaway workspace that is active for
// the duration of the call.
func withWorkspace(ctx context.Context, a *app, conn models.ConnectionConfig, fn func(id uuid.UUID) error) error {
	ws, err := a.workspaces.Create(ctx, "cli-"+string(conn.Type), conn)
	if err != nil {
		return err
	}
	defer func() { _ = a.workspaces.Delete(context.Background(), ws.ID) }()
	if _, err := a.workspaces.Activate(ctx, ws.ID); err != nil {
		return err
	}
	return fn(ws.ID)
}

// analyzeOnce runs a single analysis through a throwaway workspace.
func analyzeOnce(ctx context.Context, a *app, conn models.ConnectionConfig, table, schema string) (*models.TableAnalysis, error) {
	var analysis *models.TableAnalysis
	err := withWorkspace(ctx, a, conn, func(id uuid.UUID) error {
		var err error
		analysis, err = a.analyzer.Analyze(ctx, id, table, schema)
		return err
	})
	return analysis, err
}

func writeAnalysis(w io.Writer, analysis *models.TableAnalysis, format string) error {
	return writeResult(w, analysis, format, func() string { return services.GetLLMContext(analysis) })
}

// writeResult prints v as json or yaml, or text() for the text format.
func writeResult(w io.Writer, v any, format string, text func() string) error {
	switch strings.ToLower(format) {
	case "text", "":
		_, err := io.WriteString(w, text())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		out, err := toYAML(v)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// toYAML renders v with its JSON field names and order. JSON is valid
// YAML, so the JSON encoding is parsed as a node tree and re-emitted in
// block style.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert result to yaml: %w", err)
	}
	blockStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to write yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
