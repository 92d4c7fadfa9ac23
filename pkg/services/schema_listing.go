package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-workspace/pkg/sql"
)

// ListTables lists every table of schema with its primary key and row
// count on one borrowed connection. A failed count is reported as -1 plus
// a statistics-degraded issue; only a lost connection fails the call.
func (a *schemaAnalyzer) ListTables(ctx context.Context, workspaceID uuid.UUID, schema string) (*models.SchemaSummary, error) {
	schema = strings.TrimSpace(schema)
	if err := sqlguard.ValidateIdentifier("schema", schema); err != nil {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			return nil, ae.WithWorkspace(workspaceID.String())
		}
		return nil, err
	}

	conn, err := a.source.Borrow(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if schema == "" {
		schema = conn.DefaultSchema()
	}
	d := conn.Dialect()
	summary := &models.SchemaSummary{
		WorkspaceID:   workspaceID.String(),
		SchemaName:    schema,
		DatabaseType:  d.Type(),
		Tables:        []models.TableSummary{},
		QualityIssues: []models.QualityIssue{},
	}
	wrap := func(err error) error {
		var ae *apperrors.Error
		if errors.As(err, &ae) {
			return ae.WithWorkspace(workspaceID.String())
		}
		return err
	}

	keys, err := d.TableKeys(ctx, conn, schema)
	if err != nil {
		if fatal := abortError(ctx, conn, err); fatal != nil {
			return nil, wrap(fatal)
		}
		return nil, wrap(apperrors.New(apperrors.ErrConnection, fmt.Errorf("failed to list tables: %w", err)))
	}

	for _, k := range keys {
		t := models.TableSummary{Name: k.TableName, PrimaryKey: k.PrimaryKeyColumns, RowCount: -1}
		if t.PrimaryKey == nil {
			t.PrimaryKey = []string{}
		}

		var n int64
		if err := conn.QueryRowxContext(ctx, "SELECT COUNT(*) FROM "+d.QualifiedTableName(schema, k.TableName)).Scan(&n); err == nil {
			t.RowCount = n
		} else {
			if fatal := abortError(ctx, conn, err); fatal != nil {
				return nil, wrap(fatal)
			}
			a.logger.Warn("Row count failed while listing tables",
				zap.String("workspace_id", workspaceID.String()),
				zap.String("table", summary.QualifiedName(k.TableName)),
				zap.String("error", logging.SanitizeError(err)),
			)
			summary.QualityIssues = append(summary.QualityIssues, models.QualityIssue{
				Tag:     models.IssueStatisticsDegraded,
				Message: fmt.Sprintf("row count for %s failed: %v", summary.QualifiedName(k.TableName), err),
			})
		}
		summary.Tables = append(summary.Tables, t)
	}
	sort.Slice(summary.Tables, func(i, j int) bool { return summary.Tables[i].Name < summary.Tables[j].Name })
	summary.ListedAt = a.now().UTC()

	a.logger.Info("Listed tables",
		zap.String("workspace_id", workspaceID.String()),
		zap.String("schema", schema),
		zap.Int("tables", len(summary.Tables)),
	)
	return summary, nil
}
