package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource/sqlite" // Register sqlite adapter
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/repositories"
)

// harness wires the services against an in-memory store and a real
// connection manager.
type harness struct {
	store      *repositories.MemoryStore
	manager    *datasource.ConnectionManager
	workspaces WorkspaceService
	sessions   SessionService
	analyzer   SchemaAnalyzer
}

func newHarness(t *testing.T, pool datasource.PoolOptions) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	if pool.BorrowTimeout == 0 {
		pool.BorrowTimeout = 2 * time.Second
	}
	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{Pool: pool}, nil, logger)
	t.Cleanup(func() { _ = manager.Close() })

	store := repositories.NewMemoryStore()
	workspaces := NewWorkspaceService(store.Workspaces(), manager, logger)
	return &harness{
		store:      store,
		manager:    manager,
		workspaces: workspaces,
		sessions:   NewSessionService(store.Sessions(), workspaces, logger),
		analyzer:   NewSchemaAnalyzer(workspaces, DefaultAnalysisOptions(), logger),
	}
}

// activeWorkspace creates and activates a workspace for cfg.
func (h *harness) activeWorkspace(t *testing.T, name string, cfg models.ConnectionConfig) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	ws, err := h.workspaces.Create(ctx, name, cfg)
	require.NoError(t, err)
	ws, err = h.workspaces.Activate(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, models.WorkspaceStateActive, ws.State)
	return ws.ID
}
