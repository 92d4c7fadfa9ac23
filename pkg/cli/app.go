package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/config"
	"github.com/ekaya-inc/ekaya-workspace/pkg/crypto"
	"github.com/ekaya-inc/ekaya-workspace/pkg/database"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/repositories"
	"github.com/ekaya-inc/ekaya-workspace/pkg/services"
)

// app is the wired service graph shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	manager    *datasource.ConnectionManager
	workspaces services.WorkspaceService
	sessions   services.SessionService
	analyzer   services.SchemaAnalyzer

	closeStore func() error
}

// loadConfig reads the config file and builds the process logger.
func loadConfig(version, path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(version, path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp wires the store, pool manager and services described by cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	workspaceRepo, sessionRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		Pool: datasource.PoolOptions{
			MinSize:       cfg.Pool.MinSize,
			MaxSize:       cfg.Pool.MaxSize,
			IdleTimeout:   cfg.Pool.IdleTimeout,
			BorrowTimeout: cfg.Pool.BorrowTimeout,
		},
		CleanupInterval: cfg.Pool.CleanupInterval,
		CreateTimeout:   cfg.Pool.CreateTimeout,
	}, datasource.NewMetrics(registry), logger)

	workspaces := services.NewWorkspaceService(workspaceRepo, manager, logger)
	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		manager:    manager,
		workspaces: workspaces,
		sessions:   services.NewSessionService(sessionRepo, workspaces, logger),
		analyzer:   services.NewSchemaAnalyzer(workspaces, services.AnalysisOptionsFromConfig(cfg.Analysis), logger),
		closeStore: closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.WorkspaceRepository, repositories.SessionRepository, func() error, error) {
	if cfg.Store.Driver == "memory" {
		store := repositories.NewMemoryStore()
		return store.Workspaces(), store.Sessions(), func() error { return nil }, nil
	}

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidKey) {
			return nil, nil, nil, fmt.Errorf("WORKSPACE_CREDENTIALS_KEY must be set for the sqlite store: %w", err)
		}
		return nil, nil, nil, err
	}

	db, err := database.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	logger.Info("Workspace store ready", zap.String("path", cfg.Store.Path))

	return repositories.NewWorkspaceRepository(db, encryptor), repositories.NewSessionRepository(db), db.Close, nil
}

// Close deactivates every workspace, closes all pools and the store.
func (a *app) Close(ctx context.Context) error {
	a.workspaces.Shutdown(ctx)
	return errors.Join(a.manager.Close(), a.closeStore())
}
