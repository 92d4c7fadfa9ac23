package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/repositories"
)

// WorkspaceService owns workspace lifecycle state and drives the pool
// manager on activation and deactivation.
type WorkspaceService interface {
	// Create validates cfg and stores a new inactive workspace.
	Create(ctx context.Context, name string, cfg models.ConnectionConfig) (*models.Workspace, error)

	// Get returns a workspace with its current state.
	Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// List returns every workspace with its current state.
	List(ctx context.Context) ([]*models.Workspace, error)

	// Activate acquires the pool for the workspace's fingerprint.
	// On an active workspace it re-checks liveness instead.
	Activate(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// Deactivate drops the workspace's pool reference.
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// UpdateConfig merges the non-zero fields of patch into the stored config.
	// An active workspace is deactivated first and left inactive.
	UpdateConfig(ctx context.Context, id uuid.UUID, patch models.ConnectionConfig) (*models.Workspace, error)

	// Delete deactivates and removes the workspace and its sessions.
	Delete(ctx context.Context, id uuid.UUID) error

	// Status reports state, last error and pool statistics.
	Status(ctx context.Context, id uuid.UUID) (*WorkspaceStatus, error)

	// Refresh replaces the workspace's pool with a freshly dialed one.
	Refresh(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// RequireActive returns the workspace or WorkspaceNotActive.
	RequireActive(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// Borrow leases a connection from an active workspace's pool.
	// The caller must Release it.
	Borrow(ctx context.Context, id uuid.UUID) (*datasource.Conn, error)

	// Shutdown deactivates every active workspace.
	Shutdown(ctx context.Context)
}

// WorkspaceStatus is the runtime view of one workspace.
type WorkspaceStatus struct {
	Workspace *models.Workspace    `json:"workspace"`
	Pool      *datasource.PoolStats `json:"pool,omitempty"`
}

// runtimeState is the part of a workspace that lives only in this process.
// transition serializes state changes; mu guards the fields for readers
// that must not wait behind an activation.
type runtimeState struct {
	transition sync.Mutex

	mu          sync.RWMutex
	state       models.WorkspaceState
	fingerprint models.Fingerprint
	lastError   string
}

func (r *runtimeState) snapshot() (models.WorkspaceState, models.Fingerprint, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.fingerprint, r.lastError
}

func (r *runtimeState) set(state models.WorkspaceState, fp models.Fingerprint, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.fingerprint = fp
	r.lastError = lastError
}

type workspaceService struct {
	repo    repositories.WorkspaceRepository
	manager *datasource.ConnectionManager
	logger  *zap.Logger

	mu      sync.Mutex
	runtime map[uuid.UUID]*runtimeState
}

// NewWorkspaceService creates a workspace service. The connection manager is
// shared by every workspace; pools are keyed by fingerprint, not workspace.
func NewWorkspaceService(repo repositories.WorkspaceRepository, manager *datasource.ConnectionManager, logger *zap.Logger) WorkspaceService {
	return &workspaceService{
		repo:    repo,
		manager: manager,
		logger:  logger.Named("workspaces"),
		runtime: make(map[uuid.UUID]*runtimeState),
	}
}

var _ WorkspaceService = (*workspaceService)(nil)

// stateFor returns the runtime entry for id, creating an inactive one.
// s.mu is only held for the map access.
func (s *workspaceService) stateFor(id uuid.UUID) *runtimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runtime[id]
	if !ok {
		rs = &runtimeState{state: models.WorkspaceStateInactive}
		s.runtime[id] = rs
	}
	return rs
}

// peek reads runtime state without creating an entry.
func (s *workspaceService) peek(id uuid.UUID) (models.WorkspaceState, models.Fingerprint, string) {
	s.mu.Lock()
	rs, ok := s.runtime[id]
	s.mu.Unlock()
	if !ok {
		return models.WorkspaceStateInactive, "", ""
	}
	return rs.snapshot()
}

func (s *workspaceService) withRuntime(ws *models.Workspace) *models.Workspace {
	state, fp, lastError := s.peek(ws.ID)
	ws.State = state
	ws.Fingerprint = fp
	ws.LastError = lastError
	return ws
}

func (s *workspaceService) Create(ctx context.Context, name string, cfg models.ConnectionConfig) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, errors.New("workspace name is required"))
	}
	if err := datasource.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	ws := &models.Workspace{Name: name, Config: cfg}
	if err := s.repo.Create(ctx, ws); err != nil {
		return nil, err
	}

	s.logger.Info("Created workspace",
		zap.String("workspace_id", ws.ID.String()),
		zap.String("name", name),
		zap.String("db_type", string(cfg.Type)),
	)
	return s.withRuntime(ws), nil
}

func (s *workspaceService) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withRuntime(ws), nil
}

func (s *workspaceService) List(ctx context.Context) ([]*models.Workspace, error) {
	workspaces, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, ws := range workspaces {
		s.withRuntime(ws)
	}
	return workspaces, nil
}

func (s *workspaceService) Activate(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	rs := s.stateFor(id)
	rs.transition.Lock()
	defer rs.transition.Unlock()

	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	state, fp, _ := rs.snapshot()
	if state == models.WorkspaceStateActive {
		if s.manager.Test(ctx, fp) {
			return s.withRuntime(ws), nil
		}
		// The pool is unusable; give up our reference so a retry starts clean.
		s.manager.ReleasePool(fp, id.String())
		err := apperrors.New(apperrors.ErrConnection, errors.New("liveness check failed")).
			WithWorkspace(id.String()).
			WithFingerprint(fp.String())
		rs.set(models.WorkspaceStateError, "", err.Error())
		s.logger.Warn("Active workspace failed liveness check", zap.String("workspace_id", id.String()))
		return s.withRuntime(ws), err
	}

	if !state.CanTransitionTo(models.WorkspaceStateActivating) {
		return nil, fmt.Errorf("cannot activate workspace in state %s", state)
	}
	rs.set(models.WorkspaceStateActivating, "", "")

	fp = ws.Config.Fingerprint()
	if _, err := s.manager.AcquirePool(ctx, fp, ws.Config, id.String()); err != nil {
		wrapped := workspaceError(err, id)
		rs.set(models.WorkspaceStateError, "", logging.SanitizeError(wrapped))
		s.logger.Warn("Workspace activation failed",
			zap.String("workspace_id", id.String()),
			zap.String("code", apperrors.Code(err)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return s.withRuntime(ws), wrapped
	}

	rs.set(models.WorkspaceStateActive, fp, "")
	s.logger.Info("Activated workspace",
		zap.String("workspace_id", id.String()),
		zap.String("fingerprint", fp.Short()),
	)
	return s.withRuntime(ws), nil
}

// workspaceError attaches id to err, keeping its kind.
func workspaceError(err error, id uuid.UUID) error {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return ae.WithWorkspace(id.String())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.New(apperrors.ErrConnection, err).WithWorkspace(id.String())
}

func (s *workspaceService) Deactivate(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	rs := s.stateFor(id)
	rs.transition.Lock()
	defer rs.transition.Unlock()

	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.deactivateLocked(id, rs)
	return s.withRuntime(ws), nil
}

// deactivateLocked releases the pool reference. Caller holds rs.transition.
func (s *workspaceService) deactivateLocked(id uuid.UUID, rs *runtimeState) {
	state, fp, _ := rs.snapshot()
	switch state {
	case models.WorkspaceStateActive:
		destroyed := s.manager.ReleasePool(fp, id.String())
		s.logger.Info("Deactivated workspace",
			zap.String("workspace_id", id.String()),
			zap.String("fingerprint", fp.Short()),
			zap.Bool("pool_destroyed", destroyed),
		)
	case models.WorkspaceStateError:
		s.logger.Debug("Cleared workspace error", zap.String("workspace_id", id.String()))
	default:
		return
	}
	rs.set(models.WorkspaceStateInactive, "", "")
}

func (s *workspaceService) UpdateConfig(ctx context.Context, id uuid.UUID, patch models.ConnectionConfig) (*models.Workspace, error) {
	rs := s.stateFor(id)
	rs.transition.Lock()
	defer rs.transition.Unlock()

	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := ws.Config.Merge(patch)
	if err := datasource.ValidateConfig(merged); err != nil {
		return nil, err
	}

	s.deactivateLocked(id, rs)

	ws.Config = merged
	if err := s.repo.Update(ctx, ws); err != nil {
		return nil, err
	}

	s.logger.Info("Updated workspace config",
		zap.String("workspace_id", id.String()),
		zap.String("db_type", string(merged.Type)),
	)
	return s.withRuntime(ws), nil
}

func (s *workspaceService) Delete(ctx context.Context, id uuid.UUID) error {
	rs := s.stateFor(id)
	rs.transition.Lock()
	defer rs.transition.Unlock()

	s.deactivateLocked(id, rs)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.runtime, id)
	s.mu.Unlock()

	s.logger.Info("Deleted workspace", zap.String("workspace_id", id.String()))
	return nil
}

func (s *workspaceService) Status(ctx context.Context, id uuid.UUID) (*WorkspaceStatus, error) {
	ws, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &WorkspaceStatus{Workspace: ws}
	if ws.State == models.WorkspaceStateActive {
		if pool, ok := s.manager.Pool(ws.Fingerprint); ok {
			stats := pool.Stats()
			stats.Holders = s.manager.Holders(ws.Fingerprint)
			status.Pool = &stats
		}
	}
	return status, nil
}

func (s *workspaceService) Refresh(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	rs := s.stateFor(id)
	rs.transition.Lock()
	defer rs.transition.Unlock()

	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	state, fp, _ := rs.snapshot()
	if state != models.WorkspaceStateActive {
		return nil, notActive(id, state)
	}

	if err := s.manager.RefreshPool(ctx, fp, ws.Config); err != nil {
		return nil, workspaceError(err, id)
	}
	s.logger.Info("Refreshed workspace pool", zap.String("workspace_id", id.String()))
	return s.withRuntime(ws), nil
}

func notActive(id uuid.UUID, state models.WorkspaceState) error {
	return apperrors.New(apperrors.ErrWorkspaceNotActive, fmt.Errorf("state is %s", state)).
		WithWorkspace(id.String())
}

func (s *workspaceService) RequireActive(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ws.State != models.WorkspaceStateActive {
		return nil, notActive(id, ws.State)
	}
	return ws, nil
}

func (s *workspaceService) Borrow(ctx context.Context, id uuid.UUID) (*datasource.Conn, error) {
	state, fp, _ := s.peek(id)
	if state != models.WorkspaceStateActive {
		return nil, notActive(id, state)
	}
	conn, err := s.manager.Borrow(ctx, fp)
	if err != nil {
		return nil, workspaceError(err, id)
	}
	return conn, nil
}

func (s *workspaceService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.runtime))
	for id := range s.runtime {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.Deactivate(ctx, id); err != nil {
			s.logger.Warn("Failed to deactivate workspace on shutdown",
				zap.String("workspace_id", id.String()),
				zap.Error(err),
			)
		}
	}
}
