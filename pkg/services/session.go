package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/repositories"
)

// SessionService keeps the workspace-to-session mapping. It never touches
// pools; sessions are only created against an active workspace.
type SessionService interface {
	// Create starts a session on an active workspace.
	Create(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Session, error)

	// List returns a workspace's sessions, most recently updated first.
	List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Session, error)

	// MostRecent returns the session with the latest updated_at, ties going
	// to the highest id. Returns ErrNotFound when the workspace has none.
	MostRecent(ctx context.Context, workspaceID uuid.UUID) (*models.Session, error)

	// Touch marks a session as used now.
	Touch(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, id uuid.UUID) error
}

type sessionService struct {
	repo       repositories.SessionRepository
	workspaces WorkspaceService
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionService creates a session service.
func NewSessionService(repo repositories.SessionRepository, workspaces WorkspaceService, logger *zap.Logger) SessionService {
	return &sessionService{
		repo:       repo,
		workspaces: workspaces,
		logger:     logger.Named("sessions"),
		now:        time.Now,
	}
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) Create(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Session, error) {
	if _, err := s.workspaces.RequireActive(ctx, workspaceID); err != nil {
		return nil, err
	}

	session := &models.Session{
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(name),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("Session created",
		zap.String("session_id", session.ID.String()),
		zap.String("workspace_id", workspaceID.String()))
	return session, nil
}

func (s *sessionService) List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Session, error) {
	if _, err := s.workspaces.Get(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

func (s *sessionService) MostRecent(ctx context.Context, workspaceID uuid.UUID) (*models.Session, error) {
	sessions, err := s.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, errors.New("workspace has no sessions")).
			WithWorkspace(workspaceID.String())
	}
	// Repositories return the list ordered; sort again so any implementation
	// of SessionRepository gets the same answer.
	repositories.SortSessions(sessions)
	return sessions[0], nil
}

func (s *sessionService) Touch(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := s.repo.Touch(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *sessionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("Session deleted", zap.String("session_id", id.String()))
	return nil
}
