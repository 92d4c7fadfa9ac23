package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/database"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// SessionRepository defines the interface for session data access.
type SessionRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *models.Session) error

	// GetByID retrieves a session by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// ListByWorkspace returns a workspace's sessions, most recently updated first.
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Session, error)

	// Touch sets a session's updated_at.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete removes a session.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByWorkspace removes every session of a workspace and returns how many.
	DeleteByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int, error)
}

type sessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a store-backed session repository.
func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepository{db: db}
}

type sessionRow struct {
	ID          string    `db:"id"`
	WorkspaceID string    `db:"workspace_id"`
	Name        string    `db:"name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row *sessionRow) toModel() (*models.Session, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", row.ID, err)
	}
	wsID, err := uuid.Parse(row.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace id %q: %w", row.WorkspaceID, err)
	}
	return &models.Session{
		ID:          id,
		WorkspaceID: wsID,
		Name:        row.Name,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}, nil
}

func (r *sessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate session id: %w", err)
		}
		s.ID = id
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, workspace_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), s.WorkspaceID.String(), s.Name, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", s.WorkspaceID))
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, workspace_id, name, created_at, updated_at FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrNotFound, fmt.Errorf("session %s", id))
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return row.toModel()
}

func (r *sessionRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*models.Session, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, workspace_id, name, created_at, updated_at FROM sessions WHERE workspace_id = ?`,
		workspaceID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	SortSessions(sessions)
	return sessions, nil
}

func (r *sessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, at.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return requireAffected(result, "session", id)
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireAffected(result, "session", id)
}

func (r *sessionRepository) DeleteByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE workspace_id = ?`, workspaceID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(n), nil
}
