package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/crypto"
	"github.com/ekaya-inc/ekaya-workspace/pkg/database"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// WorkspaceRepository defines the interface for workspace data access.
// Only identity, name, config and timestamps are persisted; activation state
// belongs to the running process.
type WorkspaceRepository interface {
	// Create inserts a new workspace. Returns ErrConflict if the name is taken.
	Create(ctx context.Context, ws *models.Workspace) error

	// GetByID retrieves a workspace by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)

	// List retrieves all workspaces ordered by creation time.
	List(ctx context.Context) ([]*models.Workspace, error)

	// Update replaces the name and config of an existing workspace.
	Update(ctx context.Context, ws *models.Workspace) error

	// Delete removes a workspace and its sessions.
	Delete(ctx context.Context, id uuid.UUID) error
}

// workspaceRepository implements WorkspaceRepository on the local store.
// Passwords are sealed with the credential encryptor before they are written.
type workspaceRepository struct {
	db        *database.DB
	encryptor *crypto.CredentialEncryptor
}

// NewWorkspaceRepository creates a store-backed workspace repository.
func NewWorkspaceRepository(db *database.DB, encryptor *crypto.CredentialEncryptor) WorkspaceRepository {
	return &workspaceRepository{db: db, encryptor: encryptor}
}

type workspaceRow struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	DBType            string    `db:"db_type"`
	Host              string    `db:"host"`
	Port              int       `db:"port"`
	Database          string    `db:"database_name"`
	Username          string    `db:"username"`
	EncryptedPassword string    `db:"encrypted_password"`
	FilePath          string    `db:"file_path"`
	Options           string    `db:"options"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

const workspaceColumns = `id, name, db_type, host, port, database_name, username,
	encrypted_password, file_path, options, created_at, updated_at`

func (r *workspaceRepository) toRow(ws *models.Workspace) (*workspaceRow, error) {
	password, err := r.encryptor.Encrypt(ws.ID.String(), ws.Config.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}
	options := "{}"
	if len(ws.Config.Options) > 0 {
		b, err := json.Marshal(ws.Config.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options: %w", err)
		}
		options = string(b)
	}
	return &workspaceRow{
		ID:                ws.ID.String(),
		Name:              ws.Name,
		DBType:            string(ws.Config.Type),
		Host:              ws.Config.Host,
		Port:              ws.Config.Port,
		Database:          ws.Config.Database,
		Username:          ws.Config.Username,
		EncryptedPassword: password,
		FilePath:          ws.Config.FilePath,
		Options:           options,
		CreatedAt:         ws.CreatedAt,
		UpdatedAt:         ws.UpdatedAt,
	}, nil
}

func (r *workspaceRepository) fromRow(row *workspaceRow) (*models.Workspace, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace id %q: %w", row.ID, err)
	}
	password, err := r.encryptor.Decrypt(row.ID, row.EncryptedPassword)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCredentialsKeyMismatch, err).WithWorkspace(row.ID)
	}
	var options map[string]string
	if err := json.Unmarshal([]byte(row.Options), &options); err != nil {
		return nil, fmt.Errorf("failed to decode options for workspace %s: %w", row.ID, err)
	}
	if len(options) == 0 {
		options = nil
	}
	return &models.Workspace{
		ID:   id,
		Name: row.Name,
		Config: models.ConnectionConfig{
			Type:     models.DatabaseType(row.DBType),
			Host:     row.Host,
			Port:     row.Port,
			Database: row.Database,
			Username: row.Username,
			Password: password,
			FilePath: row.FilePath,
			Options:  options,
		},
		State:     models.WorkspaceStateInactive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (r *workspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	row, err := r.toRow(ws)
	if err != nil {
		return err
	}

	query := `INSERT INTO workspaces (` + workspaceColumns + `)
		VALUES (:id, :name, :db_type, :host, :port, :database_name, :username,
			:encrypted_password, :file_path, :options, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrConflict, fmt.Errorf("workspace name %q already exists", ws.Name))
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

func (r *workspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var row workspaceRow
	err := r.db.GetContext(ctx, &row, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", id))
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return r.fromRow(&row)
}

func (r *workspaceRepository) List(ctx context.Context) ([]*models.Workspace, error) {
	var rows []workspaceRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+workspaceColumns+` FROM workspaces`); err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	workspaces := make([]*models.Workspace, 0, len(rows))
	for i := range rows {
		ws, err := r.fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	sortWorkspaces(workspaces)
	return workspaces, nil
}

func (r *workspaceRepository) Update(ctx context.Context, ws *models.Workspace) error {
	ws.UpdatedAt = time.Now().UTC()
	row, err := r.toRow(ws)
	if err != nil {
		return err
	}

	query := `UPDATE workspaces SET
			name = :name, db_type = :db_type, host = :host, port = :port,
			database_name = :database_name, username = :username,
			encrypted_password = :encrypted_password, file_path = :file_path,
			options = :options, updated_at = :updated_at
		WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrConflict, fmt.Errorf("workspace name %q already exists", ws.Name))
		}
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return requireAffected(result, "workspace", ws.ID)
}

func (r *workspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return requireAffected(result, "workspace", id)
}

func requireAffected(result sql.Result, what string, id uuid.UUID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("%s %s", what, id))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
