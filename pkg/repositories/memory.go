package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// MemoryStore keeps workspaces and sessions in process memory. It backs the
// one-shot CLI and tests; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	workspaces map[uuid.UUID]models.Workspace
	sessions   map[uuid.UUID]models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workspaces: make(map[uuid.UUID]models.Workspace),
		sessions:   make(map[uuid.UUID]models.Session),
	}
}

// Workspaces returns the store's WorkspaceRepository view.
func (s *MemoryStore) Workspaces() WorkspaceRepository { return memoryWorkspaces{s} }

// Sessions returns the store's SessionRepository view.
func (s *MemoryStore) Sessions() SessionRepository { return memorySessions{s} }

type memoryWorkspaces struct{ s *MemoryStore }

// persisted strips runtime fields so the memory store behaves like the
// sqlite one.
func persisted(ws *models.Workspace) models.Workspace {
	c := *ws
	c.State = models.WorkspaceStateInactive
	c.Fingerprint = ""
	c.LastError = ""
	if len(ws.Config.Options) > 0 {
		c.Config.Options = make(map[string]string, len(ws.Config.Options))
		for k, v := range ws.Config.Options {
			c.Config.Options[k] = v
		}
	}
	return c
}

func (m memoryWorkspaces) nameTaken(name string, except uuid.UUID) bool {
	for id, ws := range m.s.workspaces {
		if id != except && ws.Name == name {
			return true
		}
	}
	return false
}

func (m memoryWorkspaces) Create(_ context.Context, ws *models.Workspace) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	if m.nameTaken(ws.Name, uuid.Nil) {
		return apperrors.New(apperrors.ErrConflict, fmt.Errorf("workspace name %q already exists", ws.Name))
	}
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	m.s.workspaces[ws.ID] = persisted(ws)
	return nil
}

func (m memoryWorkspaces) GetByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ws, ok := m.s.workspaces[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", id))
	}
	c := persisted(&ws)
	return &c, nil
}

func (m memoryWorkspaces) List(_ context.Context) ([]*models.Workspace, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	out := make([]*models.Workspace, 0, len(m.s.workspaces))
	for _, ws := range m.s.workspaces {
		c := persisted(&ws)
		out = append(out, &c)
	}
	sortWorkspaces(out)
	return out, nil
}

func (m memoryWorkspaces) Update(_ context.Context, ws *models.Workspace) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	existing, ok := m.s.workspaces[ws.ID]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", ws.ID))
	}
	if m.nameTaken(ws.Name, ws.ID) {
		return apperrors.New(apperrors.ErrConflict, fmt.Errorf("workspace name %q already exists", ws.Name))
	}
	ws.CreatedAt = existing.CreatedAt
	ws.UpdatedAt = time.Now().UTC()
	m.s.workspaces[ws.ID] = persisted(ws)
	return nil
}

func (m memoryWorkspaces) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.workspaces[id]; !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", id))
	}
	delete(m.s.workspaces, id)
	for sid, sess := range m.s.sessions {
		if sess.WorkspaceID == id {
			delete(m.s.sessions, sid)
		}
	}
	return nil
}

type memorySessions struct{ s *MemoryStore }

func (m memorySessions) Create(_ context.Context, sess *models.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.workspaces[sess.WorkspaceID]; !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("workspace %s", sess.WorkspaceID))
	}
	if sess.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate session id: %w", err)
		}
		sess.ID = id
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	m.s.sessions[sess.ID] = *sess
	return nil
}

func (m memorySessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	sess, ok := m.s.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Errorf("session %s", id))
	}
	return &sess, nil
}

func (m memorySessions) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]*models.Session, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []*models.Session
	for _, sess := range m.s.sessions {
		if sess.WorkspaceID == workspaceID {
			c := sess
			out = append(out, &c)
		}
	}
	SortSessions(out)
	return out, nil
}

func (m memorySessions) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	sess, ok := m.s.sessions[id]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("session %s", id))
	}
	sess.UpdatedAt = at.UTC()
	m.s.sessions[id] = sess
	return nil
}

func (m memorySessions) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.sessions[id]; !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("session %s", id))
	}
	delete(m.s.sessions, id)
	return nil
}

func (m memorySessions) DeleteByWorkspace(_ context.Context, workspaceID uuid.UUID) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	n := 0
	for id, sess := range m.s.sessions {
		if sess.WorkspaceID == workspaceID {
			delete(m.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// SortSessions orders most recently updated first; equal timestamps fall
// back to the highest id.
func SortSessions(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return bytes.Compare(sessions[i].ID[:], sessions[j].ID[:]) > 0
	})
}

func sortWorkspaces(workspaces []*models.Workspace) {
	sort.Slice(workspaces, func(i, j int) bool {
		if !workspaces[i].CreatedAt.Equal(workspaces[j].CreatedAt) {
			return workspaces[i].CreatedAt.Before(workspaces[j].CreatedAt)
		}
		return workspaces[i].Name < workspaces[j].Name
	})
}
