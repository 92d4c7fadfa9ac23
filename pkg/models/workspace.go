package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkspaceState is the activation lifecycle of a workspace.
type WorkspaceState string

const (
	WorkspaceStateInactive   WorkspaceState = "inactive"
	WorkspaceStateActivating WorkspaceState = "activating"
	WorkspaceStateActive     WorkspaceState = "active"
	WorkspaceStateError      WorkspaceState = "error"
)

var workspaceTransitions = map[WorkspaceState][]WorkspaceState{
	WorkspaceStateInactive:   {WorkspaceStateActivating},
	WorkspaceStateActivating: {WorkspaceStateActive, WorkspaceStateError},
	WorkspaceStateActive:     {WorkspaceStateInactive},
	WorkspaceStateError:      {WorkspaceStateActivating, WorkspaceStateInactive},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s WorkspaceState) CanTransitionTo(next WorkspaceState) bool {
	for _, allowed := range workspaceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Workspace is a named target database plus its activation state.
// State, Fingerprint and LastError are runtime fields owned by the registry;
// the repository only persists identity, name, config and timestamps.
type Workspace struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Config      ConnectionConfig `json:"config"`
	State       WorkspaceState   `json:"state"`
	Fingerprint Fingerprint      `json:"fingerprint,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Redacted returns a copy with the password masked.
func (w Workspace) Redacted() Workspace {
	r := w
	r.Config = w.Config.Redacted()
	return r
}
