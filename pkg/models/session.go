package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a logical conversation bound to one workspace.
// IDs are UUIDv7 so that ordering by id follows creation order.
type Session struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
