package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkspaceState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to WorkspaceState
		want     bool
	}{
		{WorkspaceStateInactive, WorkspaceStateActivating, true},
		{WorkspaceStateInactive, WorkspaceStateActive, false},
		{WorkspaceStateActivating, WorkspaceStateActive, true},
		{WorkspaceStateActivating, WorkspaceStateError, true},
		{WorkspaceStateActive, WorkspaceStateInactive, true},
		{WorkspaceStateActive, WorkspaceStateActivating, false},
		{WorkspaceStateError, WorkspaceStateActivating, true},
		{WorkspaceStateError, WorkspaceStateActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}
