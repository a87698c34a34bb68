package model

import (
	"encoding/json"
	"time"
)

// ChangeType identifies the kind of locally recorded mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"

	// ChangeProgressUpdate records a local progress recalculation. It is
	// informational: the server recomputes progress itself, so sync marks
	// these synced without a network call.
	ChangeProgressUpdate ChangeType = "progress_update"
)

// Valid reports whether the change type is known.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeCreate, ChangeUpdate, ChangeDelete, ChangeProgressUpdate:
		return true
	}
	return false
}

// OfflineChange is one entry in the append-only log of local mutations not
// yet acknowledged by the remote store. GoalID is empty for creates until
// the server assigns an id.
type OfflineChange struct {
	ID        string          `json:"id"`
	Type      ChangeType      `json:"type"`
	GoalID    string          `json:"goal_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Synced    bool            `json:"synced"`
	CreatedAt time.Time       `json:"created_at"`
}

// GoalPayload decodes the change payload as a goal.
func (c *OfflineChange) GoalPayload() (*Goal, error) {
	var g Goal
	if err := json.Unmarshal(c.Payload, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
