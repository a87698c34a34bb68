package model

import "time"

// SyncMetadata is a snapshot of the orchestrator's sync state. Owned
// exclusively by the orchestrator; mutated only within the sync lifecycle.
type SyncMetadata struct {
	LastSync   time.Time `json:"last_sync"`
	IsOnline   bool      `json:"is_online"`
	IsSyncing  bool      `json:"is_syncing"`
	RetryCount int       `json:"retry_count"`
}

// Preferences are the cached user preferences the engine consults.
type Preferences struct {
	AutoSync             bool `json:"auto_sync"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

// Conflict records a divergence between the locally cached and the
// server-authoritative version of one goal, with the resolution picked.
type Conflict struct {
	GoalID     string    `json:"goal_id"`
	LocalTime  time.Time `json:"local_updated_at"`
	ServerTime time.Time `json:"server_updated_at"`
	Winner     string    `json:"winner"` // "local" or "server"
}

// SyncSummary reports the outcome of one sync pass.
type SyncSummary struct {
	Skipped           bool          `json:"skipped"`
	ChangesProcessed  int           `json:"changes_processed"`
	ChangesSucceeded  int           `json:"changes_succeeded"`
	ChangesFailed     int           `json:"changes_failed"`
	FailedChangeIDs   []string      `json:"failed_change_ids,omitempty"`
	GoalsPulled       int           `json:"goals_pulled"`
	ConflictsResolved []Conflict    `json:"conflicts_resolved,omitempty"`
	Duration          time.Duration `json:"duration"`
	CompletedAt       time.Time     `json:"completed_at"`
}
