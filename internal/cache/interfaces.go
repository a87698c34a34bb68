package cache

import (
	"context"
	"encoding/json"
	"time"

	"greencart-sync-api/internal/model"
)

// freshnessTTL is how long an authoritative goal set counts as fresh.
const freshnessTTL = 5 * time.Minute

// GoalsResult is the outcome of a cache read.
type GoalsResult struct {
	Goals []model.Goal `json:"goals"`
	// Cached is true when the data may be stale: it was never stamped
	// authoritative, the stamp has aged out, or the caller forced a refresh.
	Cached bool `json:"cached"`
}

// NeedsSyncResult reports whether a sync pass is due.
type NeedsSyncResult struct {
	NeedsSync       bool          `json:"needs_sync"`
	LastSyncAge     time.Duration `json:"last_sync_age"`
	UnsyncedChanges int           `json:"unsynced_changes"`
}

// GoalCache is the local persistence gateway for goals, statistics, the
// offline-change log, sync metadata and user preferences.
//
// This abstraction allows swapping between memory (development/tests),
// SQLite (default durable store), Redis and MySQL backends without changing
// the sync engine. Implementations resolve concurrent goal writes with
// last-write-wins at the goal-id level, keyed on UpdatedAt.
type GoalCache interface {
	// Goals returns the cached goal list. forceRefresh marks the result
	// stale regardless of freshness, signalling callers to sync.
	Goals(ctx context.Context, forceRefresh bool) (GoalsResult, error)

	// StoreGoals persists a goal set. When authoritative, the stored set
	// replaces the cached one entirely and is stamped fresh; otherwise
	// goals are upserted individually under last-write-wins.
	StoreGoals(ctx context.Context, goals []model.Goal, authoritative bool) error

	// UpsertGoal writes one goal under last-write-wins.
	UpsertGoal(ctx context.Context, goal model.Goal) error

	// RemoveGoal deletes one goal row. Removing an absent goal is a no-op.
	RemoveGoal(ctx context.Context, id string) error

	// StoreGoalStats caches the server-computed statistics blob.
	StoreGoalStats(ctx context.Context, stats model.GoalStats) error

	// GoalStats returns the cached statistics, or nil if none are cached.
	GoalStats(ctx context.Context) (*model.GoalStats, error)

	// OfflineChanges returns all unsynced change-log entries, oldest first.
	OfflineChanges(ctx context.Context) ([]model.OfflineChange, error)

	// RecordOfflineChange appends a change-log entry. An unsynced update
	// for the same goal is coalesced: its payload is replaced rather than
	// a duplicate appended.
	RecordOfflineChange(ctx context.Context, typ model.ChangeType, goalID string, payload json.RawMessage) (model.OfflineChange, error)

	// MarkChangesSynced flips the synced flag on the given change ids.
	MarkChangesSynced(ctx context.Context, ids []string) error

	// ClearSyncedChanges purges change-log entries already acknowledged.
	ClearSyncedChanges(ctx context.Context) error

	// RemoveChange drops one change-log entry regardless of sync state.
	// Used when a temp goal is deleted before it ever reached the server.
	RemoveChange(ctx context.Context, id string) error

	// UpdateLastSync stamps the successful completion of a sync pass.
	UpdateLastSync(ctx context.Context) error

	// NeedsSync reports whether enough time has passed since the last sync
	// or unsynced changes exist.
	NeedsSync(ctx context.Context, maxAge time.Duration) (NeedsSyncResult, error)

	// Preferences returns the cached user preferences.
	Preferences(ctx context.Context) (model.Preferences, error)

	// SetPreferences stores the user preferences.
	SetPreferences(ctx context.Context, prefs model.Preferences) error

	// Clear wipes all cached state for the user.
	Clear(ctx context.Context) error

	// DebugInfo returns backend counters for the debug endpoint.
	DebugInfo(ctx context.Context) (map[string]interface{}, error)

	// Close releases backend resources.
	Close() error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrNotFound indicates the requested entry is not cached.
	ErrNotFound CacheError = "cache entry not found"
)
