package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"greencart-sync-api/internal/model"
	"greencart-sync-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteCache implements GoalCache using SQLite. This is the default durable
// backend: goals, statistics, the offline-change log, sync metadata and
// preferences live in one file database with WAL mode enabled.
type SQLiteCache struct {
	db     *sql.DB
	userID string
}

// NewSQLiteCache opens (and if needed creates) the goal cache database
// scoped to one user.
func NewSQLiteCache(dbPath, userID string) (*SQLiteCache, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteCache] Initialized with database: %s (user=%s)", dbPath, userID)
	return &SQLiteCache{db: db, userID: userID}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		goal_type TEXT NOT NULL,
		config_json TEXT NOT NULL,
		title TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_achieved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, id)
	);
	CREATE TABLE IF NOT EXISTS goal_stats (
		user_id TEXT PRIMARY KEY,
		stats_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS offline_changes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		change_type TEXT NOT NULL,
		goal_id TEXT NOT NULL DEFAULT '',
		payload TEXT,
		synced INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_changes_user_synced ON offline_changes(user_id, synced);
	CREATE TABLE IF NOT EXISTS sync_meta (
		user_id TEXT PRIMARY KEY,
		last_sync DATETIME,
		authoritative INTEGER NOT NULL DEFAULT 0,
		stamped_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS preferences (
		user_id TEXT PRIMARY KEY,
		auto_sync INTEGER NOT NULL DEFAULT 1,
		notifications INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := db.Exec(query)
	return err
}

// Goals returns the cached goal list, oldest first.
func (c *SQLiteCache) Goals(ctx context.Context, forceRefresh bool) (GoalsResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, goal_type, config_json, title, is_active, is_achieved, created_at, updated_at
		FROM goals WHERE user_id = ? ORDER BY created_at, id`, c.userID)
	if err != nil {
		return GoalsResult{}, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []model.Goal{}
	for rows.Next() {
		var g model.Goal
		var configJSON string
		if err := rows.Scan(&g.ID, &g.Type, &configJSON, &g.Title, &g.IsActive, &g.IsAchieved, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return GoalsResult{}, fmt.Errorf("failed to scan goal: %w", err)
		}
		if err := json.Unmarshal([]byte(configJSON), &g.Config); err != nil {
			return GoalsResult{}, fmt.Errorf("failed to decode goal config: %w", err)
		}
		g.UserID = c.userID
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return GoalsResult{}, err
	}

	stale := true
	if !forceRefresh {
		var authoritative bool
		var stampedAt sql.NullTime
		err := c.db.QueryRowContext(ctx,
			`SELECT authoritative, stamped_at FROM sync_meta WHERE user_id = ?`, c.userID).
			Scan(&authoritative, &stampedAt)
		if err == nil && authoritative && stampedAt.Valid && time.Since(stampedAt.Time) <= freshnessTTL {
			stale = false
		}
	}

	return GoalsResult{Goals: goals, Cached: stale}, nil
}

// StoreGoals persists a goal set. Authoritative stores replace the cached
// set and stamp it fresh inside one transaction.
func (c *SQLiteCache) StoreGoals(ctx context.Context, goals []model.Goal, authoritative bool) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if authoritative {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ?`, c.userID); err != nil {
			return fmt.Errorf("failed to clear goals: %w", err)
		}
	}

	for _, g := range goals {
		if err := upsertGoalTx(ctx, tx, c.userID, g); err != nil {
			return err
		}
	}

	if authoritative {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_meta (user_id, authoritative, stamped_at) VALUES (?, 1, ?)
			ON CONFLICT(user_id) DO UPDATE SET authoritative = 1, stamped_at = excluded.stamped_at`,
			c.userID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to stamp goals: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit goals: %w", err)
	}
	return nil
}

func upsertGoalTx(ctx context.Context, tx *sql.Tx, userID string, g model.Goal) error {
	configJSON, err := json.Marshal(g.Config)
	if err != nil {
		return fmt.Errorf("failed to encode goal config: %w", err)
	}

	// Last-write-wins at the goal level, keyed on updated_at.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, goal_type, config_json, title, is_active, is_achieved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			goal_type = excluded.goal_type,
			config_json = excluded.config_json,
			title = excluded.title,
			is_active = excluded.is_active,
			is_achieved = excluded.is_achieved,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= goals.updated_at`,
		g.ID, userID, g.Type, string(configJSON), g.Title, g.IsActive, g.IsAchieved, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert goal %s: %w", g.ID, err)
	}
	return nil
}

// UpsertGoal writes one goal under last-write-wins.
func (c *SQLiteCache) UpsertGoal(ctx context.Context, goal model.Goal) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertGoalTx(ctx, tx, c.userID, goal); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveGoal deletes one goal row.
func (c *SQLiteCache) RemoveGoal(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, c.userID, id)
	if err != nil {
		return fmt.Errorf("failed to remove goal %s: %w", id, err)
	}
	return nil
}

// StoreGoalStats caches the statistics blob.
func (c *SQLiteCache) StoreGoalStats(ctx context.Context, stats model.GoalStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO goal_stats (user_id, stats_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET stats_json = excluded.stats_json, updated_at = excluded.updated_at`,
		c.userID, string(statsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store stats: %w", err)
	}
	return nil
}

// GoalStats returns the cached statistics, or nil if none are cached.
func (c *SQLiteCache) GoalStats(ctx context.Context) (*model.GoalStats, error) {
	var statsJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT stats_json FROM goal_stats WHERE user_id = ?`, c.userID).Scan(&statsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	var stats model.GoalStats
	if err := json.Unmarshal([]byte(statsJSON), &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// OfflineChanges returns unsynced change-log entries, oldest first.
func (c *SQLiteCache) OfflineChanges(ctx context.Context) ([]model.OfflineChange, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, change_type, goal_id, payload, synced, created_at
		FROM offline_changes WHERE user_id = ? AND synced = 0 ORDER BY created_at, id`, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []model.OfflineChange
	for rows.Next() {
		var ch model.OfflineChange
		var payload sql.NullString
		if err := rows.Scan(&ch.ID, &ch.Type, &ch.GoalID, &payload, &ch.Synced, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		if payload.Valid {
			ch.Payload = json.RawMessage(payload.String)
		}
		changes = append(changes, ch)
	}
	return changes, rows.Err()
}

// RecordOfflineChange appends a change entry, coalescing unsynced updates
// for the same goal into the latest payload.
func (c *SQLiteCache) RecordOfflineChange(ctx context.Context, typ model.ChangeType, goalID string, payload json.RawMessage) (model.OfflineChange, error) {
	if !typ.Valid() {
		return model.OfflineChange{}, fmt.Errorf("unknown change type %q", typ)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OfflineChange{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if typ == model.ChangeUpdate {
		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM offline_changes
			WHERE user_id = ? AND goal_id = ? AND change_type = ? AND synced = 0`,
			c.userID, goalID, model.ChangeUpdate).Scan(&existingID)
		if err == nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE offline_changes SET payload = ?, created_at = ? WHERE id = ?`,
				string(payload), now, existingID); err != nil {
				return model.OfflineChange{}, fmt.Errorf("failed to coalesce update: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return model.OfflineChange{}, err
			}
			return model.OfflineChange{ID: existingID, Type: typ, GoalID: goalID, Payload: payload, CreatedAt: now}, nil
		}
		if err != sql.ErrNoRows {
			return model.OfflineChange{}, fmt.Errorf("failed to look up pending update: %w", err)
		}
	}

	change := model.OfflineChange{
		ID:        uid.New(),
		Type:      typ,
		GoalID:    goalID,
		Payload:   payload,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO offline_changes (id, user_id, change_type, goal_id, payload, synced, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		change.ID, c.userID, change.Type, change.GoalID, string(change.Payload), change.CreatedAt); err != nil {
		return model.OfflineChange{}, fmt.Errorf("failed to record change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.OfflineChange{}, err
	}
	return change, nil
}

// MarkChangesSynced flips the synced flag on the given change ids.
func (c *SQLiteCache) MarkChangesSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, c.userID)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := c.db.ExecContext(ctx,
		`UPDATE offline_changes SET synced = 1 WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark changes synced: %w", err)
	}
	return nil
}

// ClearSyncedChanges purges acknowledged entries.
func (c *SQLiteCache) ClearSyncedChanges(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM offline_changes WHERE user_id = ? AND synced = 1`, c.userID)
	if err != nil {
		return fmt.Errorf("failed to clear synced changes: %w", err)
	}
	return nil
}

// RemoveChange drops one change entry.
func (c *SQLiteCache) RemoveChange(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM offline_changes WHERE user_id = ? AND id = ?`, c.userID, id)
	if err != nil {
		return fmt.Errorf("failed to remove change %s: %w", id, err)
	}
	return nil
}

// UpdateLastSync stamps a completed sync pass.
func (c *SQLiteCache) UpdateLastSync(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sync_meta (user_id, last_sync) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_sync = excluded.last_sync`,
		c.userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// NeedsSync reports whether a sync is due.
func (c *SQLiteCache) NeedsSync(ctx context.Context, maxAge time.Duration) (NeedsSyncResult, error) {
	var unsynced int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_changes WHERE user_id = ? AND synced = 0`, c.userID).
		Scan(&unsynced); err != nil {
		return NeedsSyncResult{}, fmt.Errorf("failed to count unsynced changes: %w", err)
	}

	res := NeedsSyncResult{UnsyncedChanges: unsynced}

	var lastSync sql.NullTime
	err := c.db.QueryRowContext(ctx,
		`SELECT last_sync FROM sync_meta WHERE user_id = ?`, c.userID).Scan(&lastSync)
	if err == sql.ErrNoRows || (err == nil && !lastSync.Valid) {
		res.NeedsSync = true
		return res, nil
	}
	if err != nil {
		return NeedsSyncResult{}, fmt.Errorf("failed to get last sync: %w", err)
	}

	res.LastSyncAge = time.Since(lastSync.Time)
	res.NeedsSync = unsynced > 0 || res.LastSyncAge > maxAge
	return res, nil
}

// Preferences returns the cached user preferences.
func (c *SQLiteCache) Preferences(ctx context.Context) (model.Preferences, error) {
	var prefs model.Preferences
	err := c.db.QueryRowContext(ctx,
		`SELECT auto_sync, notifications FROM preferences WHERE user_id = ?`, c.userID).
		Scan(&prefs.AutoSync, &prefs.NotificationsEnabled)
	if err == sql.ErrNoRows {
		return model.Preferences{AutoSync: true, NotificationsEnabled: true}, nil
	}
	if err != nil {
		return model.Preferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}
	return prefs, nil
}

// SetPreferences stores the user preferences.
func (c *SQLiteCache) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, auto_sync, notifications) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET auto_sync = excluded.auto_sync, notifications = excluded.notifications`,
		c.userID, prefs.AutoSync, prefs.NotificationsEnabled)
	if err != nil {
		return fmt.Errorf("failed to set preferences: %w", err)
	}
	return nil
}

// Clear wipes all cached state for the user.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"goals", "goal_stats", "offline_changes", "sync_meta", "preferences"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, c.userID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// DebugInfo returns backend counters.
func (c *SQLiteCache) DebugInfo(ctx context.Context) (map[string]interface{}, error) {
	info := map[string]interface{}{"backend": "sqlite", "user_id": c.userID}

	var goals, changes, unsynced int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goals WHERE user_id = ?`, c.userID).Scan(&goals); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_changes WHERE user_id = ?`, c.userID).Scan(&changes); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_changes WHERE user_id = ? AND synced = 0`, c.userID).Scan(&unsynced); err != nil {
		return nil, err
	}
	info["goals"] = goals
	info["changes"] = changes
	info["unsynced_changes"] = unsynced

	var lastSync sql.NullTime
	if err := c.db.QueryRowContext(ctx,
		`SELECT last_sync FROM sync_meta WHERE user_id = ?`, c.userID).Scan(&lastSync); err == nil && lastSync.Valid {
		info["last_sync"] = lastSync.Time
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	c.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	c.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	info["db_size_bytes"] = pageCount * pageSize

	return info, nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Ensure SQLiteCache implements GoalCache
var _ GoalCache = (*SQLiteCache)(nil)
