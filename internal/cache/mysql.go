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
)

// MySQLCache implements GoalCache on MySQL. The caller owns the *sql.DB and
// its lifecycle; this backend only creates its tables and runs queries.
// Suited to deployments that already run MySQL and want the cache co-located.
type MySQLCache struct {
	db     *sql.DB
	userID string
}

// NewMySQLCache wraps an open MySQL connection pool for one user.
func NewMySQLCache(db *sql.DB, userID string) (*MySQLCache, error) {
	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	log.Printf("[MySQLCache] Initialized (user=%s)", userID)
	return &MySQLCache{db: db, userID: userID}, nil
}

func createMySQLTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS goal_cache (
			id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			goal_type VARCHAR(32) NOT NULL,
			config_json TEXT NOT NULL,
			title VARCHAR(255) NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			is_achieved TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (user_id, id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS goal_cache_stats (
			user_id VARCHAR(64) NOT NULL,
			stats_json TEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (user_id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS goal_cache_changes (
			id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			change_type VARCHAR(32) NOT NULL,
			goal_id VARCHAR(64) NOT NULL DEFAULT '',
			payload TEXT,
			synced TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			PRIMARY KEY (id),
			KEY idx_user_synced (user_id, synced)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS goal_cache_meta (
			user_id VARCHAR(64) NOT NULL,
			last_sync DATETIME(6) NULL,
			authoritative TINYINT(1) NOT NULL DEFAULT 0,
			stamped_at DATETIME(6) NULL,
			PRIMARY KEY (user_id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS goal_cache_prefs (
			user_id VARCHAR(64) NOT NULL,
			auto_sync TINYINT(1) NOT NULL DEFAULT 1,
			notifications TINYINT(1) NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id)
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Goals returns the cached goal list, oldest first.
func (c *MySQLCache) Goals(ctx context.Context, forceRefresh bool) (GoalsResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, goal_type, config_json, title, is_active, is_achieved, created_at, updated_at
		FROM goal_cache WHERE user_id = ? ORDER BY created_at, id`, c.userID)
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
			`SELECT authoritative, stamped_at FROM goal_cache_meta WHERE user_id = ?`, c.userID).
			Scan(&authoritative, &stampedAt)
		if err == nil && authoritative && stampedAt.Valid && time.Since(stampedAt.Time) <= freshnessTTL {
			stale = false
		}
	}

	return GoalsResult{Goals: goals, Cached: stale}, nil
}

// StoreGoals persists a goal set.
func (c *MySQLCache) StoreGoals(ctx context.Context, goals []model.Goal, authoritative bool) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if authoritative {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goal_cache WHERE user_id = ?`, c.userID); err != nil {
			return fmt.Errorf("failed to clear goals: %w", err)
		}
	}

	for _, g := range goals {
		if err := c.upsertGoalTx(ctx, tx, g); err != nil {
			return err
		}
	}

	if authoritative {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goal_cache_meta (user_id, authoritative, stamped_at) VALUES (?, 1, ?)
			ON DUPLICATE KEY UPDATE authoritative = 1, stamped_at = VALUES(stamped_at)`,
			c.userID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to stamp goals: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit goals: %w", err)
	}
	return nil
}

func (c *MySQLCache) upsertGoalTx(ctx context.Context, tx *sql.Tx, g model.Goal) error {
	configJSON, err := json.Marshal(g.Config)
	if err != nil {
		return fmt.Errorf("failed to encode goal config: %w", err)
	}

	// MySQL has no conditional upsert, so last-write-wins is expressed with
	// IF() on updated_at in the update arm.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO goal_cache (id, user_id, goal_type, config_json, title, is_active, is_achieved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			goal_type = IF(VALUES(updated_at) >= updated_at, VALUES(goal_type), goal_type),
			config_json = IF(VALUES(updated_at) >= updated_at, VALUES(config_json), config_json),
			title = IF(VALUES(updated_at) >= updated_at, VALUES(title), title),
			is_active = IF(VALUES(updated_at) >= updated_at, VALUES(is_active), is_active),
			is_achieved = IF(VALUES(updated_at) >= updated_at, VALUES(is_achieved), is_achieved),
			updated_at = IF(VALUES(updated_at) >= updated_at, VALUES(updated_at), updated_at)`,
		g.ID, c.userID, g.Type, string(configJSON), g.Title, g.IsActive, g.IsAchieved, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert goal %s: %w", g.ID, err)
	}
	return nil
}

// UpsertGoal writes one goal under last-write-wins.
func (c *MySQLCache) UpsertGoal(ctx context.Context, goal model.Goal) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.upsertGoalTx(ctx, tx, goal); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveGoal deletes one goal row.
func (c *MySQLCache) RemoveGoal(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM goal_cache WHERE user_id = ? AND id = ?`, c.userID, id)
	if err != nil {
		return fmt.Errorf("failed to remove goal %s: %w", id, err)
	}
	return nil
}

// StoreGoalStats caches the statistics blob.
func (c *MySQLCache) StoreGoalStats(ctx context.Context, stats model.GoalStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO goal_cache_stats (user_id, stats_json, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE stats_json = VALUES(stats_json), updated_at = VALUES(updated_at)`,
		c.userID, string(statsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store stats: %w", err)
	}
	return nil
}

// GoalStats returns the cached statistics, or nil.
func (c *MySQLCache) GoalStats(ctx context.Context) (*model.GoalStats, error) {
	var statsJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT stats_json FROM goal_cache_stats WHERE user_id = ?`, c.userID).Scan(&statsJSON)
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
func (c *MySQLCache) OfflineChanges(ctx context.Context) ([]model.OfflineChange, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, change_type, goal_id, payload, synced, created_at
		FROM goal_cache_changes WHERE user_id = ? AND synced = 0 ORDER BY created_at, id`, c.userID)
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

// RecordOfflineChange appends a change entry, coalescing unsynced updates.
func (c *MySQLCache) RecordOfflineChange(ctx context.Context, typ model.ChangeType, goalID string, payload json.RawMessage) (model.OfflineChange, error) {
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
			SELECT id FROM goal_cache_changes
			WHERE user_id = ? AND goal_id = ? AND change_type = ? AND synced = 0 FOR UPDATE`,
			c.userID, goalID, model.ChangeUpdate).Scan(&existingID)
		if err == nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE goal_cache_changes SET payload = ?, created_at = ? WHERE id = ?`,
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
		INSERT INTO goal_cache_changes (id, user_id, change_type, goal_id, payload, synced, created_at)
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
func (c *MySQLCache) MarkChangesSynced(ctx context.Context, ids []string) error {
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
		`UPDATE goal_cache_changes SET synced = 1 WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark changes synced: %w", err)
	}
	return nil
}

// ClearSyncedChanges purges acknowledged entries.
func (c *MySQLCache) ClearSyncedChanges(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM goal_cache_changes WHERE user_id = ? AND synced = 1`, c.userID)
	if err != nil {
		return fmt.Errorf("failed to clear synced changes: %w", err)
	}
	return nil
}

// RemoveChange drops one change entry.
func (c *MySQLCache) RemoveChange(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM goal_cache_changes WHERE user_id = ? AND id = ?`, c.userID, id)
	if err != nil {
		return fmt.Errorf("failed to remove change %s: %w", id, err)
	}
	return nil
}

// UpdateLastSync stamps a completed sync pass.
func (c *MySQLCache) UpdateLastSync(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO goal_cache_meta (user_id, last_sync) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE last_sync = VALUES(last_sync)`,
		c.userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// NeedsSync reports whether a sync is due.
func (c *MySQLCache) NeedsSync(ctx context.Context, maxAge time.Duration) (NeedsSyncResult, error) {
	var unsynced int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goal_cache_changes WHERE user_id = ? AND synced = 0`, c.userID).
		Scan(&unsynced); err != nil {
		return NeedsSyncResult{}, fmt.Errorf("failed to count unsynced changes: %w", err)
	}

	res := NeedsSyncResult{UnsyncedChanges: unsynced}

	var lastSync sql.NullTime
	err := c.db.QueryRowContext(ctx,
		`SELECT last_sync FROM goal_cache_meta WHERE user_id = ?`, c.userID).Scan(&lastSync)
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
func (c *MySQLCache) Preferences(ctx context.Context) (model.Preferences, error) {
	var prefs model.Preferences
	err := c.db.QueryRowContext(ctx,
		`SELECT auto_sync, notifications FROM goal_cache_prefs WHERE user_id = ?`, c.userID).
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
func (c *MySQLCache) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO goal_cache_prefs (user_id, auto_sync, notifications) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE auto_sync = VALUES(auto_sync), notifications = VALUES(notifications)`,
		c.userID, prefs.AutoSync, prefs.NotificationsEnabled)
	if err != nil {
		return fmt.Errorf("failed to set preferences: %w", err)
	}
	return nil
}

// Clear wipes all cached state for the user.
func (c *MySQLCache) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"goal_cache", "goal_cache_stats", "goal_cache_changes", "goal_cache_meta", "goal_cache_prefs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, c.userID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// DebugInfo returns backend counters.
func (c *MySQLCache) DebugInfo(ctx context.Context) (map[string]interface{}, error) {
	info := map[string]interface{}{"backend": "mysql", "user_id": c.userID}

	var goals, changes, unsynced int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goal_cache WHERE user_id = ?`, c.userID).Scan(&goals); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goal_cache_changes WHERE user_id = ?`, c.userID).Scan(&changes); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goal_cache_changes WHERE user_id = ? AND synced = 0`, c.userID).Scan(&unsynced); err != nil {
		return nil, err
	}
	info["goals"] = goals
	info["changes"] = changes
	info["unsynced_changes"] = unsynced

	var lastSync sql.NullTime
	if err := c.db.QueryRowContext(ctx,
		`SELECT last_sync FROM goal_cache_meta WHERE user_id = ?`, c.userID).Scan(&lastSync); err == nil && lastSync.Valid {
		info["last_sync"] = lastSync.Time
	}
	return info, nil
}

// Close is a no-op: the caller owns the database pool.
func (c *MySQLCache) Close() error {
	return nil
}

// Ensure MySQLCache implements GoalCache
var _ GoalCache = (*MySQLCache)(nil)
