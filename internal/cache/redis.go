package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"greencart-sync-api/internal/model"
	"greencart-sync-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements GoalCache on Redis. Goals and the change log live in
// hashes keyed per user; sync metadata and preferences in small hashes.
// Useful when several instances need to share one local cache.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	userID    string
}

// RedisCacheConfig holds connection settings for the Redis backend.
type RedisCacheConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisCacheConfig, userID string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "greencart:goalcache"
	}

	log.Printf("[RedisCache] Connected - DB:%d, prefix:%s, user:%s", cfg.DB, keyPrefix, userID)
	return &RedisCache{client: client, keyPrefix: keyPrefix, userID: userID}, nil
}

func (c *RedisCache) goalsKey() string   { return c.keyPrefix + ":" + c.userID + ":goals" }
func (c *RedisCache) statsKey() string   { return c.keyPrefix + ":" + c.userID + ":stats" }
func (c *RedisCache) changesKey() string { return c.keyPrefix + ":" + c.userID + ":changes" }
func (c *RedisCache) metaKey() string    { return c.keyPrefix + ":" + c.userID + ":meta" }
func (c *RedisCache) prefsKey() string   { return c.keyPrefix + ":" + c.userID + ":prefs" }

// Goals returns the cached goal list, oldest first.
func (c *RedisCache) Goals(ctx context.Context, forceRefresh bool) (GoalsResult, error) {
	raw, err := c.client.HGetAll(ctx, c.goalsKey()).Result()
	if err != nil {
		return GoalsResult{}, fmt.Errorf("failed to read goals: %w", err)
	}

	goals := make([]model.Goal, 0, len(raw))
	for id, data := range raw {
		var g model.Goal
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			log.Printf("[RedisCache] Dropping corrupt goal %s: %v", id, err)
			c.client.HDel(ctx, c.goalsKey(), id)
			continue
		}
		goals = append(goals, g)
	}
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].CreatedAt.Equal(goals[j].CreatedAt) {
			return goals[i].ID < goals[j].ID
		}
		return goals[i].CreatedAt.Before(goals[j].CreatedAt)
	})

	stale := true
	if !forceRefresh {
		meta, err := c.client.HGetAll(ctx, c.metaKey()).Result()
		if err == nil && meta["authoritative"] == "1" {
			if stampedAt, perr := time.Parse(time.RFC3339Nano, meta["stamped_at"]); perr == nil &&
				time.Since(stampedAt) <= freshnessTTL {
				stale = false
			}
		}
	}

	return GoalsResult{Goals: goals, Cached: stale}, nil
}

// StoreGoals persists a goal set.
func (c *RedisCache) StoreGoals(ctx context.Context, goals []model.Goal, authoritative bool) error {
	if authoritative {
		pipe := c.client.Pipeline()
		pipe.Del(ctx, c.goalsKey())
		for _, g := range goals {
			data, err := json.Marshal(g)
			if err != nil {
				return fmt.Errorf("failed to encode goal %s: %w", g.ID, err)
			}
			pipe.HSet(ctx, c.goalsKey(), g.ID, data)
		}
		pipe.HSet(ctx, c.metaKey(),
			"authoritative", "1",
			"stamped_at", time.Now().UTC().Format(time.RFC3339Nano))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to store goals: %w", err)
		}
		return nil
	}

	for _, g := range goals {
		if err := c.UpsertGoal(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// UpsertGoal writes one goal under last-write-wins.
func (c *RedisCache) UpsertGoal(ctx context.Context, goal model.Goal) error {
	existing, err := c.client.HGet(ctx, c.goalsKey(), goal.ID).Bytes()
	if err == nil {
		var prev model.Goal
		if jerr := json.Unmarshal(existing, &prev); jerr == nil && prev.UpdatedAt.After(goal.UpdatedAt) {
			return nil
		}
	} else if err != redis.Nil {
		return fmt.Errorf("failed to read goal %s: %w", goal.ID, err)
	}

	data, err := json.Marshal(goal)
	if err != nil {
		return fmt.Errorf("failed to encode goal %s: %w", goal.ID, err)
	}
	if err := c.client.HSet(ctx, c.goalsKey(), goal.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to upsert goal %s: %w", goal.ID, err)
	}
	return nil
}

// RemoveGoal deletes one goal.
func (c *RedisCache) RemoveGoal(ctx context.Context, id string) error {
	if err := c.client.HDel(ctx, c.goalsKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove goal %s: %w", id, err)
	}
	return nil
}

// StoreGoalStats caches the statistics blob.
func (c *RedisCache) StoreGoalStats(ctx context.Context, stats model.GoalStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := c.client.Set(ctx, c.statsKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store stats: %w", err)
	}
	return nil
}

// GoalStats returns the cached statistics, or nil.
func (c *RedisCache) GoalStats(ctx context.Context) (*model.GoalStats, error) {
	data, err := c.client.Get(ctx, c.statsKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	var stats model.GoalStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// readChanges loads the full change log from the hash.
func (c *RedisCache) readChanges(ctx context.Context) ([]model.OfflineChange, error) {
	raw, err := c.client.HGetAll(ctx, c.changesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}

	changes := make([]model.OfflineChange, 0, len(raw))
	for id, data := range raw {
		var ch model.OfflineChange
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			log.Printf("[RedisCache] Dropping corrupt change %s: %v", id, err)
			c.client.HDel(ctx, c.changesKey(), id)
			continue
		}
		changes = append(changes, ch)
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].CreatedAt.Equal(changes[j].CreatedAt) {
			return changes[i].ID < changes[j].ID
		}
		return changes[i].CreatedAt.Before(changes[j].CreatedAt)
	})
	return changes, nil
}

func (c *RedisCache) writeChange(ctx context.Context, ch model.OfflineChange) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if err := c.client.HSet(ctx, c.changesKey(), ch.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to write change: %w", err)
	}
	return nil
}

// OfflineChanges returns unsynced change-log entries, oldest first.
func (c *RedisCache) OfflineChanges(ctx context.Context) ([]model.OfflineChange, error) {
	all, err := c.readChanges(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.OfflineChange
	for _, ch := range all {
		if !ch.Synced {
			out = append(out, ch)
		}
	}
	return out, nil
}

// RecordOfflineChange appends a change entry, coalescing unsynced updates.
func (c *RedisCache) RecordOfflineChange(ctx context.Context, typ model.ChangeType, goalID string, payload json.RawMessage) (model.OfflineChange, error) {
	if !typ.Valid() {
		return model.OfflineChange{}, fmt.Errorf("unknown change type %q", typ)
	}

	if typ == model.ChangeUpdate {
		all, err := c.readChanges(ctx)
		if err != nil {
			return model.OfflineChange{}, err
		}
		for _, ch := range all {
			if !ch.Synced && ch.Type == model.ChangeUpdate && ch.GoalID == goalID {
				ch.Payload = payload
				ch.CreatedAt = time.Now().UTC()
				if err := c.writeChange(ctx, ch); err != nil {
					return model.OfflineChange{}, err
				}
				return ch, nil
			}
		}
	}

	change := model.OfflineChange{
		ID:        uid.New(),
		Type:      typ,
		GoalID:    goalID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.writeChange(ctx, change); err != nil {
		return model.OfflineChange{}, err
	}
	return change, nil
}

// MarkChangesSynced flips the synced flag on the given change ids.
func (c *RedisCache) MarkChangesSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	all, err := c.readChanges(ctx)
	if err != nil {
		return err
	}
	for _, ch := range all {
		if idSet[ch.ID] && !ch.Synced {
			ch.Synced = true
			if err := c.writeChange(ctx, ch); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearSyncedChanges purges acknowledged entries.
func (c *RedisCache) ClearSyncedChanges(ctx context.Context) error {
	all, err := c.readChanges(ctx)
	if err != nil {
		return err
	}

	pipe := c.client.Pipeline()
	for _, ch := range all {
		if ch.Synced {
			pipe.HDel(ctx, c.changesKey(), ch.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear synced changes: %w", err)
	}
	return nil
}

// RemoveChange drops one change entry.
func (c *RedisCache) RemoveChange(ctx context.Context, id string) error {
	if err := c.client.HDel(ctx, c.changesKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove change %s: %w", id, err)
	}
	return nil
}

// UpdateLastSync stamps a completed sync pass.
func (c *RedisCache) UpdateLastSync(ctx context.Context) error {
	err := c.client.HSet(ctx, c.metaKey(),
		"last_sync", time.Now().UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// NeedsSync reports whether a sync is due.
func (c *RedisCache) NeedsSync(ctx context.Context, maxAge time.Duration) (NeedsSyncResult, error) {
	unsyncedChanges, err := c.OfflineChanges(ctx)
	if err != nil {
		return NeedsSyncResult{}, err
	}

	res := NeedsSyncResult{UnsyncedChanges: len(unsyncedChanges)}

	lastSyncStr, err := c.client.HGet(ctx, c.metaKey(), "last_sync").Result()
	if err == redis.Nil {
		res.NeedsSync = true
		return res, nil
	}
	if err != nil {
		return NeedsSyncResult{}, fmt.Errorf("failed to get last sync: %w", err)
	}

	lastSync, err := time.Parse(time.RFC3339Nano, lastSyncStr)
	if err != nil {
		res.NeedsSync = true
		return res, nil
	}

	res.LastSyncAge = time.Since(lastSync)
	res.NeedsSync = res.UnsyncedChanges > 0 || res.LastSyncAge > maxAge
	return res, nil
}

// Preferences returns the cached user preferences.
func (c *RedisCache) Preferences(ctx context.Context) (model.Preferences, error) {
	raw, err := c.client.HGetAll(ctx, c.prefsKey()).Result()
	if err != nil {
		return model.Preferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}
	if len(raw) == 0 {
		return model.Preferences{AutoSync: true, NotificationsEnabled: true}, nil
	}
	return model.Preferences{
		AutoSync:             raw["auto_sync"] == "1",
		NotificationsEnabled: raw["notifications"] == "1",
	}, nil
}

// SetPreferences stores the user preferences.
func (c *RedisCache) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	err := c.client.HSet(ctx, c.prefsKey(),
		"auto_sync", boolFlag(prefs.AutoSync),
		"notifications", boolFlag(prefs.NotificationsEnabled)).Err()
	if err != nil {
		return fmt.Errorf("failed to set preferences: %w", err)
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Clear wipes all cached state for the user.
func (c *RedisCache) Clear(ctx context.Context) error {
	err := c.client.Del(ctx,
		c.goalsKey(), c.statsKey(), c.changesKey(), c.metaKey(), c.prefsKey()).Err()
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// DebugInfo returns backend counters.
func (c *RedisCache) DebugInfo(ctx context.Context) (map[string]interface{}, error) {
	info := map[string]interface{}{
		"backend":    "redis",
		"key_prefix": c.keyPrefix,
		"user_id":    c.userID,
	}

	goals, err := c.client.HLen(ctx, c.goalsKey()).Result()
	if err != nil {
		return nil, err
	}
	changes, err := c.client.HLen(ctx, c.changesKey()).Result()
	if err != nil {
		return nil, err
	}
	unsynced, err := c.OfflineChanges(ctx)
	if err != nil {
		return nil, err
	}
	info["goals"] = goals
	info["changes"] = changes
	info["unsynced_changes"] = len(unsynced)

	if lastSyncStr, err := c.client.HGet(ctx, c.metaKey(), "last_sync").Result(); err == nil {
		if lastSync, perr := time.Parse(time.RFC3339Nano, lastSyncStr); perr == nil {
			info["last_sync"] = lastSync
		}
	}
	return info, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ensure RedisCache implements GoalCache
var _ GoalCache = (*RedisCache)(nil)
