package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"greencart-sync-api/internal/model"
	"greencart-sync-api/pkg/uid"
)

// MemoryCache is an in-memory implementation of GoalCache.
// Use this for development/testing or when durability is not required.
type MemoryCache struct {
	mu sync.RWMutex

	goals         map[string]model.Goal
	stats         *model.GoalStats
	changes       []model.OfflineChange
	prefs         model.Preferences
	lastSync      time.Time
	stampedAt     time.Time
	authoritative bool
}

// NewMemoryCache creates a new in-memory goal cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		goals: make(map[string]model.Goal),
		prefs: model.Preferences{AutoSync: true, NotificationsEnabled: true},
	}
}

// Goals returns the cached goal list, sorted by creation time.
func (c *MemoryCache) Goals(ctx context.Context, forceRefresh bool) (GoalsResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	goals := make([]model.Goal, 0, len(c.goals))
	for _, g := range c.goals {
		goals = append(goals, g)
	}
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].CreatedAt.Equal(goals[j].CreatedAt) {
			return goals[i].ID < goals[j].ID
		}
		return goals[i].CreatedAt.Before(goals[j].CreatedAt)
	})

	stale := forceRefresh || !c.authoritative || time.Since(c.stampedAt) > freshnessTTL
	return GoalsResult{Goals: goals, Cached: stale}, nil
}

// StoreGoals persists a goal set.
func (c *MemoryCache) StoreGoals(ctx context.Context, goals []model.Goal, authoritative bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if authoritative {
		c.goals = make(map[string]model.Goal, len(goals))
		for _, g := range goals {
			c.goals[g.ID] = g
		}
		c.authoritative = true
		c.stampedAt = time.Now()
		return nil
	}

	for _, g := range goals {
		c.upsertLocked(g)
	}
	return nil
}

// UpsertGoal writes one goal under last-write-wins.
func (c *MemoryCache) UpsertGoal(ctx context.Context, goal model.Goal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(goal)
	return nil
}

// upsertLocked applies last-write-wins on UpdatedAt. Caller holds the lock.
func (c *MemoryCache) upsertLocked(goal model.Goal) {
	if existing, ok := c.goals[goal.ID]; ok && existing.UpdatedAt.After(goal.UpdatedAt) {
		return
	}
	c.goals[goal.ID] = goal
}

// RemoveGoal deletes one goal.
func (c *MemoryCache) RemoveGoal(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.goals, id)
	return nil
}

// StoreGoalStats caches the statistics blob.
func (c *MemoryCache) StoreGoalStats(ctx context.Context, stats model.GoalStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = &stats
	return nil
}

// GoalStats returns the cached statistics, or nil.
func (c *MemoryCache) GoalStats(ctx context.Context) (*model.GoalStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stats == nil {
		return nil, nil
	}
	statsCopy := *c.stats
	return &statsCopy, nil
}

// OfflineChanges returns unsynced change-log entries, oldest first.
func (c *MemoryCache) OfflineChanges(ctx context.Context) ([]model.OfflineChange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.OfflineChange
	for _, ch := range c.changes {
		if !ch.Synced {
			out = append(out, ch)
		}
	}
	return out, nil
}

// RecordOfflineChange appends a change entry, coalescing unsynced updates.
func (c *MemoryCache) RecordOfflineChange(ctx context.Context, typ model.ChangeType, goalID string, payload json.RawMessage) (model.OfflineChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if typ == model.ChangeUpdate {
		for i := range c.changes {
			ch := &c.changes[i]
			if !ch.Synced && ch.Type == model.ChangeUpdate && ch.GoalID == goalID {
				ch.Payload = payload
				ch.CreatedAt = time.Now()
				return *ch, nil
			}
		}
	}

	change := model.OfflineChange{
		ID:        uid.New(),
		Type:      typ,
		GoalID:    goalID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	c.changes = append(c.changes, change)
	return change, nil
}

// MarkChangesSynced flips the synced flag on the given ids.
func (c *MemoryCache) MarkChangesSynced(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for i := range c.changes {
		if idSet[c.changes[i].ID] {
			c.changes[i].Synced = true
		}
	}
	return nil
}

// ClearSyncedChanges purges acknowledged entries.
func (c *MemoryCache) ClearSyncedChanges(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.changes[:0]
	for _, ch := range c.changes {
		if !ch.Synced {
			remaining = append(remaining, ch)
		}
	}
	c.changes = remaining
	return nil
}

// RemoveChange drops one change entry.
func (c *MemoryCache) RemoveChange(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ch := range c.changes {
		if ch.ID == id {
			c.changes = append(c.changes[:i], c.changes[i+1:]...)
			return nil
		}
	}
	return nil
}

// UpdateLastSync stamps a completed sync pass.
func (c *MemoryCache) UpdateLastSync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSync = time.Now()
	return nil
}

// NeedsSync reports whether a sync is due.
func (c *MemoryCache) NeedsSync(ctx context.Context, maxAge time.Duration) (NeedsSyncResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unsynced := 0
	for _, ch := range c.changes {
		if !ch.Synced {
			unsynced++
		}
	}

	res := NeedsSyncResult{UnsyncedChanges: unsynced}
	if c.lastSync.IsZero() {
		res.NeedsSync = true
		return res, nil
	}
	res.LastSyncAge = time.Since(c.lastSync)
	res.NeedsSync = unsynced > 0 || res.LastSyncAge > maxAge
	return res, nil
}

// Preferences returns the cached user preferences.
func (c *MemoryCache) Preferences(ctx context.Context) (model.Preferences, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs, nil
}

// SetPreferences stores the user preferences.
func (c *MemoryCache) SetPreferences(ctx context.Context, prefs model.Preferences) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs = prefs
	return nil
}

// Clear wipes all cached state.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.goals = make(map[string]model.Goal)
	c.stats = nil
	c.changes = nil
	c.lastSync = time.Time{}
	c.stampedAt = time.Time{}
	c.authoritative = false
	return nil
}

// DebugInfo returns backend counters.
func (c *MemoryCache) DebugInfo(ctx context.Context) (map[string]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unsynced := 0
	for _, ch := range c.changes {
		if !ch.Synced {
			unsynced++
		}
	}
	return map[string]interface{}{
		"backend":          "memory",
		"goals":            len(c.goals),
		"changes":          len(c.changes),
		"unsynced_changes": unsynced,
		"last_sync":        c.lastSync,
		"authoritative":    c.authoritative,
	}, nil
}

// Close is a no-op for the memory backend.
func (c *MemoryCache) Close() error {
	return nil
}

// Ensure MemoryCache implements GoalCache
var _ GoalCache = (*MemoryCache)(nil)
