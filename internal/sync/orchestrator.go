// Package sync drives the offline-first synchronization loop between the
// local goal cache and the remote goal service.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/model"
	"greencart-sync-api/internal/remote"
)

// Config tunes the orchestrator. Zero values fall back to the defaults
// noted per field.
type Config struct {
	// MaxRetries bounds the backoff chain after a failed sync. Default 3.
	MaxRetries int

	// AutoSyncInterval is the periodic sync cadence when the auto-sync
	// preference is enabled. Default 5m.
	AutoSyncInterval time.Duration

	// SyncThreshold is how stale the last sync may be before a
	// check-and-sync actually syncs. Default 5m.
	SyncThreshold time.Duration

	// StabilityDelay is how long a restored connection must hold before
	// the orchestrator trusts it and syncs. Default 2s.
	StabilityDelay time.Duration

	// Strategy resolves goal conflicts during reconciliation.
	// Default LastWriteWins.
	Strategy ConflictStrategy

	// Clock and Scheduler exist for tests; production uses the system
	// clock and real timers.
	Clock     Clock
	Scheduler Scheduler
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.AutoSyncInterval == 0 {
		c.AutoSyncInterval = 5 * time.Minute
	}
	if c.SyncThreshold == 0 {
		c.SyncThreshold = 5 * time.Minute
	}
	if c.StabilityDelay == 0 {
		c.StabilityDelay = 2 * time.Second
	}
	if c.Strategy == nil {
		c.Strategy = LastWriteWins{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Scheduler == nil {
		c.Scheduler = TimerScheduler{}
	}
}

// Orchestrator owns the sync lifecycle: the online/syncing state machine,
// the offline mutation path, push/pull/reconcile passes and retry backoff.
// All state transitions happen under one mutex; the lock is never held
// across network or storage I/O.
type Orchestrator struct {
	store  cache.GoalCache
	client remote.Client
	cfg    Config

	listeners *listenerRegistry

	mu              gosync.Mutex
	isOnline        bool
	isSyncing       bool
	retryCount      int
	lastSync        time.Time
	closed          bool
	cancelSync      context.CancelFunc
	cancelRetry     func()
	cancelStability func()
	stopAutoSync    func()
}

// New wires an orchestrator. The cache and remote client are required;
// everything else defaults via Config.
func New(store cache.GoalCache, client remote.Client, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		store:     store,
		client:    client,
		cfg:       cfg,
		listeners: newListenerRegistry(),
	}
}

// AddListener subscribes to orchestrator events. The returned func
// unsubscribes; calling it twice is safe.
func (o *Orchestrator) AddListener(fn Listener) func() {
	return o.listeners.add(fn)
}

// Initialize probes connectivity, syncs immediately when online and starts
// the auto-sync ticker if the user preference allows.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	needs, err := o.store.NeedsSync(ctx, o.cfg.SyncThreshold)
	if err != nil {
		return fmt.Errorf("failed to inspect cache: %w", err)
	}
	log.Printf("[SyncOrchestrator] Initializing - %d unsynced changes pending", needs.UnsyncedChanges)

	online := o.client.Ping(ctx) == nil
	o.mu.Lock()
	o.isOnline = online
	o.mu.Unlock()

	if online {
		if _, err := o.PerformSync(ctx, false); err != nil {
			log.Printf("[SyncOrchestrator] Initial sync failed: %v", err)
		}
	} else {
		log.Printf("[SyncOrchestrator] Starting offline")
	}

	prefs, err := o.store.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs.AutoSync {
		o.mu.Lock()
		if !o.closed && o.stopAutoSync == nil {
			o.stopAutoSync = o.cfg.Scheduler.Every(o.cfg.AutoSyncInterval, o.autoSyncTick)
		}
		o.mu.Unlock()
		log.Printf("[SyncOrchestrator] Auto-sync every %v", o.cfg.AutoSyncInterval)
	}
	return nil
}

func (o *Orchestrator) autoSyncTick() {
	o.mu.Lock()
	online := o.isOnline && !o.closed
	o.mu.Unlock()
	if !online {
		return
	}
	o.checkAndSync(context.Background())
}

// checkAndSync runs a sync only when the cache says one is due.
func (o *Orchestrator) checkAndSync(ctx context.Context) {
	needs, err := o.store.NeedsSync(ctx, o.cfg.SyncThreshold)
	if err != nil {
		log.Printf("[SyncOrchestrator] NeedsSync check failed: %v", err)
		return
	}
	if !needs.NeedsSync {
		return
	}
	if _, err := o.PerformSync(ctx, false); err != nil {
		log.Printf("[SyncOrchestrator] Sync failed: %v", err)
	}
}

// PerformSync runs one push → pull → reconcile pass. A pass already in
// flight makes this a no-op skip; force bypasses the staleness check, not
// the mutual exclusion.
func (o *Orchestrator) PerformSync(ctx context.Context, force bool) (model.SyncSummary, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return model.SyncSummary{Skipped: true}, fmt.Errorf("orchestrator closed")
	}
	if o.isSyncing {
		o.mu.Unlock()
		log.Printf("[SyncOrchestrator] Sync already in progress, skipping")
		return model.SyncSummary{Skipped: true}, nil
	}
	if !o.isOnline {
		o.mu.Unlock()
		return model.SyncSummary{Skipped: true}, fmt.Errorf("offline")
	}
	o.isSyncing = true
	syncCtx, cancel := context.WithCancel(ctx)
	o.cancelSync = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.isSyncing = false
		o.cancelSync = nil
		o.mu.Unlock()
	}()

	if !force {
		needs, err := o.store.NeedsSync(syncCtx, o.cfg.SyncThreshold)
		if err == nil && !needs.NeedsSync {
			return model.SyncSummary{Skipped: true}, nil
		}
	}

	o.listeners.notify(Event{Type: EventSyncStarted})
	started := o.cfg.Clock.Now()

	summary, err := o.runPass(syncCtx)
	summary.Duration = o.cfg.Clock.Now().Sub(started)
	summary.CompletedAt = o.cfg.Clock.Now()

	if err != nil || summary.ChangesFailed > 0 {
		if err == nil {
			err = fmt.Errorf("%d of %d changes failed to push", summary.ChangesFailed, summary.ChangesProcessed)
		}
		o.handleSyncFailure(err)
		return summary, err
	}

	o.mu.Lock()
	o.retryCount = 0
	o.lastSync = summary.CompletedAt
	o.mu.Unlock()

	o.listeners.notify(Event{Type: EventSyncComplete, Summary: &summary})
	log.Printf("[SyncOrchestrator] Sync complete - pushed %d, pulled %d, %d conflicts (%v)",
		summary.ChangesSucceeded, summary.GoalsPulled, len(summary.ConflictsResolved), summary.Duration)
	return summary, nil
}

// runPass executes push, pull and reconcile in order.
func (o *Orchestrator) runPass(ctx context.Context) (model.SyncSummary, error) {
	var summary model.SyncSummary

	// Push: drain the offline change log. Individual failures are
	// tolerated so one bad change cannot wedge the queue.
	changes, err := o.store.OfflineChanges(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read change log: %w", err)
	}
	summary.ChangesProcessed = len(changes)

	var syncedIDs []string
	for _, ch := range changes {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if err := o.pushChange(ctx, ch); err != nil {
			log.Printf("[SyncOrchestrator] Push failed for change %s (%s): %v", ch.ID, ch.Type, err)
			summary.ChangesFailed++
			summary.FailedChangeIDs = append(summary.FailedChangeIDs, ch.ID)
			continue
		}
		summary.ChangesSucceeded++
		syncedIDs = append(syncedIDs, ch.ID)
	}
	if len(syncedIDs) > 0 {
		if err := o.store.MarkChangesSynced(ctx, syncedIDs); err != nil {
			return summary, fmt.Errorf("failed to mark changes synced: %w", err)
		}
	}

	// Pull: snapshot local state first so reconciliation can compare.
	localSnapshot, err := o.store.Goals(ctx, false)
	if err != nil {
		return summary, fmt.Errorf("failed to snapshot cache: %w", err)
	}
	serverGoals, err := o.client.ListGoals(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to pull goals: %w", err)
	}
	summary.GoalsPulled = len(serverGoals)

	// Reconcile: merge under the conflict strategy, keeping local goals
	// that still have unpushed changes.
	pending, err := o.store.OfflineChanges(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read pending changes: %w", err)
	}
	merged, conflicts := ResolveConflicts(o.cfg.Strategy, localSnapshot.Goals, serverGoals, pending)
	summary.ConflictsResolved = conflicts

	if err := o.store.StoreGoals(ctx, merged, true); err != nil {
		return summary, fmt.Errorf("failed to store merged goals: %w", err)
	}
	if len(conflicts) > 0 {
		o.listeners.notify(Event{Type: EventConflictNotice, Conflicts: conflicts})
	}

	// Stats are nice-to-have; a failure here does not fail the pass.
	if stats, err := o.client.GoalStats(ctx); err == nil {
		if err := o.store.StoreGoalStats(ctx, stats); err != nil {
			log.Printf("[SyncOrchestrator] Failed to cache stats: %v", err)
		}
	} else {
		log.Printf("[SyncOrchestrator] Stats pull failed: %v", err)
	}

	if err := o.store.UpdateLastSync(ctx); err != nil {
		return summary, fmt.Errorf("failed to stamp sync: %w", err)
	}
	if err := o.store.ClearSyncedChanges(ctx); err != nil {
		log.Printf("[SyncOrchestrator] Failed to purge synced changes: %v", err)
	}
	return summary, nil
}

// pushChange dispatches one change-log entry to the server.
func (o *Orchestrator) pushChange(ctx context.Context, ch model.OfflineChange) error {
	switch ch.Type {
	case model.ChangeCreate:
		goal, err := ch.GoalPayload()
		if err != nil {
			return fmt.Errorf("corrupt create payload: %w", err)
		}
		created, err := o.client.CreateGoal(ctx, *goal)
		if err != nil {
			return err
		}
		// Swap the temp goal for the server copy. Remove-then-upsert so
		// a crash in between leaves the pulled set to repair it.
		if model.IsTempID(goal.ID) {
			if err := o.store.RemoveGoal(ctx, goal.ID); err != nil {
				return fmt.Errorf("failed to drop temp goal: %w", err)
			}
		}
		if err := o.store.UpsertGoal(ctx, created); err != nil {
			return fmt.Errorf("failed to store created goal: %w", err)
		}
		return nil

	case model.ChangeUpdate:
		goal, err := ch.GoalPayload()
		if err != nil {
			return fmt.Errorf("corrupt update payload: %w", err)
		}
		updated, err := o.client.UpdateGoal(ctx, *goal)
		if err != nil {
			return err
		}
		return o.store.UpsertGoal(ctx, updated)

	case model.ChangeDelete:
		return o.client.DeleteGoal(ctx, ch.GoalID)

	case model.ChangeProgressUpdate:
		// Informational: the server recomputes progress on pull, so this
		// entry just needs to drain.
		return nil
	}
	return fmt.Errorf("unknown change type %q", ch.Type)
}

// handleSyncFailure schedules exponential backoff, giving up after
// MaxRetries attempts.
func (o *Orchestrator) handleSyncFailure(err error) {
	o.mu.Lock()
	if o.closed || !o.isOnline {
		// Connection loss cancelled the pass; SetOnline owns recovery.
		o.mu.Unlock()
		return
	}
	o.retryCount++
	attempt := o.retryCount
	if attempt > o.cfg.MaxRetries {
		o.retryCount = 0
		o.mu.Unlock()
		log.Printf("[SyncOrchestrator] Sync failed after %d retries: %v", o.cfg.MaxRetries, err)
		o.listeners.notify(Event{Type: EventSyncError, Err: err.Error()})
		return
	}

	delay := time.Duration(1<<uint(attempt)) * time.Second
	if o.cancelRetry != nil {
		o.cancelRetry()
	}
	o.cancelRetry = o.cfg.Scheduler.After(delay, func() {
		o.mu.Lock()
		o.cancelRetry = nil
		online := o.isOnline && !o.closed
		o.mu.Unlock()
		if online {
			// Forced: a fresh lastSync from a pass that succeeded just
			// before this failure must not swallow the retry.
			o.PerformSync(context.Background(), true)
		}
	})
	o.mu.Unlock()
	log.Printf("[SyncOrchestrator] Sync failed (attempt %d/%d), retrying in %v: %v",
		attempt, o.cfg.MaxRetries, delay, err)
}

// CreateGoalOffline inserts a goal optimistically with a temporary id and
// records a create in the change log. Never touches the network.
func (o *Orchestrator) CreateGoalOffline(ctx context.Context, goal model.Goal) (model.Goal, error) {
	if err := goal.Validate(); err != nil {
		return model.Goal{}, err
	}

	now := o.cfg.Clock.Now()
	goal.ID = model.NewTempID(now)
	goal.CreatedAt = now
	goal.UpdatedAt = now
	goal.IsActive = true

	if err := o.store.UpsertGoal(ctx, goal); err != nil {
		return model.Goal{}, fmt.Errorf("failed to cache goal: %w", err)
	}

	payload, err := json.Marshal(goal)
	if err != nil {
		return model.Goal{}, fmt.Errorf("failed to encode goal: %w", err)
	}
	if _, err := o.store.RecordOfflineChange(ctx, model.ChangeCreate, goal.ID, payload); err != nil {
		return model.Goal{}, fmt.Errorf("failed to log create: %w", err)
	}

	o.listeners.notify(Event{Type: EventGoalCreated, Goal: &goal})
	return goal, nil
}

// UpdateGoalOffline applies an optimistic update and records (or coalesces)
// an update in the change log.
func (o *Orchestrator) UpdateGoalOffline(ctx context.Context, goal model.Goal) (model.Goal, error) {
	if err := goal.Validate(); err != nil {
		return model.Goal{}, err
	}

	goal.UpdatedAt = o.cfg.Clock.Now()
	if err := o.store.UpsertGoal(ctx, goal); err != nil {
		return model.Goal{}, fmt.Errorf("failed to cache goal: %w", err)
	}

	payload, err := json.Marshal(goal)
	if err != nil {
		return model.Goal{}, fmt.Errorf("failed to encode goal: %w", err)
	}

	// Editing a goal the server has never seen folds into its pending
	// create; pushing an update for a temp id would only 404.
	changeType := model.ChangeUpdate
	if model.IsTempID(goal.ID) {
		changes, err := o.store.OfflineChanges(ctx)
		if err != nil {
			return model.Goal{}, fmt.Errorf("failed to read change log: %w", err)
		}
		for _, ch := range changes {
			if ch.Type == model.ChangeCreate && ch.GoalID == goal.ID {
				if err := o.store.RemoveChange(ctx, ch.ID); err != nil {
					return model.Goal{}, fmt.Errorf("failed to supersede create: %w", err)
				}
				break
			}
		}
		changeType = model.ChangeCreate
	}
	if _, err := o.store.RecordOfflineChange(ctx, changeType, goal.ID, payload); err != nil {
		return model.Goal{}, fmt.Errorf("failed to log update: %w", err)
	}

	o.listeners.notify(Event{Type: EventGoalUpdated, Goal: &goal})
	return goal, nil
}

// DeleteGoalOffline removes a goal optimistically. Deleting a goal the
// server never saw just discards its pending local changes; nothing is
// pushed for it.
func (o *Orchestrator) DeleteGoalOffline(ctx context.Context, id string) error {
	if err := o.store.RemoveGoal(ctx, id); err != nil {
		return fmt.Errorf("failed to remove goal: %w", err)
	}

	if model.IsTempID(id) {
		changes, err := o.store.OfflineChanges(ctx)
		if err != nil {
			return fmt.Errorf("failed to read change log: %w", err)
		}
		for _, ch := range changes {
			if ch.GoalID == id {
				if err := o.store.RemoveChange(ctx, ch.ID); err != nil {
					return fmt.Errorf("failed to discard change: %w", err)
				}
			}
		}
	} else {
		if _, err := o.store.RecordOfflineChange(ctx, model.ChangeDelete, id, nil); err != nil {
			return fmt.Errorf("failed to log delete: %w", err)
		}
	}

	o.listeners.notify(Event{Type: EventGoalDeleted, Goal: &model.Goal{ID: id}})
	return nil
}

// RecordProgressUpdate logs a local progress recalculation so peers know
// the cache is ahead. Drained without a network call on the next sync.
func (o *Orchestrator) RecordProgressUpdate(ctx context.Context, goalID string) error {
	_, err := o.store.RecordOfflineChange(ctx, model.ChangeProgressUpdate, goalID, nil)
	return err
}

// SetOnline feeds connectivity transitions into the state machine. A
// restored connection syncs after a stability delay; a loss mid-sync
// cancels the in-flight pass and any scheduled retries.
func (o *Orchestrator) SetOnline(online bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	changed := o.isOnline != online
	o.isOnline = online

	if o.cancelStability != nil {
		o.cancelStability()
		o.cancelStability = nil
	}

	if online && changed {
		o.cancelStability = o.cfg.Scheduler.After(o.cfg.StabilityDelay, func() {
			o.mu.Lock()
			o.cancelStability = nil
			ok := o.isOnline && !o.closed
			o.mu.Unlock()
			if ok {
				o.checkAndSync(context.Background())
			}
		})
	}

	if !online {
		if o.cancelRetry != nil {
			o.cancelRetry()
			o.cancelRetry = nil
		}
		if o.cancelSync != nil {
			o.cancelSync()
		}
		o.retryCount = 0
	}
	o.mu.Unlock()

	if changed {
		log.Printf("[SyncOrchestrator] Connectivity changed - online=%v", online)
		o.listeners.notify(Event{Type: EventOnlineChanged, Online: online})
	}
}

// HandleForeground runs a check-and-sync when the app returns to the
// foreground and the connection is up.
func (o *Orchestrator) HandleForeground(ctx context.Context) {
	o.mu.Lock()
	online := o.isOnline && !o.closed
	o.mu.Unlock()
	if !online {
		return
	}
	o.checkAndSync(ctx)
}

// Status returns a snapshot of the sync state machine.
func (o *Orchestrator) Status() model.SyncMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.SyncMetadata{
		LastSync:   o.lastSync,
		IsOnline:   o.isOnline,
		IsSyncing:  o.isSyncing,
		RetryCount: o.retryCount,
	}
}

// Close stops timers and cancels any in-flight sync. The orchestrator is
// unusable afterwards.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	if o.stopAutoSync != nil {
		o.stopAutoSync()
		o.stopAutoSync = nil
	}
	if o.cancelRetry != nil {
		o.cancelRetry()
		o.cancelRetry = nil
	}
	if o.cancelStability != nil {
		o.cancelStability()
		o.cancelStability = nil
	}
	if o.cancelSync != nil {
		o.cancelSync()
	}
	log.Printf("[SyncOrchestrator] Closed")
	return nil
}
