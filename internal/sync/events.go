package sync

import (
	"log"
	gosync "sync"

	"greencart-sync-api/internal/model"
)

// EventType identifies what the orchestrator is announcing.
type EventType string

const (
	EventSyncStarted    EventType = "sync_started"
	EventSyncComplete   EventType = "sync_complete"
	EventSyncError      EventType = "sync_error"
	EventGoalCreated    EventType = "goal_created"
	EventGoalUpdated    EventType = "goal_updated"
	EventGoalDeleted    EventType = "goal_deleted"
	EventConflictNotice EventType = "conflicts_resolved"
	EventOnlineChanged  EventType = "online_changed"
)

// Event is one orchestrator notification. Only the fields relevant to the
// Type are set.
type Event struct {
	Type      EventType          `json:"type"`
	Goal      *model.Goal        `json:"goal,omitempty"`
	Summary   *model.SyncSummary `json:"summary,omitempty"`
	Conflicts []model.Conflict   `json:"conflicts,omitempty"`
	Online    bool               `json:"online,omitempty"`
	Err       string             `json:"error,omitempty"`
}

// Listener receives orchestrator events. Listeners run synchronously on the
// notifying goroutine and must not block.
type Listener func(Event)

// listenerRegistry fans events out to subscribers. Panicking listeners are
// isolated so one bad subscriber cannot take down a sync pass.
type listenerRegistry struct {
	mu        gosync.Mutex
	nextID    int
	listeners map[int]Listener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{listeners: make(map[int]Listener)}
}

// add registers a listener and returns its unsubscribe func.
func (r *listenerRegistry) add(fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// notify delivers the event to every registered listener.
func (r *listenerRegistry) notify(ev Event) {
	r.mu.Lock()
	snapshot := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		safeCall(fn, ev)
	}
}

func safeCall(fn Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[SyncOrchestrator] Listener panic on %s: %v", ev.Type, rec)
		}
	}()
	fn(ev)
}
