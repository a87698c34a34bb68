package handler

import (
	"encoding/json"
	"net/http"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/sync"
	"greencart-sync-api/pkg/apierror"
	"greencart-sync-api/pkg/response"
)

// SyncHandler exposes the orchestrator over the control plane.
type SyncHandler struct {
	store cache.GoalCache
	orch  *sync.Orchestrator
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(store cache.GoalCache, orch *sync.Orchestrator) *SyncHandler {
	return &SyncHandler{store: store, orch: orch}
}

// TriggerSync handles POST /api/v1/sync
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body) // empty body means force=false
		r.Body.Close()
	}

	summary, err := h.orch.PerformSync(r.Context(), body.Force)
	if err != nil {
		response.Error(w, apierror.ServiceUnavailable(err.Error()))
		return
	}

	// A forced request only gets skipped when another pass holds the
	// syncing flag; surface that as a conflict instead of a silent no-op.
	if summary.Skipped && body.Force {
		response.Error(w, apierror.Conflict("sync already in progress"))
		return
	}

	response.OK(w, map[string]interface{}{"summary": summary})
}

// Status handles GET /api/v1/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	needs, err := h.store.NeedsSync(r.Context(), 0)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to inspect cache"))
		return
	}

	response.OK(w, map[string]interface{}{
		"sync":             h.orch.Status(),
		"unsynced_changes": needs.UnsyncedChanges,
	})
}

// Debug handles GET /api/v1/sync/debug
func (h *SyncHandler) Debug(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.DebugInfo(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read cache debug info"))
		return
	}
	response.OK(w, info)
}

// Foreground handles POST /api/v1/lifecycle/foreground
func (h *SyncHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.orch.HandleForeground(r.Context())
	response.OK(w, map[string]interface{}{"status": "handled"})
}
