package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/model"
	"greencart-sync-api/internal/progress"
	"greencart-sync-api/internal/sync"
	"greencart-sync-api/pkg/apierror"
	"greencart-sync-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ProgressHandler computes goal progress over the purchase history the host
// application pushes in. The history lives in memory only; it is input
// data, not state this engine owns.
type ProgressHandler struct {
	store cache.GoalCache
	orch  *sync.Orchestrator

	mu      gosync.RWMutex
	history []model.Purchase
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(store cache.GoalCache, orch *sync.Orchestrator) *ProgressHandler {
	return &ProgressHandler{store: store, orch: orch}
}

// SetHistory handles PUT /api/v1/progress/history
func (h *ProgressHandler) SetHistory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Purchases []model.Purchase `json:"purchases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	h.mu.Lock()
	h.history = body.Purchases
	h.mu.Unlock()

	response.OK(w, map[string]interface{}{"purchases": len(body.Purchases)})
}

func (h *ProgressHandler) snapshot() []model.Purchase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Purchase, len(h.history))
	copy(out, h.history)
	return out
}

// parseOptions reads computation options from query parameters.
func parseOptions(r *http.Request) (progress.Options, error) {
	q := r.URL.Query()
	opts := progress.Options{}

	opts.CountPartialProgress, _ = strconv.ParseBool(q.Get("partial"))
	opts.IncludeProjection, _ = strconv.ParseBool(q.Get("projection"))
	switch q.Get("weight_by") {
	case "", "count":
	case "price":
		opts.WeightByPrice = true
	case "quantity":
		opts.WeightByQuantity = true
	default:
		return opts, apierror.BadRequest("weight_by must be count, price or quantity")
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		tr := &progress.TimeRange{}
		if from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return opts, apierror.BadRequest("from must be RFC3339")
			}
			tr.From = t
		}
		if to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				return opts, apierror.BadRequest("to must be RFC3339")
			}
			tr.To = t
		}
		opts.Timeframe = tr
	}
	return opts, nil
}

// GoalProgress handles GET /api/v1/goals/{id}/progress
func (h *ProgressHandler) GoalProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	opts, err := parseOptions(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	res, err := h.store.Goals(r.Context(), false)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read goal cache"))
		return
	}

	var goal *model.Goal
	for i := range res.Goals {
		if res.Goals[i].ID == id {
			goal = &res.Goals[i]
			break
		}
	}
	if goal == nil {
		response.Error(w, apierror.NotFound("goal not found"))
		return
	}

	result := progress.Calculate(goal, h.snapshot(), opts)
	result.ComputedAt = time.Now().UTC()

	response.OK(w, map[string]interface{}{"progress": result})
}

// BatchRequest is the body for POST /api/v1/progress/batch.
type BatchRequest struct {
	// GoalIDs restricts computation; empty means every cached goal.
	GoalIDs []string `json:"goal_ids,omitempty"`

	// Purchases overrides the pushed history for this computation.
	Purchases []model.Purchase `json:"purchases,omitempty"`

	Options struct {
		Partial    bool   `json:"partial"`
		WeightBy   string `json:"weight_by"`
		Projection bool   `json:"projection"`
	} `json:"options"`

	// Record logs a progress_update change per goal so the next sync
	// pass knows local progress moved.
	Record bool `json:"record"`
}

// Batch handles POST /api/v1/progress/batch
func (h *ProgressHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	opts := progress.Options{
		CountPartialProgress: req.Options.Partial,
		IncludeProjection:    req.Options.Projection,
	}
	switch req.Options.WeightBy {
	case "", "count":
	case "price":
		opts.WeightByPrice = true
	case "quantity":
		opts.WeightByQuantity = true
	default:
		response.Error(w, apierror.BadRequest("weight_by must be count, price or quantity"))
		return
	}

	res, err := h.store.Goals(r.Context(), false)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read goal cache"))
		return
	}

	goals := res.Goals
	if len(req.GoalIDs) > 0 {
		wanted := make(map[string]bool, len(req.GoalIDs))
		for _, id := range req.GoalIDs {
			wanted[id] = true
		}
		filtered := goals[:0:0]
		for _, g := range goals {
			if wanted[g.ID] {
				filtered = append(filtered, g)
			}
		}
		goals = filtered
	}

	history := req.Purchases
	if history == nil {
		history = h.snapshot()
	}

	results := progress.BatchCalculate(goals, history, opts)
	now := time.Now().UTC()
	for i := range results {
		results[i].ComputedAt = now
	}

	if req.Record {
		for _, g := range goals {
			if err := h.orch.RecordProgressUpdate(r.Context(), g.ID); err != nil {
				response.Error(w, apierror.InternalError("failed to record progress update"))
				return
			}
		}
	}

	response.OK(w, map[string]interface{}{"results": results})
}
