package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/model"
	"greencart-sync-api/internal/sync"
	"greencart-sync-api/pkg/apierror"
	"greencart-sync-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// GoalHandler serves goal reads from the cache and routes mutations
// through the sync orchestrator so they work offline.
type GoalHandler struct {
	store cache.GoalCache
	orch  *sync.Orchestrator
}

// NewGoalHandler creates a new goal handler.
func NewGoalHandler(store cache.GoalCache, orch *sync.Orchestrator) *GoalHandler {
	return &GoalHandler{store: store, orch: orch}
}

// List handles GET /api/v1/goals
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	forceRefresh, _ := strconv.ParseBool(r.URL.Query().Get("force_refresh"))

	res, err := h.store.Goals(r.Context(), forceRefresh)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read goal cache"))
		return
	}

	response.OK(w, map[string]interface{}{
		"goals":  res.Goals,
		"cached": res.Cached,
	})
}

// Create handles POST /api/v1/goals
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var goal model.Goal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	created, err := h.orch.CreateGoalOffline(r.Context(), goal)
	if err != nil {
		response.Error(w, apierror.ValidationError(err.Error()))
		return
	}

	response.Created(w, map[string]interface{}{"goal": created})
}

// Update handles PUT /api/v1/goals/{id}
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, apierror.BadRequest("id is required"))
		return
	}

	var goal model.Goal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()
	goal.ID = id

	if _, err := h.findGoal(r, id); err != nil {
		response.Error(w, err)
		return
	}

	updated, err := h.orch.UpdateGoalOffline(r.Context(), goal)
	if err != nil {
		response.Error(w, apierror.ValidationError(err.Error()))
		return
	}

	response.OK(w, map[string]interface{}{"goal": updated})
}

// Delete handles DELETE /api/v1/goals/{id}
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, apierror.BadRequest("id is required"))
		return
	}

	if _, err := h.findGoal(r, id); err != nil {
		response.Error(w, err)
		return
	}

	if err := h.orch.DeleteGoalOffline(r.Context(), id); err != nil {
		response.Error(w, apierror.InternalError("failed to delete goal"))
		return
	}

	response.NoContent(w)
}

// findGoal looks a goal up in the cache.
func (h *GoalHandler) findGoal(r *http.Request, id string) (model.Goal, error) {
	res, err := h.store.Goals(r.Context(), false)
	if err != nil {
		return model.Goal{}, apierror.InternalError("failed to read goal cache")
	}
	for _, g := range res.Goals {
		if g.ID == id {
			return g, nil
		}
	}
	return model.Goal{}, apierror.NotFound("goal not found")
}
