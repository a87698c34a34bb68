package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/handler"
	"greencart-sync-api/internal/model"
	"greencart-sync-api/internal/remote"
	"greencart-sync-api/internal/router"
	"greencart-sync-api/internal/sync"
)

// stubRemote is a minimal in-memory goal service for control-plane tests.
type stubRemote struct {
	goals  map[string]model.Goal
	nextID int
}

func newStubRemote() *stubRemote {
	return &stubRemote{goals: map[string]model.Goal{}}
}

func (s *stubRemote) ListGoals(ctx context.Context) ([]model.Goal, error) {
	out := make([]model.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	return out, nil
}

func (s *stubRemote) GoalStats(ctx context.Context) (model.GoalStats, error) {
	return model.GoalStats{TotalGoals: len(s.goals)}, nil
}

func (s *stubRemote) CreateGoal(ctx context.Context, goal model.Goal) (model.Goal, error) {
	s.nextID++
	goal.ID = "srv-" + time.Now().Format("150405") + "-" + string(rune('a'+s.nextID))
	s.goals[goal.ID] = goal
	return goal, nil
}

func (s *stubRemote) UpdateGoal(ctx context.Context, goal model.Goal) (model.Goal, error) {
	s.goals[goal.ID] = goal
	return goal, nil
}

func (s *stubRemote) DeleteGoal(ctx context.Context, id string) error {
	delete(s.goals, id)
	return nil
}

func (s *stubRemote) Ping(ctx context.Context) error { return nil }

var _ remote.Client = (*stubRemote)(nil)

func newTestServer(t *testing.T) (*httptest.Server, cache.GoalCache) {
	t.Helper()

	store := cache.NewMemoryCache()
	orch := sync.New(store, newStubRemote(), sync.Config{})
	t.Cleanup(func() { orch.Close() })
	orch.SetOnline(true)

	r := router.New(router.Config{
		Handler:         handler.New(store),
		GoalHandler:     handler.NewGoalHandler(store, orch),
		SyncHandler:     handler.NewSyncHandler(store, orch),
		ProgressHandler: handler.NewProgressHandler(store, orch),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
	}
	return resp, env
}

func goalBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"goal_type": "grade_based",
		"goal_config": map[string]interface{}{
			"target_grades": []string{"A", "B"},
			"percentage":    80,
		},
		"title": title,
	}
}

func TestGoalLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	// create
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/goals", goalBody("shop greener"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		Goal model.Goal `json:"goal"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode goal: %v", err)
	}
	if !model.IsTempID(created.Goal.ID) {
		t.Errorf("offline create should return a temp id, got %q", created.Goal.ID)
	}

	// list
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/goals", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list struct {
		Goals  []model.Goal `json:"goals"`
		Cached bool         `json:"cached"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Goals) != 1 || list.Goals[0].Title != "shop greener" {
		t.Fatalf("list = %+v", list)
	}

	// update
	update := goalBody("shop even greener")
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/goals/"+created.Goal.ID, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	// delete
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/goals/"+created.Goal.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	// updating the deleted goal is a 404
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/goals/"+created.Goal.ID, update)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("update after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	body := map[string]interface{}{
		"goal_type":   "grade_based",
		"goal_config": map[string]interface{}{"percentage": 80},
		"title":       "no grades",
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/goals", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSyncEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// a forced sync against the stub succeeds
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sync", map[string]bool{"force": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	var sres struct {
		Summary model.SyncSummary `json:"summary"`
	}
	if err := json.Unmarshal(env.Data, &sres); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sres.Summary.Skipped {
		t.Error("forced sync should not be skipped")
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status endpoint = %d", resp.StatusCode)
	}
	var st struct {
		Sync model.SyncMetadata `json:"sync"`
	}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Sync.IsOnline || st.Sync.LastSync.IsZero() {
		t.Errorf("status = %+v", st.Sync)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/sync/debug", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("debug status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/lifecycle/foreground", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("foreground status = %d", resp.StatusCode)
	}
}

// gatedRemote blocks ListGoals so a sync pass can be held in flight.
type gatedRemote struct {
	*stubRemote
	gate    chan struct{}
	listing chan struct{}
}

func (g *gatedRemote) ListGoals(ctx context.Context) ([]model.Goal, error) {
	g.listing <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.stubRemote.ListGoals(ctx)
}

func TestForcedSyncWhileSyncingConflicts(t *testing.T) {
	store := cache.NewMemoryCache()
	gr := &gatedRemote{
		stubRemote: newStubRemote(),
		gate:       make(chan struct{}),
		listing:    make(chan struct{}, 1),
	}
	orch := sync.New(store, gr, sync.Config{})
	t.Cleanup(func() { orch.Close() })
	orch.SetOnline(true)

	r := router.New(router.Config{
		Handler:         handler.New(store),
		GoalHandler:     handler.NewGoalHandler(store, orch),
		SyncHandler:     handler.NewSyncHandler(store, orch),
		ProgressHandler: handler.NewProgressHandler(store, orch),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/api/v1/sync", "application/json", bytes.NewBufferString(`{"force":true}`))
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-gr.listing // first pass is now inside the pull

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sync", map[string]bool{"force": true})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overlapping forced sync status = %d, want 409", resp.StatusCode)
	}

	close(gr.gate)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first sync status = %d", code)
	}
}

func TestProgressOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	// goal to measure
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/goals", goalBody("grades"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		Goal model.Goal `json:"goal"`
	}
	json.Unmarshal(env.Data, &created)

	// push purchase history
	history := map[string]interface{}{
		"purchases": []map[string]interface{}{
			{
				"order_id":   "o1",
				"ordered_at": "2025-06-01T10:00:00Z",
				"items": []map[string]interface{}{
					{"product_id": "p1", "name": "oat milk", "sustainability_grade": "A", "sustainability_score": 92, "category": "dairy", "price": 3.5, "quantity": 1},
					{"product_id": "p2", "name": "chips", "sustainability_grade": "D", "sustainability_score": 31, "category": "snacks", "price": 2.0, "quantity": 1},
				},
			},
		},
	}
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/progress/history", history)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set history status = %d", resp.StatusCode)
	}

	// single goal progress
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/goals/"+created.Goal.ID+"/progress", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d", resp.StatusCode)
	}
	var pres struct {
		Progress model.ProgressResult `json:"progress"`
	}
	if err := json.Unmarshal(env.Data, &pres); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if pres.Progress.TotalItems != 2 || pres.Progress.GoalMetItems != 1 {
		t.Errorf("progress = %+v", pres.Progress)
	}
	if pres.Progress.CurrentPercentage != 50 {
		t.Errorf("percentage = %v, want 50", pres.Progress.CurrentPercentage)
	}
	if pres.Progress.ComputedAt.IsZero() {
		t.Error("ComputedAt not stamped by the handler")
	}

	// batch
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/progress/batch", map[string]interface{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status = %d", resp.StatusCode)
	}
	var bres struct {
		Results []model.ProgressResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &bres); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(bres.Results) != 1 {
		t.Errorf("batch results = %+v", bres.Results)
	}

	// bad weight_by is rejected
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/goals/"+created.Goal.ID+"/progress?weight_by=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad weight_by status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status struct {
		Service string `json:"service"`
	}
	json.Unmarshal(env.Data, &status)
	if status.Service != "greencart-sync-api" {
		t.Errorf("service = %q", status.Service)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}
