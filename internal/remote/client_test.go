package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greencart-sync-api/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{
		BaseURL:     srv.URL,
		AccessToken: "tok-123",
		UserID:      "user-1",
		Timeout:     2 * time.Second,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": status < 400, "data": data})
}

func TestListGoalsSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotUser string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get("X-User-ID")
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"goals": []model.Goal{{ID: "g-1", Title: "test"}},
		})
	}))

	goals, err := client.ListGoals(context.Background())
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].ID != "g-1" {
		t.Errorf("goals = %+v", goals)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotUser != "user-1" {
		t.Errorf("X-User-ID = %q", gotUser)
	}
}

func TestCreateGoalStripsTempID(t *testing.T) {
	var wireID string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var received model.Goal
		json.NewDecoder(r.Body).Decode(&received)
		wireID = received.ID
		received.ID = "srv-42"
		writeEnvelope(w, http.StatusCreated, map[string]interface{}{"goal": received})
	}))

	created, err := client.CreateGoal(context.Background(), model.Goal{
		ID:    model.NewTempID(time.Now()),
		Title: "offline goal",
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if wireID != "" {
		t.Errorf("server received id %q, want empty", wireID)
	}
	if created.ID != "srv-42" {
		t.Errorf("created.ID = %q, want server-assigned id", created.ID)
	}
}

func TestDeleteGoalTreats404AsGone(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "NOT_FOUND", "message": "no such goal"},
		})
	}))

	if err := client.DeleteGoal(context.Background(), "g-missing"); err != nil {
		t.Errorf("DeleteGoal on 404 should succeed, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
			}))

			_, err := client.ListGoals(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // connection refused from here on

	client := NewHTTPClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := client.ListGoals(context.Background())
	if err == nil {
		t.Fatal("expected network error")
	}
	if !IsRetryable(err) {
		t.Errorf("network failure should be retryable: %v", err)
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("ping used %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
