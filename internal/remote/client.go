// Package remote talks to the GreenCart goal service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"greencart-sync-api/internal/model"
)

// Client is the remote goal store as the sync engine sees it. The HTTP
// implementation below is the production one; tests substitute fakes.
type Client interface {
	// ListGoals fetches the authoritative goal set for the user.
	ListGoals(ctx context.Context) ([]model.Goal, error)

	// GoalStats fetches the server-computed goal statistics.
	GoalStats(ctx context.Context) (model.GoalStats, error)

	// CreateGoal creates a goal server-side and returns it with the
	// server-assigned id.
	CreateGoal(ctx context.Context, goal model.Goal) (model.Goal, error)

	// UpdateGoal replaces the server copy of the goal.
	UpdateGoal(ctx context.Context, goal model.Goal) (model.Goal, error)

	// DeleteGoal removes the goal server-side. Deleting an id the server
	// no longer has is not an error.
	DeleteGoal(ctx context.Context, id string) error

	// Ping checks reachability with a lightweight request.
	Ping(ctx context.Context) error
}

// Error is a remote call failure carrying the HTTP status when one was
// received. Status 0 means the request never completed (network error).
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Status, e.Message)
}

// IsRetryable reports whether the error is transient: network failures and
// server-side errors are worth retrying with backoff, client errors are not.
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Status == 0 || re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	return false
}

// IsNotFound reports whether the error is a remote 404.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// Config holds the connection settings for the HTTP client.
type Config struct {
	BaseURL     string
	AccessToken string
	UserID      string
	Timeout     time.Duration
}

// HTTPClient implements Client against the goal service REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// NewHTTPClient builds a client for the goal service.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		userID:  cfg.UserID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope is the goal service's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// do issues one request and decodes the envelope. out may be nil when the
// caller only cares about success.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &Error{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			msg = env.Error.Message
		}
		return &Error{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode data: %v", err)}
		}
	}
	return nil
}

// ListGoals fetches the authoritative goal set.
func (c *HTTPClient) ListGoals(ctx context.Context) ([]model.Goal, error) {
	var payload struct {
		Goals []model.Goal `json:"goals"`
	}
	if err := c.do(ctx, "list goals", http.MethodGet, "/api/goals", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Goals, nil
}

// GoalStats fetches the server-computed statistics.
func (c *HTTPClient) GoalStats(ctx context.Context) (model.GoalStats, error) {
	var payload struct {
		Stats model.GoalStats `json:"stats"`
	}
	if err := c.do(ctx, "goal stats", http.MethodGet, "/api/goals/stats", nil, &payload); err != nil {
		return model.GoalStats{}, err
	}
	return payload.Stats, nil
}

// CreateGoal creates a goal server-side. The returned goal carries the
// server-assigned id replacing any temporary client id.
func (c *HTTPClient) CreateGoal(ctx context.Context, goal model.Goal) (model.Goal, error) {
	// Never leak client-side temp ids to the server.
	if model.IsTempID(goal.ID) {
		goal.ID = ""
	}

	var payload struct {
		Goal model.Goal `json:"goal"`
	}
	if err := c.do(ctx, "create goal", http.MethodPost, "/api/goals", goal, &payload); err != nil {
		return model.Goal{}, err
	}
	return payload.Goal, nil
}

// UpdateGoal replaces the server copy of the goal.
func (c *HTTPClient) UpdateGoal(ctx context.Context, goal model.Goal) (model.Goal, error) {
	var payload struct {
		Goal model.Goal `json:"goal"`
	}
	if err := c.do(ctx, "update goal", http.MethodPut, "/api/goals/"+goal.ID, goal, &payload); err != nil {
		return model.Goal{}, err
	}
	return payload.Goal, nil
}

// DeleteGoal removes the goal server-side. A 404 counts as success: the
// goal is gone either way.
func (c *HTTPClient) DeleteGoal(ctx context.Context, id string) error {
	err := c.do(ctx, "delete goal", http.MethodDelete, "/api/goals/"+id, nil, nil)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// Ping checks reachability. Used by the connectivity monitor; a HEAD keeps
// it cheap on both ends.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/api/health", nil)
	if err != nil {
		return &Error{Op: "ping", Message: err.Error()}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: "ping", Message: err.Error()}
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &Error{Op: "ping", Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
