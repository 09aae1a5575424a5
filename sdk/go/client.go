package taskranksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal taskrank HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// OwnerID is sent as X-Owner-Id when no token is set. Servers accept it only in development.
	OwnerID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Task mirrors the API task model.
type Task struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DueDate       string `json:"due_date"`
	Effort        string `json:"effort"`
	Priority      string `json:"priority"`
	PriorityScore int    `json:"priority_score"`
	Status        string `json:"status"`
	OwnerID       string `json:"owner_id"`
	Source        string `json:"source"`
	ExternalID    string `json:"external_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ImportResult counts what one import run did.
type ImportResult struct {
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Normalized int `json:"normalized"`
	Dropped    int `json:"dropped"`
	Written    int `json:"written"`
}

// ImportRun is one entry of the import history.
type ImportRun struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Normalized int    `json:"normalized"`
	Dropped    int    `json:"dropped"`
	Skipped    int    `json:"skipped"`
	Written    int    `json:"written"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// Event represents a log entry.
type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	Payload  string `json:"payload_json"`
}

// CreateTaskInput is the body of a create call. DueDate must be RFC3339.
type CreateTaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date"`
	Effort      string `json:"effort"`
}

// ImportInput selects the card source; an empty Source uses the server default.
type ImportInput struct {
	Source       string `json:"source,omitempty"`
	SkipExisting bool   `json:"skip_existing,omitempty"`
	Atomic       bool   `json:"atomic,omitempty"`
}

// ListOptions filters task listings.
type ListOptions struct {
	Priority string
	Status   string
	Limit    int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task; the server computes priority.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", in, &resp)
	return resp, err
}

// ListTasks returns tasks ordered by due date.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]Task, error) {
	q := url.Values{}
	if opts.Priority != "" {
		q.Set("priority", opts.Priority)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	endpoint := "v0/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/tasks/"+url.PathEscape(id), nil, nil)
}

// Import runs a card import for the signed-in user.
func (c *Client) Import(ctx context.Context, in ImportInput) (ImportResult, error) {
	var resp ImportResult
	err := c.do(ctx, http.MethodPost, "v0/imports", in, &resp)
	return resp, err
}

// ImportHistory returns recent import runs, newest first.
func (c *Client) ImportHistory(ctx context.Context, limit int) ([]ImportRun, error) {
	endpoint := "v0/imports/history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []ImportRun `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.OwnerID != "":
		req.Header.Set("X-Owner-Id", c.OwnerID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
