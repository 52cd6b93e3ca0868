package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"todo-sync/app/models"
)

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// Client talks to the task REST API.
type Client struct {
	baseURL string
	token   string
	userID  string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithUserID identifies the user the requests act for.
func WithUserID(id string) ClientOption {
	return func(c *Client) { c.userID = id }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithTimeout bounds every request. Zero means no timeout. The HTTP client
// in use is copied, so one passed to WithHTTPClient is left as it was.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTasks implements RemoteTaskService.
func (c *Client) FetchTasks(ctx context.Context, filter models.Filter) ([]models.Task, error) {
	q := url.Values{}
	if filter.ProjectID != nil {
		q.Set("project_id", *filter.ProjectID)
	}
	if filter.IncludeDone {
		q.Set("include_done", strconv.FormatBool(true))
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []models.Task
	if err := c.do(ctx, "fetch tasks", http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask implements RemoteTaskService.
func (c *Client) CreateTask(ctx context.Context, in models.CreateInput) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, "create task", http.MethodPost, "/tasks", in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateInfo implements RemoteTaskService.
func (c *Client) UpdateInfo(ctx context.Context, id string, patch models.Patch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, "update task", http.MethodPatch, "/tasks/"+url.PathEscape(id), patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateStatus implements RemoteTaskService.
func (c *Client) UpdateStatus(ctx context.Context, id string, isDone bool) (*models.Task, error) {
	body := struct {
		IsDone bool `json:"is_done"`
	}{isDone}
	var task models.Task
	if err := c.do(ctx, "update status", http.MethodPut, "/tasks/"+url.PathEscape(id)+"/status", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask implements RemoteTaskService.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: text}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}
