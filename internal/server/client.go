package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// APIError is a non-2xx answer of the web API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Detail)
}

// Client talks to a running web API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends token as the bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts a run.
func (c *Client) Submit(ctx context.Context, stages []string, opts *orchestrator.RunOptions) (tasks.Record, error) {
	var rec tasks.Record
	err := c.do(ctx, http.MethodPost, "/run", runRequest{Stages: stages, Options: opts}, &rec)
	return rec, err
}

// List returns tasks, optionally filtered by status.
func (c *Client) List(ctx context.Context, status tasks.Status) ([]tasks.Record, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get returns one task.
func (c *Client) Get(ctx context.Context, id string) (tasks.Record, error) {
	var rec tasks.Record
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// Abort requests cancellation of a task.
func (c *Client) Abort(ctx context.Context, id, reason string) (tasks.Record, error) {
	var rec tasks.Record
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/abort", abortRequest{Reason: reason}, &rec)
	return rec, err
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
			apiErr.Detail = e.Detail
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
