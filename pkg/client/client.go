// Package client talks to a running devstack daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotFound is returned when the daemon answers 404.
var ErrNotFound = errors.New("not found")

// Client provides HTTP client functionality to communicate with the devstack daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

const defaultBaseURL = "http://127.0.0.1:7420/api"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/services", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// --- Services ---

func (c *Client) Services(ctx context.Context) ([]Service, error) {
	var out []Service
	err := c.do(ctx, http.MethodGet, "/services", nil, &out)
	return out, err
}

func (c *Client) Service(ctx context.Context, id string) (Service, error) {
	var out Service
	err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ServiceAction runs start, stop or restart and returns the resulting state.
func (c *Client) ServiceAction(ctx context.Context, id, action string) (Service, error) {
	switch action {
	case "start", "stop", "restart":
	default:
		return Service{}, fmt.Errorf("unknown service action %q", action)
	}
	c.logger.Debug("Service action", "service", id, "action", action)
	var out Service
	err := c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(id)+"/"+action, nil, &out)
	return out, err
}

func (c *Client) ServiceHealth(ctx context.Context, id string) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(id)+"/health", nil, &out)
	return out, err
}

// --- Projects ---

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &out)
	return out, err
}

func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var out Project
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &out)
	return out, err
}

// AddProject stores p. The daemon assigns an id and detects the type when
// they are empty.
func (c *Client) AddProject(ctx context.Context, p Project) (Project, error) {
	p.Process = nil
	var out Project
	err := c.do(ctx, http.MethodPost, "/projects", p, &out)
	return out, err
}

func (c *Client) RemoveProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

// ProjectAction runs start, stop or restart. Stop returns no process info.
func (c *Client) ProjectAction(ctx context.Context, id, action string) (*ProcessInfo, error) {
	path := "/projects/" + url.PathEscape(id) + "/" + action
	switch action {
	case "stop":
		return nil, c.do(ctx, http.MethodPost, path, nil, nil)
	case "start", "restart":
		var out ProcessInfo
		if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, fmt.Errorf("unknown project action %q", action)
}

// Logs returns up to n retained output lines of a project.
func (c *Client) Logs(ctx context.Context, id string, n int) ([]LogLine, error) {
	var out []LogLine
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id)+"/logs?n="+strconv.Itoa(n), nil, &out)
	return out, err
}

func (c *Client) Detect(ctx context.Context, path string) (Detection, error) {
	var out Detection
	err := c.do(ctx, http.MethodGet, "/detect?path="+url.QueryEscape(path), nil, &out)
	return out, err
}

// Cleanup returns the lines logged by the daemon's startup cleanup.
func (c *Client) Cleanup(ctx context.Context) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.do(ctx, http.MethodGet, "/cleanup", nil, &out)
	return out.Lines, err
}

// do sends body as JSON and decodes a 2xx answer into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		errorResp.Error = http.StatusText(resp.StatusCode)
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errorResp.Error)
	}
	return fmt.Errorf("API error (%d): %s", resp.StatusCode, errorResp.Error)
}
