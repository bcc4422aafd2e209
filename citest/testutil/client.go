package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/operate-experience/navsync/internal/navigation"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

func (c *TestClient) do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Relay Helpers ----

// Published is the relay's answer to a publish.
type Published struct {
	ID    string                `json:"id"`
	Event types.NavigationEvent `json:"event"`
}

// SendNavigation posts an event to a relay's /api/navigate.
func (c *TestClient) SendNavigation(ctx context.Context, ev types.NavigationEvent) (*Published, error) {
	resp, err := c.Post(ctx, "/api/navigate", ev)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("failed to publish: %d - %s", resp.StatusCode, resp.String())
	}

	var out Published
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Navigate publishes a plain NAVIGATE event for target.
func (c *TestClient) Navigate(ctx context.Context, target, path string, data types.EventData) (*Published, error) {
	return c.SendNavigation(ctx, types.NavigationEvent{
		TargetAppID: target,
		Action:      types.ActionNavigate,
		Route:       path,
		Data:        data,
	})
}

// RelayHistory returns the relay's bounded history, newest first.
func (c *TestClient) RelayHistory(ctx context.Context) ([]types.NavigationEvent, error) {
	var events []types.NavigationEvent
	if err := c.getJSON(ctx, "/api/history", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ---- Agent Helpers ----

// Status mirrors the agent's /status body.
type Status struct {
	AppID   string           `json:"appId"`
	Channel ChannelStatus    `json:"channel"`
	Router  navigation.Stats `json:"router"`
}

// ChannelStatus is the connection part of Status.
type ChannelStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	ClientID  string `json:"clientId"`
	Error     string `json:"error"`
	Attempt   int    `json:"attempt"`
}

// Location mirrors the agent's /location body.
type Location struct {
	Current route.Location `json:"current"`
	Entries []string       `json:"entries"`
	Moved   *bool          `json:"moved"`
}

// Status fetches the agent status.
func (c *TestClient) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// History fetches the agent's event history, newest first.
func (c *TestClient) History(ctx context.Context) ([]types.NavigationEvent, error) {
	var events []types.NavigationEvent
	if err := c.getJSON(ctx, "/history", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Location fetches the agent's current location.
func (c *TestClient) Location(ctx context.Context) (*Location, error) {
	var loc Location
	if err := c.getJSON(ctx, "/location", &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// Page fetches the mounted page state.
func (c *TestClient) Page(ctx context.Context) (*page.State, error) {
	var st page.State
	if err := c.getJSON(ctx, "/page", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *TestClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("GET %s: %d - %s", path, resp.StatusCode, resp.String())
	}
	return resp.JSON(v)
}

// ---- Assertion Helpers ----

// Routes returns the route of each event, in order.
func Routes(events []types.NavigationEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Route
	}
	return out
}

// ContainsSubstring checks if any string in slice contains substring
func ContainsSubstring(slice []string, substr string) bool {
	for _, s := range slice {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
