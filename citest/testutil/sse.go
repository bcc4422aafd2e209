package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/operate-experience/navsync/pkg/types"
)

// HeartbeatEvent is the Type recorded for SSE comment lines.
const HeartbeatEvent = "heartbeat"

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope decodes the event data as a relay push message.
func (evt *SSEEvent) Envelope() (types.Envelope, error) {
	return types.ParseEnvelope(evt.Data)
}

// Decode unmarshals the event data into v.
func (evt *SSEEvent) Decode(v any) error {
	return json.Unmarshal(evt.Data, v)
}

// SSEClient provides SSE client utilities for testing
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu       sync.Mutex
	events   []SSEEvent
	eventsCh chan SSEEvent
	errCh    chan error
	cancel   context.CancelFunc
	body     io.ReadCloser
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		eventsCh:   make(chan SSEEvent, 100),
		errCh:      make(chan error, 1),
	}
}

// Connect starts the SSE connection
func (c *SSEClient) Connect(ctx context.Context, path string, opts ...RequestOption) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", contentType)
	}

	c.body = resp.Body
	go c.readEvents(resp.Body)

	return nil
}

func (c *SSEClient) readEvents(body io.Reader) {
	defer func() {
		close(c.eventsCh)
		close(c.errCh)
	}()

	reader := bufio.NewReader(body)
	var id, eventType string
	var data []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && err != context.Canceled {
				c.errCh <- err
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		// Empty line = event complete
		if line == "" {
			if len(data) > 0 {
				c.record(SSEEvent{
					ID:   id,
					Type: eventType,
					Data: json.RawMessage(strings.Join(data, "\n")),
				})
			}
			id, eventType, data = "", "", nil
			continue
		}

		if strings.HasPrefix(line, ":") {
			c.record(SSEEvent{Type: HeartbeatEvent})
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			id = value
		case "event":
			eventType = value
		case "data":
			data = append(data, value)
		}
	}
}

func (c *SSEClient) record(evt SSEEvent) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()

	select {
	case c.eventsCh <- evt:
	default:
		// Channel full, drop event
	}
}

// Events returns the event channel
func (c *SSEClient) Events() <-chan SSEEvent {
	return c.eventsCh
}

// WaitForEvent waits for a specific event type with timeout
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	return c.WaitFor(func(evt SSEEvent) bool { return evt.Type == eventType }, timeout)
}

// WaitFor waits for the first event matching fn.
func (c *SSEClient) WaitFor(fn func(SSEEvent) bool, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.eventsCh:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			if fn(evt) {
				return &evt, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event")
		}
	}
}

// WaitForEnvelope waits for the next relay message of type t.
func (c *SSEClient) WaitForEnvelope(t types.EnvelopeType, timeout time.Duration) (types.Envelope, error) {
	var env types.Envelope
	_, err := c.WaitFor(func(evt SSEEvent) bool {
		if evt.Type == HeartbeatEvent {
			return false
		}
		e, err := evt.Envelope()
		if err != nil || e.EnvelopeType() != t {
			return false
		}
		env = e
		return true
	}, timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", t, err)
	}
	return env, nil
}

// WaitForHeartbeat waits for a heartbeat with timeout
func (c *SSEClient) WaitForHeartbeat(timeout time.Duration) error {
	_, err := c.WaitForEvent(HeartbeatEvent, timeout)
	return err
}

// CollectEvents collects events for a duration
func (c *SSEClient) CollectEvents(duration time.Duration) []SSEEvent {
	var collected []SSEEvent
	deadline := time.After(duration)
	for {
		select {
		case evt, ok := <-c.eventsCh:
			if !ok {
				return collected
			}
			collected = append(collected, evt)
		case <-deadline:
			return collected
		}
	}
}

// GetAllEvents returns all received events
func (c *SSEClient) GetAllEvents() []SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]SSEEvent, len(c.events))
	copy(result, c.events)
	return result
}

// CountEventType counts events of a specific type
func (c *SSEClient) CountEventType(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, evt := range c.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// Close closes the SSE connection
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}
