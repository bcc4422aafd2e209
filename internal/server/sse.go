package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// SSEWriter wraps http.ResponseWriter for SSE.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	timeout time.Duration
}

// NewSSEWriter sets the event-stream headers, writes the status line and
// flushes it so the client sees the stream open before the first event.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	// Use ResponseController for more reliable flushing (Go 1.20+)
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	s := &SSEWriter{w: w, flusher: flusher, rc: rc}
	_ = s.flush()
	return s, nil
}

// SetWriteTimeout bounds every later write, flush included. A client that
// stops reading makes the write fail once d has passed. Zero disables it.
func (s *SSEWriter) SetWriteTimeout(d time.Duration) {
	s.timeout = d
}

// WriteEvent writes a named event. An empty id omits the id field.
func (s *SSEWriter) WriteEvent(id, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.WriteRaw(id, eventType, jsonData)
}

// WriteRaw writes pre-encoded data. Multi-line data is split into several
// data fields.
func (s *SSEWriter) WriteRaw(id, eventType string, data []byte) error {
	var b strings.Builder
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if eventType != "" {
		fmt.Fprintf(&b, "event: %s\n", eventType)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	return s.write(b.String())
}

// WriteHeartbeat writes an SSE heartbeat comment.
func (s *SSEWriter) WriteHeartbeat() error {
	return s.write(": heartbeat\n\n")
}

func (s *SSEWriter) write(frame string) error {
	if s.timeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	return s.flush()
}

func (s *SSEWriter) flush() error {
	// Flush immediately using ResponseController (more reliable than Flusher interface)
	// This ensures data is sent even through middleware wrappers
	err := s.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		s.flusher.Flush()
		return nil
	}
	return err
}

// localEvents streams local bus signals (used by /event endpoint).
// The first event is the current connection status.
func (s *Server) localEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if err := sse.WriteEvent("", string(event.StatusChanged), s.svc.ChannelStatus().Signal()); err != nil {
		return
	}

	// Channel for events - use small buffer for low-latency streaming
	events := make(chan event.Event, 16)

	unsub := s.svc.Bus().SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	// Heartbeat ticker
	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	// Wait for client disconnect or context cancellation
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case e := <-events:
			if err := sse.WriteEvent("", string(e.Type), e.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.WriteHeartbeat(); err != nil {
				return
			}
		}
	}
}
