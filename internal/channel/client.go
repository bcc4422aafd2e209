package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/pkg/types"
)

// DefaultPath is the push channel path under the base URL.
const DefaultPath = "/api/sse"

var (
	// ErrNotConnected is returned by Reconnect when Connect was never
	// called or the client was closed.
	ErrNotConnected = errors.New("channel: not connected")

	errIdleTimeout  = errors.New("idle timeout")
	errStreamClosed = errors.New("stream closed by server")
)

// constructError marks failures that happen before any request is sent,
// such as an unusable endpoint URL.
type constructError struct {
	err error
}

func (e *constructError) Error() string { return e.err.Error() }
func (e *constructError) Unwrap() error { return e.err }

// EnvelopeHandler consumes parsed envelopes in delivery order.
type EnvelopeHandler interface {
	HandleEnvelope(types.Envelope)
}

// HandlerFunc adapts a function to EnvelopeHandler.
type HandlerFunc func(types.Envelope)

// HandleEnvelope calls f(env).
func (f HandlerFunc) HandleEnvelope(env types.Envelope) { f(env) }

// Options configures a Client.
type Options struct {
	// BaseURL is the push source, for example http://localhost:3001.
	BaseURL string
	// Path defaults to /api/sse.
	Path       string
	HTTPClient *http.Client
	Handler    EnvelopeHandler
	// Bus receives a status signal on every state change. Optional.
	Bus   *event.Bus
	Retry types.RetryConfig
	// IdleTimeout fails a connection that receives nothing, heartbeats
	// included, for this long. Zero disables the watchdog.
	IdleTimeout time.Duration
}

// Client owns one live server-push connection at a time and reconnects
// it after failures. A single run goroutine opens, reads, dispatches and
// retries, so handlers are never called concurrently.
type Client struct {
	endpoint   string
	httpClient *http.Client
	handler    EnvelopeHandler
	bus        *event.Bus
	retry      types.RetryConfig
	idle       time.Duration
	log        zerolog.Logger

	// lifeMu serializes Connect, Reconnect and Close.
	lifeMu sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.HTTPClient == nil {
		// No timeout: the response body is a long-lived stream.
		opts.HTTPClient = &http.Client{}
	}
	if opts.Handler == nil {
		opts.Handler = HandlerFunc(func(types.Envelope) {})
	}

	endpoint := strings.TrimRight(opts.BaseURL, "/") + opts.Path
	return &Client{
		endpoint:   endpoint,
		httpClient: opts.HTTPClient,
		handler:    opts.Handler,
		bus:        opts.Bus,
		retry:      opts.Retry,
		idle:       opts.IdleTimeout,
		log:        logging.Component("channel").With().Str("endpoint", endpoint).Logger(),
		status:     Status{State: Disconnected, Endpoint: endpoint},
	}
}

// Endpoint returns the full push channel URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect starts the connection loop. A running loop is stopped first, so
// there is at most one live connection. Failures never surface here; they
// are reported through Status and retried.
//
// Connect must not be called from an envelope handler or a status
// subscriber: it waits for the run goroutine that is calling them.
func (c *Client) Connect(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.parent = ctx
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, done)
}

// Reconnect restarts the connection with the context of the last Connect.
func (c *Client) Reconnect() error {
	c.lifeMu.Lock()
	parent := c.parent
	c.lifeMu.Unlock()

	if parent == nil {
		return ErrNotConnected
	}
	c.log.Info().Msg("manual reconnect")
	c.Connect(parent)
	return nil
}

// Close stops the connection and any pending retry. It is idempotent.
func (c *Client) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.stopLocked()
	c.parent = nil
	return nil
}

// Done is closed when the current run loop exits, either because it was
// stopped or because the retry budget ran out. It returns nil before the
// first Connect.
func (c *Client) Done() <-chan struct{} {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.done
}

func (c *Client) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

// Status returns a snapshot of the connection status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ClientID returns the identity assigned for the current connection.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.ClientID
}

// run is the connection loop. Every state change happens here.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	sup := newSupervisor(c.retry)
	for {
		c.update(func(s *Status) {
			s.State = Connecting
			s.Connected = false
			s.Attempt = sup.attempts
			s.Retry = sup.phase.String()
		})

		err := c.session(ctx, sup)
		if ctx.Err() != nil {
			sup.stop()
			c.update(func(s *Status) {
				s.State = Disconnected
				s.Connected = false
				s.Error = ""
				s.Cause = ""
				s.Retry = sup.phase.String()
			})
			c.log.Debug().Msg("connection loop stopped")
			return
		}

		msg := MsgReconnecting
		var cerr *constructError
		if errors.As(err, &cerr) {
			msg = MsgConnectFail + cerr.Error()
		}
		delay, ok := sup.failed()
		c.update(func(s *Status) {
			s.State = Erroring
			s.Connected = false
			s.Error = msg
			s.Cause = err.Error()
			s.Attempt = sup.attempts
			s.Retry = sup.phase.String()
		})
		if !ok {
			c.log.Error().Err(err).Int("attempts", sup.attempts).Msg("giving up on push connection")
			c.update(func(s *Status) {
				s.State = Disconnected
				s.Error = MsgGaveUp
				s.Retry = sup.phase.String()
			})
			return
		}

		c.log.Warn().
			Err(err).
			Int("attempt", sup.attempts).
			Dur("delay", delay).
			Msg("push connection failed, retrying")

		if !sup.wait(ctx, delay) {
			c.update(func(s *Status) {
				s.State = Disconnected
				s.Connected = false
				s.Error = ""
				s.Cause = ""
				s.Retry = sup.phase.String()
			})
			return
		}
	}
}

// session runs one connection until it fails or ctx ends.
func (c *Client) session(ctx context.Context, sup *supervisor) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return &constructError{err}
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return &constructError{fmt.Errorf("invalid endpoint %q", c.endpoint)}
	}

	sessCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(sessCtx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return &constructError{err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.mu.RLock()
	lastID := c.status.LastEventID
	c.mu.RUnlock()
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		return fmt.Errorf("unexpected content type: %s", contentType)
	}

	sup.connected()
	c.update(func(s *Status) {
		s.State = Connected
		s.Connected = true
		s.ClientID = ""
		s.Error = ""
		s.Cause = ""
		s.Attempt = 0
		s.Retry = sup.phase.String()
		s.ConnectedAt = time.Now()
	})
	c.log.Info().Msg("push connection open")

	onLine := func() {}
	if c.idle > 0 {
		watchdog := time.AfterFunc(c.idle, func() { cancel(errIdleTimeout) })
		defer watchdog.Stop()
		onLine = func() { watchdog.Reset(c.idle) }
	}

	reader := newStreamReader(resp.Body, lastID, onLine)
	for {
		msg, err := reader.next()
		if err != nil {
			if cause := context.Cause(sessCtx); errors.Is(cause, errIdleTimeout) {
				return errIdleTimeout
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return errStreamClosed
			}
			return fmt.Errorf("read stream: %w", err)
		}
		c.dispatch(msg)
	}
}

// dispatch parses one message and hands it to the handler.
func (c *Client) dispatch(msg message) {
	if msg.ID != "" {
		c.mu.Lock()
		c.status.LastEventID = msg.ID
		c.mu.Unlock()
	}

	// Named events are not part of the channel protocol.
	if msg.Event != "" && msg.Event != "message" {
		c.log.Debug().Str("event", msg.Event).Msg("ignoring named event")
		return
	}

	env, err := types.ParseEnvelope([]byte(msg.Data))
	if err != nil {
		c.mu.Lock()
		c.status.Dropped++
		c.mu.Unlock()
		c.log.Debug().Err(err).Msg("dropping message")
		return
	}

	if ack, ok := env.(types.ConnectionAck); ok {
		c.update(func(s *Status) {
			s.ClientID = ack.ClientID
			s.Received++
		})
		c.log.Info().Str("clientId", ack.ClientID).Msg("client identity assigned")
	} else {
		c.mu.Lock()
		c.status.Received++
		c.mu.Unlock()
	}

	c.handler.HandleEnvelope(env)
}

// update applies fn to the status and publishes the new snapshot.
func (c *Client) update(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	snapshot := c.status
	c.mu.Unlock()

	c.log.Debug().
		Str("state", string(snapshot.State)).
		Str("clientId", snapshot.ClientID).
		Int("attempt", snapshot.Attempt).
		Msg("status")

	if c.bus != nil {
		c.bus.Publish(event.Event{Type: event.StatusChanged, Data: snapshot.Signal()})
	}
}
