package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/operate-experience/navsync/internal/app"
	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/relay"
	"github.com/operate-experience/navsync/pkg/types"
)

// LoadEnv loads .env files from the usual test locations and initializes
// logging from NAVSYNC_LOG_LEVEL, WARN when unset.
func LoadEnv(envFile string) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}

	level := os.Getenv(config.EnvLogLevel)
	if level == "" {
		level = "WARN"
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: os.Stderr,
	})
}

// TestRelay wraps a relay listening on a real port.
type TestRelay struct {
	Relay   *relay.Relay
	BaseURL string
	Addr    string

	cfg  relay.Config
	done chan struct{}
}

// RelayOption configures StartRelay.
type RelayOption func(*relay.Config)

// WithHeartbeat sets the relay heartbeat interval.
func WithHeartbeat(d time.Duration) RelayOption {
	return func(c *relay.Config) {
		c.Heartbeat = d
	}
}

// WithHistoryLimit sets the relay history bound.
func WithHistoryLimit(n int) RelayOption {
	return func(c *relay.Config) {
		c.HistoryLimit = n
	}
}

// StartRelay starts a relay on a free local port.
func StartRelay(opts ...RelayOption) (*TestRelay, error) {
	cfg := *relay.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	for _, opt := range opts {
		opt(&cfg)
	}

	tr := &TestRelay{cfg: cfg}
	if err := tr.start(cfg.Addr); err != nil {
		return nil, err
	}
	return tr, nil
}

func (tr *TestRelay) start(addr string) error {
	l, err := listenRetry(addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	cfg := tr.cfg
	cfg.Addr = l.Addr().String()
	r := relay.New(&cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Serve(l)
	}()

	tr.Relay = r
	tr.Addr = cfg.Addr
	tr.BaseURL = "http://" + cfg.Addr
	tr.done = done

	if err := waitForServer(tr.BaseURL, 10*time.Second); err != nil {
		_ = tr.Stop()
		return fmt.Errorf("relay failed to start: %w", err)
	}
	return nil
}

// Stop shuts down the relay, ending every open stream.
func (tr *TestRelay) Stop() error {
	if tr.Relay == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := tr.Relay.Shutdown(ctx)
	<-tr.done
	tr.Relay = nil
	return err
}

// Restart stops the relay and starts a fresh one on the same address.
// The new relay has an empty history.
func (tr *TestRelay) Restart() error {
	if err := tr.Stop(); err != nil {
		return err
	}
	return tr.start(tr.Addr)
}

// Client returns a new test client for this relay
func (tr *TestRelay) Client() *TestClient {
	return NewTestClient(tr.BaseURL)
}

// SSEClient returns a new SSE client for this relay
func (tr *TestRelay) SSEClient() *SSEClient {
	return NewSSEClient(tr.BaseURL)
}

// TestAgent wraps an App connected to a relay, with its local API on a
// free port.
type TestAgent struct {
	App     *app.App
	BaseURL string

	toasts chan page.Toast
}

// AgentOption configures StartAgent.
type AgentOption func(*types.Config)

// WithAppID sets the agent identity.
func WithAppID(id string) AgentOption {
	return func(c *types.Config) {
		c.AppID = id
	}
}

// WithRetry sets the reconnection delays.
func WithRetry(initial, maxDelay time.Duration) AgentOption {
	return func(c *types.Config) {
		c.Retry.InitialDelay = types.Duration(initial)
		c.Retry.MaxDelay = types.Duration(maxDelay)
	}
}

// WithIdleTimeout sets the stream idle timeout.
func WithIdleTimeout(d time.Duration) AgentOption {
	return func(c *types.Config) {
		c.SSE.IdleTimeout = types.Duration(d)
	}
}

// StartAgent opens an App against relayURL and waits until it is connected.
func StartAgent(relayURL string, opts ...AgentOption) (*TestAgent, error) {
	cfg := config.Default()
	cfg.SSE.URL = relayURL
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Retry.InitialDelay = types.Duration(50 * time.Millisecond)
	cfg.Retry.MaxDelay = types.Duration(200 * time.Millisecond)
	for _, opt := range opts {
		opt(cfg)
	}

	ta := &TestAgent{toasts: make(chan page.Toast, 100)}
	a, err := app.New(cfg, app.Options{
		OnToast: func(t page.Toast) {
			select {
			case ta.toasts <- t:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if err := a.Open(context.Background()); err != nil {
		_ = a.Close()
		return nil, err
	}
	ta.App = a
	ta.BaseURL = "http://" + a.Addr()

	if err := waitForServer(ta.BaseURL, 10*time.Second); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("agent API failed to start: %w", err)
	}
	if err := ta.WaitConnected(10 * time.Second); err != nil {
		_ = a.Close()
		return nil, err
	}
	return ta, nil
}

// WaitConnected waits until the push connection is up and identified.
func (ta *TestAgent) WaitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st := ta.App.ChannelStatus()
		if st.Connected && st.ClientID != "" {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("agent not connected after %v", timeout)
}

// Toasts returns the notifier toasts in arrival order.
func (ta *TestAgent) Toasts() <-chan page.Toast {
	return ta.toasts
}

// Stop closes the agent.
func (ta *TestAgent) Stop() error {
	return ta.App.Close()
}

// Client returns a new test client for the agent's local API
func (ta *TestAgent) Client() *TestClient {
	return NewTestClient(ta.BaseURL)
}

// SSEClient returns a new SSE client for the agent's local API
func (ta *TestAgent) SSEClient() *SSEClient {
	return NewSSEClient(ta.BaseURL)
}

// listenRetry retries while a just-closed port is still held.
func listenRetry(addr string, timeout time.Duration) (net.Listener, error) {
	deadline := time.Now().Add(timeout)
	for {
		l, err := net.Listen("tcp", addr)
		if err == nil || time.Now().After(deadline) {
			return l, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
