// Package relay is a reference push source. Applications POST navigation
// events to /api/navigate and every client streaming /api/sse receives
// them, preceded by a connection acknowledgement and a history snapshot.
package relay

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/server"
	"github.com/operate-experience/navsync/internal/storage"
	"github.com/operate-experience/navsync/pkg/types"
)

// Topic is the watermill topic navigation envelopes are published on.
const Topic = "navigation"

// DefaultWriteTimeout bounds how long a stream may take to accept one
// event before it is dropped.
const DefaultWriteTimeout = 10 * time.Second

// historyKey is where the history is persisted when StateDir is set.
var historyKey = []string{"relay", "history"}

// Config holds relay configuration.
type Config struct {
	Addr         string
	HistoryLimit int
	Heartbeat    time.Duration
	EnableCORS   bool
	// WriteTimeout ends a stream whose client stops reading. Delivery
	// waits for every stream, so it also bounds how long one stalled
	// client can hold up Publish.
	WriteTimeout time.Duration
	// StateDir persists the history across restarts. Empty keeps it in
	// memory only.
	StateDir string
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":3001",
		HistoryLimit: 10,
		Heartbeat:    server.SSEHeartbeatInterval,
		EnableCORS:   true,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// ClientInfo describes one connected stream.
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastEventID string    `json:"lastEventId,omitempty"`
}

// Relay fans navigation events out to SSE subscribers.
type Relay struct {
	config  *Config
	pubsub  *gochannel.GoChannel
	router  *chi.Mux
	httpSrv *http.Server
	store   *storage.Storage
	log     zerolog.Logger

	// deliver is held while an event is recorded and published and while
	// a stream registers, so a new stream sees each event either in its
	// history snapshot or live, never both. mu only guards the data, so
	// reads do not wait on a slow delivery.
	deliver sync.Mutex
	mu      sync.RWMutex
	history []types.NavigationEvent
	clients map[string]ClientInfo
}

// New creates a relay. Nothing listens until Start or Serve.
func New(cfg *Config) *Relay {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = server.SSEHeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	r := &Relay{
		config: cfg,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            16,
				BlockPublishUntilSubscriberAck: true,
			},
			logging.Watermill(),
		),
		router:  server.NewRouter(cfg.EnableCORS),
		log:     logging.Component("relay"),
		history: []types.NavigationEvent{},
		clients: make(map[string]ClientInfo),
	}
	r.setupRoutes()

	if cfg.StateDir != "" {
		r.store = storage.New(cfg.StateDir)
		r.loadHistory()
	}

	r.httpSrv = &http.Server{
		Addr:        cfg.Addr,
		Handler:     r.router,
		ReadTimeout: 30 * time.Second,
	}
	// Streams only end when the pub/sub closes.
	r.httpSrv.RegisterOnShutdown(func() { _ = r.Close() })
	return r
}

func (r *Relay) setupRoutes() {
	r.router.Get("/health", r.health)
	r.router.Route("/api", func(api chi.Router) {
		api.Get("/sse", r.stream)
		api.Post("/navigate", r.navigate)
		api.Get("/history", r.getHistory)
		api.Get("/clients", r.getClients)
	})
}

// Handler returns the relay's HTTP handler.
func (r *Relay) Handler() http.Handler {
	return r.router
}

// Start listens on the configured address.
func (r *Relay) Start() error {
	return r.httpSrv.ListenAndServe()
}

// Serve serves on an existing listener.
func (r *Relay) Serve(l net.Listener) error {
	return r.httpSrv.Serve(l)
}

// Shutdown stops accepting connections and ends every stream.
func (r *Relay) Shutdown(ctx context.Context) error {
	return r.httpSrv.Shutdown(ctx)
}

// Close closes the pub/sub, which ends every open stream.
func (r *Relay) Close() error {
	return r.pubsub.Close()
}

// Publish records ev in the history and delivers it to every connected
// stream. It returns once every stream has written the event.
func (r *Relay) Publish(ev types.NavigationEvent) (string, error) {
	payload, err := types.MarshalEnvelope(types.Navigation{Event: ev})
	if err != nil {
		return "", err
	}
	msg := message.NewMessage(ulid.Make().String(), payload)
	msg.Metadata.Set("targetAppId", ev.TargetAppID)
	msg.Metadata.Set("route", ev.Route)

	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	r.history = slices.Insert(slices.Clip(r.history), 0, ev)
	if len(r.history) > r.config.HistoryLimit {
		r.history = r.history[:r.config.HistoryLimit]
	}
	r.saveHistory()
	clients := len(r.clients)
	r.mu.Unlock()

	if err := r.pubsub.Publish(Topic, msg); err != nil {
		return "", err
	}
	r.log.Debug().
		Str("id", msg.UUID).
		Str("targetAppId", ev.TargetAppID).
		Str("route", ev.Route).
		Int("clients", clients).
		Msg("navigation published")
	return msg.UUID, nil
}

// History returns the recorded events, newest first.
func (r *Relay) History() []types.NavigationEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history)
}

// Clients returns the connected streams, oldest first.
func (r *Relay) Clients() []ClientInfo {
	r.mu.RLock()
	clients := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(clients, func(a, b ClientInfo) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return clients
}

// subscribe registers a stream and returns its live message channel with
// the history snapshot taken at the same instant.
func (r *Relay) subscribe(ctx context.Context, info ClientInfo) (<-chan *message.Message, []types.NavigationEvent, error) {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	messages, err := r.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[info.ID] = info
	return messages, slices.Clone(r.history), nil
}

func (r *Relay) unsubscribe(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

func (r *Relay) loadHistory() {
	var events []types.NavigationEvent
	err := r.store.Get(context.Background(), historyKey, &events)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Str("dir", r.store.Path()).Msg("ignoring unreadable history")
		return
	}
	if len(events) > r.config.HistoryLimit {
		events = events[:r.config.HistoryLimit]
	}
	if events != nil {
		r.history = events
	}
	r.log.Info().Int("events", len(r.history)).Msg("history restored")
}

// saveHistory must be called with mu held. A failed write is logged and
// does not fail the publish.
func (r *Relay) saveHistory() {
	if r.store == nil {
		return
	}
	if err := r.store.Put(context.Background(), historyKey, r.history); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist history")
	}
}
