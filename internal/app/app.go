// Package app wires a navsync agent together: push channel, navigation
// router, location history, page listeners and the optional local API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/operate-experience/navsync/internal/channel"
	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/navigation"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/internal/server"
	"github.com/operate-experience/navsync/pkg/types"
)

// ErrClosed is returned by operations on a closed App.
var ErrClosed = errors.New("app: closed")

const shutdownTimeout = 5 * time.Second

// Options carries collaborators that are not part of the configuration.
type Options struct {
	// HTTPClient is used for the push connection. Optional.
	HTTPClient *http.Client
	// Catalog defaults to page.DefaultCatalog().
	Catalog *page.Catalog
	// OnToast is called for every notification toast. Optional.
	OnToast func(page.Toast)
}

// App is one navsync agent. Several can run in the same process.
type App struct {
	cfg      *types.Config
	bus      *event.Bus
	catalog  *page.Catalog
	history  *route.History
	router   *navigation.Router
	mounter  *page.Mounter
	notifier *page.Notifier
	client   *channel.Client
	server   *server.Server

	mu        sync.Mutex
	opened    bool
	closed    bool
	listener  net.Listener
	serveDone chan struct{}
}

// New builds an App from a validated configuration. Nothing is started
// until Open.
func New(cfg *types.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		opts.Catalog = page.DefaultCatalog()
	}

	a := &App{
		cfg:     cfg,
		bus:     event.NewBus(),
		catalog: opts.Catalog,
	}
	a.history = route.NewHistory(a.catalog.Table(), "/")
	a.router = navigation.New(navigation.Options{
		AppID:        cfg.AppID,
		HistoryLimit: cfg.History.Limit,
		Bus:          a.bus,
		Navigator:    a.history,
	})

	// The notifier subscribes before any page so its toast is recorded
	// first for each signal.
	a.notifier = page.NewNotifier(opts.OnToast)
	a.notifier.Mount(a.bus)
	a.mounter = page.NewMounter(a.catalog, a.bus)
	a.mounter.Follow(a.history)

	a.client = channel.New(channel.Options{
		BaseURL:     cfg.SSE.URL,
		Path:        cfg.SSE.Path,
		HTTPClient:  opts.HTTPClient,
		Handler:     a.router,
		Bus:         a.bus,
		Retry:       cfg.Retry,
		IdleTimeout: cfg.SSE.IdleTimeout.Std(),
	})

	if cfg.Server.Listen != "" {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Server.Listen
		srvCfg.EnableCORS = cfg.Server.EnableCORS
		a.server = server.New(srvCfg, a)
	}

	return a, nil
}

// Open starts the local API (when configured) and the push connection.
// Calling Open on an open App is a no-op.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.opened {
		return nil
	}

	if a.server != nil {
		l, err := net.Listen("tcp", a.cfg.Server.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", a.cfg.Server.Listen, err)
		}
		a.listener = l
		a.serveDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error().Err(err).Msg("local API stopped")
			}
		}(a.serveDone)
		logging.Info().Str("addr", l.Addr().String()).Msg("local API listening")
	}

	a.client.Connect(ctx)
	a.opened = true
	logging.Info().
		Str("appId", a.cfg.AppID).
		Str("endpoint", a.client.Endpoint()).
		Msg("navsync agent started")
	return nil
}

// Close stops the local API, the push connection and every page listener,
// in that order. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	serveDone := a.serveDone
	a.mu.Unlock()

	var errs []error
	if a.server != nil && serveDone != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown local API: %w", err))
		}
		cancel()
		<-serveDone
	}
	if err := a.client.Close(); err != nil {
		errs = append(errs, err)
	}
	a.mounter.Close()
	a.notifier.Unmount()
	if err := a.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the address the local API listens on, or "".
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Config returns the configuration the App was built with.
func (a *App) Config() *types.Config { return a.cfg }

// AppID returns the identity used to filter navigation events.
func (a *App) AppID() string { return a.router.AppID() }

// Bus returns the App's signal bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Catalog returns the page catalog.
func (a *App) Catalog() *page.Catalog { return a.catalog }

// History returns the location history driven by navigation events.
func (a *App) History() *route.History { return a.history }

// Notifier returns the application-wide toast.
func (a *App) Notifier() *page.Notifier { return a.notifier }

func (a *App) ChannelStatus() channel.Status { return a.client.Status() }

func (a *App) RouterStats() navigation.Stats { return a.router.Stats() }

func (a *App) EventHistory() []types.NavigationEvent { return a.router.History() }

func (a *App) Location() route.Location { return a.history.Current() }

func (a *App) Entries() []string { return a.history.Entries() }

func (a *App) PageState() (page.State, bool) { return a.mounter.State() }

// Navigate pushes path onto the location history, as a user click would.
// No navigation signal is published.
func (a *App) Navigate(path string) error {
	if a.isClosed() {
		return ErrClosed
	}
	a.history.Navigate(path, route.NavigateOptions{})
	return nil
}

// Back steps the location history back one entry.
func (a *App) Back() bool {
	if a.isClosed() {
		return false
	}
	return a.history.Back()
}

// Reconnect drops the current push connection and reconnects now.
func (a *App) Reconnect() error {
	return a.client.Reconnect()
}

func (a *App) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
