// Package navigation routes inbound push envelopes: it filters navigation
// events by target application, keeps the bounded event history and turns
// accepted events into local signals and route changes.
package navigation

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

const (
	// DefaultAppID is the identity of the operate-experience front-end.
	DefaultAppID = "operate-experience"
	// DefaultHistoryLimit bounds the event history.
	DefaultHistoryLimit = 10
)

// Navigator receives route changes for accepted events.
// *route.History satisfies it.
type Navigator interface {
	Navigate(path string, opts route.NavigateOptions)
}

// Options configures a Router.
type Options struct {
	AppID        string
	HistoryLimit int
	Bus          *event.Bus
	Navigator    Navigator
}

// Router dispatches envelopes. HandleEnvelope is expected to be called
// from a single goroutine in delivery order; the read accessors may be
// called from anywhere.
type Router struct {
	appID     string
	limit     int
	bus       *event.Bus
	navigator Navigator
	log       zerolog.Logger

	mu        sync.RWMutex
	history   []types.NavigationEvent
	accepted  int64
	discarded int64
}

// New creates a Router. Empty options fall back to the defaults.
func New(opts Options) *Router {
	if opts.AppID == "" {
		opts.AppID = DefaultAppID
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Router{
		appID:     opts.AppID,
		limit:     opts.HistoryLimit,
		bus:       opts.Bus,
		navigator: opts.Navigator,
		log:       logging.Component("navigation").With().Str("appId", opts.AppID).Logger(),
		history:   []types.NavigationEvent{},
	}
}

// AppID returns the identity events must target to be accepted.
func (r *Router) AppID() string {
	return r.appID
}

// HandleEnvelope applies one inbound envelope.
func (r *Router) HandleEnvelope(env types.Envelope) {
	switch e := env.(type) {
	case types.ConnectionAck:
		// identity is owned by the channel client
	case types.History:
		r.replaceHistory(e.Events)
	case types.Navigation:
		r.handleNavigation(e.Event)
	default:
		r.log.Debug().Type("envelope", env).Msg("ignoring envelope")
	}
}

func (r *Router) replaceHistory(events []types.NavigationEvent) {
	if len(events) > r.limit {
		events = events[:r.limit]
	}

	r.mu.Lock()
	r.history = slices.Clone(events)
	if r.history == nil {
		r.history = []types.NavigationEvent{}
	}
	r.mu.Unlock()

	r.log.Debug().Int("events", len(events)).Msg("history replaced")
}

func (r *Router) handleNavigation(ev types.NavigationEvent) {
	if ev.TargetAppID != r.appID {
		r.mu.Lock()
		r.discarded++
		r.mu.Unlock()
		r.log.Debug().
			Str("targetAppId", ev.TargetAppID).
			Str("route", ev.Route).
			Msg("discarding event for another application")
		return
	}

	r.mu.Lock()
	r.history = slices.Insert(slices.Clip(r.history), 0, ev)
	if len(r.history) > r.limit {
		r.history = r.history[:r.limit]
	}
	r.accepted++
	r.mu.Unlock()

	if !ev.IsNavigate() {
		r.log.Debug().Str("action", string(ev.Action)).Msg("recorded non-navigation event")
		return
	}

	isAutoSync := ev.Data.Automatic()
	sig := event.NavigationSignal{
		Route:       ev.Route,
		SourceAppID: ev.Data.SourceAppID(),
		Timestamp:   ev.Timestamp,
		Data:        ev.Data.Clone(),
		IsAutoSync:  isAutoSync,
	}

	r.log.Info().
		Str("route", ev.Route).
		Str("sourceAppId", sig.SourceAppID).
		Bool("isAutoSync", isAutoSync).
		Msg("navigation event accepted")

	if r.bus != nil {
		r.bus.Publish(event.Event{Type: event.NavigationSignalled, Data: sig})
	}
	if r.navigator != nil {
		r.navigator.Navigate(ev.Route, route.NavigateOptions{Replace: isAutoSync})
	}
}

// History returns a copy of the event history, newest first.
func (r *Router) History() []types.NavigationEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history)
}

// Stats holds the router counters.
type Stats struct {
	Accepted  int64 `json:"accepted"`
	Discarded int64 `json:"discarded"`
	History   int   `json:"history"`
}

// Stats returns the accepted and discarded event counts.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Accepted: r.accepted, Discarded: r.discarded, History: len(r.history)}
}
