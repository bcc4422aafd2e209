package page

import (
	"sync"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/route"
)

// Mounter keeps the listener of the page at the current location mounted
// and every other page unmounted.
type Mounter struct {
	catalog *Catalog
	bus     *event.Bus

	mu      sync.Mutex
	current *Listener
	stop    func()
}

// NewMounter creates a mounter with nothing mounted.
func NewMounter(catalog *Catalog, bus *event.Bus) *Mounter {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Mounter{catalog: catalog, bus: bus}
}

// Follow mounts the page at the current location of h and tracks later
// changes until Close. Each change mounts whatever h holds when the
// mounter lock is taken, so notifications that arrive out of order from
// concurrent navigations still leave the current page mounted.
func (m *Mounter) Follow(h *route.History) {
	stop := h.OnChange(func(route.Location) { m.showCurrent(h) })

	m.mu.Lock()
	prev := m.stop
	m.stop = stop
	m.mu.Unlock()
	if prev != nil {
		prev()
	}

	m.showCurrent(h)
}

func (m *Mounter) showCurrent(h *route.History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.showLocked(h.Current().Path)
}

// Show mounts the page for path, unmounting the previous one. Showing the
// page that is already mounted keeps its state.
func (m *Mounter) Show(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.showLocked(path)
}

func (m *Mounter) showLocked(path string) {
	next, ok := m.catalog.ByRoute(path)
	if m.current != nil && ok && m.current.Page().Route == next.Route {
		return
	}
	if m.current != nil {
		m.current.Unmount()
		m.current = nil
	}
	if !ok {
		logging.Debug().Str("route", path).Msg("no page for route")
		return
	}

	l := NewListener(next)
	l.Mount(m.bus)
	m.current = l
	logging.Debug().Str("page", next.Name).Msg("page mounted")
}

// Current returns the mounted listener, or nil.
func (m *Mounter) Current() *Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the state of the mounted page.
func (m *Mounter) State() (State, bool) {
	l := m.Current()
	if l == nil {
		return State{}, false
	}
	return l.State(), true
}

// Close stops following the history and unmounts the current page.
func (m *Mounter) Close() {
	m.mu.Lock()
	stop := m.stop
	current := m.current
	m.stop = nil
	m.current = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if current != nil {
		current.Unmount()
	}
}
