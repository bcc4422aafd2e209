package route

import (
	"slices"
	"sync"
)

// NavigateOptions selects push or replace semantics.
type NavigateOptions struct {
	// Replace overwrites the current entry instead of adding one.
	Replace bool
}

// Location describes the current position in the history.
type Location struct {
	Path      string `json:"path"`
	Requested string `json:"requested,omitempty"` // before redirects
	Index     int    `json:"index"`
	Length    int    `json:"length"`
	Replaced  bool   `json:"replaced"`
}

type changeListener struct {
	id int
	fn func(Location)
}

// History is a browser-like back stack. It has no queue: every Navigate
// applies immediately, so the last navigation wins.
type History struct {
	mu        sync.Mutex
	table     *Table
	entries   []string
	index     int
	last      Location
	listeners []changeListener
	nextID    int
}

// NewHistory starts a history at initial (after redirects).
func NewHistory(table *Table, initial string) *History {
	if table == nil {
		table = DefaultTable()
	}
	path := table.Resolve(initial)
	return &History{
		table:   table,
		entries: []string{path},
		last:    Location{Path: path, Requested: initial, Length: 1},
	}
}

// Navigate moves to path. A push drops forward entries and appends;
// a replace overwrites the current entry.
func (h *History) Navigate(path string, opts NavigateOptions) {
	h.mu.Lock()
	resolved := h.table.Resolve(path)
	if opts.Replace {
		h.entries[h.index] = resolved
	} else {
		h.entries = append(h.entries[:h.index+1], resolved)
		h.index++
	}
	loc := h.locationLocked(path, opts.Replace)
	listeners := h.listeners
	h.mu.Unlock()

	notify(listeners, loc)
}

// Back moves one entry back. It returns false at the start of the history.
func (h *History) Back() bool {
	return h.move(-1)
}

// Forward moves one entry forward. It returns false at the end of the history.
func (h *History) Forward() bool {
	return h.move(1)
}

func (h *History) move(delta int) bool {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.index = next
	loc := h.locationLocked(h.entries[next], false)
	listeners := h.listeners
	h.mu.Unlock()

	notify(listeners, loc)
	return true
}

func (h *History) locationLocked(requested string, replaced bool) Location {
	h.last = Location{
		Path:      h.entries[h.index],
		Requested: requested,
		Index:     h.index,
		Length:    len(h.entries),
		Replaced:  replaced,
	}
	return h.last
}

// Current returns the current location.
func (h *History) Current() Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Entries returns a copy of the back stack, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}

// Table returns the route table used for redirects.
func (h *History) Table() *Table {
	return h.table
}

// OnChange registers fn to run after every location change.
// Listeners run synchronously on the navigating goroutine.
func (h *History) OnChange(fn func(Location)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners = append(slices.Clip(h.listeners), changeListener{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.listeners = slices.DeleteFunc(slices.Clone(h.listeners), func(l changeListener) bool {
			return l.id == id
		})
	}
}

func notify(listeners []changeListener, loc Location) {
	for _, l := range listeners {
		l.fn(loc)
	}
}
