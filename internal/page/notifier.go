package page

import (
	"sync"
	"time"

	"github.com/operate-experience/navsync/internal/event"
)

// Notifier is the application-wide navigation toast. Unlike page
// listeners it reacts to every navigation signal, automatic ones included.
type Notifier struct {
	location *time.Location
	notify   func(Toast)

	mu    sync.Mutex
	toast Toast
	count int
	unsub func()
}

// NewNotifier creates a notifier. notify, if set, is called with every new
// toast on the publishing goroutine.
func NewNotifier(notify func(Toast)) *Notifier {
	return &Notifier{location: time.Local, notify: notify}
}

// Mount subscribes to navigation signals.
func (n *Notifier) Mount(bus *event.Bus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unsub != nil {
		return
	}
	n.unsub = bus.SubscribeNavigation(n.handle)
}

// Unmount releases the subscription.
func (n *Notifier) Unmount() {
	n.mu.Lock()
	unsub := n.unsub
	n.unsub = nil
	n.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (n *Notifier) handle(sig event.NavigationSignal) {
	toast := Toast{
		Open:     true,
		Message:  "Navigated to " + sig.Route,
		Source:   orDefault(sig.SourceAppID, unknown),
		Time:     formatTime(sig.Timestamp, n.location),
		Severity: SeverityInfo,
	}

	n.mu.Lock()
	n.toast = toast
	n.count++
	n.mu.Unlock()

	if n.notify != nil {
		n.notify(toast)
	}
}

// Toast returns the current toast.
func (n *Notifier) Toast() Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toast
}

// Count returns how many toasts were shown.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Close dismisses the toast.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toast.Open = false
}

// Text renders a toast the way the notification banner shows it.
func (t Toast) Text() string {
	s := t.Message
	if t.Source != "" {
		s += " from " + t.Source
	}
	if t.Time != "" {
		s += " at " + t.Time
	}
	return s
}
