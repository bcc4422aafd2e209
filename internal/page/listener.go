package page

import (
	"sync"
	"time"

	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/pkg/types"
)

// TimeLayout renders signal timestamps for display.
const TimeLayout = "3:04:05 PM"

// Severity levels of a toast.
const (
	SeverityInfo = "info"
)

// Placeholders for missing payload keys.
const (
	unknown     = "unknown"
	noDocument  = "none"
	navigateVal = string(types.ActionNavigate)
)

// Toast is a transient notification.
type Toast struct {
	Open     bool   `json:"open"`
	Message  string `json:"message,omitempty"`
	Source   string `json:"source,omitempty"`
	Time     string `json:"time,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// LastNavigation is the "last navigation" panel of a page.
type LastNavigation struct {
	SourceAppID string `json:"sourceAppId,omitempty"`
	Time        string `json:"time"`
	Referrer    string `json:"referrer"`
	Action      string `json:"action"`
	DocumentID  string `json:"documentId"`
	Automatic   bool   `json:"automatic"`
}

// State is the navigation-driven state of a mounted page.
type State struct {
	Page           Page            `json:"page"`
	Mounted        bool            `json:"mounted"`
	ActiveTab      int             `json:"activeTab"`
	Toast          Toast           `json:"toast"`
	LastNavigation *LastNavigation `json:"lastNavigation,omitempty"`
}

// Listener reacts to navigation signals for one page.
type Listener struct {
	page     Page
	location *time.Location

	mu    sync.Mutex
	state State
	unsub func()
}

// NewListener creates an unmounted listener. The active tab starts at the
// page's own tab.
func NewListener(p Page) *Listener {
	return &Listener{
		page:     p,
		location: time.Local,
		state:    State{Page: p, ActiveTab: p.Tab},
	}
}

// Page returns the page the listener belongs to.
func (l *Listener) Page() Page {
	return l.page
}

// Mount subscribes to navigation signals. Mounting twice is a no-op.
func (l *Listener) Mount(bus *event.Bus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsub != nil {
		return
	}
	l.unsub = bus.SubscribeNavigation(l.handle)
	l.state.Mounted = true
}

// Unmount releases the subscription. It is safe to call more than once.
func (l *Listener) Unmount() {
	l.mu.Lock()
	unsub := l.unsub
	l.unsub = nil
	l.state.Mounted = false
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (l *Listener) handle(sig event.NavigationSignal) {
	if sig.Route != l.page.Route {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Automatic syncs change the tab silently.
	if !sig.IsAutoSync {
		l.state.LastNavigation = &LastNavigation{
			SourceAppID: sig.SourceAppID,
			Time:        formatTime(sig.Timestamp, l.location),
			Referrer:    orDefault(sig.Data.Referrer(), unknown),
			Action:      orDefault(sig.Data.Action(), navigateVal),
			DocumentID:  orDefault(sig.Data.DocumentID(), noDocument),
			Automatic:   sig.IsAutoSync,
		}
		l.state.Toast = Toast{
			Open:     true,
			Message:  "Navigated from " + orDefault(sig.SourceAppID, unknown) + " app",
			Severity: SeverityInfo,
		}
	}
	if l.page.Tab > 0 {
		l.state.ActiveTab = l.page.Tab
	}
}

// SelectTab records a user tab click.
func (l *Listener) SelectTab(tab int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.ActiveTab = tab
}

// CloseToast dismisses the toast.
func (l *Listener) CloseToast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Toast.Open = false
}

// State returns a copy of the page state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	if s.LastNavigation != nil {
		last := *s.LastNavigation
		s.LastNavigation = &last
	}
	return s
}

func formatTime(ts types.Millis, loc *time.Location) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Time().In(loc).Format(TimeLayout)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
