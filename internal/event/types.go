package event

import "github.com/operate-experience/navsync/pkg/types"

// NavigationSignal is the data for sse-navigation events.
// It is built fresh for each accepted navigation event.
type NavigationSignal struct {
	Route       string          `json:"route"`
	SourceAppID string          `json:"sourceAppId,omitempty"`
	Timestamp   types.Millis    `json:"timestamp"`
	Data        types.EventData `json:"data,omitempty"`
	IsAutoSync  bool            `json:"isAutoSync"`
}

// StatusSignal is the data for sse-status events.
type StatusSignal struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	ClientID  string `json:"clientId,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
}

// SubscribeNavigation registers fn for navigation signals only.
func (b *Bus) SubscribeNavigation(fn func(NavigationSignal)) func() {
	return b.Subscribe(NavigationSignalled, func(e Event) {
		if sig, ok := e.Data.(NavigationSignal); ok {
			fn(sig)
		}
	})
}

// SubscribeStatus registers fn for connection status signals only.
func (b *Bus) SubscribeStatus(fn func(StatusSignal)) func() {
	return b.Subscribe(StatusChanged, func(e Event) {
		if sig, ok := e.Data.(StatusSignal); ok {
			fn(sig)
		}
	})
}
