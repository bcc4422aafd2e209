// Package types provides the wire and configuration types shared by navsync
// components.
package types

import (
	"encoding/json"
	"maps"
	"time"
)

// Action is the verb carried by a navigation event.
type Action string

const (
	// ActionNavigate asks the target application to change route.
	ActionNavigate Action = "NAVIGATE"
)

// NavigationEvent is the unit of cross-application communication.
// It is treated as immutable once decoded.
type NavigationEvent struct {
	TargetAppID string    `json:"targetAppId"`
	Action      Action    `json:"action"`
	Route       string    `json:"route"`
	Timestamp   Millis    `json:"timestamp"`
	Data        EventData `json:"data,omitempty"`
}

// IsNavigate reports whether the event asks for a route change.
func (e NavigationEvent) IsNavigate() bool {
	return e.Action == ActionNavigate && e.Route != ""
}

// EventData is the opaque payload attached to a navigation event.
// Known keys: sourceAppId, automatic, referrer, documentId, action.
type EventData map[string]any

// Str returns the string value stored under key, or "".
func (d EventData) Str(key string) string {
	v, _ := d[key].(string)
	return v
}

// SourceAppID returns the application that emitted the event.
func (d EventData) SourceAppID() string { return d.Str("sourceAppId") }

// Referrer returns the referrer recorded by the source application.
func (d EventData) Referrer() string { return d.Str("referrer") }

// DocumentID returns the document the source application was showing.
func (d EventData) DocumentID() string { return d.Str("documentId") }

// Action returns the action recorded inside the payload (not the event action).
func (d EventData) Action() string { return d.Str("action") }

// Automatic reports whether the event is an automatic route sync.
// Only the JSON boolean true counts; "true" strings and numbers do not.
func (d EventData) Automatic() bool {
	v, ok := d["automatic"].(bool)
	return ok && v
}

// Clone returns a top-level copy of the payload.
func (d EventData) Clone() EventData {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Millis is a timestamp in epoch milliseconds.
// It decodes from integral and fractional JSON numbers.
type Millis int64

// MillisFromTime converts t to epoch milliseconds.
func MillisFromTime(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts the timestamp to a time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// IsZero reports whether the timestamp is unset.
func (m Millis) IsZero() bool { return m == 0 }

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Millis(f)
	return nil
}
