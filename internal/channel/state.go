package channel

import (
	"time"

	"github.com/operate-experience/navsync/internal/event"
)

// State is the connection state of a Client.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Erroring     State = "erroring"
)

// User-facing error messages.
const (
	MsgReconnecting = "Connection error. Reconnecting..."
	MsgConnectFail  = "Failed to connect: "
	MsgGaveUp       = "Connection error. Retries exhausted"
)

// Status is a snapshot of the client as seen by the UI.
type Status struct {
	State       State     `json:"state"`
	Connected   bool      `json:"connected"`
	ClientID    string    `json:"clientId,omitempty"`
	Error       string    `json:"error,omitempty"`
	Cause       string    `json:"cause,omitempty"`
	Attempt     int       `json:"attempt"`
	Retry       string    `json:"retry,omitempty"` // supervisor phase: idle, retrying or connected
	Endpoint    string    `json:"endpoint"`
	LastEventID string    `json:"lastEventId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt,omitzero"`
	Received    int64     `json:"received"`
	Dropped     int64     `json:"dropped"`
}

// Signal converts the snapshot to the bus signal form.
func (s Status) Signal() event.StatusSignal {
	return event.StatusSignal{
		State:     string(s.State),
		Connected: s.Connected,
		ClientID:  s.ClientID,
		Error:     s.Error,
		Attempt:   s.Attempt,
	}
}
