package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeType is the discriminator of an inbound push message.
type EnvelopeType string

const (
	EnvelopeConnection EnvelopeType = "connection"
	EnvelopeHistory    EnvelopeType = "history"
	EnvelopeNavigation EnvelopeType = "navigation"
)

// ErrUnknownEnvelope is returned by ParseEnvelope for an unrecognized type.
var ErrUnknownEnvelope = errors.New("unknown envelope type")

// Envelope is a parsed inbound message. The concrete type is one of
// ConnectionAck, History or Navigation.
type Envelope interface {
	EnvelopeType() EnvelopeType
}

// ConnectionAck assigns the client identity for the current connection.
type ConnectionAck struct {
	ClientID string `json:"clientId"`
}

// History is the resynchronization snapshot sent on every (re)connect.
type History struct {
	Events []NavigationEvent `json:"events"`
}

// Navigation carries one live navigation event.
type Navigation struct {
	Event NavigationEvent
}

func (ConnectionAck) EnvelopeType() EnvelopeType { return EnvelopeConnection }
func (History) EnvelopeType() EnvelopeType       { return EnvelopeHistory }
func (Navigation) EnvelopeType() EnvelopeType    { return EnvelopeNavigation }

// rawEnvelope is used to read the discriminator before decoding the variant.
type rawEnvelope struct {
	Type EnvelopeType `json:"type"`
}

// ParseEnvelope decodes a JSON push message into its Envelope variant.
func ParseEnvelope(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch raw.Type {
	case EnvelopeConnection:
		var e ConnectionAck
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode connection envelope: %w", err)
		}
		return e, nil
	case EnvelopeHistory:
		var e History
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode history envelope: %w", err)
		}
		if e.Events == nil {
			e.Events = []NavigationEvent{}
		}
		return e, nil
	case EnvelopeNavigation:
		var ev NavigationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode navigation envelope: %w", err)
		}
		return Navigation{Event: ev}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, raw.Type)
	}
}

// MarshalEnvelope encodes an envelope in wire form. Navigation events are
// written inline next to the type discriminator.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	switch v := e.(type) {
	case ConnectionAck:
		return json.Marshal(struct {
			Type     EnvelopeType `json:"type"`
			ClientID string       `json:"clientId"`
		}{EnvelopeConnection, v.ClientID})
	case History:
		events := v.Events
		if events == nil {
			events = []NavigationEvent{}
		}
		return json.Marshal(struct {
			Type   EnvelopeType      `json:"type"`
			Events []NavigationEvent `json:"events"`
		}{EnvelopeHistory, events})
	case Navigation:
		return json.Marshal(struct {
			Type EnvelopeType `json:"type"`
			NavigationEvent
		}{EnvelopeNavigation, v.Event})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEnvelope, e)
	}
}
