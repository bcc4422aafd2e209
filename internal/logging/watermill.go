package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillAdapter routes watermill's internal logs into zerolog.
// Watermill's Info level is noisy (subscriber lifecycle) so it is logged at debug.
type watermillAdapter struct {
	fields watermill.LogFields
}

// Watermill returns a watermill.LoggerAdapter backed by the global logger.
func Watermill() watermill.LoggerAdapter {
	return &watermillAdapter{}
}

func (a *watermillAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	return e.Str("component", "watermill").Fields(map[string]any(a.fields)).Fields(map[string]any(fields))
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(Logger.Error(), fields).Err(err).Msg(msg)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(Logger.Debug(), fields).Msg(msg)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(Logger.Debug(), fields).Msg(msg)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(Logger.Trace(), fields).Msg(msg)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{fields: a.fields.Add(fields)}
}
