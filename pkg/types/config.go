package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the navsync configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Identity of this application; navigation events for other targets are discarded.
	AppID string `json:"appId,omitempty"`

	// Push connection
	SSE SSEConfig `json:"sse"`

	// Reconnection policy
	Retry RetryConfig `json:"retry"`

	// Local event history
	History HistoryConfig `json:"history"`

	// Local HTTP API
	Server ServerConfig `json:"server"`

	// Reference push source
	Relay RelayConfig `json:"relay"`

	// Logging
	Log LogConfig `json:"log"`
}

// SSEConfig configures the push connection.
type SSEConfig struct {
	URL         string   `json:"url,omitempty"`  // base URL, e.g. http://localhost:3001
	Path        string   `json:"path,omitempty"` // channel path, /api/sse
	IdleTimeout Duration `json:"idleTimeout,omitempty"`
}

// Endpoint returns the full channel URL.
func (c SSEConfig) Endpoint() string {
	return trimSlash(c.URL) + c.Path
}

// RetryConfig configures the reconnection supervisor.
type RetryConfig struct {
	InitialDelay Duration `json:"initialDelay,omitempty"`
	MaxDelay     Duration `json:"maxDelay,omitempty"`
	Multiplier   float64  `json:"multiplier,omitempty"`
	Jitter       float64  `json:"jitter"`
	MaxAttempts  int      `json:"maxAttempts"` // 0 = unbounded
}

// HistoryConfig configures the bounded event history.
type HistoryConfig struct {
	Limit int `json:"limit,omitempty"`
}

// ServerConfig configures the local HTTP API. An empty Listen disables it.
type ServerConfig struct {
	Listen     string `json:"listen"`
	EnableCORS bool   `json:"enableCors"`
}

// RelayConfig configures the reference push source.
type RelayConfig struct {
	Listen       string   `json:"listen,omitempty"`
	HistoryLimit int      `json:"historyLimit,omitempty"`
	Heartbeat    Duration `json:"heartbeat,omitempty"`
	Persist      bool     `json:"persist"`            // keep history across restarts
	StateDir     string   `json:"stateDir,omitempty"` // default <state>/relay
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"` // DEBUG|INFO|WARN|ERROR
	Pretty bool   `json:"pretty"`
	ToFile bool   `json:"toFile"`
	Dir    string `json:"dir,omitempty"` // log file directory, default /tmp
}

// Duration is a time.Duration that reads "5s"-style strings or
// millisecond numbers from JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
