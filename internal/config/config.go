package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/operate-experience/navsync/pkg/types"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables read by Load.
const (
	EnvConfig        = "NAVSYNC_CONFIG"
	EnvConfigContent = "NAVSYNC_CONFIG_CONTENT"
	EnvReactSSEURL   = "REACT_APP_SSE_SERVICE_URL"
	EnvSSEURL        = "NAVSYNC_SSE_URL"
	EnvAppID         = "NAVSYNC_APP_ID"
	EnvLogLevel      = "NAVSYNC_LOG_LEVEL"
	EnvListen        = "NAVSYNC_LISTEN"
	EnvRelayListen   = "NAVSYNC_RELAY_LISTEN"
)

// Default returns the built-in configuration.
func Default() *types.Config {
	return &types.Config{
		AppID: "operate-experience",
		SSE: types.SSEConfig{
			URL:         "http://localhost:3001",
			Path:        "/api/sse",
			IdleTimeout: types.Duration(90 * time.Second),
		},
		Retry: types.RetryConfig{
			InitialDelay: types.Duration(5 * time.Second),
			MaxDelay:     types.Duration(60 * time.Second),
			Multiplier:   2,
			Jitter:       0.2,
		},
		History: types.HistoryConfig{Limit: 10},
		Server: types.ServerConfig{
			Listen:     "127.0.0.1:3002",
			EnableCORS: true,
		},
		Relay: types.RelayConfig{
			Listen:       ":3001",
			HistoryLimit: 10,
			Heartbeat:    types.Duration(30 * time.Second),
		},
		Log: types.LogConfig{Level: "INFO"},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Defaults
// 2. Global config (~/.config/navsync/)
// 3. Project config (directory and directory/.navsync/)
// 4. NAVSYNC_CONFIG file
// 5. NAVSYNC_CONFIG_CONTENT inline JSON
// 6. Environment variables, with directory/.env filling unset ones
//
// Missing files are skipped. A file that exists but does not parse, or a
// result that fails Validate, is an error.
func Load(directory string) (*types.Config, error) {
	config := Default()

	// .env first so {env:VAR} placeholders can see it
	if directory != "" {
		if err := loadDotEnv(filepath.Join(directory, ".env")); err != nil {
			return nil, err
		}
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		loaded[absPath] = true
		return nil
	}

	var candidates [][2]string

	// 2. Global config
	globalPath := GetConfigDir()
	for _, name := range fileNames {
		candidates = append(candidates, [2]string{filepath.Join(globalPath, name), globalPath})
	}

	// 3. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".navsync")
		for _, name := range fileNames {
			candidates = append(candidates, [2]string{filepath.Join(directory, name), directory})
		}
		for _, name := range fileNames {
			candidates = append(candidates, [2]string{filepath.Join(projectConfigDir, name), projectConfigDir})
		}
	}

	// 4. NAVSYNC_CONFIG file override
	if configPath := os.Getenv(EnvConfig); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfig, err)
		}
		candidates = append(candidates, [2]string{configPath, filepath.Dir(configPath)})
	}

	for _, c := range candidates {
		if err := loadOnce(c[0], c[1]); err != nil {
			return nil, err
		}
	}

	// 5. NAVSYNC_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv(EnvConfigContent); configContent != "" {
		data := interpolate(jsonc.ToJSON([]byte(configContent)), directory)
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfigContent, err)
		}
	}

	// 6. Environment variables (highest priority)
	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// fileNames are the config file names looked up in each directory.
var fileNames = []string{"navsync.json", "navsync.jsonc", "navsync.yaml", "navsync.yml"}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// godotenv.Load never overrides variables that are already set
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfigFile overlays one config file onto config. Fields absent from
// the file keep their current value.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data = interpolate(data, baseDir)
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		// Strip JSONC comments using tidwall/jsonc
		data = interpolate(jsonc.ToJSON(data), baseDir)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// yamlToJSON re-encodes a YAML document as JSON so a single set of struct
// tags serves both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped, _ := json.Marshal(strings.TrimSpace(string(content)))
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// The front-end variable first, so the native one wins
	if u := os.Getenv(EnvReactSSEURL); u != "" {
		config.SSE.URL = u
	}
	if u := os.Getenv(EnvSSEURL); u != "" {
		config.SSE.URL = u
	}
	if id := os.Getenv(EnvAppID); id != "" {
		config.AppID = id
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		config.Log.Level = level
	}
	if listen, ok := os.LookupEnv(EnvListen); ok {
		config.Server.Listen = listen
	}
	if listen := os.Getenv(EnvRelayListen); listen != "" {
		config.Relay.Listen = listen
	}
}

// Validate checks the configuration for values the components cannot run
// with. Every error wraps ErrInvalid.
func Validate(config *types.Config) error {
	var problems []string

	if strings.TrimSpace(config.AppID) == "" {
		problems = append(problems, "appId must not be empty")
	}

	if u, err := url.Parse(config.SSE.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("sse.url %q must be an http(s) URL", config.SSE.URL))
	}
	if !strings.HasPrefix(config.SSE.Path, "/") {
		problems = append(problems, fmt.Sprintf("sse.path %q must start with /", config.SSE.Path))
	}
	if config.SSE.IdleTimeout < 0 {
		problems = append(problems, "sse.idleTimeout must not be negative")
	}

	if config.History.Limit <= 0 {
		problems = append(problems, "history.limit must be positive")
	}

	r := config.Retry
	if r.InitialDelay <= 0 {
		problems = append(problems, "retry.initialDelay must be positive")
	}
	if r.MaxDelay < r.InitialDelay {
		problems = append(problems, "retry.maxDelay must not be less than retry.initialDelay")
	}
	if r.Multiplier < 1 {
		problems = append(problems, "retry.multiplier must be at least 1")
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		problems = append(problems, "retry.jitter must be in [0, 1)")
	}
	if r.MaxAttempts < 0 {
		problems = append(problems, "retry.maxAttempts must not be negative")
	}

	if config.Relay.HistoryLimit <= 0 {
		problems = append(problems, "relay.historyLimit must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigDir returns the config directory to use.
// Prefers NAVSYNC_CONFIG_DIR, then the XDG location.
func GetConfigDir() string {
	if dir := os.Getenv("NAVSYNC_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetPaths().Config
}
