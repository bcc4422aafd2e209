package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operate-experience/navsync/pkg/types"
)

// isolate points HOME and XDG dirs at a temp dir and clears every
// variable Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmpDir, ".state"))
	for _, key := range []string{
		EnvConfig, EnvConfigContent, EnvReactSSEURL, EnvSSEURL,
		EnvAppID, EnvLogLevel, EnvListen, EnvRelayListen, "NAVSYNC_CONFIG_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return tmpDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "operate-experience", cfg.AppID)
	assert.Equal(t, "http://localhost:3001/api/sse", cfg.SSE.Endpoint())
	assert.Equal(t, 90*time.Second, cfg.SSE.IdleTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Retry.InitialDelay.Std())
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, 0, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10, cfg.History.Limit)
	assert.Equal(t, "127.0.0.1:3002", cfg.Server.Listen)
	assert.Equal(t, ":3001", cfg.Relay.Listen)
	assert.Equal(t, 30*time.Second, cfg.Relay.Heartbeat.Std())
}

func TestJSONCComments(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, "navsync.jsonc"), `{
		// This is a single-line comment
		"appId": "loan-desk",
		/* This is a
		   multi-line comment */
		"retry": {
			"initialDelay": "250ms", // inline comment
			"maxAttempts": 3
		}
	}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "loan-desk", cfg.AppID)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay.Std())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
}

func TestLoadYAML(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".navsync", "navsync.yaml"), `
appId: operate-experience
sse:
  url: https://push.example.com/
  idleTimeout: 120000
history:
  limit: 5
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "https://push.example.com/api/sse", cfg.SSE.Endpoint())
	assert.Equal(t, 2*time.Minute, cfg.SSE.IdleTimeout.Std())
	assert.Equal(t, 5, cfg.History.Limit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadPrecedence(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, ".config", "navsync", "navsync.json"),
		`{"appId": "global", "history": {"limit": 4}, "server": {"listen": "127.0.0.1:9000"}}`)
	writeFile(t, filepath.Join(tmpDir, "navsync.json"),
		`{"appId": "project", "history": {"limit": 6}}`)

	override := filepath.Join(tmpDir, "override.json")
	writeFile(t, override, `{"appId": "override"}`)
	t.Setenv(EnvConfig, override)
	t.Setenv(EnvConfigContent, `{"history": {"limit": 8}}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.AppID)
	assert.Equal(t, 8, cfg.History.Limit)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := isolate(t)
	writeFile(t, filepath.Join(tmpDir, "navsync.json"), `{"appId": "from-file"}`)

	t.Setenv(EnvReactSSEURL, "http://react:3001")
	t.Setenv(EnvAppID, "from-env")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvListen, "")
	t.Setenv(EnvRelayListen, ":4000")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "http://react:3001", cfg.SSE.URL)
	assert.Equal(t, "from-env", cfg.AppID)
	assert.Equal(t, "WARN", cfg.Log.Level)
	assert.Equal(t, "", cfg.Server.Listen)
	assert.Equal(t, ":4000", cfg.Relay.Listen)

	t.Setenv(EnvSSEURL, "http://native:3001")
	cfg, err = Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "http://native:3001", cfg.SSE.URL)
}

func TestDotEnv(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("NAVSYNC_TEST_SOURCE", "")
	os.Unsetenv("NAVSYNC_TEST_SOURCE")

	writeFile(t, filepath.Join(tmpDir, ".env"),
		"NAVSYNC_APP_ID=dotenv-app\nNAVSYNC_TEST_SOURCE=http://dotenv:3001\n")
	writeFile(t, filepath.Join(tmpDir, "navsync.json"), `{"sse": {"url": "{env:NAVSYNC_TEST_SOURCE}"}}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "dotenv-app", cfg.AppID)
	assert.Equal(t, "http://dotenv:3001", cfg.SSE.URL)
}

func TestDotEnvDoesNotOverride(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv(EnvAppID, "shell")

	writeFile(t, filepath.Join(tmpDir, ".env"), "NAVSYNC_APP_ID=dotenv-app\n")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "shell", cfg.AppID)
}

func TestFileInterpolation(t *testing.T) {
	tmpDir := isolate(t)

	writeFile(t, filepath.Join(tmpDir, "app-id.txt"), "file-app\n")
	writeFile(t, filepath.Join(tmpDir, "navsync.json"), `{"appId": "{file:app-id.txt}"}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "file-app", cfg.AppID)
}

func TestLoadErrors(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		tmpDir := isolate(t)
		writeFile(t, filepath.Join(tmpDir, "navsync.json"), `{"appId": `)

		_, err := Load(tmpDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "navsync.json")
	})

	t.Run("missing NAVSYNC_CONFIG", func(t *testing.T) {
		tmpDir := isolate(t)
		t.Setenv(EnvConfig, filepath.Join(tmpDir, "nope.json"))

		_, err := Load(tmpDir)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad inline content", func(t *testing.T) {
		tmpDir := isolate(t)
		t.Setenv(EnvConfigContent, `not json`)

		_, err := Load(tmpDir)
		assert.Error(t, err)
	})

	t.Run("invalid result", func(t *testing.T) {
		tmpDir := isolate(t)
		t.Setenv(EnvSSEURL, "ws://push")

		_, err := Load(tmpDir)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.Config)
		want   string
	}{
		{"empty app id", func(c *types.Config) { c.AppID = " " }, "appId"},
		{"relative url", func(c *types.Config) { c.SSE.URL = "localhost:3001" }, "sse.url"},
		{"bad path", func(c *types.Config) { c.SSE.Path = "api/sse" }, "sse.path"},
		{"zero history", func(c *types.Config) { c.History.Limit = 0 }, "history.limit"},
		{"zero delay", func(c *types.Config) { c.Retry.InitialDelay = 0 }, "retry.initialDelay"},
		{"max below initial", func(c *types.Config) { c.Retry.MaxDelay = types.Duration(time.Second) }, "retry.maxDelay"},
		{"multiplier", func(c *types.Config) { c.Retry.Multiplier = 0.5 }, "retry.multiplier"},
		{"jitter", func(c *types.Config) { c.Retry.Jitter = 1 }, "retry.jitter"},
		{"attempts", func(c *types.Config) { c.Retry.MaxAttempts = -1 }, "retry.maxAttempts"},
		{"relay history", func(c *types.Config) { c.Relay.HistoryLimit = 0 }, "relay.historyLimit"},
	}

	require.NoError(t, Validate(Default()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := Validate(cfg)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := isolate(t)

	cfg := Default()
	cfg.AppID = "saved"
	cfg.Retry.MaxAttempts = 7

	path := ProjectConfigPath(tmpDir)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetPaths(t *testing.T) {
	tmpDir := isolate(t)

	paths := GetPaths()
	assert.Equal(t, filepath.Join(tmpDir, ".config", "navsync"), paths.Config)
	assert.Equal(t, filepath.Join(tmpDir, ".state", "navsync", "log"), paths.LogPath())
	require.NoError(t, paths.EnsurePaths())
	assert.DirExists(t, paths.State)

	t.Setenv("NAVSYNC_CONFIG_DIR", filepath.Join(tmpDir, "custom"))
	assert.Equal(t, filepath.Join(tmpDir, "custom", "navsync.json"), GlobalConfigPath())
}
