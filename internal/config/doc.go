// Package config provides configuration loading, merging, and path management for navsync.
//
// # Configuration Loading
//
// Load starts from Default and overlays every source it finds, in order:
//
//  1. Global config (~/.config/navsync/, or NAVSYNC_CONFIG_DIR)
//  2. Project config in the given directory
//     (navsync.json[c]/navsync.y[a]ml and .navsync/navsync.json[c]/.y[a]ml)
//  3. NAVSYNC_CONFIG file
//  4. NAVSYNC_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// A source only overrides the keys it contains. A .env file in the
// directory is loaded before anything else; it fills environment variables
// that are not already set, so it takes part in both interpolation and
// the environment overrides.
//
// # Supported Formats
//
//   - navsync.json - Standard JSON configuration
//   - navsync.jsonc - JSON with comments, processed using tidwall/jsonc
//   - navsync.yaml, navsync.yml - YAML, decoded with gopkg.in/yaml.v3
//
// Durations are written as strings ("5s", "1m30s") or as milliseconds.
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// Example configuration:
//
//	{
//	  // identity used to filter navigation events
//	  "appId": "operate-experience",
//	  "sse": {
//	    "url": "{env:PUSH_SOURCE_URL}",
//	    "idleTimeout": "2m"
//	  },
//	  "retry": {
//	    "initialDelay": "5s",
//	    "maxDelay": "1m",
//	    "maxAttempts": 0
//	  }
//	}
//
// # Environment Variable Overrides
//
//   - REACT_APP_SSE_SERVICE_URL - push source base URL (front-end name)
//   - NAVSYNC_SSE_URL - push source base URL, wins over the above
//   - NAVSYNC_APP_ID - application identity
//   - NAVSYNC_LOG_LEVEL - DEBUG, INFO, WARN or ERROR
//   - NAVSYNC_LISTEN - local API address, empty disables the API
//   - NAVSYNC_RELAY_LISTEN - relay address
//
// # Watching
//
// NewWatcher reports edits to the files Sources lists for a directory,
// debounced so one save produces one callback. The listen command uses it
// to restart the agent with the reloaded configuration.
//
// # Validation
//
// Load returns an error wrapping ErrInvalid when the merged configuration
// cannot be used, for example an empty appId or a non-http(s) sse.url.
package config
