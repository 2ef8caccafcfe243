// Package config loads dapclient's runtime configuration from viper,
// which merges flag values, environment variables, and defaults set up by
// the cobra command in cmd/dapclient.
package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for a dapclient invocation.
type Config struct {
	// AdapterCommand and AdapterArgs launch a stdio-connected debug
	// adapter subprocess. Leave AdapterCommand empty to use TCP instead.
	AdapterCommand string
	AdapterArgs    []string
	AdapterCwd     string

	// TCPHost/TCPPort dial an already-listening adapter directly.
	// TCPListenRegex, if AdapterCommand is also set, scrapes the
	// adapter's own stdout banner for a "host:port" to dial
	// (common for adapters that spawn their own server and announce it).
	TCPHost        string
	TCPPort        int
	TCPListenRegex string

	StartupTimeoutSeconds int
	MaxSessionDepth       int
	SyncDebounceMillis    int

	ClientID   string
	ClientName string
	AdapterID  string

	DashboardPort int
	Verbose       bool
}

// Load reads configuration from viper.
func Load() Config {
	return Config{
		AdapterCommand:        viper.GetString("adapter_command"),
		AdapterArgs:           viper.GetStringSlice("adapter_args"),
		AdapterCwd:            viper.GetString("adapter_cwd"),
		TCPHost:               viper.GetString("tcp_host"),
		TCPPort:               viper.GetInt("tcp_port"),
		TCPListenRegex:        viper.GetString("tcp_listen_regex"),
		StartupTimeoutSeconds: viper.GetInt("startup_timeout_seconds"),
		MaxSessionDepth:       viper.GetInt("max_session_depth"),
		SyncDebounceMillis:    viper.GetInt("sync_debounce_millis"),
		ClientID:              viper.GetString("client_id"),
		ClientName:            viper.GetString("client_name"),
		AdapterID:             viper.GetString("adapter_id"),
		DashboardPort:         viper.GetInt("dashboard_port"),
		Verbose:               viper.GetBool("verbose"),
	}
}

// Defaults returns the built-in defaults, applied by cmd/dapclient before
// binding flags so an unset flag/env var falls back to these.
func Defaults() map[string]any {
	return map[string]any{
		"startup_timeout_seconds": 30,
		"max_session_depth":       5,
		"sync_debounce_millis":    50,
		"client_id":               "dapclient",
		"client_name":             "dapclient",
		"adapter_id":              "",
		"tcp_listen_regex":        `[Ll]istening (on|at)\s+(?P<host>[\w.\-]+):(?P<port>\d+)`,
	}
}
