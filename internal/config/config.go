// Package config provides the configuration schema for mcpbridge.
//
// One file configures all three processes (hub, bridge manager, admin
// API); each binary reads the sections it needs. Everything is
// file-based with environment overrides, there is no remote config
// source.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for mcpbridge.
type Config struct {
	// Server holds settings shared by every process.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Hub configures the aggregating WebSocket hub.
	Hub HubConfig `yaml:"hub" mapstructure:"hub"`

	// Bridge configures the bridge manager that supervises provider
	// processes.
	Bridge BridgeConfig `yaml:"bridge" mapstructure:"bridge"`

	// Admin configures the admin HTTP API.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Store configures local persistence (endpoint database and tool
	// catalog cache).
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// PubSub configures the command bus between the admin API and the
	// bridge manager.
	PubSub PubSubConfig `yaml:"pubsub" mapstructure:"pubsub"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig holds settings shared by every mcpbridge process.
type ServerConfig struct {
	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout is how long to wait for graceful shutdown
	// (e.g., "10s"). Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// HubConfig configures the aggregating hub.
type HubConfig struct {
	// Addr is the address the hub listens on.
	// Defaults to "127.0.0.1:8765" (localhost only) if empty.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Token guards the provider role on the hub. Bridges must present
	// it when dialing; frontends connect without one. Empty disables
	// the check.
	Token string `yaml:"token" mapstructure:"token"`

	// Metrics controls whether /metrics is served on the hub listener.
	// Defaults to true.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`
}

// BridgeConfig configures the bridge manager.
type BridgeConfig struct {
	// ProviderConfig is the path to the provider definition file
	// (mcp_config.json). The MCP_CONFIG environment variable takes
	// precedence. Defaults to "./data/mcp_config.json".
	ProviderConfig string `yaml:"provider_config" mapstructure:"provider_config"`

	// ProxyBin is the executable used to adapt HTTP and SSE providers
	// to stdio. The HTTP_PROXY_BIN environment variable takes
	// precedence. Defaults to "mcp-proxy".
	ProxyBin string `yaml:"proxy_bin" mapstructure:"proxy_bin"`

	// Token is presented to hubs when dialing as a provider bridge.
	Token string `yaml:"token" mapstructure:"token"`

	// PollInterval is how often the reconciler re-reads the store and
	// provider config (e.g., "10s"). Defaults to "10s".
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval" validate:"omitempty,duration"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	// Addr is the address the admin API listens on.
	// Defaults to "127.0.0.1:8081" (localhost only) if empty.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// StoreConfig configures local persistence.
type StoreConfig struct {
	// DBPath is the SQLite database file for endpoints and tool
	// settings. Defaults to "./data/mcpbridge.db".
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// ToolCachePath is the JSON file caching provider tool catalogs.
	// Defaults to "./data/tool_catalogs.json".
	ToolCachePath string `yaml:"tool_cache_path" mapstructure:"tool_cache_path"`
}

// PubSubConfig configures the command bus.
// The admin API publishes endpoint change events on it and the bridge
// manager subscribes; "memory" only works when both run in one process.
type PubSubConfig struct {
	// Backend selects the bus implementation.
	// Valid values: "memory" or "redis". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory redis"`

	// RedisAddr is the Redis server address (host:port).
	// Required when backend is "redis".
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`

	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
}

// ShutdownTimeoutDuration parses ShutdownTimeout. The "duration"
// validator guarantees it parses after Validate has run.
func (c *ServerConfig) ShutdownTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.ShutdownTimeout)
}

// PollIntervalDuration parses PollInterval. The "duration" validator
// guarantees it parses after Validate has run.
func (c *BridgeConfig) PollIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(c.PollInterval)
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	// Hub defaults — bind to localhost only. Users who need network
	// access must explicitly set hub.addr: ":8765" or "0.0.0.0:8765".
	if c.Hub.Addr == "" {
		c.Hub.Addr = "127.0.0.1:8765"
	}
	// viper.IsSet distinguishes "not set" (zero value) from
	// "explicitly false".
	if !viper.IsSet("hub.metrics") {
		c.Hub.Metrics = true
	}

	if c.Bridge.ProviderConfig == "" {
		c.Bridge.ProviderConfig = "./data/mcp_config.json"
	}
	if c.Bridge.ProxyBin == "" {
		c.Bridge.ProxyBin = "mcp-proxy"
	}
	if c.Bridge.PollInterval == "" {
		c.Bridge.PollInterval = "10s"
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:8081"
	}

	if c.Store.DBPath == "" {
		c.Store.DBPath = "./data/mcpbridge.db"
	}
	if c.Store.ToolCachePath == "" {
		c.Store.ToolCachePath = "./data/tool_catalogs.json"
	}

	if c.PubSub.Backend == "" {
		c.PubSub.Backend = "memory"
	}
}
