package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/memory"
	"github.com/mcpbridge/mcpbridge/internal/bridge"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/pubsub"
	"github.com/mcpbridge/mcpbridge/internal/config"
	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
	"github.com/mcpbridge/mcpbridge/internal/domain/provider"
)

var devMode bool

// commandBus is the pub/sub surface the serving commands need: the
// admin API publishes, the bridge subscribes.
type commandBus interface {
	endpoint.Publisher
	endpoint.Subscriber
}

// loadConfig loads the configuration without validation, applies the
// --dev flag, then validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// signalContext returns a context cancelled on the first shutdown
// signal. stop() restores default signal handling so a second Ctrl+C
// does a hard kill.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// newLogger builds the process logger on stderr. Stdout stays free for
// MCP streams.
func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	return logger
}

// newBus selects the command bus backend. The memory bus only reaches
// subscribers in the same process; split deployments use redis, and the
// bridge's store poll covers missed events either way.
func newBus(cfg *config.Config, logger *slog.Logger) commandBus {
	if cfg.PubSub.Backend == "redis" {
		return pubsub.NewRedisBus(cfg.PubSub.RedisAddr, cfg.PubSub.RedisPassword, logger)
	}
	return memory.NewCommandBus()
}

// providerConfigPath resolves the provider config file location.
// MCP_CONFIG wins over the configured path.
func providerConfigPath(cfg *config.Config) string {
	if p := os.Getenv("MCP_CONFIG"); p != "" {
		return p
	}
	if cfg.Bridge.ProviderConfig != "" {
		return cfg.Bridge.ProviderConfig
	}
	return provider.DefaultConfigPath
}

// proxyBinPath resolves the HTTP/SSE proxy adapter binary.
// HTTP_PROXY_BIN wins over the configured value.
func proxyBinPath(cfg *config.Config) string {
	if b := os.Getenv("HTTP_PROXY_BIN"); b != "" {
		return b
	}
	if cfg.Bridge.ProxyBin != "" {
		return cfg.Bridge.ProxyBin
	}
	return bridge.DefaultProxyBin
}

// bridgeToken resolves the bridge-to-hub token. MCP_WS_TOKEN wins over
// the configured value.
func bridgeToken(cfg *config.Config) string {
	if t := os.Getenv("MCP_WS_TOKEN"); t != "" {
		return t
	}
	return cfg.Bridge.Token
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
