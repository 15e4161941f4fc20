package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/sqlite"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/toolcache"
	"github.com/mcpbridge/mcpbridge/internal/bridge"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the provider bridge",
	Long: `Start the provider bridge.

The bridge reads hub endpoints from the store and MCP providers from
the provider config file, launches one child process per enabled
endpoint/provider pair, and pipes each child's stdio MCP stream to the
hub over WebSocket. Crashed children and dropped sockets reconnect
with exponential backoff.

The provider config file is polled for changes; edits take effect
without a restart. Control-plane events published by the admin API
trigger an immediate reconcile pass.

Environment:
  MCP_CONFIG      provider config file (overrides bridge.provider_config)
  MCP_WS_TOKEN    hub token (overrides bridge.token)
  HTTP_PROXY_BIN  MCP-over-HTTP adapter binary (overrides bridge.proxy_bin)

Examples:
  # Bridge the providers in ./data/mcp_config.json
  mcpbridge bridge

  # Point at another hub token and config
  MCP_WS_TOKEN=s3cret MCP_CONFIG=/etc/mcp.json mcpbridge bridge`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger := newLogger(cfg)

	db, err := sqlite.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	endpoints := sqlite.NewEndpointStore(db)
	settings := sqlite.NewToolSettingStore(db)
	catalogs := toolcache.NewFileCatalogStore(cfg.Store.ToolCachePath, logger)
	filter := bridge.NewToolFilter(settings, catalogs, logger)

	// Launch sites read HTTP_PROXY_BIN; seed it from config when unset.
	if os.Getenv("HTTP_PROXY_BIN") == "" && cfg.Bridge.ProxyBin != "" {
		os.Setenv("HTTP_PROXY_BIN", cfg.Bridge.ProxyBin)
	}

	configPath := providerConfigPath(cfg)
	rec := bridge.NewReconciler(endpoints, configPath, filter, bridgeToken(cfg), logger, nil)
	if d, err := cfg.Bridge.PollIntervalDuration(); err == nil {
		rec.SetPollInterval(d)
	}

	bus := newBus(cfg, logger)
	go func() {
		if err := bus.Subscribe(ctx, rec.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Error("command bus subscription failed", "error", err)
		}
	}()

	logger.Info("starting bridge",
		"provider_config", configPath,
		"db", cfg.Store.DBPath,
		"pubsub", cfg.PubSub.Backend)
	return rec.Run(ctx)
}
