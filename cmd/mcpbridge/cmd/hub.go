package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/hub"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Start the aggregation hub server",
	Long: `Start the MCP aggregation hub.

The hub accepts WebSocket connections on two roles:

  Frontend (/mcp): MCP clients see one merged tool catalog covering
  every connected provider. Tool calls are routed to the provider that
  owns the tool.

  Provider (/mcp?server=<name>): bridge processes register the MCP
  servers they supervise. A configured token is enforced on this role.

Examples:
  # Listen on the configured address (default 127.0.0.1:8765)
  mcpbridge hub

  # Listen elsewhere
  MCPBRIDGE_HUB_ADDR=0.0.0.0:9000 mcpbridge hub`,
	RunE: runHub,
}

func init() {
	hubCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(hubCmd)
}

func runHub(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger := newLogger(cfg)

	var reg *prometheus.Registry
	if cfg.Hub.Metrics {
		reg = prometheus.NewRegistry()
	}

	srv := hub.NewServer(cfg.Hub.Addr, cfg.Hub.Token, logger, reg)
	logger.Info("starting hub",
		"addr", cfg.Hub.Addr,
		"auth", cfg.Hub.Token != "",
		"metrics", cfg.Hub.Metrics)
	return srv.ListenAndServe(ctx)
}
