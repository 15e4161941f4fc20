// Package cmd provides the CLI commands for MCP Bridge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpbridge",
	Short: "MCP Bridge - MCP aggregation hub and provider bridge",
	Long: `MCP Bridge connects local MCP (Model Context Protocol) servers to a
central aggregation hub over WebSocket.

The bridge process launches configured MCP providers as child processes
and pipes their stdio frames to the hub. The hub merges the tool
catalogs of every connected provider into one MCP surface and routes
tool calls back to the owning provider.

Quick start:
  1. Create a config file: mcpbridge.yaml
  2. Start the hub:    mcpbridge hub
  3. Start the bridge: mcpbridge bridge

Configuration:
  Config is loaded from mcpbridge.yaml in the current directory,
  $HOME/.mcpbridge/, or /etc/mcpbridge/.

  Environment variables can override config values with the MCPBRIDGE_ prefix.
  Example: MCPBRIDGE_HUB_ADDR=0.0.0.0:8765

Commands:
  hub         Start the aggregation hub server
  bridge      Start the provider bridge
  admin       Start the admin HTTP API
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpbridge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
