package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/adapter/inbound/admin"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/sqlite"
	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/toolcache"
	"github.com/mcpbridge/mcpbridge/internal/service"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Start the admin HTTP API",
	Long: `Start the admin HTTP API.

The admin API manages hub endpoints (CRUD plus a live SSE stream),
tool visibility and metadata overrides, on-demand tool discovery, and
configuration backup/restore. Changes are persisted to the shared
store and announced on the command bus so a running bridge reacts
immediately.

Examples:
  # Serve on the configured address (default 127.0.0.1:8081)
  mcpbridge admin

  # List endpoints
  curl http://127.0.0.1:8081/endpoints`,
	RunE: runAdmin,
}

func init() {
	adminCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(adminCmd)
}

func runAdmin(cmd *cobra.Command, args []string) error {
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

	catalogs := toolcache.NewFileCatalogStore(cfg.Store.ToolCachePath, logger)
	configPath := providerConfigPath(cfg)
	discovery := service.NewDiscoveryService(configPath, proxyBinPath(cfg), catalogs, logger)

	handler := admin.New(
		admin.WithMetrics(prometheus.NewRegistry()),
		admin.WithEndpointStore(sqlite.NewEndpointStore(db)),
		admin.WithSettingStore(sqlite.NewToolSettingStore(db)),
		admin.WithCatalogStore(catalogs),
		admin.WithPublisher(newBus(cfg, logger)),
		admin.WithRefresher(discovery),
		admin.WithProviderConfigPath(configPath),
		admin.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: handler.Routes(),
	}
	go func() {
		<-ctx.Done()
		timeout := 10 * time.Second
		if d, err := cfg.Server.ShutdownTimeoutDuration(); err == nil {
			timeout = d
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin shutdown", "error", err)
		}
	}()

	logger.Info("starting admin API",
		"addr", cfg.Admin.Addr,
		"db", cfg.Store.DBPath,
		"pubsub", cfg.PubSub.Backend)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
