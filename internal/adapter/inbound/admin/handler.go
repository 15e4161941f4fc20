// Package admin provides the JSON HTTP API for managing hub endpoints
// and tool settings.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// ToolRefresher triggers one-shot tool discovery for providers.
type ToolRefresher interface {
	Refresh(ctx context.Context, serverName string) (int, error)
	RefreshAll(ctx context.Context) (map[string]int, error)
}

// Handler provides the admin API endpoints.
type Handler struct {
	endpoints  endpoint.Store
	settings   tool.SettingStore
	catalogs   tool.CatalogStore
	publisher  endpoint.Publisher
	refresher  ToolRefresher
	configPath string
	logger     *slog.Logger
	metrics    *Metrics
	registry   *prometheus.Registry

	// sseInterval is how often /endpoints/stream re-emits the list.
	sseInterval time.Duration
}

// Option configures a Handler dependency.
type Option func(*Handler)

// WithEndpointStore sets the endpoint persistence store.
func WithEndpointStore(s endpoint.Store) Option {
	return func(h *Handler) { h.endpoints = s }
}

// WithSettingStore sets the tool setting store.
func WithSettingStore(s tool.SettingStore) Option {
	return func(h *Handler) { h.settings = s }
}

// WithCatalogStore sets the raw tool catalog cache.
func WithCatalogStore(s tool.CatalogStore) Option {
	return func(h *Handler) { h.catalogs = s }
}

// WithPublisher sets the command bus publisher for endpoint events.
func WithPublisher(p endpoint.Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithRefresher sets the tool discovery service.
func WithRefresher(r ToolRefresher) Option {
	return func(h *Handler) { h.refresher = r }
}

// WithProviderConfigPath sets the provider config file included in
// backups.
func WithProviderConfigPath(path string) Option {
	return func(h *Handler) { h.configPath = path }
}

// WithMetrics registers admin API metrics on reg and serves /metrics
// from it.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(h *Handler) {
		h.registry = reg
		h.metrics = NewMetrics(reg)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler with the given options.
func New(opts ...Option) *Handler {
	h := &Handler{
		logger:      slog.Default(),
		sseInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Endpoint CRUD + SSE stream.
	mux.HandleFunc("GET /endpoints", h.handleListEndpoints)
	mux.HandleFunc("GET /endpoints/stream", h.handleEndpointStream)
	mux.HandleFunc("GET /endpoints/{id}", h.handleGetEndpoint)
	mux.HandleFunc("POST /endpoints", h.handleCreateEndpoint)
	mux.HandleFunc("PUT /endpoints/{id}", h.handleUpdateEndpoint)
	mux.HandleFunc("DELETE /endpoints/{id}", h.handleDeleteEndpoint)

	// Tool settings and catalog cache.
	mux.HandleFunc("GET /mcp-tools", h.handleListToolSettings)
	mux.HandleFunc("GET /mcp-tools/cache", h.handleToolCache)
	mux.HandleFunc("POST /mcp-tools/toggle", h.handleToggleTool)
	mux.HandleFunc("POST /mcp-tools/update", h.handleUpdateTool)
	mux.HandleFunc("POST /mcp-tools/reset", h.handleResetTool)
	mux.HandleFunc("POST /mcp-tools/refresh", h.handleRefreshTools)

	// Backup and restore.
	mux.HandleFunc("GET /backup", h.handleBackup)
	mux.HandleFunc("POST /restore", h.handleRestore)

	mux.HandleFunc("GET /healthz", h.handleHealth)

	if h.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	if h.metrics != nil {
		handler = MetricsMiddleware(h.metrics)(handler)
	}
	return RequestIDMiddleware(h.logger)(handler)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *Handler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// publish emits an endpoint event on the command bus. Failures are
// logged only; the reconciler's store poll catches up regardless.
func (h *Handler) publish(ctx context.Context, action endpoint.Action, ep *endpoint.Endpoint) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, endpoint.EventFor(action, ep)); err != nil {
		LoggerFromContext(ctx).Warn("publish endpoint event", "action", action, "endpoint", ep.Name, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.EventsPublished.WithLabelValues(string(action)).Inc()
	}
}

// notFoundOr500 maps store errors to API responses.
func (h *Handler) notFoundOr500(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, endpoint.ErrEndpointNotFound) {
		h.respondError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.logger.Error("store error", "what", what, "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to access "+what)
}
