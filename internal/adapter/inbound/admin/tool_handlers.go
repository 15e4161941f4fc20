package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// toolRef identifies one tool of one provider in request bodies.
type toolRef struct {
	ServerName string `json:"serverName"`
	ToolName   string `json:"toolName"`
}

func (ref *toolRef) validate() string {
	if strings.TrimSpace(ref.ServerName) == "" {
		return "serverName is required"
	}
	if strings.TrimSpace(ref.ToolName) == "" {
		return "toolName is required"
	}
	return ""
}

// disabledToolResponse is one entry of the disabledTools list.
type disabledToolResponse struct {
	ServerName string `json:"serverName"`
	ToolName   string `json:"toolName"`
}

// customToolResponse is one entry of the customTools list.
type customToolResponse struct {
	ServerName        string `json:"serverName"`
	ToolName          string `json:"toolName"`
	CustomName        string `json:"customName,omitempty"`
	CustomDescription string `json:"customDescription,omitempty"`
}

// handleListToolSettings returns the stored overrides split into
// disabled tools and custom metadata.
// GET /mcp-tools
func (h *Handler) handleListToolSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list tool settings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list tool settings")
		return
	}

	disabled := make([]disabledToolResponse, 0)
	custom := make([]customToolResponse, 0)
	for _, s := range settings {
		if !s.Enabled {
			disabled = append(disabled, disabledToolResponse{
				ServerName: s.ServerName,
				ToolName:   s.ToolName,
			})
		}
		if s.CustomName != "" || s.CustomDescription != "" {
			custom = append(custom, customToolResponse{
				ServerName:        s.ServerName,
				ToolName:          s.ToolName,
				CustomName:        s.CustomName,
				CustomDescription: s.CustomDescription,
			})
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"disabledTools": disabled,
		"customTools":   custom,
	})
}

// cachedCatalogResponse is one provider's raw catalog.
type cachedCatalogResponse struct {
	Tools    []tool.Tool `json:"tools"`
	CachedAt string      `json:"cached_at"`
}

// handleToolCache returns the raw per-provider tool catalogs.
// GET /mcp-tools/cache
func (h *Handler) handleToolCache(w http.ResponseWriter, r *http.Request) {
	catalogs, err := h.catalogs.All(r.Context())
	if err != nil {
		h.logger.Error("failed to read tool cache", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read tool cache")
		return
	}

	result := make(map[string]cachedCatalogResponse, len(catalogs))
	for name, catalog := range catalogs {
		result[name] = cachedCatalogResponse{
			Tools:    catalog.Tools,
			CachedAt: catalog.CachedAt.UTC().Format(time.RFC3339),
		}
	}
	h.respondJSON(w, http.StatusOK, result)
}

// handleToggleTool upserts the enabled flag for one tool.
// POST /mcp-tools/toggle
func (h *Handler) handleToggleTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		toolRef
		Enabled *bool `json:"enabled"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.settings.SetEnabled(r.Context(), req.ServerName, req.ToolName, *req.Enabled); err != nil {
		h.logger.Error("failed to toggle tool", "server", req.ServerName, "tool", req.ToolName, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to toggle tool")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdateTool upserts custom name/description for one tool.
// Empty strings clear the corresponding override. The custom name is
// display metadata only; it never reaches the provider wire.
// POST /mcp-tools/update
func (h *Handler) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		toolRef
		CustomName        string `json:"customName"`
		CustomDescription string `json:"customDescription"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.settings.SetMetadata(r.Context(), req.ServerName, req.ToolName, req.CustomName, req.CustomDescription); err != nil {
		h.logger.Error("failed to update tool metadata", "server", req.ServerName, "tool", req.ToolName, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update tool")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleResetTool removes the override for one tool.
// POST /mcp-tools/reset
func (h *Handler) handleResetTool(w http.ResponseWriter, r *http.Request) {
	var req toolRef
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.settings.Reset(r.Context(), req.ServerName, req.ToolName); err != nil {
		h.logger.Error("failed to reset tool", "server", req.ServerName, "tool", req.ToolName, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to reset tool")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRefreshTools rediscovers tools for one provider, or all enabled
// providers when serverName is absent.
// POST /mcp-tools/refresh
func (h *Handler) handleRefreshTools(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.respondError(w, http.StatusServiceUnavailable, "tool discovery not configured")
		return
	}

	var req struct {
		ServerName string `json:"serverName"`
	}
	if err := h.readJSON(r, &req); err != nil && r.ContentLength > 0 {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ServerName != "" {
		count, err := h.refresher.Refresh(r.Context(), req.ServerName)
		if err != nil {
			h.logger.Error("failed to refresh provider tools", "server", req.ServerName, "error", err)
			h.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"counts": map[string]int{req.ServerName: count},
		})
		return
	}

	counts, err := h.refresher.RefreshAll(r.Context())
	if err != nil {
		h.logger.Error("failed to refresh all provider tools", "error", err)
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"counts": counts,
	})
}
