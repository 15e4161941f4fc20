package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// backupVersion identifies the backup document format.
const backupVersion = "1.0"

// backupDocument is the on-the-wire backup format. It covers the
// endpoint table, the tool setting overrides and the raw provider
// config file.
type backupDocument struct {
	Version       string                 `json:"version"`
	ExportedAt    string                 `json:"exported_at"`
	Endpoints     []backupEndpoint       `json:"endpoints"`
	DisabledTools []disabledToolResponse `json:"disabledTools"`
	CustomTools   []customToolResponse   `json:"customTools"`
	MCPConfig     json.RawMessage        `json:"mcpConfig,omitempty"`
}

// backupEndpoint carries the persistent endpoint fields; runtime status
// is not backed up.
type backupEndpoint struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// handleBackup exports endpoints, tool settings and the provider config.
// GET /backup
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eps, err := h.endpoints.List(ctx)
	if err != nil {
		h.logger.Error("failed to list endpoints for backup", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export endpoints")
		return
	}
	settings, err := h.settings.List(ctx)
	if err != nil {
		h.logger.Error("failed to list tool settings for backup", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export tool settings")
		return
	}

	doc := backupDocument{
		Version:       backupVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Endpoints:     make([]backupEndpoint, 0, len(eps)),
		DisabledTools: make([]disabledToolResponse, 0),
		CustomTools:   make([]customToolResponse, 0),
	}
	for _, ep := range eps {
		doc.Endpoints = append(doc.Endpoints, backupEndpoint{
			Name:    ep.Name,
			URL:     ep.URL,
			Enabled: ep.Enabled,
		})
	}
	for _, s := range settings {
		if !s.Enabled {
			doc.DisabledTools = append(doc.DisabledTools, disabledToolResponse{
				ServerName: s.ServerName,
				ToolName:   s.ToolName,
			})
		}
		if s.CustomName != "" || s.CustomDescription != "" {
			doc.CustomTools = append(doc.CustomTools, customToolResponse{
				ServerName:        s.ServerName,
				ToolName:          s.ToolName,
				CustomName:        s.CustomName,
				CustomDescription: s.CustomDescription,
			})
		}
	}

	// Provider config is included verbatim when present and valid JSON.
	if h.configPath != "" {
		if raw, err := os.ReadFile(h.configPath); err == nil && json.Valid(raw) {
			doc.MCPConfig = raw
		}
	}

	h.respondJSON(w, http.StatusOK, doc)
}

// handleRestore imports a backup document: endpoints are upserted by
// name, tool settings replace the stored overrides, and the provider
// config file is rewritten (the reconciler's mtime poll picks it up).
// POST /restore
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc backupDocument
	if err := h.readJSON(r, &doc); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if doc.Version != backupVersion {
		h.respondError(w, http.StatusBadRequest, "unsupported backup version")
		return
	}

	restored := 0
	for _, bep := range doc.Endpoints {
		ep := &endpoint.Endpoint{
			Name:    bep.Name,
			URL:     bep.URL,
			Enabled: bep.Enabled,
			Status:  endpoint.StatusDisconnected,
		}
		if err := ep.Validate(); err != nil {
			h.respondError(w, http.StatusBadRequest, "endpoint "+bep.Name+": "+err.Error())
			return
		}

		existing, err := h.endpoints.GetByName(ctx, bep.Name)
		switch {
		case err == nil:
			existing.URL = bep.URL
			existing.Enabled = bep.Enabled
			if err := h.endpoints.Update(ctx, existing); err != nil {
				h.logger.Error("failed to restore endpoint", "name", bep.Name, "error", err)
				h.respondError(w, http.StatusInternalServerError, "failed to restore endpoints")
				return
			}
			ep = existing
		case errors.Is(err, endpoint.ErrEndpointNotFound):
			if err := h.endpoints.Create(ctx, ep); err != nil {
				h.logger.Error("failed to restore endpoint", "name", bep.Name, "error", err)
				h.respondError(w, http.StatusInternalServerError, "failed to restore endpoints")
				return
			}
		default:
			h.logger.Error("failed to look up endpoint", "name", bep.Name, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to restore endpoints")
			return
		}

		if ep.Enabled {
			h.publish(ctx, endpoint.ActionConnect, ep)
		} else {
			h.publish(ctx, endpoint.ActionDisconnect, ep)
		}
		restored++
	}

	// Tool settings are replaced wholesale.
	if err := h.settings.ResetAll(ctx); err != nil {
		h.logger.Error("failed to clear tool settings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to restore tool settings")
		return
	}
	for _, dt := range doc.DisabledTools {
		if err := h.settings.SetEnabled(ctx, dt.ServerName, dt.ToolName, false); err != nil {
			h.logger.Error("failed to restore disabled tool", "server", dt.ServerName, "tool", dt.ToolName, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to restore tool settings")
			return
		}
	}
	for _, ct := range doc.CustomTools {
		if err := h.settings.SetMetadata(ctx, ct.ServerName, ct.ToolName, ct.CustomName, ct.CustomDescription); err != nil {
			h.logger.Error("failed to restore custom tool", "server", ct.ServerName, "tool", ct.ToolName, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to restore tool settings")
			return
		}
	}

	if len(doc.MCPConfig) > 0 && h.configPath != "" {
		if err := os.WriteFile(h.configPath, doc.MCPConfig, 0600); err != nil {
			h.logger.Error("failed to restore provider config", "path", h.configPath, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to restore provider config")
			return
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"endpoints": restored,
	})
}
