package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// ToolFilter rewrites provider tools/list responses before they reach
// the hub: the raw catalog is cached for the admin API, then disabled
// tools are dropped and custom descriptions overlaid.
//
// A custom name is display-only and never applied here. The wire name
// must stay what the provider reported or tools/call would break.
type ToolFilter struct {
	settings tool.SettingStore
	catalogs tool.CatalogStore
	logger   *slog.Logger
}

// NewToolFilter creates a filter backed by the given stores.
func NewToolFilter(settings tool.SettingStore, catalogs tool.CatalogStore, logger *slog.Logger) *ToolFilter {
	return &ToolFilter{
		settings: settings,
		catalogs: catalogs,
		logger:   logger,
	}
}

// FilterToolsResponse processes one tools/list response for serverName.
// includeDisabled comes from the matching request's params and keeps
// disabled tools visible (for management frontends).
//
// Every response field other than result.tools passes through unchanged.
// If the payload does not look like a tools/list response it is returned
// as-is.
func (f *ToolFilter) FilterToolsResponse(ctx context.Context, serverName string, raw []byte, includeDisabled bool) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw, nil
	}
	var result map[string]json.RawMessage
	if err := json.Unmarshal(envelope["result"], &result); err != nil {
		return raw, nil
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(result["tools"], &tools); err != nil {
		return raw, nil
	}

	f.cacheCatalog(ctx, serverName, tools)

	overrides, err := f.settings.ListForServer(ctx, serverName)
	if err != nil {
		return nil, fmt.Errorf("load tool settings for %q: %w", serverName, err)
	}

	filtered := make([]json.RawMessage, 0, len(tools))
	for _, rawTool := range tools {
		var meta struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(rawTool, &meta); err != nil || meta.Name == "" {
			// Unrecognizable entries pass through untouched.
			filtered = append(filtered, rawTool)
			continue
		}

		setting, hasSetting := overrides[meta.Name]
		if hasSetting && !setting.Enabled && !includeDisabled {
			continue
		}
		if hasSetting && setting.CustomDescription != "" {
			rewritten, err := overrideDescription(rawTool, setting.CustomDescription)
			if err != nil {
				f.logger.Warn("failed to apply custom description",
					"server", serverName, "tool", meta.Name, "error", err)
			} else {
				rawTool = rewritten
			}
		}
		filtered = append(filtered, rawTool)
	}

	rawFiltered, err := json.Marshal(filtered)
	if err != nil {
		return nil, fmt.Errorf("marshal filtered tools: %w", err)
	}
	result["tools"] = rawFiltered

	rawResult, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	envelope["result"] = rawResult

	return json.Marshal(envelope)
}

// InvalidateCatalog drops the cached catalog for a provider. Called
// when a provider is disabled or removed from the config.
func (f *ToolFilter) InvalidateCatalog(ctx context.Context, serverName string) error {
	return f.catalogs.Delete(ctx, serverName)
}

// cacheCatalog stores the unfiltered tool list for the admin API.
// Cache failures are logged, never surfaced: the frame must keep moving.
func (f *ToolFilter) cacheCatalog(ctx context.Context, serverName string, rawTools []json.RawMessage) {
	catalog := &tool.Catalog{
		ServerName: serverName,
		CachedAt:   time.Now().UTC(),
		Tools:      make([]tool.Tool, 0, len(rawTools)),
	}
	for _, rawTool := range rawTools {
		var t tool.Tool
		if err := json.Unmarshal(rawTool, &t); err != nil || t.Name == "" {
			continue
		}
		catalog.Tools = append(catalog.Tools, t)
	}

	if err := f.catalogs.Put(ctx, catalog); err != nil {
		f.logger.Warn("failed to cache tool catalog",
			"server", serverName, "error", err)
	}
}

func overrideDescription(rawTool json.RawMessage, description string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawTool, &fields); err != nil {
		return nil, err
	}
	rawDesc, err := json.Marshal(description)
	if err != nil {
		return nil, err
	}
	fields["description"] = rawDesc
	return json.Marshal(fields)
}
