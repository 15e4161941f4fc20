// Package tool contains domain types for tool visibility settings and
// the cached tool catalogs built from provider tools/list responses.
package tool

import (
	"encoding/json"
	"time"
)

// Tool represents a tool from the MCP tools/list response.
// Fields match the MCP specification 2025-06-18.
type Tool struct {
	// Name is the unique identifier for this tool (required).
	Name string `json:"name"`

	// Title is an optional human-readable display name.
	Title *string `json:"title,omitempty"`

	// Description is an optional human-readable description.
	Description *string `json:"description,omitempty"`

	// InputSchema is the JSON Schema for the tool's parameters (required).
	InputSchema json.RawMessage `json:"inputSchema"`

	// OutputSchema is an optional JSON Schema for the tool's output.
	OutputSchema *json.RawMessage `json:"outputSchema,omitempty"`
}

// Setting is a per-tool visibility override, keyed by provider name and
// tool name. A tool with no Setting row is enabled with its provider
// supplied metadata.
type Setting struct {
	// ServerName is the provider the tool belongs to.
	ServerName string
	// ToolName is the tool's wire name as reported by the provider.
	ToolName string
	// Enabled controls whether the tool is visible to endpoints.
	Enabled bool
	// CustomName is a display-only rename. It never changes the wire
	// name, which providers must keep receiving in tools/call.
	CustomName string
	// CustomDescription replaces the provider's description when set.
	CustomDescription string
	// UpdatedAt is when this setting was last modified.
	UpdatedAt time.Time
}

// Catalog represents a cached collection of tools from one provider,
// exactly as the provider reported them (before filtering).
type Catalog struct {
	// Tools is the raw tools array from the provider.
	Tools []Tool `json:"tools"`

	// CachedAt is when this catalog was cached (UTC).
	CachedAt time.Time `json:"cachedAt"`

	// ServerName identifies which provider this catalog is from.
	ServerName string `json:"serverName"`
}
