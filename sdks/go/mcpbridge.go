// Package mcpbridge provides a Go SDK for the MCP Bridge admin API.
//
// The admin API manages hub endpoints, per-tool visibility overrides,
// tool discovery, and configuration backup/restore. This SDK wraps it
// in typed methods. It uses only the Go standard library (net/http)
// with zero external dependencies.
//
// Quick start:
//
//	// Set MCPBRIDGE_ADMIN_ADDR, then:
//	client := mcpbridge.NewClient()
//
//	ep, err := client.CreateEndpoint(ctx, mcpbridge.EndpointRequest{
//	    Name: "prod",
//	    URL:  "wss://hub.example.com/mcp",
//	})
//	if err != nil {
//	    if errors.Is(err, mcpbridge.ErrConflict) {
//	        // an endpoint with that name already exists
//	    }
//	}
package mcpbridge

import "encoding/json"

// EndpointRequest is the body for creating or updating an endpoint.
// On update, nil fields are left unchanged.
type EndpointRequest struct {
	// Name is the unique endpoint name.
	Name string `json:"name,omitempty"`

	// URL is the hub WebSocket URL (ws:// or wss://).
	URL string `json:"url,omitempty"`

	// Enabled controls whether bridges serve this endpoint.
	// Defaults to true on create.
	Enabled *bool `json:"enabled,omitempty"`
}

// Endpoint is one hub endpoint record as returned by the admin API.
type Endpoint struct {
	// ID is the server-assigned identifier.
	ID int64 `json:"id"`

	// Name is the unique endpoint name.
	Name string `json:"name"`

	// URL is the hub WebSocket URL.
	URL string `json:"url"`

	// Enabled controls whether bridges serve this endpoint.
	Enabled bool `json:"enabled"`

	// Status is the live connection state: "connected", "disconnected"
	// or "error".
	Status string `json:"connection_status"`

	// LastConnectedAt is the RFC 3339 time of the last successful
	// connection, empty if never connected.
	LastConnectedAt string `json:"last_connected_at,omitempty"`

	// ConnectionError holds the last connection failure message.
	ConnectionError string `json:"connection_error,omitempty"`

	// CreatedAt is the RFC 3339 creation time.
	CreatedAt string `json:"created_at"`

	// UpdatedAt is the RFC 3339 time of the last modification.
	UpdatedAt string `json:"updated_at"`
}

// DisabledTool identifies a tool hidden from endpoints.
type DisabledTool struct {
	// ServerName is the provider the tool belongs to.
	ServerName string `json:"serverName"`

	// ToolName is the tool's wire name.
	ToolName string `json:"toolName"`
}

// CustomTool is a tool with display metadata overrides.
type CustomTool struct {
	// ServerName is the provider the tool belongs to.
	ServerName string `json:"serverName"`

	// ToolName is the tool's wire name.
	ToolName string `json:"toolName"`

	// CustomName is a display-only rename.
	CustomName string `json:"customName,omitempty"`

	// CustomDescription replaces the provider's description.
	CustomDescription string `json:"customDescription,omitempty"`
}

// ToolSettings is the full set of tool overrides.
type ToolSettings struct {
	// DisabledTools lists tools hidden from endpoints.
	DisabledTools []DisabledTool `json:"disabledTools"`

	// CustomTools lists tools with metadata overrides.
	CustomTools []CustomTool `json:"customTools"`
}

// Tool is one entry of a provider's cached tool catalog.
type Tool struct {
	// Name is the tool's wire name.
	Name string `json:"name"`

	// Description is the provider-supplied description.
	Description *string `json:"description,omitempty"`

	// InputSchema is the JSON Schema for the tool's parameters.
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CachedCatalog is one provider's cached tools/list result.
type CachedCatalog struct {
	// Tools is the raw tool list as the provider reported it.
	Tools []Tool `json:"tools"`

	// CachedAt is the RFC 3339 time the catalog was cached.
	CachedAt string `json:"cached_at"`
}

// RefreshResult reports the outcome of a tool discovery run.
type RefreshResult struct {
	// Status is "ok" on success.
	Status string `json:"status"`

	// Counts maps provider name to the number of tools discovered.
	Counts map[string]int `json:"counts"`
}
