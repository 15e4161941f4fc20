package mcpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to the MCP Bridge admin API.
type Client struct {
	serverAddr string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new admin API client.
// It reads the server address from the MCPBRIDGE_ADMIN_ADDR environment
// variable by default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("MCPBRIDGE_ADMIN_ADDR"),
		timeout:    parseDurationEnv("MCPBRIDGE_TIMEOUT", 10*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// --- Endpoints ---

// ListEndpoints returns all hub endpoints ordered by id.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var eps []Endpoint
	if err := c.doRequest(ctx, http.MethodGet, "/endpoints", nil, &eps); err != nil {
		return nil, err
	}
	return eps, nil
}

// GetEndpoint returns one endpoint by id.
// Returns an error matching ErrNotFound if the id is unknown.
func (c *Client) GetEndpoint(ctx context.Context, id int64) (*Endpoint, error) {
	var ep Endpoint
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/endpoints/%d", id), nil, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// CreateEndpoint creates a new endpoint. Name and URL are required.
// Returns an error matching ErrConflict if the name is taken.
func (c *Client) CreateEndpoint(ctx context.Context, req EndpointRequest) (*Endpoint, error) {
	var ep Endpoint
	if err := c.doRequest(ctx, http.MethodPost, "/endpoints", req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// UpdateEndpoint applies a partial update to an endpoint. Zero-valued
// request fields are left unchanged.
func (c *Client) UpdateEndpoint(ctx context.Context, id int64, req EndpointRequest) (*Endpoint, error) {
	var ep Endpoint
	if err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/endpoints/%d", id), req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// DeleteEndpoint removes an endpoint.
func (c *Client) DeleteEndpoint(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/endpoints/%d", id), nil, nil)
}

// --- Tool settings ---

// ToolSettings returns the stored tool visibility and metadata
// overrides.
func (c *Client) ToolSettings(ctx context.Context) (*ToolSettings, error) {
	var s ToolSettings
	if err := c.doRequest(ctx, http.MethodGet, "/mcp-tools", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ToolCache returns the cached tool catalogs keyed by provider name.
func (c *Client) ToolCache(ctx context.Context) (map[string]CachedCatalog, error) {
	var cache map[string]CachedCatalog
	if err := c.doRequest(ctx, http.MethodGet, "/mcp-tools/cache", nil, &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// ToggleTool enables or disables one tool for endpoints.
func (c *Client) ToggleTool(ctx context.Context, serverName, toolName string, enabled bool) error {
	body := map[string]any{
		"serverName": serverName,
		"toolName":   toolName,
		"enabled":    enabled,
	}
	return c.doRequest(ctx, http.MethodPost, "/mcp-tools/toggle", body, nil)
}

// UpdateTool sets display metadata overrides for one tool. The custom
// name is display-only; providers keep receiving the wire name.
func (c *Client) UpdateTool(ctx context.Context, t CustomTool) error {
	return c.doRequest(ctx, http.MethodPost, "/mcp-tools/update", t, nil)
}

// ResetTool removes all overrides for one tool.
func (c *Client) ResetTool(ctx context.Context, serverName, toolName string) error {
	body := map[string]string{
		"serverName": serverName,
		"toolName":   toolName,
	}
	return c.doRequest(ctx, http.MethodPost, "/mcp-tools/reset", body, nil)
}

// RefreshTools runs tool discovery for one provider, or for every
// enabled provider when serverName is empty.
func (c *Client) RefreshTools(ctx context.Context, serverName string) (*RefreshResult, error) {
	var body any
	if serverName != "" {
		body = map[string]string{"serverName": serverName}
	}
	var result RefreshResult
	if err := c.doRequest(ctx, http.MethodPost, "/mcp-tools/refresh", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Backup and restore ---

// Backup exports the endpoint table, tool overrides and provider config
// as an opaque document suitable for Restore.
func (c *Client) Backup(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "/backup", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Restore imports a backup document produced by Backup.
func (c *Client) Restore(ctx context.Context, doc json.RawMessage) error {
	return c.doRequest(ctx, http.MethodPost, "/restore", doc, nil)
}

// Health reports whether the admin API is reachable and serving.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

// doRequest performs an HTTP request against the admin API.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &APIError{
			Status:  httpResp.StatusCode,
			Message: errorMessage(respBody),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// errorMessage extracts the "error" field from an API error body,
// falling back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

// parseDurationEnv reads a duration from the environment, accepting
// either an integer number of seconds or a Go duration string.
func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if d, err := time.ParseDuration(v + "s"); err == nil {
		return d
	}
	return defaultVal
}
