// Package hub aggregates the tool surfaces of many provider bridges
// behind a single MCP endpoint for frontend clients.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

const (
	// protocolVersion is what the hub speaks in the handshakes it
	// synthesizes on both sides.
	protocolVersion = "2024-11-05"
	hubClientName   = "MCP Hub"
	hubVersion      = "1.0.0"

	// initIDPrefix and toolsIDPrefix mark the hub's own requests to
	// providers so their responses are intercepted instead of relayed.
	initIDPrefix  = "hub_init_"
	toolsIDPrefix = "hub_tools_"

	// refreshTimeout caps how long a frontend tools/list waits for
	// providers to answer; slow providers keep their stale entries.
	refreshTimeout = 3 * time.Second
)

// toolRoute maps an exposed tool name back to the provider and wire
// name that serve it.
type toolRoute struct {
	provider string
	wireName string
}

// Hub owns all connection state: frontends, providers, their tool
// lists, and the routing registry derived from them. One mutex guards
// it all; frame relays hold it only long enough to snapshot targets.
type Hub struct {
	logger  *slog.Logger
	metrics *Metrics

	mu          sync.Mutex
	frontends   map[*conn]struct{}
	providers   map[string]*providerConn
	serverTools map[string][]json.RawMessage
	registry    map[string]toolRoute
	// refreshWaiters are signaled when a provider's tool list updates.
	refreshWaiters map[string][]chan struct{}
}

// New creates an empty hub. metrics may be nil in tests.
func New(logger *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		logger:         logger,
		metrics:        metrics,
		frontends:      make(map[*conn]struct{}),
		providers:      make(map[string]*providerConn),
		serverTools:    make(map[string][]json.RawMessage),
		registry:       make(map[string]toolRoute),
		refreshWaiters: make(map[string][]chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Provider side
// ---------------------------------------------------------------------------

// registerProvider admits a provider connection and starts the MCP
// handshake towards it. A reconnect under the same name displaces the
// previous connection.
func (h *Hub) registerProvider(name string, c *conn) *providerConn {
	p := &providerConn{conn: c, name: name}

	h.mu.Lock()
	if old, ok := h.providers[name]; ok {
		h.logger.Warn("provider reconnected, displacing previous connection", "provider", name)
		old.close()
	}
	h.providers[name] = p
	h.mu.Unlock()

	h.logger.Info("provider connected", "provider", name)
	if h.metrics != nil {
		h.metrics.ProvidersConnected.Set(float64(h.providerCount()))
	}

	h.sendInitialize(p)
	h.broadcastStatus()
	return p
}

// sendInitialize opens the MCP handshake with a provider.
func (h *Hub) sendInitialize(p *providerConn) {
	frame, err := mcp.NewRequest(initIDPrefix+p.name, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    hubClientName,
			"version": hubVersion,
		},
	})
	if err != nil {
		h.logger.Error("build initialize request", "provider", p.name, "error", err)
		return
	}
	if err := p.writeRaw(frame); err != nil {
		h.logger.Warn("send initialize", "provider", p.name, "error", err)
	}
}

// unregisterProvider removes a provider and prunes its tools from the
// registry.
func (h *Hub) unregisterProvider(p *providerConn) {
	h.mu.Lock()
	// Only remove if this connection is still the registered one; a
	// displaced connection must not tear down its replacement.
	if cur, ok := h.providers[p.name]; ok && cur == p {
		delete(h.providers, p.name)
		delete(h.serverTools, p.name)
		h.rebuildRegistryLocked()
		h.signalRefreshLocked(p.name)
	}
	h.mu.Unlock()
	p.close()

	h.logger.Info("provider disconnected", "provider", p.name)
	if h.metrics != nil {
		h.metrics.ProvidersConnected.Set(float64(h.providerCount()))
	}
	h.broadcastStatus()
}

// runProvider drives the read loop for one provider connection.
func (h *Hub) runProvider(p *providerConn) {
	defer h.unregisterProvider(p)
	for {
		_, frame, err := p.ws.ReadMessage()
		if err != nil {
			return
		}
		h.handleProviderFrame(p, frame)
	}
}

// handleProviderFrame intercepts responses to the hub's own handshake
// and tool requests; everything else is relayed to all frontends.
func (h *Hub) handleProviderFrame(p *providerConn, frame []byte) {
	if h.metrics != nil {
		h.metrics.FramesTotal.WithLabelValues("from_provider").Inc()
	}

	switch id, _ := hubRequestID(frame); {
	case id == initIDPrefix+p.name:
		h.completeHandshake(p, frame)
		return
	case id == toolsIDPrefix+p.name:
		h.absorbToolList(p, frame)
		return
	}

	h.broadcastToFrontends(frame)
}

// completeHandshake acknowledges a provider's initialize response and
// asks for its tools. A provider whose initialize came back as an error
// is left unadmitted: it is never asked for tools and nothing it sends
// enters the registry.
func (h *Hub) completeHandshake(p *providerConn, frame []byte) {
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(frame, &resp); err != nil || resp.Result == nil {
		h.logger.Warn("provider initialize failed, not admitted", "provider", p.name)
		return
	}

	h.mu.Lock()
	p.initialized = true
	h.mu.Unlock()
	h.logger.Debug("provider initialized", "provider", p.name)

	note, err := mcp.NewNotification("notifications/initialized", nil)
	if err == nil {
		if werr := p.writeRaw(note); werr != nil {
			h.logger.Warn("send initialized notification", "provider", p.name, "error", werr)
			return
		}
	}

	h.requestTools(p)
}

// requestTools asks one provider for its tool list.
func (h *Hub) requestTools(p *providerConn) {
	frame, err := mcp.NewRequest(toolsIDPrefix+p.name, "tools/list", nil)
	if err != nil {
		h.logger.Error("build tools/list request", "provider", p.name, "error", err)
		return
	}
	if err := p.writeRaw(frame); err != nil {
		h.logger.Warn("send tools/list", "provider", p.name, "error", err)
	}
}

// absorbToolList stores a provider's tools/list response and rebuilds
// the aggregate registry.
func (h *Hub) absorbToolList(p *providerConn, frame []byte) {
	msg := &mcp.Message{Raw: frame}
	rawTools, ok := msg.ToolsResult()
	if !ok {
		h.logger.Warn("tools/list response without tools", "provider", p.name)
		return
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(rawTools, &tools); err != nil {
		h.logger.Warn("malformed tools array", "provider", p.name, "error", err)
		return
	}

	h.mu.Lock()
	if !p.initialized {
		h.mu.Unlock()
		h.logger.Warn("discarding tools from unadmitted provider", "provider", p.name)
		return
	}
	h.serverTools[p.name] = tools
	h.rebuildRegistryLocked()
	h.signalRefreshLocked(p.name)
	h.mu.Unlock()

	h.logger.Info("provider tools updated", "provider", p.name, "tools", len(tools))
	h.broadcastStatus()
}

// ---------------------------------------------------------------------------
// Frontend side
// ---------------------------------------------------------------------------

// registerFrontend admits a frontend connection.
func (h *Hub) registerFrontend(c *conn) {
	h.mu.Lock()
	h.frontends[c] = struct{}{}
	n := len(h.frontends)
	h.mu.Unlock()

	h.logger.Info("frontend connected", "frontends", n)
	if h.metrics != nil {
		h.metrics.FrontendsConnected.Set(float64(n))
	}
	h.sendStatus(c)
}

func (h *Hub) unregisterFrontend(c *conn) {
	h.mu.Lock()
	delete(h.frontends, c)
	n := len(h.frontends)
	h.mu.Unlock()
	c.close()

	h.logger.Info("frontend disconnected", "frontends", n)
	if h.metrics != nil {
		h.metrics.FrontendsConnected.Set(float64(n))
	}
}

// runFrontend drives the read loop for one frontend connection.
func (h *Hub) runFrontend(c *conn) {
	defer h.unregisterFrontend(c)
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrontendFrame(c, frame)
	}
}

// handleFrontendFrame intercepts the aggregate methods (initialize,
// tools/list, tools/call); all other traffic is relayed to providers.
func (h *Hub) handleFrontendFrame(c *conn, frame []byte) {
	if h.metrics != nil {
		h.metrics.FramesTotal.WithLabelValues("from_frontend").Inc()
	}

	msg := &mcp.Message{Raw: frame}
	var probe struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(frame, &probe)

	switch probe.Method {
	case "initialize":
		h.answerInitialize(c, msg.RawID())
	case "notifications/initialized":
		// Local handshake artifact; the hub already initialized each
		// provider itself.
	case "tools/list":
		h.answerToolsList(c, msg.RawID())
	case "tools/call":
		h.routeToolCall(c, frame)
	default:
		h.relayToProviders(c, frame, msg.RawID())
	}
}

// answerInitialize completes the MCP handshake locally; providers were
// already initialized when they connected.
func (h *Hub) answerInitialize(c *conn, rawID json.RawMessage) {
	frame, err := mcp.NewResultResponse(rawID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    hubClientName,
			"version": hubVersion,
		},
	})
	if err != nil {
		h.logger.Error("build initialize response", "error", err)
		return
	}
	if err := c.writeRaw(frame); err != nil {
		h.logger.Warn("send initialize response", "error", err)
	}
}

// answerToolsList refreshes provider tool lists and replies with the
// aggregate. Providers that miss the refresh window are answered from
// their last known list.
func (h *Hub) answerToolsList(c *conn, rawID json.RawMessage) {
	start := time.Now()
	h.refreshAllTools()
	if h.metrics != nil {
		h.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}

	h.mu.Lock()
	tools, registry := aggregateTools(h.serverTools)
	h.registry = registry
	h.mu.Unlock()

	frame, err := mcp.NewResultResponse(rawID, map[string]interface{}{"tools": tools})
	if err != nil {
		h.logger.Error("build tools/list response", "error", err)
		return
	}
	if err := c.writeRaw(frame); err != nil {
		h.logger.Warn("send tools/list response", "error", err)
	}
}

// refreshAllTools asks every connected provider for a fresh tool list
// and waits up to refreshTimeout for the answers.
func (h *Hub) refreshAllTools() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	h.mu.Lock()
	waiters := make([]chan struct{}, 0, len(h.providers))
	targets := make([]*providerConn, 0, len(h.providers))
	for name, p := range h.providers {
		if !p.initialized {
			continue
		}
		done := make(chan struct{})
		h.refreshWaiters[name] = append(h.refreshWaiters[name], done)
		waiters = append(waiters, done)
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, p := range targets {
		h.requestTools(p)
	}

	for _, done := range waiters {
		select {
		case <-done:
		case <-ctx.Done():
			// Partial refresh: stale lists answer for the stragglers.
			h.logger.Warn("tool refresh timed out, using cached lists")
			return
		}
	}
}

// signalRefreshLocked wakes refresh waiters for one provider.
// Callers hold h.mu.
func (h *Hub) signalRefreshLocked(name string) {
	for _, done := range h.refreshWaiters[name] {
		close(done)
	}
	delete(h.refreshWaiters, name)
}

// routeToolCall forwards a tools/call to the provider owning the tool,
// rewriting a renamed tool back to its wire name.
func (h *Hub) routeToolCall(c *conn, frame []byte) {
	var call struct {
		ID     json.RawMessage `json:"id"`
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if err := json.Unmarshal(frame, &call); err != nil || call.Params.Name == "" {
		h.relayToProviders(c, frame, call.ID)
		return
	}

	h.mu.Lock()
	route, ok := h.registry[call.Params.Name]
	var target *providerConn
	if ok {
		target = h.providers[route.provider]
	}
	h.mu.Unlock()

	if !ok || target == nil {
		h.logger.Warn("tools/call for unknown tool", "tool", call.Params.Name)
		if h.metrics != nil {
			h.metrics.ToolCallsTotal.WithLabelValues("", "unknown_tool").Inc()
		}
		h.sendError(c, call.ID, -32601, fmt.Sprintf("Tool '%s' not found", call.Params.Name))
		return
	}

	out := frame
	if route.wireName != call.Params.Name {
		rewritten, err := rewriteToolName(frame, route.wireName)
		if err != nil {
			h.logger.Warn("rewrite tool name", "tool", call.Params.Name, "error", err)
		} else {
			out = rewritten
		}
	}

	if h.metrics != nil {
		h.metrics.ToolCallsTotal.WithLabelValues(route.provider, "routed").Inc()
	}
	if err := target.writeRaw(out); err != nil {
		h.logger.Warn("forward tools/call", "provider", route.provider, "error", err)
	}
}

// relayToProviders broadcasts a frontend frame to every provider. With
// no providers connected, requests get a synthesized error so clients
// are not left hanging.
func (h *Hub) relayToProviders(c *conn, frame []byte, rawID json.RawMessage) {
	h.mu.Lock()
	targets := make([]*providerConn, 0, len(h.providers))
	for _, p := range h.providers {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		if len(rawID) > 0 {
			if h.metrics != nil {
				h.metrics.ToolCallsTotal.WithLabelValues("", "no_provider").Inc()
			}
			h.sendError(c, rawID, -32000, "MCP tool not connected")
		}
		return
	}

	for _, p := range targets {
		if err := p.writeRaw(frame); err != nil {
			h.logger.Warn("relay to provider", "provider", p.name, "error", err)
		}
	}
}

// sendError sends a JSON-RPC error response to one connection.
func (h *Hub) sendError(c *conn, rawID json.RawMessage, code int, message string) {
	frame, err := mcp.NewErrorResponse(rawID, code, message)
	if err != nil {
		h.logger.Error("build error response", "error", err)
		return
	}
	if err := c.writeRaw(frame); err != nil {
		h.logger.Warn("send error response", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Broadcast and status
// ---------------------------------------------------------------------------

// broadcastToFrontends relays a provider frame to every frontend.
func (h *Hub) broadcastToFrontends(frame []byte) {
	h.mu.Lock()
	targets := make([]*conn, 0, len(h.frontends))
	for c := range h.frontends {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.writeRaw(frame); err != nil {
			h.logger.Warn("broadcast to frontend", "error", err)
		}
	}
}

// statusFrame is the out-of-band connection summary pushed to
// frontends; it is not a JSON-RPC message.
type statusFrame struct {
	Type         string   `json:"type"`
	MCPConnected bool     `json:"mcp_connected"`
	MCPServers   []string `json:"mcp_servers"`
}

func (h *Hub) currentStatus() statusFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return statusFrame{
		Type:         "status",
		MCPConnected: len(names) > 0,
		MCPServers:   names,
	}
}

// sendStatus pushes the current status to one frontend.
func (h *Hub) sendStatus(c *conn) {
	frame, err := json.Marshal(h.currentStatus())
	if err != nil {
		return
	}
	if err := c.writeRaw(frame); err != nil {
		h.logger.Warn("send status", "error", err)
	}
}

// broadcastStatus pushes the current status to all frontends.
func (h *Hub) broadcastStatus() {
	frame, err := json.Marshal(h.currentStatus())
	if err != nil {
		return
	}
	h.broadcastToFrontends(frame)
}

func (h *Hub) providerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.providers)
}

// rebuildRegistryLocked recomputes the routing registry from the
// current tool lists. Callers hold h.mu.
func (h *Hub) rebuildRegistryLocked() {
	_, registry := aggregateTools(h.serverTools)
	h.registry = registry
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

// aggregateTools merges per-provider tool lists into the combined list
// frontends see, and the registry that routes calls back.
//
// Providers are visited in sorted name order so merges are stable. The
// first provider to claim a tool name keeps it; later claimants are
// exposed as "<provider>.<name>". Every description is prefixed with
// "[<provider>] " so users can tell tools apart. Wire names are never
// changed on the provider side; renames live only in the registry.
func aggregateTools(serverTools map[string][]json.RawMessage) ([]json.RawMessage, map[string]toolRoute) {
	names := make([]string, 0, len(serverTools))
	for name := range serverTools {
		names = append(names, name)
	}
	sort.Strings(names)

	var aggregated []json.RawMessage
	registry := make(map[string]toolRoute)

	for _, provider := range names {
		for _, rawTool := range serverTools[provider] {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(rawTool, &fields); err != nil {
				continue
			}
			var wireName string
			if err := json.Unmarshal(fields["name"], &wireName); err != nil || wireName == "" {
				continue
			}

			exposed := wireName
			if _, taken := registry[exposed]; taken {
				exposed = provider + "." + wireName
			}

			var desc string
			if rawDesc, ok := fields["description"]; ok {
				_ = json.Unmarshal(rawDesc, &desc)
			}
			desc = "[" + provider + "] " + desc

			fields["name"], _ = json.Marshal(exposed)
			fields["description"], _ = json.Marshal(desc)

			merged, err := json.Marshal(fields)
			if err != nil {
				continue
			}
			aggregated = append(aggregated, merged)
			registry[exposed] = toolRoute{provider: provider, wireName: wireName}
		}
	}

	return aggregated, registry
}

// rewriteToolName replaces params.name in a tools/call frame.
func rewriteToolName(frame []byte, wireName string) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, err
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(envelope["params"], &params); err != nil {
		return nil, err
	}
	var err error
	if params["name"], err = json.Marshal(wireName); err != nil {
		return nil, err
	}
	if envelope["params"], err = json.Marshal(params); err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}

// hubRequestID extracts a string request/response ID from a frame.
// Returns ("", false) for numeric or missing IDs.
func hubRequestID(frame []byte) (string, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil || probe.ID == nil {
		return "", false
	}
	var id string
	if err := json.Unmarshal(probe.ID, &id); err != nil {
		return "", false
	}
	return id, true
}
