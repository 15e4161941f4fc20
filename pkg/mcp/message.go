// Package mcp provides MCP message types and JSON-RPC codec utilities
// for the mcpbridge bridge and hub.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the bridge.
type Direction int

const (
	// HubToProvider indicates a message flowing from the hub endpoint to
	// the provider process.
	HubToProvider Direction = iota
	// ProviderToHub indicates a message flowing from the provider process
	// to the hub endpoint.
	ProviderToHub
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case HubToProvider:
		return "hub->provider"
	case ProviderToHub:
		return "provider->hub"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with bridge metadata.
// It stores both the raw bytes (for efficient passthrough) and the decoded
// message (for interception of the handful of methods the bridge cares about).
type Message struct {
	// Raw contains the original bytes of the message.
	// Used for passthrough when no modification is needed.
	Raw []byte

	// Direction indicates whether this message is flowing from the hub
	// to the provider or from the provider back to the hub.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message.
	// May be nil if parsing failed but passthrough is still desired.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the bridge.
	Timestamp time.Time

	// ParsedParams contains the parsed params from a JSON-RPC request.
	// Set by ParseParams() for reuse. Nil if not a request or parsing failed.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolsList returns true if this is a tools/list request.
func (m *Message) IsToolsList() bool {
	return m.Method() == "tools/list"
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request if this is a request message.
// Returns nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
// Returns nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores in ParsedParams.
// Safe to call multiple times (no-op if already parsed).
// Returns the parsed params or nil if not a request or parsing fails.
func (m *Message) ParseParams() map[string]interface{} {
	// Already parsed
	if m.ParsedParams != nil {
		return m.ParsedParams
	}

	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}

	m.ParsedParams = params
	return params
}

// RawID extracts the request ID from the raw message bytes as json.RawMessage.
// This is needed because the SDK's jsonrpc.ID type doesn't marshal correctly
// through interface{}, so we extract the ID directly from the raw JSON.
// Returns nil if no ID is found.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	// Parse raw bytes to extract "id" field
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	// Return the raw ID value (preserves original format: number, string, or null)
	return raw["id"]
}

// IDKey returns the request ID as a string key usable in correlation maps.
// Numbers, strings and null all produce distinct stable keys because the
// raw JSON encoding is used verbatim (`1` and `"1"` differ).
// Returns empty string if the message carries no ID.
func (m *Message) IDKey() string {
	id := m.RawID()
	if id == nil {
		return ""
	}
	return string(id)
}

// ToolsResult extracts the "tools" array from a response's result object.
// Returns the raw array and true when this message is a response whose
// result contains a tools field, which is how tools/list responses are
// recognized without correlating request IDs.
func (m *Message) ToolsResult() (json.RawMessage, bool) {
	if m.Raw == nil {
		return nil, false
	}
	var envelope struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(m.Raw, &envelope); err != nil {
		return nil, false
	}
	tools, ok := envelope.Result["tools"]
	return tools, ok
}
