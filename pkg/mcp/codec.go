package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeMessage serializes a JSON-RPC message to its wire format.
// This delegates to the MCP SDK's jsonrpc package.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format data into a Message.
// It returns either a *jsonrpc.Request or *jsonrpc.Response based on the message content.
// This delegates to the MCP SDK's jsonrpc package.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// WrapMessage decodes raw JSON-RPC bytes and wraps them in a Message struct
// with the specified direction and current timestamp.
//
// If decoding fails, returns an error. For passthrough scenarios where
// the raw bytes should be preserved even on decode failure, callers can
// construct a Message manually.
func WrapMessage(raw []byte, dir Direction) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}

	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// NewRequest builds an encoded JSON-RPC request with a string ID.
// Used by the hub for the requests it originates itself (provider handshake,
// tool refresh). Pass nil params for parameterless methods.
func NewRequest(id string, method string, params interface{}) ([]byte, error) {
	reqID, err := jsonrpc.MakeID(id)
	if err != nil {
		return nil, fmt.Errorf("make request id: %w", err)
	}

	var rawParams json.RawMessage
	if params != nil {
		rawParams, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}

	return jsonrpc.EncodeMessage(&jsonrpc.Request{
		ID:     reqID,
		Method: method,
		Params: rawParams,
	})
}

// NewNotification builds an encoded JSON-RPC notification (a request
// without an ID).
func NewNotification(method string, params interface{}) ([]byte, error) {
	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}

	return jsonrpc.EncodeMessage(&jsonrpc.Request{
		Method: method,
		Params: rawParams,
	})
}

// NewResultResponse builds an encoded JSON-RPC success response that echoes
// the caller's ID verbatim. The ID is spliced in as raw JSON rather than
// going through jsonrpc.ID, so number and string IDs round-trip unchanged.
func NewResultResponse(rawID json.RawMessage, result interface{}) ([]byte, error) {
	rawResult, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      normalizeID(rawID),
		"result":  rawResult,
	})
}

// NewErrorResponse builds an encoded JSON-RPC error response that echoes
// the caller's ID verbatim.
func NewErrorResponse(rawID json.RawMessage, code int, message string) ([]byte, error) {
	rawErr, err := json.Marshal(map[string]interface{}{
		"code":    code,
		"message": message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	return json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      normalizeID(rawID),
		"error":   rawErr,
	})
}

func normalizeID(rawID json.RawMessage) json.RawMessage {
	if len(rawID) == 0 {
		return json.RawMessage("null")
	}
	return rawID
}
