// Package provider contains domain types for local MCP provider
// configuration: what to launch and how to talk to it.
package provider

import (
	"errors"
	"fmt"
)

// Kind identifies the transport used to reach a provider.
type Kind string

const (
	// KindStdio is a local process speaking MCP on stdin/stdout.
	KindStdio Kind = "stdio"
	// KindHTTP is a remote streamable HTTP server reached through the
	// proxy adapter.
	KindHTTP Kind = "http"
	// KindSSE is a remote SSE server reached through the proxy adapter.
	KindSSE Kind = "sse"
	// KindStreamableHTTP is the explicit spelling of KindHTTP.
	KindStreamableHTTP Kind = "streamable-http"
)

// ErrProviderDisabled is returned when a launch is requested for a
// provider whose config entry is disabled.
var ErrProviderDisabled = errors.New("provider is disabled")

// Spec describes one entry under "mcpServers" in the provider config file.
type Spec struct {
	// Name is the key under mcpServers. Filled in by the loader.
	Name string `json:"-"`

	// Type selects the transport. Empty means stdio when Command is set.
	Type Kind `json:"type,omitempty"`

	// Command is the executable to launch (stdio only).
	Command string `json:"command,omitempty"`
	// Args are the command-line arguments (stdio only).
	Args []string `json:"args,omitempty"`
	// Env holds environment variables overlaid onto the host
	// environment for the child process.
	Env map[string]string `json:"env,omitempty"`

	// URL is the remote server address (http/sse/streamable-http).
	URL string `json:"url,omitempty"`
	// Headers are forwarded to the remote server by the proxy adapter.
	Headers map[string]string `json:"headers,omitempty"`

	// Disabled excludes this provider from bridging without removing
	// its entry.
	Disabled bool `json:"disabled,omitempty"`
}

// EffectiveKind resolves the transport kind, defaulting to stdio when
// Type is empty and a command is present.
func (s *Spec) EffectiveKind() Kind {
	if s.Type == "" {
		return KindStdio
	}
	return s.Type
}

// Validate checks that the spec carries the fields its kind requires.
func (s *Spec) Validate() error {
	switch s.EffectiveKind() {
	case KindStdio:
		if s.Command == "" {
			return fmt.Errorf("provider %q: command is required for stdio", s.Name)
		}
	case KindHTTP, KindSSE, KindStreamableHTTP:
		if s.URL == "" {
			return fmt.Errorf("provider %q: url is required for %s", s.Name, s.EffectiveKind())
		}
	default:
		return fmt.Errorf("provider %q: unknown type %q", s.Name, s.Type)
	}
	return nil
}
