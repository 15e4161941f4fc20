// Package endpoint contains domain types for hub endpoint configuration.
package endpoint

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// ConnectionStatus represents the runtime connection state of a bridge
// towards a hub endpoint.
type ConnectionStatus string

const (
	// StatusConnected indicates the bridge holds an open connection.
	StatusConnected ConnectionStatus = "connected"
	// StatusDisconnected indicates the bridge is not connected.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting ConnectionStatus = "connecting"
	// StatusError indicates the last connection attempt failed.
	StatusError ConnectionStatus = "error"
)

// namePattern allows alphanumeric, spaces, hyphens, and underscores.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// nameMaxLength is the maximum allowed length for an endpoint name.
const nameMaxLength = 100

// Endpoint represents a hub WebSocket endpoint the bridge connects
// providers to.
type Endpoint struct {
	// ID is the unique identifier assigned by the store.
	ID int64
	// Name is the human-readable display name (unique).
	Name string
	// URL is the base WebSocket URL of the hub (ws:// or wss://).
	URL string
	// Enabled indicates whether bridges should be maintained for this
	// endpoint.
	Enabled bool

	// Status is the last reported connection state. With several
	// providers bridged to one endpoint, writes race and the last one
	// wins.
	Status ConnectionStatus
	// LastConnectedAt is when a bridge last reached connected state.
	LastConnectedAt *time.Time
	// ConnectionError is the most recent connection error message,
	// cleared on successful connect.
	ConnectionError string

	// CreatedAt is when this endpoint was added.
	CreatedAt time.Time
	// UpdatedAt is when this endpoint was last modified.
	UpdatedAt time.Time
}

// Validate checks that the endpoint has valid configuration.
// Returns nil if valid, or an error describing the first validation failure.
func (e *Endpoint) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(e.Name) > nameMaxLength {
		return fmt.Errorf("name must be %d characters or less", nameMaxLength)
	}

	if !namePattern.MatchString(e.Name) {
		return fmt.Errorf("name contains invalid characters (allowed: alphanumeric, spaces, hyphens, underscores)")
	}

	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(e.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("url is not a valid URL")
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss")
	}

	return nil
}
