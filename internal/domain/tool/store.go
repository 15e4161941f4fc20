package tool

import (
	"context"
	"errors"
)

// ErrSettingNotFound is returned when no override exists for a
// (server, tool) pair.
var ErrSettingNotFound = errors.New("tool setting not found")

// SettingStore provides persistence for per-tool visibility overrides.
// This is a port (interface) in the hexagonal architecture.
// Implementations: sqlite (sqlite package).
type SettingStore interface {
	// List returns all stored settings.
	List(ctx context.Context) ([]Setting, error)
	// ListForServer returns the settings for a single provider, keyed by
	// tool name.
	ListForServer(ctx context.Context, serverName string) (map[string]Setting, error)
	// Get returns the setting for one tool.
	// Returns ErrSettingNotFound if no override exists.
	Get(ctx context.Context, serverName, toolName string) (*Setting, error)
	// SetEnabled upserts the enabled flag for one tool, preserving any
	// custom metadata already stored.
	SetEnabled(ctx context.Context, serverName, toolName string, enabled bool) error
	// SetMetadata upserts custom name/description for one tool. Empty
	// strings clear the corresponding override.
	SetMetadata(ctx context.Context, serverName, toolName, customName, customDescription string) error
	// Reset removes the override for one tool, restoring provider
	// defaults. Removing a missing override is not an error.
	Reset(ctx context.Context, serverName, toolName string) error
	// ResetAll removes every stored override.
	ResetAll(ctx context.Context) error
	// DeleteForServer removes all overrides for one provider.
	DeleteForServer(ctx context.Context, serverName string) error
}

// CatalogStore persists raw provider tool catalogs for the admin API.
// Multiple bridges may write concurrently; last-write-wins is acceptable.
type CatalogStore interface {
	// Put stores the raw catalog for a provider, replacing any previous one.
	Put(ctx context.Context, catalog *Catalog) error
	// Get returns the cached catalog for a provider, or nil if none.
	Get(ctx context.Context, serverName string) (*Catalog, error)
	// All returns every cached catalog keyed by provider name.
	All(ctx context.Context) (map[string]*Catalog, error)
	// Delete removes the cached catalog for a provider.
	Delete(ctx context.Context, serverName string) error
}
