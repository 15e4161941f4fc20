package endpoint

import (
	"context"
	"errors"
)

// Sentinel errors for endpoint store operations.
var (
	// ErrEndpointNotFound is returned when an endpoint with the given ID does not exist.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrDuplicateEndpointName is returned when an endpoint name already exists.
	ErrDuplicateEndpointName = errors.New("duplicate endpoint name")
)

// Store provides CRUD operations for endpoint configuration.
// This is a port (interface) in the hexagonal architecture.
// Implementations: sqlite (sqlite package), in-memory (memory package).
type Store interface {
	// List returns all configured endpoints.
	List(ctx context.Context) ([]Endpoint, error)
	// ListEnabled returns only endpoints with Enabled set.
	ListEnabled(ctx context.Context) ([]Endpoint, error)
	// Get returns a single endpoint by ID.
	// Returns ErrEndpointNotFound if the endpoint does not exist.
	Get(ctx context.Context, id int64) (*Endpoint, error)
	// GetByName returns a single endpoint by its unique name.
	// Returns ErrEndpointNotFound if the endpoint does not exist.
	GetByName(ctx context.Context, name string) (*Endpoint, error)
	// Create stores a new endpoint and fills in its ID.
	// Returns ErrDuplicateEndpointName on a name collision.
	Create(ctx context.Context, ep *Endpoint) error
	// Update replaces an existing endpoint's configuration fields.
	// Returns ErrEndpointNotFound if the endpoint does not exist.
	Update(ctx context.Context, ep *Endpoint) error
	// Delete removes an endpoint by ID.
	// Returns ErrEndpointNotFound if the endpoint does not exist.
	Delete(ctx context.Context, id int64) error
	// UpdateStatus records a connection state transition. When status is
	// StatusConnected the last-connected timestamp is set and the error
	// cleared; when status is StatusError connErr is stored.
	UpdateStatus(ctx context.Context, id int64, status ConnectionStatus, connErr string) error
}
