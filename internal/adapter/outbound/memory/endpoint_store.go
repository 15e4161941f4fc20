package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// EndpointStore implements endpoint.Store with an in-memory map.
// Thread-safe for concurrent access via sync.RWMutex.
// Returns deep copies to prevent external mutation of stored data.
type EndpointStore struct {
	endpoints map[int64]*endpoint.Endpoint
	nextID    int64
	mu        sync.RWMutex
}

// NewEndpointStore creates a new in-memory endpoint store.
func NewEndpointStore() *EndpointStore {
	return &EndpointStore{
		endpoints: make(map[int64]*endpoint.Endpoint),
		nextID:    1,
	}
}

// List returns all configured endpoints as deep copies, ordered by ID.
func (s *EndpointStore) List(ctx context.Context) ([]endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]endpoint.Endpoint, 0, len(s.endpoints))
	for id := int64(1); id < s.nextID; id++ {
		if ep, ok := s.endpoints[id]; ok {
			result = append(result, *copyEndpoint(ep))
		}
	}
	return result, nil
}

// ListEnabled returns only enabled endpoints.
func (s *EndpointStore) ListEnabled(ctx context.Context) ([]endpoint.Endpoint, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, ep := range all {
		if ep.Enabled {
			enabled = append(enabled, ep)
		}
	}
	return enabled, nil
}

// Get returns a single endpoint by ID as a deep copy.
func (s *EndpointStore) Get(ctx context.Context, id int64) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return nil, endpoint.ErrEndpointNotFound
	}
	return copyEndpoint(ep), nil
}

// GetByName returns a single endpoint by its unique name.
func (s *EndpointStore) GetByName(ctx context.Context, name string) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ep := range s.endpoints {
		if ep.Name == name {
			return copyEndpoint(ep), nil
		}
	}
	return nil, endpoint.ErrEndpointNotFound
}

// Create stores a new endpoint and assigns its ID.
func (s *EndpointStore) Create(ctx context.Context, ep *endpoint.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.endpoints {
		if existing.Name == ep.Name {
			return endpoint.ErrDuplicateEndpointName
		}
	}

	ep.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	if ep.Status == "" {
		ep.Status = endpoint.StatusDisconnected
	}
	s.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

// Update replaces an endpoint's configuration fields.
func (s *EndpointStore) Update(ctx context.Context, ep *endpoint.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.endpoints[ep.ID]
	if !ok {
		return endpoint.ErrEndpointNotFound
	}
	for id, existing := range s.endpoints {
		if id != ep.ID && existing.Name == ep.Name {
			return endpoint.ErrDuplicateEndpointName
		}
	}

	current.Name = ep.Name
	current.URL = ep.URL
	current.Enabled = ep.Enabled
	current.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an endpoint by ID.
func (s *EndpointStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return endpoint.ErrEndpointNotFound
	}
	delete(s.endpoints, id)
	return nil
}

// UpdateStatus records a connection state transition.
func (s *EndpointStore) UpdateStatus(ctx context.Context, id int64, status endpoint.ConnectionStatus, connErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return endpoint.ErrEndpointNotFound
	}

	ep.Status = status
	ep.UpdatedAt = time.Now().UTC()
	if status == endpoint.StatusConnected {
		now := time.Now().UTC()
		ep.LastConnectedAt = &now
		ep.ConnectionError = ""
	} else {
		ep.ConnectionError = connErr
	}
	return nil
}

// copyEndpoint creates a deep copy of an Endpoint to prevent mutation.
func copyEndpoint(ep *endpoint.Endpoint) *endpoint.Endpoint {
	c := *ep
	if ep.LastConnectedAt != nil {
		t := *ep.LastConnectedAt
		c.LastConnectedAt = &t
	}
	return &c
}

// Compile-time interface verification.
var _ endpoint.Store = (*EndpointStore)(nil)
