package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// EndpointStore implements endpoint.Store on top of the shared DB.
type EndpointStore struct {
	db *DB
}

// Compile-time interface check.
var _ endpoint.Store = (*EndpointStore)(nil)

// NewEndpointStore creates an endpoint store using the given database.
func NewEndpointStore(db *DB) *EndpointStore {
	return &EndpointStore{db: db}
}

const endpointColumns = `id, name, url, enabled, connection_status, last_connected_at, connection_error, created_at, updated_at`

// List returns all configured endpoints ordered by creation time.
func (s *EndpointStore) List(ctx context.Context) ([]endpoint.Endpoint, error) {
	return s.list(ctx, fmt.Sprintf(`SELECT %s FROM mcp_endpoints ORDER BY id`, endpointColumns))
}

// ListEnabled returns only enabled endpoints.
func (s *EndpointStore) ListEnabled(ctx context.Context) ([]endpoint.Endpoint, error) {
	return s.list(ctx, fmt.Sprintf(`SELECT %s FROM mcp_endpoints WHERE enabled = 1 ORDER BY id`, endpointColumns))
}

func (s *EndpointStore) list(ctx context.Context, query string) ([]endpoint.Endpoint, error) {
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eps []endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpointRow(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, *ep)
	}
	return eps, rows.Err()
}

// Get returns a single endpoint by ID.
func (s *EndpointStore) Get(ctx context.Context, id int64) (*endpoint.Endpoint, error) {
	row := s.db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM mcp_endpoints WHERE id = ?`, endpointColumns), id)
	return scanEndpoint(row)
}

// GetByName returns a single endpoint by its unique name.
func (s *EndpointStore) GetByName(ctx context.Context, name string) (*endpoint.Endpoint, error) {
	row := s.db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM mcp_endpoints WHERE name = ?`, endpointColumns), name)
	return scanEndpoint(row)
}

// Create stores a new endpoint and fills in its assigned ID.
func (s *EndpointStore) Create(ctx context.Context, ep *endpoint.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	status := ep.Status
	if status == "" {
		status = endpoint.StatusDisconnected
	}

	res, err := s.db.db.ExecContext(ctx, `
		INSERT INTO mcp_endpoints (name, url, enabled, connection_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ep.Name, ep.URL, boolToInt(ep.Enabled), string(status), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return endpoint.ErrDuplicateEndpointName
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ep.ID = id
	return nil
}

// Update replaces an endpoint's configuration fields (name, url, enabled).
func (s *EndpointStore) Update(ctx context.Context, ep *endpoint.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}

	res, err := s.db.db.ExecContext(ctx, `
		UPDATE mcp_endpoints
		SET name = ?, url = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, ep.Name, ep.URL, boolToInt(ep.Enabled), time.Now().UTC().Format(time.RFC3339), ep.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return endpoint.ErrDuplicateEndpointName
		}
		return err
	}
	return requireRow(res)
}

// Delete removes an endpoint by ID.
func (s *EndpointStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM mcp_endpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus records a connection state transition.
func (s *EndpointStore) UpdateStatus(ctx context.Context, id int64, status endpoint.ConnectionStatus, connErr string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var (
		res sql.Result
		err error
	)
	if status == endpoint.StatusConnected {
		res, err = s.db.db.ExecContext(ctx, `
			UPDATE mcp_endpoints
			SET connection_status = ?, last_connected_at = ?, connection_error = NULL, updated_at = ?
			WHERE id = ?
		`, string(status), now, now, id)
	} else {
		res, err = s.db.db.ExecContext(ctx, `
			UPDATE mcp_endpoints
			SET connection_status = ?, connection_error = ?, updated_at = ?
			WHERE id = ?
		`, string(status), nullIfEmpty(connErr), now, id)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanEndpoint(row *sql.Row) (*endpoint.Endpoint, error) {
	ep, err := scanEndpointFields(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, endpoint.ErrEndpointNotFound
	}
	return ep, err
}

func scanEndpointRow(rows *sql.Rows) (*endpoint.Endpoint, error) {
	return scanEndpointFields(rows.Scan)
}

func scanEndpointFields(scan func(dest ...any) error) (*endpoint.Endpoint, error) {
	var (
		ep        endpoint.Endpoint
		enabled   int
		status    string
		lastConn  sql.NullString
		connError sql.NullString
		created   string
		updated   string
	)
	if err := scan(&ep.ID, &ep.Name, &ep.URL, &enabled, &status, &lastConn, &connError, &created, &updated); err != nil {
		return nil, err
	}

	ep.Enabled = enabled != 0
	ep.Status = endpoint.ConnectionStatus(status)
	ep.ConnectionError = connError.String
	if lastConn.Valid {
		if t, err := time.Parse(time.RFC3339, lastConn.String); err == nil {
			ep.LastConnectedAt = &t
		}
	}
	ep.CreatedAt, _ = time.Parse(time.RFC3339, created)
	ep.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &ep, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return endpoint.ErrEndpointNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
