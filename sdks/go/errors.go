package mcpbridge

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create collides with an existing
	// resource, such as a duplicate endpoint name.
	ErrConflict = errors.New("conflict")

	// ErrServerUnreachable is returned when the admin API cannot be
	// contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is returned for any non-2xx admin API response.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the error message from the response body.
	Message string
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("admin API %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("admin API %d", e.Status)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrNotFound) and errors.Is(err, ErrConflict).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// ServerUnreachableError is returned when the admin API cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the transport failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
