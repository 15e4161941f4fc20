package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// endpointRequest is the JSON body for create and update.
// Pointers distinguish missing fields from zero values on update.
type endpointRequest struct {
	Name    *string `json:"name"`
	URL     *string `json:"url"`
	Enabled *bool   `json:"enabled"`
}

// endpointResponse is the JSON representation of an endpoint.
type endpointResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Enabled         bool   `json:"enabled"`
	Status          string `json:"connection_status"`
	LastConnectedAt string `json:"last_connected_at,omitempty"`
	ConnectionError string `json:"connection_error,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toEndpointResponse(ep *endpoint.Endpoint) endpointResponse {
	resp := endpointResponse{
		ID:              ep.ID,
		Name:            ep.Name,
		URL:             ep.URL,
		Enabled:         ep.Enabled,
		Status:          string(ep.Status),
		ConnectionError: ep.ConnectionError,
		CreatedAt:       ep.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       ep.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if ep.LastConnectedAt != nil {
		resp.LastConnectedAt = ep.LastConnectedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) endpointID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// handleListEndpoints returns all endpoints ordered by id.
// GET /endpoints
func (h *Handler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	eps, err := h.endpoints.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list endpoints", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	result := make([]endpointResponse, 0, len(eps))
	for i := range eps {
		result = append(result, toEndpointResponse(&eps[i]))
	}
	h.respondJSON(w, http.StatusOK, result)
}

// handleGetEndpoint returns one endpoint by id.
// GET /endpoints/{id}
func (h *Handler) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := h.endpointID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	ep, err := h.endpoints.Get(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, err, "endpoint")
		return
	}
	h.respondJSON(w, http.StatusOK, toEndpointResponse(ep))
}

// handleEndpointStream emits the endpoint list as server-sent events,
// immediately on connect and then every 10s.
// GET /endpoints/stream
func (h *Handler) handleEndpointStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func() {
		eps, err := h.endpoints.List(r.Context())
		if err != nil {
			h.logger.Error("failed to list endpoints for stream", "error", err)
			return
		}
		result := make([]endpointResponse, 0, len(eps))
		for i := range eps {
			result = append(result, toEndpointResponse(&eps[i]))
		}
		data, err := json.Marshal(map[string]interface{}{"endpoints": result})
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	emit()

	ticker := time.NewTicker(h.sseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			emit()
		}
	}
}

// handleCreateEndpoint creates a new endpoint and publishes CONNECT if
// it is enabled.
// POST /endpoints
func (h *Handler) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req endpointRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.URL == nil || *req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	// Default enabled to true if not specified.
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ep := &endpoint.Endpoint{
		Name:    strings.TrimSpace(*req.Name),
		URL:     *req.URL,
		Enabled: enabled,
		Status:  endpoint.StatusDisconnected,
	}
	if err := ep.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.endpoints.Create(ctx, ep); err != nil {
		if errors.Is(err, endpoint.ErrDuplicateEndpointName) {
			h.respondError(w, http.StatusConflict, "endpoint name already exists")
			return
		}
		h.logger.Error("failed to create endpoint", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	if ep.Enabled {
		h.publish(ctx, endpoint.ActionConnect, ep)
	}

	h.respondJSON(w, http.StatusCreated, toEndpointResponse(ep))
}

// handleUpdateEndpoint applies a partial update and publishes the
// matching event: enable flips publish CONNECT/DISCONNECT, url or name
// changes while enabled publish UPDATE.
// PUT /endpoints/{id}
func (h *Handler) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := h.endpointID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	var req endpointRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	existing, err := h.endpoints.Get(ctx, id)
	if err != nil {
		h.notFoundOr500(w, err, "endpoint")
		return
	}

	updated := *existing
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.URL != nil && *req.URL != "" {
		updated.URL = *req.URL
	}
	if req.Enabled != nil {
		updated.Enabled = *req.Enabled
	}
	if err := updated.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.endpoints.Update(ctx, &updated); err != nil {
		if errors.Is(err, endpoint.ErrDuplicateEndpointName) {
			h.respondError(w, http.StatusConflict, "endpoint name already exists")
			return
		}
		h.notFoundOr500(w, err, "endpoint")
		return
	}

	switch {
	case !existing.Enabled && updated.Enabled:
		h.publish(ctx, endpoint.ActionConnect, &updated)
	case existing.Enabled && !updated.Enabled:
		h.publish(ctx, endpoint.ActionDisconnect, &updated)
	case updated.Enabled && (existing.URL != updated.URL || existing.Name != updated.Name):
		h.publish(ctx, endpoint.ActionUpdate, &updated)
	}

	h.respondJSON(w, http.StatusOK, toEndpointResponse(&updated))
}

// handleDeleteEndpoint removes an endpoint and publishes DISCONNECT if
// it was enabled.
// DELETE /endpoints/{id}
func (h *Handler) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := h.endpointID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	existing, err := h.endpoints.Get(ctx, id)
	if err != nil {
		h.notFoundOr500(w, err, "endpoint")
		return
	}

	if err := h.endpoints.Delete(ctx, id); err != nil {
		h.notFoundOr500(w, err, "endpoint")
		return
	}

	if existing.Enabled {
		h.publish(ctx, endpoint.ActionDisconnect, existing)
	}

	w.WriteHeader(http.StatusNoContent)
}
