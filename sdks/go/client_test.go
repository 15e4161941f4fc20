package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// recordedRequest captures one request the fake admin server saw.
type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeAdmin is a minimal admin API double driven by canned responses.
type fakeAdmin struct {
	status   int
	response string
	requests []recordedRequest
}

func (f *fakeAdmin) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.response)
	})
}

func newTestClient(t *testing.T, f *fakeAdmin) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(WithServerAddr(srv.URL))
}

func (f *fakeAdmin) last(t *testing.T) recordedRequest {
	t.Helper()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func TestListEndpoints(t *testing.T) {
	fake := &fakeAdmin{response: `[
		{"id":1,"name":"prod","url":"wss://hub/mcp","enabled":true,"connection_status":"connected"},
		{"id":2,"name":"standby","url":"ws://hub2/mcp","enabled":false,"connection_status":"disconnected"}
	]`}
	c := newTestClient(t, fake)

	eps, err := c.ListEndpoints(context.Background())
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(eps) != 2 || eps[0].Name != "prod" || eps[1].Status != "disconnected" {
		t.Errorf("endpoints = %+v", eps)
	}

	req := fake.last(t)
	if req.Method != http.MethodGet || req.Path != "/endpoints" {
		t.Errorf("request = %+v", req)
	}
}

func TestCreateEndpoint(t *testing.T) {
	fake := &fakeAdmin{
		status:   http.StatusCreated,
		response: `{"id":1,"name":"prod","url":"wss://hub/mcp","enabled":true,"connection_status":"disconnected"}`,
	}
	c := newTestClient(t, fake)

	ep, err := c.CreateEndpoint(context.Background(), EndpointRequest{
		Name: "prod",
		URL:  "wss://hub/mcp",
	})
	if err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if ep.ID != 1 || ep.Name != "prod" {
		t.Errorf("endpoint = %+v", ep)
	}

	req := fake.last(t)
	if req.Method != http.MethodPost || req.Path != "/endpoints" {
		t.Errorf("request = %+v", req)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(req.Body), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent["name"] != "prod" || sent["url"] != "wss://hub/mcp" {
		t.Errorf("body = %v", sent)
	}
	if _, ok := sent["enabled"]; ok {
		t.Error("unset enabled should be omitted")
	}
}

func TestCreateEndpointConflict(t *testing.T) {
	fake := &fakeAdmin{
		status:   http.StatusConflict,
		response: `{"error":"endpoint name already exists"}`,
	}
	c := newTestClient(t, fake)

	_, err := c.CreateEndpoint(context.Background(), EndpointRequest{Name: "prod", URL: "ws://hub/mcp"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "endpoint name already exists" {
		t.Errorf("err = %v", err)
	}
}

func TestGetEndpointNotFound(t *testing.T) {
	fake := &fakeAdmin{
		status:   http.StatusNotFound,
		response: `{"error":"endpoint not found"}`,
	}
	c := newTestClient(t, fake)

	_, err := c.GetEndpoint(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Error("404 must not match ErrConflict")
	}
}

func TestUpdateEndpointPartial(t *testing.T) {
	fake := &fakeAdmin{response: `{"id":1,"name":"prod","url":"ws://hub/mcp","enabled":false,"connection_status":"disconnected"}`}
	c := newTestClient(t, fake)

	disabled := false
	if _, err := c.UpdateEndpoint(context.Background(), 1, EndpointRequest{Enabled: &disabled}); err != nil {
		t.Fatalf("UpdateEndpoint: %v", err)
	}

	req := fake.last(t)
	if req.Method != http.MethodPut || req.Path != "/endpoints/1" {
		t.Errorf("request = %+v", req)
	}
	if req.Body != `{"enabled":false}` {
		t.Errorf("body = %s, want only the enabled field", req.Body)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	fake := &fakeAdmin{status: http.StatusNoContent}
	c := newTestClient(t, fake)

	if err := c.DeleteEndpoint(context.Background(), 7); err != nil {
		t.Fatalf("DeleteEndpoint: %v", err)
	}
	req := fake.last(t)
	if req.Method != http.MethodDelete || req.Path != "/endpoints/7" {
		t.Errorf("request = %+v", req)
	}
}

func TestToolSettings(t *testing.T) {
	fake := &fakeAdmin{response: `{
		"disabledTools":[{"serverName":"calc","toolName":"danger"}],
		"customTools":[{"serverName":"calc","toolName":"add","customName":"plus"}]
	}`}
	c := newTestClient(t, fake)

	s, err := c.ToolSettings(context.Background())
	if err != nil {
		t.Fatalf("ToolSettings: %v", err)
	}
	if len(s.DisabledTools) != 1 || s.DisabledTools[0].ToolName != "danger" {
		t.Errorf("disabled = %+v", s.DisabledTools)
	}
	if len(s.CustomTools) != 1 || s.CustomTools[0].CustomName != "plus" {
		t.Errorf("custom = %+v", s.CustomTools)
	}
}

func TestToolCache(t *testing.T) {
	fake := &fakeAdmin{response: `{
		"calc":{"tools":[{"name":"add","description":"adds"}],"cached_at":"2026-01-02T03:04:05Z"}
	}`}
	c := newTestClient(t, fake)

	cache, err := c.ToolCache(context.Background())
	if err != nil {
		t.Fatalf("ToolCache: %v", err)
	}
	cat, ok := cache["calc"]
	if !ok || len(cat.Tools) != 1 || cat.Tools[0].Name != "add" {
		t.Errorf("cache = %+v", cache)
	}
}

func TestToggleTool(t *testing.T) {
	fake := &fakeAdmin{response: `{"status":"ok"}`}
	c := newTestClient(t, fake)

	if err := c.ToggleTool(context.Background(), "calc", "add", false); err != nil {
		t.Fatalf("ToggleTool: %v", err)
	}

	req := fake.last(t)
	if req.Path != "/mcp-tools/toggle" {
		t.Errorf("path = %s", req.Path)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(req.Body), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["serverName"] != "calc" || sent["toolName"] != "add" || sent["enabled"] != false {
		t.Errorf("body = %v", sent)
	}
}

func TestRefreshTools(t *testing.T) {
	fake := &fakeAdmin{response: `{"status":"ok","counts":{"calc":3}}`}
	c := newTestClient(t, fake)

	result, err := c.RefreshTools(context.Background(), "calc")
	if err != nil {
		t.Fatalf("RefreshTools: %v", err)
	}
	if result.Status != "ok" || result.Counts["calc"] != 3 {
		t.Errorf("result = %+v", result)
	}
	if body := fake.last(t).Body; body != `{"serverName":"calc"}` {
		t.Errorf("body = %s", body)
	}

	// Empty server name refreshes everything with an empty body.
	if _, err := c.RefreshTools(context.Background(), ""); err != nil {
		t.Fatalf("RefreshTools all: %v", err)
	}
	if body := fake.last(t).Body; body != "" {
		t.Errorf("refresh-all body = %q, want empty", body)
	}
}

func TestBackupRestorePassthrough(t *testing.T) {
	doc := `{"version":"1.0","endpoints":[],"disabledTools":[],"customTools":[]}`
	fake := &fakeAdmin{response: doc}
	c := newTestClient(t, fake)

	raw, err := c.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	fake.response = `{"status":"ok","endpoints":0}`
	if err := c.Restore(context.Background(), raw); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	req := fake.last(t)
	if req.Method != http.MethodPost || req.Path != "/restore" {
		t.Errorf("request = %+v", req)
	}
	if req.Body != doc {
		t.Errorf("restore body = %s, want backup document unchanged", req.Body)
	}
}

func TestServerUnreachable(t *testing.T) {
	// Port 0 is never listening.
	c := NewClient(WithServerAddr("http://127.0.0.1:0"))

	_, err := c.ListEndpoints(context.Background())
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("err = %v, want ErrServerUnreachable", err)
	}
}

func TestErrorMessageFallback(t *testing.T) {
	fake := &fakeAdmin{status: http.StatusBadGateway, response: "upstream exploded"}
	c := newTestClient(t, fake)

	err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}
