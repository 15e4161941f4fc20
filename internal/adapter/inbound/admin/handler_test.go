package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mcpbridge/mcpbridge/internal/adapter/outbound/memory"
	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettingStore is an in-memory tool.SettingStore for handler tests.
type fakeSettingStore struct {
	mu       sync.Mutex
	settings map[string]tool.Setting // key: server + "/" + tool
}

func newFakeSettingStore() *fakeSettingStore {
	return &fakeSettingStore{settings: make(map[string]tool.Setting)}
}

var _ tool.SettingStore = (*fakeSettingStore)(nil)

func (f *fakeSettingStore) key(server, name string) string { return server + "/" + name }

func (f *fakeSettingStore) List(context.Context) ([]tool.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tool.Setting, 0, len(f.settings))
	for _, s := range f.settings {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSettingStore) ListForServer(_ context.Context, server string) (map[string]tool.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]tool.Setting)
	for _, s := range f.settings {
		if s.ServerName == server {
			out[s.ToolName] = s
		}
	}
	return out, nil
}

func (f *fakeSettingStore) Get(_ context.Context, server, name string) (*tool.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[f.key(server, name)]
	if !ok {
		return nil, tool.ErrSettingNotFound
	}
	return &s, nil
}

func (f *fakeSettingStore) SetEnabled(_ context.Context, server, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.settings[f.key(server, name)]
	s.ServerName, s.ToolName, s.Enabled = server, name, enabled
	f.settings[f.key(server, name)] = s
	return nil
}

func (f *fakeSettingStore) SetMetadata(_ context.Context, server, name, customName, customDescription string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.key(server, name)
	s, ok := f.settings[key]
	if !ok {
		s = tool.Setting{ServerName: server, ToolName: name, Enabled: true}
	}
	s.CustomName, s.CustomDescription = customName, customDescription
	f.settings[key] = s
	return nil
}

func (f *fakeSettingStore) Reset(_ context.Context, server, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.settings, f.key(server, name))
	return nil
}

func (f *fakeSettingStore) ResetAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = make(map[string]tool.Setting)
	return nil
}

func (f *fakeSettingStore) DeleteForServer(_ context.Context, server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, s := range f.settings {
		if s.ServerName == server {
			delete(f.settings, k)
		}
	}
	return nil
}

// fakeCatalogStore is an in-memory tool.CatalogStore for handler tests.
type fakeCatalogStore struct {
	mu       sync.Mutex
	catalogs map[string]*tool.Catalog
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{catalogs: make(map[string]*tool.Catalog)}
}

var _ tool.CatalogStore = (*fakeCatalogStore)(nil)

func (f *fakeCatalogStore) Put(_ context.Context, c *tool.Catalog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogs[c.ServerName] = c
	return nil
}

func (f *fakeCatalogStore) Get(_ context.Context, server string) (*tool.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalogs[server], nil
}

func (f *fakeCatalogStore) All(context.Context) (map[string]*tool.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*tool.Catalog, len(f.catalogs))
	for k, v := range f.catalogs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCatalogStore) Delete(_ context.Context, server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.catalogs, server)
	return nil
}

// fakeRefresher records refresh calls.
type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []string
	count     int
	err       error
}

var _ ToolRefresher = (*fakeRefresher)(nil)

func (f *fakeRefresher) Refresh(_ context.Context, server string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, server)
	return f.count, f.err
}

func (f *fakeRefresher) RefreshAll(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, "*")
	if f.err != nil {
		return nil, f.err
	}
	return map[string]int{"all": f.count}, nil
}

// eventRecorder collects published command-bus events.
type eventRecorder struct {
	mu     sync.Mutex
	events []endpoint.Event
}

var _ endpoint.Publisher = (*eventRecorder)(nil)

func (r *eventRecorder) Publish(_ context.Context, ev endpoint.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) all() []endpoint.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]endpoint.Event(nil), r.events...)
}

// testFixture bundles a handler with its fake dependencies.
type testFixture struct {
	handler   *Handler
	server    *httptest.Server
	endpoints *memory.EndpointStore
	settings  *fakeSettingStore
	catalogs  *fakeCatalogStore
	events    *eventRecorder
	refresher *fakeRefresher
}

func newFixture(t *testing.T, opts ...Option) *testFixture {
	t.Helper()
	f := &testFixture{
		endpoints: memory.NewEndpointStore(),
		settings:  newFakeSettingStore(),
		catalogs:  newFakeCatalogStore(),
		events:    &eventRecorder{},
		refresher: &fakeRefresher{count: 3},
	}
	base := []Option{
		WithEndpointStore(f.endpoints),
		WithSettingStore(f.settings),
		WithCatalogStore(f.catalogs),
		WithPublisher(f.events),
		WithRefresher(f.refresher),
		WithLogger(testLogger()),
	}
	f.handler = New(append(base, opts...)...)
	f.server = httptest.NewServer(f.handler.Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *testFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
