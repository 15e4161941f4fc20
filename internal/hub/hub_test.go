package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregateTools(t *testing.T) {
	serverTools := map[string][]json.RawMessage{
		"beta": {
			json.RawMessage(`{"name":"search","description":"beta search"}`),
			json.RawMessage(`{"name":"fetch","description":"fetch a url"}`),
		},
		"alpha": {
			json.RawMessage(`{"name":"search","description":"alpha search","inputSchema":{"type":"object"}}`),
		},
	}

	tools, registry := aggregateTools(serverTools)
	if len(tools) != 3 {
		t.Fatalf("aggregated %d tools, want 3", len(tools))
	}

	byName := make(map[string]map[string]interface{})
	for _, raw := range tools {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("unmarshal tool: %v", err)
		}
		byName[fields["name"].(string)] = fields
	}

	// alpha sorts first and keeps the plain name; beta is renamed.
	if _, ok := byName["search"]; !ok {
		t.Error("alpha's search should keep its plain name")
	}
	if _, ok := byName["beta.search"]; !ok {
		t.Error("beta's search should be exposed as beta.search")
	}
	if got := byName["search"]["description"]; got != "[alpha] alpha search" {
		t.Errorf("description = %q, want provider prefix", got)
	}
	if got := byName["beta.search"]["description"]; got != "[beta] beta search" {
		t.Errorf("renamed description = %q, want provider prefix", got)
	}
	if _, ok := byName["search"]["inputSchema"]; !ok {
		t.Error("unknown tool fields must survive aggregation")
	}

	if r := registry["beta.search"]; r.provider != "beta" || r.wireName != "search" {
		t.Errorf("beta.search route = %+v", r)
	}
	if r := registry["fetch"]; r.provider != "beta" || r.wireName != "fetch" {
		t.Errorf("fetch route = %+v", r)
	}
}

func TestRewriteToolName(t *testing.T) {
	frame := []byte(`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"beta.search","arguments":{"q":"go"}}}`)

	out, err := rewriteToolName(frame, "search")
	if err != nil {
		t.Fatalf("rewriteToolName: %v", err)
	}

	var call struct {
		ID     int `json:"id"`
		Params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.Unmarshal(out, &call); err != nil {
		t.Fatalf("unmarshal rewritten frame: %v", err)
	}
	if call.Params.Name != "search" {
		t.Errorf("name = %q, want wire name", call.Params.Name)
	}
	if call.ID != 9 {
		t.Errorf("id = %d, should be untouched", call.ID)
	}
	if string(call.Params.Arguments) != `{"q":"go"}` {
		t.Errorf("arguments changed: %s", call.Params.Arguments)
	}
}

func TestHubRequestID(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		wantID string
		wantOK bool
	}{
		{"string id", `{"id":"hub_init_calc","result":{}}`, "hub_init_calc", true},
		{"numeric id", `{"id":42,"result":{}}`, "", false},
		{"missing id", `{"method":"notifications/progress"}`, "", false},
		{"garbage", `not json`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := hubRequestID([]byte(tt.frame))
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("hubRequestID = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// End-to-end over real sockets
// ---------------------------------------------------------------------------

const hubTestToken = "secret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("", hubTestToken, testLogger(), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/" + query
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// readStatus reads one raw frame, status pushes included.
func readStatus(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// readFrame reads the next JSON-RPC frame, skipping interleaved status
// pushes (tool refreshes rebroadcast status).
func readFrame(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	for {
		frame := readStatus(t, c)
		var probe struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(frame, &probe) == nil && probe.Type == "status" {
			continue
		}
		return frame
	}
}

func writeFrame(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// runScriptedProvider answers the hub's handshake and tool refreshes
// for a fake provider, and forwards routed tools/call frames to calls.
func runScriptedProvider(t *testing.T, c *websocket.Conn, name, toolsJSON string, calls chan<- []byte) {
	t.Helper()
	go func() {
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				return
			}
			var probe struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
			}
			if json.Unmarshal(frame, &probe) != nil {
				continue
			}
			switch probe.Method {
			case "initialize":
				reply := `{"jsonrpc":"2.0","id":` + string(probe.ID) +
					`,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"` + name + `"}}}`
				c.WriteMessage(websocket.TextMessage, []byte(reply))
			case "notifications/initialized":
				// handshake ack, nothing to send
			case "tools/list":
				reply := `{"jsonrpc":"2.0","id":` + string(probe.ID) +
					`,"result":{"tools":` + toolsJSON + `}}`
				c.WriteMessage(websocket.TextMessage, []byte(reply))
			default:
				if calls != nil {
					calls <- frame
				}
			}
		}
	}()
}

func waitForProviders(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		tools := len(h.serverTools)
		h.mu.Unlock()
		if tools >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("providers did not publish tools in time")
}

func TestHubEndToEnd(t *testing.T) {
	s, ts := newTestServer(t)

	calls := make(chan []byte, 1)
	provider := dialWS(t, wsURL(ts, "?server=calc&token="+hubTestToken))
	runScriptedProvider(t, provider, "calc",
		`[{"name":"add","description":"add two numbers"}]`, calls)
	waitForProviders(t, s.Hub(), 1)

	frontend := dialWS(t, wsURL(ts, ""))

	// The first frame on connect is the status push.
	var status struct {
		Type         string   `json:"type"`
		MCPConnected bool     `json:"mcp_connected"`
		MCPServers   []string `json:"mcp_servers"`
	}
	if err := json.Unmarshal(readStatus(t, frontend), &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Type != "status" || !status.MCPConnected {
		t.Fatalf("status = %+v, want connected", status)
	}
	if len(status.MCPServers) != 1 || status.MCPServers[0] != "calc" {
		t.Fatalf("mcp_servers = %v", status.MCPServers)
	}

	// initialize is answered locally by the hub.
	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	var initResp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &initResp); err != nil {
		t.Fatalf("unmarshal initialize response: %v", err)
	}
	if initResp.ID != 1 || initResp.Result.ServerInfo.Name != "MCP Hub" {
		t.Fatalf("initialize response = %+v", initResp)
	}
	writeFrame(t, frontend, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	// tools/list returns the aggregate with provider-prefixed
	// descriptions.
	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	var listResp struct {
		ID     int `json:"id"`
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &listResp); err != nil {
		t.Fatalf("unmarshal tools/list response: %v", err)
	}
	if listResp.ID != 2 || len(listResp.Result.Tools) != 1 {
		t.Fatalf("tools/list response = %+v", listResp)
	}
	if got := listResp.Result.Tools[0].Description; got != "[calc] add two numbers" {
		t.Errorf("description = %q", got)
	}

	// tools/call is routed to the owning provider and its response comes
	// back to the frontend.
	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":2}}}`)
	select {
	case routed := <-calls:
		var fwd struct {
			ID     int `json:"id"`
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
		}
		if err := json.Unmarshal(routed, &fwd); err != nil {
			t.Fatalf("unmarshal routed call: %v", err)
		}
		if fwd.ID != 3 || fwd.Params.Name != "add" {
			t.Fatalf("routed call = %+v", fwd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("provider never received the tools/call")
	}
	if err := provider.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"3"}]}}`)); err != nil {
		t.Fatalf("provider write: %v", err)
	}
	var callResp struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &callResp); err != nil {
		t.Fatalf("unmarshal call response: %v", err)
	}
	if callResp.ID != 3 || callResp.Result == nil {
		t.Fatalf("call response = %+v", callResp)
	}

	// Unknown tool names get a method-not-found error.
	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"does-not-exist"}}`)
	var errResp struct {
		ID    int `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &errResp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if errResp.ID != 4 || errResp.Error.Code != -32601 {
		t.Fatalf("error response = %+v", errResp)
	}
	if errResp.Error.Message != "Tool 'does-not-exist' not found" {
		t.Errorf("error message = %q", errResp.Error.Message)
	}
}

func TestConflictingToolRenamedAndRouted(t *testing.T) {
	s, ts := newTestServer(t)

	alphaCalls := make(chan []byte, 1)
	betaCalls := make(chan []byte, 1)
	alpha := dialWS(t, wsURL(ts, "?server=alpha&token="+hubTestToken))
	runScriptedProvider(t, alpha, "alpha", `[{"name":"search","description":"a"}]`, alphaCalls)
	waitForProviders(t, s.Hub(), 1)
	beta := dialWS(t, wsURL(ts, "?server=beta&token="+hubTestToken))
	runScriptedProvider(t, beta, "beta", `[{"name":"search","description":"b"}]`, betaCalls)
	waitForProviders(t, s.Hub(), 2)

	frontend := dialWS(t, wsURL(ts, ""))
	readStatus(t, frontend) // status push

	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	var listResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &listResp); err != nil {
		t.Fatalf("unmarshal tools/list: %v", err)
	}
	names := make(map[string]bool)
	for _, tl := range listResp.Result.Tools {
		names[tl.Name] = true
	}
	if !names["search"] || !names["beta.search"] {
		t.Fatalf("exposed names = %v, want search and beta.search", names)
	}

	// Calling the renamed tool reaches beta under its wire name.
	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"beta.search","arguments":{}}}`)
	select {
	case routed := <-betaCalls:
		var fwd struct {
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
		}
		if err := json.Unmarshal(routed, &fwd); err != nil {
			t.Fatalf("unmarshal routed call: %v", err)
		}
		if fwd.Params.Name != "search" {
			t.Errorf("wire name = %q, want search", fwd.Params.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("beta never received the renamed call")
	}
	select {
	case <-alphaCalls:
		t.Fatal("alpha should not receive beta's call")
	case <-time.After(100 * time.Millisecond):
	}
}

// runBrokenProvider answers initialize with a JSON-RPC error but would
// happily serve tools if asked.
func runBrokenProvider(t *testing.T, c *websocket.Conn, toolsJSON string) {
	t.Helper()
	go func() {
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				return
			}
			var probe struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
			}
			if json.Unmarshal(frame, &probe) != nil {
				continue
			}
			switch probe.Method {
			case "initialize":
				reply := `{"jsonrpc":"2.0","id":` + string(probe.ID) +
					`,"error":{"code":-32603,"message":"init exploded"}}`
				c.WriteMessage(websocket.TextMessage, []byte(reply))
			case "tools/list":
				reply := `{"jsonrpc":"2.0","id":` + string(probe.ID) +
					`,"result":{"tools":` + toolsJSON + `}}`
				c.WriteMessage(websocket.TextMessage, []byte(reply))
			}
		}
	}()
}

func TestProviderInitializeErrorNotAdmitted(t *testing.T) {
	s, ts := newTestServer(t)

	bad := dialWS(t, wsURL(ts, "?server=bad&token="+hubTestToken))
	runBrokenProvider(t, bad, `[{"name":"ghost","description":"should never appear"}]`)

	good := dialWS(t, wsURL(ts, "?server=calc&token="+hubTestToken))
	runScriptedProvider(t, good, "calc", `[{"name":"add","description":"add two numbers"}]`, nil)
	waitForProviders(t, s.Hub(), 1)

	frontend := dialWS(t, wsURL(ts, ""))
	readStatus(t, frontend) // status push

	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	var listResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &listResp); err != nil {
		t.Fatalf("unmarshal tools/list: %v", err)
	}
	for _, tl := range listResp.Result.Tools {
		if tl.Name == "ghost" || tl.Name == "bad.ghost" {
			t.Fatalf("failed provider's tool leaked into the aggregate: %v", listResp.Result.Tools)
		}
	}
	if len(listResp.Result.Tools) != 1 || listResp.Result.Tools[0].Name != "add" {
		t.Fatalf("tools = %+v, want only calc's add", listResp.Result.Tools)
	}

	h := s.Hub()
	h.mu.Lock()
	_, ghostRouted := h.registry["ghost"]
	_, badListed := h.serverTools["bad"]
	h.mu.Unlock()
	if ghostRouted || badListed {
		t.Error("failed provider must not enter the registry or tool lists")
	}
}

func TestProviderDisconnectPrunesTools(t *testing.T) {
	s, ts := newTestServer(t)

	provider := dialWS(t, wsURL(ts, "?server=calc&token="+hubTestToken))
	runScriptedProvider(t, provider, "calc", `[{"name":"add"}]`, nil)
	waitForProviders(t, s.Hub(), 1)

	provider.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h := s.Hub()
		h.mu.Lock()
		gone := len(h.providers) == 0 && len(h.serverTools) == 0 && len(h.registry) == 0
		h.mu.Unlock()
		if gone {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("provider state not pruned after disconnect")
}

func TestProviderBadTokenClosed(t *testing.T) {
	_, ts := newTestServer(t)

	c := dialWS(t, wsURL(ts, "?server=calc&token=wrong"))
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != 4001 {
		t.Errorf("close code = %d, want 4001", closeErr.Code)
	}
}

func TestRelayWithoutProviders(t *testing.T) {
	_, ts := newTestServer(t)

	frontend := dialWS(t, wsURL(ts, ""))
	readStatus(t, frontend) // status push

	writeFrame(t, frontend, `{"jsonrpc":"2.0","id":5,"method":"prompts/list"}`)
	var errResp struct {
		ID    int `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(readFrame(t, frontend), &errResp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if errResp.ID != 5 || errResp.Error.Code != -32000 {
		t.Fatalf("error response = %+v", errResp)
	}
	if errResp.Error.Message != "MCP tool not connected" {
		t.Errorf("error message = %q", errResp.Error.Message)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}
