package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// maxFrameSize bounds a single newline-delimited frame from the
// provider. Tool schemas can be large; 10 MB matches the hub side.
const maxFrameSize = 10 * 1024 * 1024

// Pipe moves frames between one hub WebSocket and one provider process
// for the lifetime of a single connection. Frames pass through verbatim
// except tools/list responses, which are run through the tool filter.
type Pipe struct {
	serverName string
	filter     *ToolFilter
	logger     *slog.Logger

	// writeMu serializes WebSocket writes (gorilla allows one
	// concurrent writer).
	writeMu sync.Mutex

	// pendingTools maps in-flight tools/list request IDs to their
	// include_disabled flag so the matching response can be filtered
	// with the right visibility.
	pendingMu    sync.Mutex
	pendingTools map[string]bool
}

// NewPipe creates a pipe for one provider connection.
func NewPipe(serverName string, filter *ToolFilter, logger *slog.Logger) *Pipe {
	return &Pipe{
		serverName:   serverName,
		filter:       filter,
		logger:       logger.With("provider", serverName),
		pendingTools: make(map[string]bool),
	}
}

// Run pumps frames in both directions plus the stderr tap until the
// context is cancelled or any pump fails. The first failure wins and is
// returned; the pumps still blocked on the provider's pipes drain and
// exit once the caller terminates the process, which closes them.
func (p *Pipe) Run(ctx context.Context, conn *websocket.Conn, stdin io.WriteCloser, stdout, stderr io.Reader, stderrSink io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	go func() { errCh <- p.pumpHubToProvider(ctx, conn, stdin) }()
	go func() { errCh <- p.pumpProviderToHub(ctx, conn, stdout) }()
	go func() {
		// The stderr tap keeps provider diagnostics visible without
		// touching the protocol stream.
		_, err := io.Copy(stderrSink, stderr)
		errCh <- err
	}()

	var first error
	select {
	case <-ctx.Done():
		first = ctx.Err()
	case first = <-errCh:
	}

	// Unblock the WebSocket reader and signal EOF to the provider.
	cancel()
	conn.Close()
	stdin.Close()

	return first
}

// pumpHubToProvider reads frames from the WebSocket and writes them to
// the provider's stdin, newline-terminated. tools/list requests are
// recorded so their responses can be matched.
func (p *Pipe) pumpHubToProvider(ctx context.Context, conn *websocket.Conn, stdin io.Writer) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read from hub: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.trackToolsRequest(frame)

		if _, err := stdin.Write(append(frame, '\n')); err != nil {
			return fmt.Errorf("write to provider stdin: %w", err)
		}
		p.logger.Debug("frame forwarded", "direction", mcp.HubToProvider.String(), "bytes", len(frame))
	}
}

// pumpProviderToHub reads newline-delimited frames from the provider's
// stdout and writes them to the WebSocket, filtering tools/list
// responses on the way.
func (p *Pipe) pumpProviderToHub(ctx context.Context, conn *websocket.Conn, stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame := scanner.Bytes()
		if len(frame) == 0 {
			continue
		}
		if !json.Valid(frame) {
			// Providers sometimes print diagnostics to stdout; only
			// JSON frames may reach the hub.
			p.logger.Debug("dropping non-JSON provider output", "bytes", len(frame))
			continue
		}

		out := p.maybeFilterToolsResponse(ctx, frame)

		p.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, out)
		p.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("write to hub: %w", err)
		}
		p.logger.Debug("frame forwarded", "direction", mcp.ProviderToHub.String(), "bytes", len(out))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read provider stdout: %w", err)
	}
	return fmt.Errorf("provider stdout closed")
}

// trackToolsRequest records the ID and include_disabled flag of
// tools/list requests flowing towards the provider.
func (p *Pipe) trackToolsRequest(frame []byte) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params struct {
			IncludeDisabled bool `json:"include_disabled"`
		} `json:"params"`
	}
	if err := json.Unmarshal(frame, &req); err != nil {
		return
	}
	if req.Method != "tools/list" || req.ID == nil {
		return
	}

	p.pendingMu.Lock()
	p.pendingTools[string(req.ID)] = req.Params.IncludeDisabled
	p.pendingMu.Unlock()
}

// maybeFilterToolsResponse runs tools/list responses through the
// filter. Anything else, and any frame the filter chokes on, passes
// through verbatim.
func (p *Pipe) maybeFilterToolsResponse(ctx context.Context, frame []byte) []byte {
	msg := &mcp.Message{Raw: frame}
	if _, ok := msg.ToolsResult(); !ok {
		return frame
	}

	includeDisabled := false
	if key := msg.IDKey(); key != "" {
		p.pendingMu.Lock()
		if flag, ok := p.pendingTools[key]; ok {
			includeDisabled = flag
			delete(p.pendingTools, key)
		}
		p.pendingMu.Unlock()
	}

	filtered, err := p.filter.FilterToolsResponse(ctx, p.serverName, frame, includeDisabled)
	if err != nil {
		p.logger.Warn("tool filtering failed, forwarding unfiltered", "error", err)
		return frame
	}
	return filtered
}
