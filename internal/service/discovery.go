// Package service holds application services that sit between the
// inbound adapters and the domain.
package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/bridge"
	"github.com/mcpbridge/mcpbridge/internal/domain/provider"
	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// defaultDiscoveryTimeout bounds one provider's handshake plus
// tools/list round trip.
const defaultDiscoveryTimeout = 30 * time.Second

// DiscoveryService launches a provider just long enough to ask for its
// tool list, then caches the result. Used by the admin refresh endpoint;
// the bridges themselves cache catalogs passively as traffic flows.
type DiscoveryService struct {
	configPath string
	proxyBin   string
	catalogs   tool.CatalogStore
	logger     *slog.Logger
	timeout    time.Duration
}

// NewDiscoveryService creates a discovery service reading provider specs
// from configPath.
func NewDiscoveryService(configPath, proxyBin string, catalogs tool.CatalogStore, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{
		configPath: configPath,
		proxyBin:   proxyBin,
		catalogs:   catalogs,
		logger:     logger,
		timeout:    defaultDiscoveryTimeout,
	}
}

// RefreshAll rediscovers every enabled provider. Returns per-provider
// tool counts; providers that fail are logged and skipped.
func (s *DiscoveryService) RefreshAll(ctx context.Context) (map[string]int, error) {
	specs, err := provider.Load(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("load provider config: %w", err)
	}

	counts := make(map[string]int)
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		if spec.Disabled {
			continue
		}
		count, err := s.refreshSpec(ctx, &spec)
		if err != nil {
			s.logger.Error("discovery failed for provider", "provider", name, "error", err)
			continue
		}
		counts[name] = count
	}
	return counts, nil
}

// Refresh rediscovers a single provider by name.
func (s *DiscoveryService) Refresh(ctx context.Context, serverName string) (int, error) {
	specs, err := provider.Load(s.configPath)
	if err != nil {
		return 0, fmt.Errorf("load provider config: %w", err)
	}
	spec, ok := specs[serverName]
	if !ok {
		return 0, fmt.Errorf("provider %q not configured", serverName)
	}
	if spec.Disabled {
		return 0, fmt.Errorf("refresh provider %s: %w", serverName, provider.ErrProviderDisabled)
	}
	return s.refreshSpec(ctx, &spec)
}

// refreshSpec runs the provider, collects its tools and replaces the
// cached catalog.
func (s *DiscoveryService) refreshSpec(ctx context.Context, spec *provider.Spec) (int, error) {
	tools, err := s.discover(ctx, spec)
	if err != nil {
		return 0, fmt.Errorf("discover %s: %w", spec.Name, err)
	}

	catalog := &tool.Catalog{
		ServerName: spec.Name,
		Tools:      tools,
		CachedAt:   time.Now().UTC(),
	}
	if err := s.catalogs.Put(ctx, catalog); err != nil {
		return 0, fmt.Errorf("cache catalog for %s: %w", spec.Name, err)
	}

	s.logger.Info("discovered tools", "provider", spec.Name, "tools", len(tools))
	return len(tools), nil
}

// discover spawns the provider, performs the MCP handshake over stdio
// and returns the tools/list result.
func (s *DiscoveryService) discover(ctx context.Context, spec *provider.Spec) ([]tool.Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	command, err := bridge.BuildCommand(spec, s.proxyBin)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Env = command.Env
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start provider: %w", err)
	}
	// Closing stdin signals EOF; CommandContext kills on timeout.
	defer func() {
		_ = stdin.Close()
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	initID := "discovery_init_" + spec.Name
	initReq := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"MCP Hub","version":"1.0.0"}}}`, initID)
	if _, err := fmt.Fprintln(stdin, initReq); err != nil {
		return nil, fmt.Errorf("write initialize: %w", err)
	}
	if _, err := s.awaitResponse(ctx, scanner, initID); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	if _, err := fmt.Fprintln(stdin, `{"jsonrpc":"2.0","method":"notifications/initialized"}`); err != nil {
		return nil, fmt.Errorf("write initialized: %w", err)
	}

	toolsID := "discovery_tools_" + spec.Name
	toolsReq := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"method":"tools/list"}`, toolsID)
	if _, err := fmt.Fprintln(stdin, toolsReq); err != nil {
		return nil, fmt.Errorf("write tools/list: %w", err)
	}
	line, err := s.awaitResponse(ctx, scanner, toolsID)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var resp struct {
		Result struct {
			Tools []tool.Tool `json:"tools"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse tools/list response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	return resp.Result.Tools, nil
}

// awaitResponse reads stdout lines until one carries the given id.
// Providers may interleave notifications and log lines; those are
// skipped.
func (s *DiscoveryService) awaitResponse(ctx context.Context, scanner *bufio.Scanner, id string) ([]byte, error) {
	type scanResult struct {
		line []byte
		err  error
	}
	resultCh := make(chan scanResult, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Bytes()
			var probe struct {
				ID json.RawMessage `json:"id"`
			}
			if json.Unmarshal(line, &probe) != nil || probe.ID == nil {
				continue
			}
			var gotID string
			if json.Unmarshal(probe.ID, &gotID) != nil || gotID != id {
				continue
			}
			out := make([]byte, len(line))
			copy(out, line)
			resultCh <- scanResult{line: out}
			return
		}
		if err := scanner.Err(); err != nil {
			resultCh <- scanResult{err: err}
			return
		}
		resultCh <- scanResult{err: io.ErrUnexpectedEOF}
	}()

	select {
	case res := <-resultCh:
		return res.line, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
