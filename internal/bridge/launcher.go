// Package bridge connects local MCP providers to remote hub endpoints.
// It launches provider processes, pumps frames between their stdio and
// the hub WebSocket, filters tool listings, and supervises reconnects.
package bridge

import (
	"fmt"
	"os"
	"sort"

	"github.com/mcpbridge/mcpbridge/internal/domain/provider"
)

// DefaultProxyBin is the proxy adapter used for non-stdio providers
// when the HTTP_PROXY_BIN environment variable is not set.
const DefaultProxyBin = "mcp-proxy"

// ProxyBin returns the proxy adapter binary, honoring HTTP_PROXY_BIN.
func ProxyBin() string {
	if bin := os.Getenv("HTTP_PROXY_BIN"); bin != "" {
		return bin
	}
	return DefaultProxyBin
}

// Command is a fully resolved provider launch: argv plus the complete
// child environment.
type Command struct {
	// Path is the executable.
	Path string
	// Args are the arguments, not including the executable itself.
	Args []string
	// Env is the full child environment (host environment overlaid
	// with the provider's env entries).
	Env []string
}

// BuildCommand resolves a provider spec into the command to launch.
// Remote kinds are wrapped in the proxy adapter so that every provider
// presents a stdio interface to the pipe.
//
// Returns provider.ErrProviderDisabled for disabled entries and a
// validation error for malformed ones.
func BuildCommand(spec *provider.Spec, proxyBin string) (*Command, error) {
	if spec.Disabled {
		return nil, fmt.Errorf("provider %q: %w", spec.Name, provider.ErrProviderDisabled)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	cmd := &Command{Env: overlayEnv(spec.Env)}

	switch spec.EffectiveKind() {
	case provider.KindStdio:
		cmd.Path = spec.Command
		cmd.Args = append(cmd.Args, spec.Args...)

	case provider.KindHTTP, provider.KindStreamableHTTP:
		cmd.Path = proxyBin
		cmd.Args = append(cmd.Args, "--transport", "streamablehttp")
		cmd.Args = append(cmd.Args, headerArgs(spec.Headers)...)
		cmd.Args = append(cmd.Args, spec.URL)

	case provider.KindSSE:
		// SSE is the proxy adapter's default transport.
		cmd.Path = proxyBin
		cmd.Args = append(cmd.Args, headerArgs(spec.Headers)...)
		cmd.Args = append(cmd.Args, spec.URL)
	}

	return cmd, nil
}

// headerArgs renders headers as repeated "-H key value" argument pairs
// in sorted key order so rebuilt commands compare equal.
func headerArgs(headers map[string]string) []string {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(headers)*3)
	for _, k := range keys {
		args = append(args, "-H", k, headers[k])
	}
	return args
}

// overlayEnv copies the host environment and overlays provider entries
// on top, so children inherit PATH and friends but can override them.
func overlayEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
