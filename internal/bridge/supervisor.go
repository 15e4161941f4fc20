package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
	"github.com/mcpbridge/mcpbridge/internal/domain/provider"
)

const (
	// initialBackoff is the delay before the first reconnect attempt.
	initialBackoff = 1 * time.Second
	// maxBackoff caps the exponential reconnect delay.
	maxBackoff = 600 * time.Second
	// terminateGrace is how long a provider gets between the graceful
	// stop signal and the kill.
	terminateGrace = 5 * time.Second
)

// ErrAuthFailed marks a hub rejection of our credentials. Unlike every
// other failure it is terminal: retrying with the same token would loop
// forever, so the supervisor stops this bridge and leaves the rest of
// the process alone.
var ErrAuthFailed = errors.New("authentication failed")

// authCloseCode is the WebSocket close code the hub sends on token
// mismatch.
const authCloseCode = 4001

// Supervisor owns the connection lifecycle for one (endpoint, provider)
// pair: launch the provider, dial the hub, pump frames, and reconnect
// with exponential backoff until cancelled.
type Supervisor struct {
	ep     endpoint.Endpoint
	spec   provider.Spec
	store  endpoint.Store
	filter *ToolFilter
	logger *slog.Logger

	// token is appended to the dial URL when non-empty (MCP_WS_TOKEN).
	token string
	// proxyBin launches non-stdio providers.
	proxyBin string
	// stderrSink receives the provider's stderr.
	stderrSink io.Writer

	dialer *websocket.Dialer

	// backoffBase and backoffCap are fields so tests can shrink them.
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewSupervisor creates a supervisor for one bridge.
func NewSupervisor(ep endpoint.Endpoint, spec provider.Spec, store endpoint.Store, filter *ToolFilter, token string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		ep:          ep,
		spec:        spec,
		store:       store,
		filter:      filter,
		logger:      logger.With("endpoint", ep.Name, "provider", spec.Name),
		token:       token,
		proxyBin:    ProxyBin(),
		stderrSink:  os.Stderr,
		dialer:      &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		backoffBase: initialBackoff,
		backoffCap:  maxBackoff,
	}
}

// Run drives the reconnect loop until ctx is cancelled or the hub
// rejects our credentials.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.backoffBase

	for {
		if ctx.Err() != nil {
			s.setStatus(endpoint.StatusDisconnected, "")
			return ctx.Err()
		}

		s.setStatus(endpoint.StatusConnecting, "")
		connected, err := s.connectOnce(ctx)

		if ctx.Err() != nil {
			s.setStatus(endpoint.StatusDisconnected, "")
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthFailed) {
			s.logger.Error("hub rejected credentials, stopping this bridge", "error", err)
			s.setStatus(endpoint.StatusError, "authentication failed")
			return err
		}

		if connected {
			// A session ran; start the next attempt promptly.
			backoff = s.backoffBase
		}
		if err != nil {
			s.logger.Warn("bridge session ended", "error", err, "retry_in", backoff)
			s.setStatus(endpoint.StatusError, err.Error())
		} else {
			s.setStatus(endpoint.StatusDisconnected, "")
		}

		select {
		case <-ctx.Done():
			s.setStatus(endpoint.StatusDisconnected, "")
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, s.backoffCap)
	}
}

// connectOnce dials the hub, launches the provider and runs the pipe
// for one session. The dial comes first: while the hub is unreachable,
// each backoff cycle must not spawn and kill a provider process. The
// returned bool reports whether the session reached connected state.
func (s *Supervisor) connectOnce(ctx context.Context) (bool, error) {
	launch, err := BuildCommand(&s.spec, s.proxyBin)
	if err != nil {
		return false, err
	}

	dialURL, err := BuildDialURL(s.ep.URL, s.spec.Name, s.token)
	if err != nil {
		return false, err
	}

	conn, resp, err := s.dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, fmt.Errorf("dial %s: status %d: %w", dialURL, resp.StatusCode, ErrAuthFailed)
		}
		return false, fmt.Errorf("dial %s: %w", dialURL, err)
	}
	s.logger.Info("connected to hub", "url", s.ep.URL)

	cmd := exec.Command(launch.Path, launch.Args...)
	cmd.Env = launch.Env
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		conn.Close()
		return false, fmt.Errorf("start provider %q: %w", s.spec.Name, err)
	}
	s.logger.Info("provider started", "pid", cmd.Process.Pid, "command", launch.Path)
	s.setStatus(endpoint.StatusConnected, "")

	pipe := NewPipe(s.spec.Name, s.filter, s.logger)
	pipeErr := pipe.Run(ctx, conn, stdin, stdout, stderr, s.stderrSink)

	s.terminate(cmd)

	var closeErr *websocket.CloseError
	if errors.As(pipeErr, &closeErr) && closeErr.Code == authCloseCode {
		return true, fmt.Errorf("hub closed connection (%d %s): %w", closeErr.Code, closeErr.Text, ErrAuthFailed)
	}
	if errors.Is(pipeErr, context.Canceled) {
		return true, nil
	}
	return true, pipeErr
}

// terminate stops the provider: graceful signal, a grace period, then
// the hard kill. Safe to call when the process already exited.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := sendGracefulStop(cmd.Process); err != nil {
		// Already gone; reap and return.
		<-done
		return
	}

	select {
	case <-done:
		return
	case <-time.After(terminateGrace):
	}

	s.logger.Warn("provider ignored graceful stop, killing", "pid", cmd.Process.Pid)
	_ = sendKill(cmd.Process)
	<-done
}

// setStatus records a state transition, ignoring store failures: a
// broken status column must not take the bridge down.
func (s *Supervisor) setStatus(status endpoint.ConnectionStatus, errMsg string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateStatus(ctx, s.ep.ID, status, errMsg); err != nil {
		s.logger.Warn("failed to record connection status", "status", status, "error", err)
	}
}

// BuildDialURL derives the WebSocket URL for one provider's bridge from
// an endpoint's base URL. A base without a path gets "/mcp" appended;
// the provider name and optional token travel as query parameters.
func BuildDialURL(base, serverName, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url %q: %w", base, err)
	}
	if u.Path == "" {
		u.Path = "/mcp"
	}

	q := u.Query()
	q.Set("server", serverName)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nextBackoff doubles the delay up to the limit.
func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
