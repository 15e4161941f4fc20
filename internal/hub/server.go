package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the hub over HTTP: WebSocket upgrades for providers
// and frontends, plus health and metrics endpoints.
type Server struct {
	hub    *Hub
	token  string
	logger *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates the hub HTTP server. token guards the provider
// role; empty disables the check. reg receives the hub metrics.
func NewServer(addr, token string, logger *slog.Logger, reg *prometheus.Registry) *Server {
	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	s := &Server{
		hub:    New(logger, metrics),
		token:  token,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Frontends are browsers and CLI clients from anywhere;
			// access control is the token on the provider role.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleWS)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the underlying hub, used by tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe blocks serving until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("hub listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Handler returns the HTTP handler, used by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleWS upgrades a connection and sorts it into a role: requests
// with a server query parameter are provider bridges, everything else
// is a frontend.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server")
	token := r.URL.Query().Get("token")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newConn(ws)

	if serverName != "" {
		// Token check happens after the upgrade so the bridge receives
		// a proper close code instead of an opaque HTTP error.
		if s.token != "" && token != s.token {
			s.logger.Warn("provider rejected: bad token", "provider", serverName)
			c.closeWith(4001, "Invalid or missing token")
			return
		}
		p := s.hub.registerProvider(serverName, c)
		s.hub.runProvider(p)
		return
	}

	s.hub.registerFrontend(c)
	s.hub.runFrontend(c)
}
