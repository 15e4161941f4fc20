package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
	"github.com/mcpbridge/mcpbridge/internal/domain/provider"
)

const (
	// defaultPollInterval drives the config mtime check and the
	// periodic endpoint re-read.
	defaultPollInterval = 10 * time.Second
	// defaultCancelShield is how long a stopping bridge may hold its
	// slot before the reconciler moves on without it.
	defaultCancelShield = 2 * time.Second
)

// Runner is the unit the reconciler supervises. *Supervisor implements
// it; tests substitute lightweight fakes.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds the runner for one (endpoint, provider) pair.
type RunnerFactory func(ep endpoint.Endpoint, spec provider.Spec) Runner

// Reconciler converges the set of running bridges onto the desired set:
// every enabled endpoint crossed with every enabled provider. It wakes
// on control-plane events, on provider config file changes, and on a
// steady poll; passes are serialized, so a burst of events collapses
// into a single pass over current state.
type Reconciler struct {
	store      endpoint.Store
	configPath string
	factory    RunnerFactory
	filter     *ToolFilter
	logger     *slog.Logger

	pollInterval time.Duration
	cancelShield time.Duration

	// wake has capacity 1: any number of events queued while a pass
	// runs coalesce into one follow-up pass.
	wake chan struct{}

	mu      sync.Mutex
	running map[bridgeKey]*runningBridge
}

// bridgeKey identifies one supervised bridge.
type bridgeKey struct {
	Endpoint string
	Provider string
}

func (k bridgeKey) String() string {
	return fmt.Sprintf("%s:%s", k.Endpoint, k.Provider)
}

type runningBridge struct {
	cancel context.CancelFunc
	done   chan struct{}
	// epURL detects endpoint URL changes that require a restart.
	epURL string
}

// NewReconciler creates a reconciler. The factory defaults to real
// supervisors when nil.
func NewReconciler(store endpoint.Store, configPath string, filter *ToolFilter, token string, logger *slog.Logger, factory RunnerFactory) *Reconciler {
	if factory == nil {
		factory = func(ep endpoint.Endpoint, spec provider.Spec) Runner {
			return NewSupervisor(ep, spec, store, filter, token, logger)
		}
	}
	return &Reconciler{
		store:        store,
		configPath:   configPath,
		factory:      factory,
		filter:       filter,
		logger:       logger,
		pollInterval: defaultPollInterval,
		cancelShield: defaultCancelShield,
		wake:         make(chan struct{}, 1),
		running:      make(map[bridgeKey]*runningBridge),
	}
}

// SetPollInterval overrides the steady poll cadence. Must be called
// before Run.
func (r *Reconciler) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// HandleEvent is the control-plane entry point, wired to the pub/sub
// subscriber. The event body is advisory; each pass re-reads the store,
// which is the source of truth, so stale or duplicate events are
// harmless.
func (r *Reconciler) HandleEvent(ev endpoint.Event) {
	r.logger.Info("control event received",
		"action", ev.Action, "endpoint", ev.Endpoint.Name)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run blocks reconciling until ctx is cancelled, then stops all bridges.
func (r *Reconciler) Run(ctx context.Context) error {
	r.waitForEndpoints(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	lastMod := provider.ModTime(r.configPath)
	r.reconcile(ctx)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.stopAll()
			return ctx.Err()
		case <-r.wake:
			r.reconcile(ctx)
		case <-ticker.C:
			if mod := provider.ModTime(r.configPath); !mod.Equal(lastMod) {
				lastMod = mod
				r.logger.Info("provider config changed, reconciling", "path", r.configPath)
			}
			r.reconcile(ctx)
		}
	}
}

// waitForEndpoints idles until at least one enabled endpoint exists,
// so a fresh install does not spin through launch failures.
func (r *Reconciler) waitForEndpoints(ctx context.Context) {
	for {
		eps, err := r.store.ListEnabled(ctx)
		if err != nil {
			r.logger.Error("failed to list endpoints", "error", err)
		} else if len(eps) > 0 {
			return
		} else {
			r.logger.Info("no enabled endpoints configured, waiting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

// reconcile runs one serialized pass: compute the desired bridge set
// from the store and config file, stop extras, start missing ones.
func (r *Reconciler) reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	eps, err := r.store.ListEnabled(ctx)
	if err != nil {
		r.logger.Error("reconcile: list endpoints", "error", err)
		return
	}
	specs, err := provider.Load(r.configPath)
	if err != nil {
		r.logger.Error("reconcile: load provider config", "error", err)
		return
	}
	enabledProviders := provider.Enabled(specs)

	desired := make(map[bridgeKey]endpoint.Endpoint)
	for _, ep := range eps {
		for _, name := range enabledProviders {
			desired[bridgeKey{Endpoint: ep.Name, Provider: name}] = ep
		}
	}

	r.mu.Lock()
	// Stop bridges that are no longer desired or whose endpoint URL
	// changed (UPDATE semantics: drop and respawn).
	for key, rb := range r.running {
		ep, keep := desired[key]
		if keep && ep.URL == rb.epURL {
			continue
		}
		delete(r.running, key)
		r.mu.Unlock()
		r.stopBridge(key, rb)
		r.mu.Lock()
	}

	// Start what's missing.
	for key, ep := range desired {
		if _, ok := r.running[key]; ok {
			continue
		}
		spec := specs[key.Provider]
		r.running[key] = r.startBridge(ctx, key, ep, spec)
	}
	r.mu.Unlock()

	r.cleanupCatalogs(ctx, specs)
}

// startBridge launches one supervised bridge goroutine.
func (r *Reconciler) startBridge(ctx context.Context, key bridgeKey, ep endpoint.Endpoint, spec provider.Spec) *runningBridge {
	bridgeCtx, cancel := context.WithCancel(ctx)
	rb := &runningBridge{
		cancel: cancel,
		done:   make(chan struct{}),
		epURL:  ep.URL,
	}

	r.logger.Info("starting bridge", "bridge", key.String(), "url", ep.URL)
	runner := r.factory(ep, spec)
	go func() {
		defer close(rb.done)
		if err := runner.Run(bridgeCtx); err != nil && bridgeCtx.Err() == nil {
			r.logger.Error("bridge stopped", "bridge", key.String(), "error", err)
		}
	}()
	return rb
}

// stopBridge cancels a bridge and waits briefly for its teardown. A
// bridge stuck in provider termination keeps shutting down in the
// background; the slot is surrendered so a replacement can start.
func (r *Reconciler) stopBridge(key bridgeKey, rb *runningBridge) {
	r.logger.Info("stopping bridge", "bridge", key.String())
	rb.cancel()
	select {
	case <-rb.done:
	case <-time.After(r.cancelShield):
		r.logger.Warn("bridge slow to stop, not waiting", "bridge", key.String())
	}
}

// stopAll tears down every bridge, used on shutdown.
func (r *Reconciler) stopAll() {
	r.mu.Lock()
	running := r.running
	r.running = make(map[bridgeKey]*runningBridge)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for key, rb := range running {
		wg.Add(1)
		go func(key bridgeKey, rb *runningBridge) {
			defer wg.Done()
			r.stopBridge(key, rb)
		}(key, rb)
	}
	wg.Wait()
}

// cleanupCatalogs drops cached tool catalogs for providers that are no
// longer enabled, so the admin API stops advertising their tools.
func (r *Reconciler) cleanupCatalogs(ctx context.Context, specs map[string]provider.Spec) {
	if r.filter == nil {
		return
	}
	catalogs, err := r.filter.catalogs.All(ctx)
	if err != nil {
		r.logger.Warn("cleanup: read tool catalogs", "error", err)
		return
	}
	for name := range catalogs {
		spec, ok := specs[name]
		if ok && !spec.Disabled {
			continue
		}
		if err := r.filter.InvalidateCatalog(ctx, name); err != nil {
			r.logger.Warn("cleanup: invalidate catalog", "provider", name, "error", err)
		} else {
			r.logger.Info("dropped stale tool catalog", "provider", name)
		}
	}
}

// RunningBridges returns the keys of currently supervised bridges,
// mainly for logging and tests.
func (r *Reconciler) RunningBridges() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.running))
	for key := range r.running {
		keys = append(keys, key.String())
	}
	return keys
}
