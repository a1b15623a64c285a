// Package server runs the network adapters of a DittoVFS instance over a
// shared mount registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/adapter"
	"github.com/marmos91/dittovfs/pkg/mount"
)

// DefaultStopTimeout bounds the graceful shutdown of all adapters.
const DefaultStopTimeout = 30 * time.Second

// Runner manages the lifecycle of the adapters serving one mount registry.
//
// Lifecycle:
//  1. Creation: New() with the mount manager
//  2. Registration: AddAdapter() for each front end
//  3. Startup: Serve() warms up the mounts and starts all adapters
//  4. Shutdown: context cancellation, or the failure of any adapter, stops
//     every adapter in reverse registration order
//
// Serve may only be called once per Runner.
type Runner struct {
	manager     *mount.Manager
	stopTimeout time.Duration

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithStopTimeout sets the shutdown deadline (default DefaultStopTimeout).
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// New creates a Runner over manager.
//
// Panics if manager is nil (programmer error).
func New(manager *mount.Manager, opts ...Option) *Runner {
	if manager == nil {
		panic("mount manager cannot be nil")
	}
	r := &Runner{
		manager:     manager,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddAdapter registers a. Protocol names and ports must be unique.
func (r *Runner) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()
	for _, existing := range r.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	r.adapters = append(r.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Adapters returns a snapshot of the registered adapters.
func (r *Runner) Adapters() []adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]adapter.Adapter(nil), r.adapters...)
}

// Serve warms up every mount, then runs all adapters until ctx is cancelled
// or one of them fails.
//
// A mount whose backend cannot be created is logged by WarmUp and does not
// prevent startup; it is retried on first use.
//
// Returns ctx.Err() after a requested shutdown, or the error of the first
// adapter that failed.
func (r *Runner) Serve(ctx context.Context) error {
	r.mu.Lock()
	if r.served {
		r.mu.Unlock()
		return errors.New("Serve() has already been called on this runner")
	}
	r.served = true
	if len(r.adapters) == 0 {
		r.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := append([]adapter.Adapter(nil), r.adapters...)
	r.mu.Unlock()

	if err := r.manager.WarmUp(ctx); err != nil {
		logger.Warn("Mount warm-up incomplete: %v", err)
	}

	logger.Info("Starting DittoVFS with %d adapter(s) over %d mount(s)", len(adapters), r.manager.Len())

	// adapters stop when serveCtx is cancelled, whichever side triggers it
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			if err := a.Serve(serveCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- adapterError{protocol: a.Protocol(), err: err}
				return
			}
			logger.Debug("%s adapter stopped", a.Protocol())
		}(a)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()
	case failed := <-errChan:
		logger.Error("%s adapter failed: %v - initiating shutdown of all adapters", failed.protocol, failed.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", failed.protocol, failed.err)
	}

	cancel()
	r.stopAll(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()
	logger.Info("DittoVFS stopped")

	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order within the stop
// timeout.
func (r *Runner) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}
