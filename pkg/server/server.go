// Package server runs the peer adapters of a worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/adapter"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// DefaultStopTimeout bounds how long Serve waits for adapters to stop.
const DefaultStopTimeout = 30 * time.Second

// Server owns the dependencies shared by all peer sessions and the adapters
// that accept those peers.
//
// Lifecycle:
//  1. New with the shared dependencies
//  2. AddAdapter for each transport
//  3. Serve blocks until the context is cancelled or an adapter fails
//
// On shutdown, adapters are stopped in reverse registration order. Closing
// the upload cache is left to the caller, after Serve returns.
//
// Thread safety:
// AddAdapter must not be called after Serve. Serve may only be called once.
type Server struct {
	deps        worker.Deps
	adapters    []adapter.Adapter
	stopTimeout time.Duration
	metrics     *metrics.Server

	mu     sync.RWMutex
	served bool
}

// New creates a Server. The mount registry, upload cache and annotation
// adapter are all required.
func New(deps worker.Deps) (*Server, error) {
	if deps.Mounts == nil {
		return nil, errors.New("mount registry is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("upload cache is required")
	}
	if deps.Labels == nil {
		return nil, errors.New("annotation adapter is required")
	}

	return &Server{
		deps:        deps,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}, nil
}

// SetStopTimeout overrides DefaultStopTimeout. Non-positive values are
// ignored.
func (s *Server) SetStopTimeout(d time.Duration) {
	if d > 0 {
		s.stopTimeout = d
	}
}

// SetMetricsServer makes Serve also run m for its whole lifetime. A failing
// metrics server is logged and does not stop the adapters.
func (s *Server) SetMetricsServer(m *metrics.Server) {
	s.metrics = m
}

// AddAdapter registers a and injects the shared dependencies into it.
//
// Returns an error if an adapter for the same protocol or port is already
// registered, or if Serve has been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetDeps(s.deps)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]adapter.Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}

// Serve starts every adapter and blocks until ctx is cancelled or one of
// them fails, then stops them all.
//
// Returns ctx.Err() on cancellation, or the failing adapter's error.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server already served")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting worker with %d adapter(s) and %d mount(s)", len(adapters), s.deps.Mounts.Len())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	if s.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.metrics.Start(runCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			err := a.Serve(runCtx)
			switch {
			case err == nil && runCtx.Err() != nil, errors.Is(err, context.Canceled):
				logger.Debug("%s adapter stopped gracefully", protocol)
			case err == nil:
				errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
			case runCtx.Err() == nil:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			default:
				logger.Debug("%s adapter returned during shutdown: %v", protocol, err)
			}
		}(a)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case failed := <-errChan:
		logger.Error("Adapter %s failed: %v, stopping all adapters", failed.protocol, failed.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", failed.protocol, failed.err)
	}

	cancelRun()
	s.stopAll(adapters)
	wg.Wait()

	logger.Info("Worker stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order under one shared
// timeout.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}
