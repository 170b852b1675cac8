// Package adapter defines how peer transports plug into the worker.
//
// An adapter accepts peer sessions over some transport, binds each opened
// channel to a fresh worker.Engine built from the shared dependencies, and
// feeds the channel's frames to a protocol handler. Adapters are started and
// stopped by pkg/server.
package adapter

import (
	"context"

	"github.com/marmos91/fsbridge/pkg/worker"
)

// Adapter is a peer transport.
type Adapter interface {
	// Serve accepts peers and blocks until ctx is cancelled or an
	// unrecoverable error occurs.
	//
	// When ctx is cancelled, Serve stops accepting peers, closes the open
	// sessions (aborting their uploads) and returns nil or context.Canceled.
	// Returning before cancellation is treated as fatal by the server.
	Serve(ctx context.Context) error

	// SetDeps injects the dependencies shared by every peer session: the
	// mount registry, the upload cache and the annotation adapter.
	//
	// Called exactly once, before Serve.
	SetDeps(deps worker.Deps)

	// Stop initiates graceful shutdown.
	//
	// Stop is idempotent and safe to call concurrently with Serve. When ctx
	// expires, remaining sessions are closed forcibly and an error is
	// returned.
	Stop(ctx context.Context) error

	// Protocol returns the transport name used in logs and metrics.
	Protocol() string

	// Port returns the signaling port, or 0 before Serve binds it.
	Port() int
}
