// Package adapter defines the contract between the server runner and the
// network front ends it manages (the HTTP API, the metrics endpoint).
package adapter

import (
	"context"
)

// Adapter is a network server managed by server.Runner.
//
// Lifecycle:
//  1. Creation: the adapter is built from its configuration
//  2. Startup: Serve() listens and blocks until the context is cancelled
//  3. Shutdown: Stop() shuts down gracefully within the context deadline
//
// Thread safety:
// Stop() may be called concurrently with Serve() and more than once.
type Adapter interface {
	// Serve starts the server and blocks until ctx is cancelled or the
	// listener fails. It returns nil after a graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Safe to call multiple times.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable name for logging ("API", "Metrics").
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
