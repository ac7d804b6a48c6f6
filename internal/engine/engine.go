package engine

import "context"

// Engine advances steps through their lifecycle: evaluating freshly
// submitted steps against the forecast and firing due wake-ups for
// parked ones.
type Engine interface {
	// Start begins the engine loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the engine.
	Stop() error

	// Tick runs a single iteration. Used for testing.
	Tick(ctx context.Context) error
}
