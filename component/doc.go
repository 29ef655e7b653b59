// Package component defines the lifecycle contract shared by the
// long-running pieces of this module (the gateway, the endpoint store)
// and a small structured logger that can mirror log entries onto NATS
// for remote tailing.
//
// Lifecycle follows one pattern:
//
//	Initialize() error               // validate and allocate, no I/O loops
//	Start(ctx context.Context) error // begin work, ctx bounds the run
//	Stop(timeout time.Duration) error
//
// Initialize must be cheap and side-effect free so callers can validate a
// whole assembly before starting any part of it. Start is idempotent.
// Stop returns once the component's goroutines have drained or the
// timeout elapses, whichever comes first.
package component
