// Package worker provides a generic, bounded worker pool for
// concurrent task processing.
//
// # Overview
//
// Pool[T] runs a fixed number of workers over a bounded queue. Submit
// never blocks: when the queue is full it returns ErrQueueFull and the
// caller decides whether to drop or back off. The gateway dispatches
// inbound uplink messages through a pool; the CLI fans batch commands
// out over one.
//
// # Basic Usage
//
//	pool := worker.NewPool(4, 1024, func(ctx context.Context, msg inbound) error {
//	    return dispatch(ctx, msg)
//	})
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(msg); err != nil {
//	    // queue full, drop and count
//	}
//
// With Prometheus metrics:
//
//	pool := worker.NewPool(4, 1024, process,
//	    worker.WithMetricsRegistry[inbound](registry, "emqxlwm2m_gateway_pool"))
//
// # Shutdown
//
// Stop closes the queue, lets workers drain the remaining items and
// waits up to the timeout; ErrStopTimeout reports workers that are
// stuck in the processor.
package worker
