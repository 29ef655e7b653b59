// Package buffer provides thread-safe circular buffers with
// configurable overflow policies, designed for decoupling producers
// from consumers under bursty load.
//
// # Overflow Policies
//
// When capacity is reached a buffer either drops the oldest entry
// (DropOldest), rejects the new one (DropNewest), or blocks the
// writer (Block). Observation notification sinks use DropOldest so a
// chatty device can never wedge the dispatcher.
//
// # Basic Usage
//
//	buf, err := buffer.NewCircularBuffer[*lwm2m.Notification](64,
//	    buffer.WithOverflowPolicy[*lwm2m.Notification](buffer.DropOldest),
//	)
//	buf.Write(n)
//	item, ok := buf.Read()
//
// With Prometheus metrics:
//
//	buf, err := buffer.NewCircularBuffer[[]byte](1024,
//	    buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//	    buffer.WithMetrics[[]byte](registry, "uplink_queue"),
//	)
//
// Statistics (writes, reads, overflows, high-water mark) are tracked
// per buffer and exposed through Stats regardless of metrics wiring.
//
// All operations are safe for concurrent use.
package buffer
