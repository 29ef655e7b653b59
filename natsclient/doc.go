// Package natsclient provides a resilient NATS client with automatic
// reconnection, circuit breaker protection, and JetStream KV access.
//
// # Overview
//
// The Client wraps a nats.Conn with connection lifecycle management:
// exponential backoff on reconnect, a circuit breaker that fails fast
// while the server is unreachable, and health reporting for
// supervision. The gateway publishes downlink commands and subscribes
// to uplink subjects through it; the endpoint store reaches JetStream
// KV through it.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("emqxlwm2m"),
//	    natsclient.WithMaxReconnects(-1),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "lwm2m.urn:dev:42.dn", payload)
//
// Subjects with per-message handlers:
//
//	sub, err := client.SubscribeSubject(ctx, "lwm2m.*.up.>",
//	    func(ctx context.Context, subject string, data []byte) {
//	        // dispatch uplink
//	    })
//
// # JetStream Key-Value
//
// KVStore wraps a jetstream.KeyValue bucket with operation timeouts
// and CAS updates:
//
//	store := client.NewKVStore(bucket)
//	err = store.UpdateWithRetry(ctx, key, func(old []byte) ([]byte, error) {
//	    // fold the new event into the stored record
//	})
//
// Use IsKVNotFoundError and IsKVConflictError to classify failures.
//
// # Circuit Breaker
//
// Publish and Subscribe fail fast with ErrCircuitOpen after repeated
// connection failures; the breaker half-opens on a timer and closes
// again after a successful operation.
package natsclient
