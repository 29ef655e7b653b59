// Package emqxlwm2m manages LwM2M devices attached through an EMQx
// LwM2M bridge, with the broker traffic carried over NATS subjects.
//
// # Architecture
//
// The module is organized in three layers:
//
//   - lwm2m: the wire vocabulary. Paths, attributes, response codes,
//     the JSON command envelope codec, and the Endpoint handle that
//     callers issue commands through.
//   - engine: the correlation core. Request identifier allocation, the
//     pending-request table with timeouts, the observation registry
//     with sequence-number filtering, and the endpoint lifecycle
//     tracker. The engine is transport-agnostic; it publishes through
//     an injected function and receives raw uplink payloads.
//   - gateway: the NATS transport. Maps per-endpoint MQTT-style topics
//     onto NATS subjects, runs the inbound dispatch worker pool, and
//     owns an embedded engine.
//
// Supporting packages: endpointstore persists registrations in a
// JetStream KV bucket, objectdef parses OMA object definition XML for
// display, history keeps CLI selection caches, and config loads the
// YAML configuration. The cmd/emqxlwm2m binary ties everything into a
// command line tool with one-shot commands and an interactive shell.
//
// # Usage
//
//	gw, err := gateway.New(gateway.Deps{
//		Config:     gateway.DefaultConfig(),
//		NATSClient: client,
//	})
//	...
//	ep, err := gw.Endpoint(ctx, "urn:imei:868998030113344", 10*time.Second)
//	value, err := ep.Read(ctx, lwm2m.NewPath("/3/0/0"))
package emqxlwm2m
