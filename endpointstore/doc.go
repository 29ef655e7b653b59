// Package endpointstore persists the set of known LwM2M endpoints in a
// NATS JetStream KV bucket.
//
// Records are folded from register and update events: first-seen survives
// re-registration, last-seen and lifetime track the most recent event.
// Writers go through compare-and-swap so several gateway instances can
// share one bucket. The CLI reads the bucket for endpoint selection.
package endpointstore
