// Package engine implements the request/response correlation core.
//
// # Overview
//
// Commands travel to devices as JSON envelopes over pub/sub topics and
// results come back on separate topics with no ordering or delivery
// guarantees. The engine gives every outgoing command an identity, matches
// each inbound envelope to the pending command or active observation it
// answers, times out commands that never get an answer, and keeps the last
// known lifecycle state per endpoint.
//
// # Components
//
//   - Allocator: bounded, wrap-around request identifier allocation that
//     never reuses an identifier while its request is outstanding.
//   - PendingTable: in-flight commands with deadlines and waiting callers;
//     supports a secondary match by resource path for transports that drop
//     the identifier on some response types.
//   - Observations: one active observation per endpoint/path; filters
//     stale and duplicate notifications by sequence number and delivers
//     through a per-observation buffer so a slow consumer never stalls
//     dispatch.
//   - Tracker: last register/update state per endpoint, replaced wholesale,
//     with staleness derived at read time.
//   - Engine: the dispatcher tying these together. HandleUplink classifies
//     every inbound envelope into exactly one of lifecycle update,
//     observation delivery, pending completion, or unmatched discard.
//
// # Classification order
//
// On an inbound envelope the dispatcher tries, in order: register/update
// events (lifecycle tracker), notify (observation delivery, completing a
// pending observe command first when the notification carries its request
// identifier), correlated responses (pending table), and finally discard
// with a diagnostic. Unmatched traffic is normal after cancellations and
// timeouts and never surfaces as an error.
package engine
