// Package lwm2m defines the LwM2M data model and the JSON wire codec used
// by the EMQx LwM2M gateway protocol.
//
// # Overview
//
// The package has three layers:
//
//   - Addressing and attributes: Path (slash-delimited object/instance/
//     resource addresses), Attributes (pmin/pmax/lt/st/gt write-attribute
//     sets), and Code (CoAP-style two-part response codes).
//
//   - Typed messages: one request struct per downlink operation (read,
//     write, write-attr, execute, create, delete, discover, observe,
//     cancel-observe), a Response struct for correlated uplink answers, and
//     the unsolicited uplink events Notification (observation traffic) and
//     Lifecycle (register/update).
//
//   - Codec: EncodeRequest serializes a request with its allocated request
//     identifier into the wire JSON envelope; DecodeUplink parses an inbound
//     payload and classifies it structurally (presence of reqID and seqNum,
//     msgType value) into exactly one of Response, Notification, or
//     Lifecycle. Decoding is total and side-effect-free.
//
// The Endpoint type is the operator-facing API: it binds an endpoint name
// to a Commander (implemented by the correlation engine) and exposes the
// device-management operations with typed results.
package lwm2m
