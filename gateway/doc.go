// Package gateway binds the correlation engine to NATS.
//
// The EMQx LwM2M gateway mirrors each device onto a pair of topics:
// commands go down on lwm2m/{endpoint}/dn and everything the device sends
// comes up under lwm2m/{endpoint}/up/#. This package maps that scheme onto
// NATS subjects (lwm2m.{endpoint}.dn, lwm2m.{endpoint}.up.>), owns the
// subscription set, and feeds inbound payloads through a worker pool into
// the engine.
//
// Endpoint names may contain characters that are not valid in a NATS
// subject token; they are percent-escaped on the wire and restored when
// the subject is parsed back.
package gateway
