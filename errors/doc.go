// Package errors provides standardized error handling patterns for emqxlwm2m.
//
// # Overview
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). Classification lets the gateway
// and CLI make retry decisions without error string matching.
//
// It also defines the sentinel errors of the correlation engine:
//
//   - ErrTimeout: a command received no matching response within its deadline
//   - ErrCancelled: the caller abandoned the wait before a response arrived
//   - ErrIDExhausted: every request identifier in the configured range is
//     outstanding (a configuration problem, not a transient one)
//   - ErrAlreadyObserving: a second observation was opened on a path that
//     already has an active one
//   - ErrMalformedEnvelope: an inbound payload was not valid structured data
//     or carried an unrecognized message type
//
// # Quick Start
//
// Return sentinel errors for known conditions:
//
//	if deadline.Before(now) {
//	    return errors.ErrTimeout
//	}
//
// Wrap third-party errors with component context:
//
//	if err := nc.Publish(subject, payload); err != nil {
//	    return errors.WrapTransient(err, "Gateway", "Send", "publish command")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    // retry with backoff
//	}
//
// All wrapping follows the format "component.method: action failed: %w" and
// integrates with stdlib errors.Is / errors.As chains.
package errors
