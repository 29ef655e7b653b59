package lwm2m

import (
	"context"
	"fmt"
	"time"

	"github.com/Penlect/emqxlwm2m/errors"
)

// DefaultTimeout bounds how long a command waits for its response when no
// other timeout is configured.
const DefaultTimeout = 60 * time.Second

// Commander issues downlink commands and routes their correlated results.
// It is implemented by the correlation engine.
type Commander interface {
	// Send issues req to the named endpoint and blocks until the matching
	// response arrives, the timeout fires, or ctx is cancelled.
	Send(ctx context.Context, endpoint string, req Request, timeout time.Duration) (*Response, error)

	// Observe opens an observation and returns the acknowledgment response
	// together with the stream of subsequent notifications.
	Observe(ctx context.Context, endpoint string, path Path, timeout time.Duration) (*Response, Observation, error)

	// CancelObserve closes the observation on path after the device
	// acknowledges the cancellation.
	CancelObserve(ctx context.Context, endpoint string, path Path, timeout time.Duration) (*Response, error)

	// Lifecycle returns a stream of register/update events for the named
	// endpoint. The returned stop function releases the stream.
	Lifecycle(endpoint string, types ...MessageType) (<-chan *Lifecycle, func())
}

// Observation is a long-lived subscription to changes on a resource path.
type Observation interface {
	// Path returns the observed resource path.
	Path() Path
	// Notifications yields the delivered notifications in strictly
	// increasing sequence-number order. The channel closes when the
	// observation is closed or the endpoint deregisters.
	Notifications() <-chan *Notification
	// Close tears down local delivery. It does not notify the device; use
	// Endpoint.CancelObserve for a device-acknowledged cancel.
	Close()
}

// ErrorResponse is returned when the device answers a command with a
// non-success code. It is the command's result, distinct from a timeout.
type ErrorResponse struct {
	Response *Response
}

// Error implements the error interface
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Response.MsgType, e.Response.ReqPath, e.Response.Code)
}

// Is matches ErrNotFound for 4.04 responses so callers can use errors.Is.
func (e *ErrorResponse) Is(target error) bool {
	return target == errors.ErrNotFound && e.Response.Code == CodeNotFound
}

// Endpoint is the operator-facing handle for one remote device.
type Endpoint struct {
	name      string
	commander Commander
	timeout   time.Duration
}

// NewEndpoint binds an endpoint name to a commander. A zero timeout means
// DefaultTimeout.
func NewEndpoint(name string, commander Commander, timeout time.Duration) *Endpoint {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Endpoint{name: name, commander: commander, timeout: timeout}
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string { return e.name }

// String returns the endpoint name.
func (e *Endpoint) String() string { return e.name }

// WithTimeout returns a copy of the endpoint using the given per-command
// timeout.
func (e *Endpoint) WithTimeout(timeout time.Duration) *Endpoint {
	cp := *e
	if timeout > 0 {
		cp.timeout = timeout
	}
	return &cp
}

func (e *Endpoint) send(ctx context.Context, req Request) (*Response, error) {
	resp, err := e.commander.Send(ctx, e.name, req, e.timeout)
	if err != nil {
		return nil, err
	}
	if !resp.Code.Success() {
		return nil, &ErrorResponse{Response: resp}
	}
	return resp, nil
}

// Discover lists the resources below path with their attached attributes.
func (e *Endpoint) Discover(ctx context.Context, path Path) (map[Path]map[string]any, error) {
	resp, err := e.send(ctx, DiscoverRequest{Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Links(), nil
}

// Read returns the values below path, keyed by their full paths.
func (e *Endpoint) Read(ctx context.Context, path Path) (map[Path]any, error) {
	resp, err := e.send(ctx, ReadRequest{Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// Write sets a single resource value.
func (e *Endpoint) Write(ctx context.Context, path Path, value any) error {
	_, err := e.send(ctx, WriteRequest{Values: map[Path]any{path: value}})
	return err
}

// WriteBatch sets several resource values under one object instance.
func (e *Endpoint) WriteBatch(ctx context.Context, values map[Path]any) error {
	_, err := e.send(ctx, WriteRequest{Values: values})
	return err
}

// WriteAttr attaches notification attributes to path.
func (e *Endpoint) WriteAttr(ctx context.Context, path Path, attrs Attributes) error {
	_, err := e.send(ctx, WriteAttrRequest{Path: path, Attributes: attrs})
	return err
}

// Execute invokes the executable resource at path.
func (e *Endpoint) Execute(ctx context.Context, path Path, args string) error {
	_, err := e.send(ctx, ExecuteRequest{Path: path, Args: args})
	return err
}

// Create creates an object instance. Values are keyed relative to basePath.
func (e *Endpoint) Create(ctx context.Context, basePath Path, values map[Path]any) error {
	_, err := e.send(ctx, CreateRequest{BasePath: basePath, Values: values})
	return err
}

// Delete removes the object instance at path.
func (e *Endpoint) Delete(ctx context.Context, path Path) error {
	_, err := e.send(ctx, DeleteRequest{Path: path})
	return err
}

// Observe opens an observation on path. It returns the first reported
// values and the notification stream for subsequent changes.
func (e *Endpoint) Observe(ctx context.Context, path Path) (map[Path]any, Observation, error) {
	resp, obs, err := e.commander.Observe(ctx, e.name, path, e.timeout)
	if err != nil {
		return nil, nil, err
	}
	if !resp.Code.Success() {
		return nil, nil, &ErrorResponse{Response: resp}
	}
	return resp.Content, obs, nil
}

// CancelObserve cancels the observation on path with device acknowledgment.
func (e *Endpoint) CancelObserve(ctx context.Context, path Path) error {
	resp, err := e.commander.CancelObserve(ctx, e.name, path, e.timeout)
	if err != nil {
		return err
	}
	if !resp.Code.Success() {
		return &ErrorResponse{Response: resp}
	}
	return nil
}

// Registrations yields the endpoint's register events.
func (e *Endpoint) Registrations() (<-chan *Lifecycle, func()) {
	return e.commander.Lifecycle(e.name, TypeRegister)
}

// Updates yields the endpoint's update events.
func (e *Endpoint) Updates() (<-chan *Lifecycle, func()) {
	return e.commander.Lifecycle(e.name, TypeUpdate)
}
