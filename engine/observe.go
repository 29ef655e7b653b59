package engine

import (
	"log/slog"
	"sync"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/pkg/buffer"
)

// DefaultObservationBuffer is the per-observation notification buffer
// capacity.
const DefaultObservationBuffer = 64

// Observation is one active subscription to a resource path. Delivery is
// decoupled from dispatch through a circular buffer and a drain goroutine,
// so a slow or blocked consumer only loses its own oldest notifications
// and never stalls the dispatcher.
type Observation struct {
	endpoint string
	path     lwm2m.Path

	lastSeq int // newest delivered sequence number, -1 before the first

	buf    buffer.Buffer[*lwm2m.Notification]
	wake   chan struct{}
	out    chan *lwm2m.Notification
	closed chan struct{}
	once   sync.Once

	onClose func()
}

func newObservation(endpoint string, path lwm2m.Path, size int, onClose func()) (*Observation, error) {
	if size <= 0 {
		size = DefaultObservationBuffer
	}
	buf, err := buffer.NewCircularBuffer[*lwm2m.Notification](
		size, buffer.WithOverflowPolicy[*lwm2m.Notification](buffer.DropOldest))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Observation", "newObservation", "create buffer")
	}
	obs := &Observation{
		endpoint: endpoint,
		path:     path,
		lastSeq:  -1,
		buf:      buf,
		wake:     make(chan struct{}, 1),
		out:      make(chan *lwm2m.Notification),
		closed:   make(chan struct{}),
		onClose:  onClose,
	}
	go obs.drain()
	return obs, nil
}

// Path implements lwm2m.Observation.
func (o *Observation) Path() lwm2m.Path { return o.path }

// Endpoint returns the endpoint the observation belongs to.
func (o *Observation) Endpoint() string { return o.endpoint }

// Notifications implements lwm2m.Observation.
func (o *Observation) Notifications() <-chan *lwm2m.Notification { return o.out }

// Close implements lwm2m.Observation. Safe to call more than once.
func (o *Observation) Close() {
	o.once.Do(func() {
		close(o.closed)
		if o.onClose != nil {
			o.onClose()
		}
	})
}

// enqueue hands a notification to the drain goroutine. Never blocks.
func (o *Observation) enqueue(n *lwm2m.Notification) {
	select {
	case <-o.closed:
		return
	default:
	}
	_ = o.buf.Write(n) // DropOldest policy, Write can't block
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// drain moves notifications from the buffer to the consumer channel until
// the observation closes.
func (o *Observation) drain() {
	defer close(o.out)
	defer func() { _ = o.buf.Close() }()
	for {
		for {
			n, ok := o.buf.Read()
			if !ok {
				break
			}
			select {
			case o.out <- n:
			case <-o.closed:
				return
			}
		}
		select {
		case <-o.wake:
		case <-o.closed:
			return
		}
	}
}

type observationKey struct {
	endpoint string
	path     string
}

// Observations is the registry of active observations: at most one per
// endpoint/path, guarded by a single mutex.
type Observations struct {
	mu         sync.Mutex
	active     map[observationKey]*Observation
	bufferSize int
	logger     *slog.Logger
}

// NewObservations creates an empty registry. A size of 0 means
// DefaultObservationBuffer.
func NewObservations(bufferSize int, logger *slog.Logger) *Observations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observations{
		active:     make(map[observationKey]*Observation),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Open registers a new observation. It fails with ErrAlreadyObserving when
// the endpoint/path already has an active one, before any transport
// interaction takes place.
func (r *Observations) Open(endpoint string, path lwm2m.Path) (*Observation, error) {
	key := observationKey{endpoint: endpoint, path: path.String()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[key]; exists {
		return nil, errors.WrapInvalid(
			errors.ErrAlreadyObserving, "Observations", "Open", "register "+key.path)
	}
	obs, err := newObservation(endpoint, path, r.bufferSize, func() { r.remove(key) })
	if err != nil {
		return nil, err
	}
	r.active[key] = obs
	return obs, nil
}

func (r *Observations) remove(key observationKey) {
	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()
}

// Deliver routes a notification to its observation. Stale or duplicate
// sequence numbers are dropped silently; notifications without an active
// observation are unmatched. Returns (delivered, matched).
func (r *Observations) Deliver(n *lwm2m.Notification) (bool, bool) {
	key := observationKey{endpoint: n.Endpoint, path: n.ReqPath.String()}

	r.mu.Lock()
	obs, ok := r.active[key]
	if !ok {
		r.mu.Unlock()
		return false, false
	}
	if n.SeqNum <= obs.lastSeq {
		r.mu.Unlock()
		return false, true // stale or duplicate
	}
	obs.lastSeq = n.SeqNum
	// Enqueue under the lock so concurrent delivers cannot reorder two
	// notifications that both passed the filter. enqueue never blocks
	// (DropOldest buffer), so holding the mutex here is safe.
	obs.enqueue(n)
	r.mu.Unlock()
	return true, true
}

// Close tears down the observation on endpoint/path. Subsequent
// notifications for the path become unmatched until a new Open.
func (r *Observations) Close(endpoint string, path lwm2m.Path) bool {
	key := observationKey{endpoint: endpoint, path: path.String()}
	r.mu.Lock()
	obs, ok := r.active[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	obs.Close()
	return true
}

// CloseEndpoint tears down every observation of an endpoint, used when the
// endpoint re-registers and its observe state is reset device-side.
func (r *Observations) CloseEndpoint(endpoint string) int {
	r.mu.Lock()
	var doomed []*Observation
	for key, obs := range r.active {
		if key.endpoint == endpoint {
			doomed = append(doomed, obs)
		}
	}
	r.mu.Unlock()

	for _, obs := range doomed {
		obs.Close()
	}
	return len(doomed)
}

// Len returns the number of active observations.
func (r *Observations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
