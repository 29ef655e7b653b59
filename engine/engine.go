package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/metric"
)

// DefaultTickInterval is the pending-request expiry scan period. It is
// kept well below the default command timeout so worst-case overshoot is
// small.
const DefaultTickInterval = 250 * time.Millisecond

// PublishFunc hands a serialized command envelope to the transport for
// delivery to the named endpoint. Implementations must be safe for
// concurrent use.
type PublishFunc func(endpoint string, payload []byte) error

// Config holds the engine tuning knobs.
type Config struct {
	// DefaultTimeout bounds commands issued without an explicit timeout.
	DefaultTimeout time.Duration
	// TickInterval is the expiry scan period.
	TickInterval time.Duration
	// ReqIDMin and ReqIDMax bound the request identifier range.
	ReqIDMin int
	ReqIDMax int
	// ObservationBuffer is the per-observation notification buffer size.
	ObservationBuffer int
}

// Deps holds the engine's dependencies.
type Deps struct {
	Publish         PublishFunc
	Config          Config
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// lifecycleSub is one subscriber to register/update events. An empty
// endpoint matches every endpoint.
type lifecycleSub struct {
	endpoint string
	types    map[lwm2m.MessageType]bool
	ch       chan *lwm2m.Lifecycle
	once     sync.Once
}

func (s *lifecycleSub) stop() {
	s.once.Do(func() { close(s.ch) })
}

// Engine is the correlation dispatcher. It owns the pending-request table
// and the observation registry exclusively; callers interact through
// opaque handles only.
type Engine struct {
	publish        PublishFunc
	defaultTimeout time.Duration
	tickInterval   time.Duration

	alloc        *Allocator
	pending      *PendingTable
	observations *Observations
	tracker      *Tracker

	logger  *slog.Logger
	metrics *Metrics

	subsMu    sync.Mutex
	subs      map[int]*lifecycleSub
	nextSubID int

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// New creates an engine. Deps.Publish is required.
func New(deps Deps) *Engine {
	cfg := deps.Config
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = lwm2m.DefaultTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		publish:        deps.Publish,
		defaultTimeout: cfg.DefaultTimeout,
		tickInterval:   cfg.TickInterval,
		alloc:          NewAllocator(cfg.ReqIDMin, cfg.ReqIDMax),
		pending:        NewPendingTable(),
		observations:   NewObservations(cfg.ObservationBuffer, logger),
		tracker:        NewTracker(),
		logger:         logger,
		metrics:        newMetrics(deps.MetricsRegistry),
		subs:           make(map[int]*lifecycleSub),
		done:           make(chan struct{}),
	}
}

// Tracker exposes the endpoint lifecycle records.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Endpoint returns an operator handle bound to this engine.
func (e *Engine) Endpoint(name string, timeout time.Duration) *lwm2m.Endpoint {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	return lwm2m.NewEndpoint(name, e, timeout)
}

// Start launches the expiry tick.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	if e.started {
		return errors.ErrAlreadyStarted
	}
	e.started = true

	e.wg.Add(1)
	go e.expiryLoop(ctx)
	return nil
}

// Stop cancels all outstanding commands, closes every observation and
// lifecycle stream, and waits for internal goroutines up to timeout.
func (e *Engine) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	if !e.started {
		e.lifecycleMu.Unlock()
		return errors.ErrNotStarted
	}
	if e.stopped {
		e.lifecycleMu.Unlock()
		return nil
	}
	e.stopped = true
	e.lifecycleMu.Unlock()

	close(e.done)

	for _, id := range e.pending.CancelAll() {
		e.alloc.Release(id)
	}
	for _, rec := range e.tracker.Snapshot() {
		e.observations.CloseEndpoint(rec.Endpoint)
	}
	e.subsMu.Lock()
	for _, sub := range e.subs {
		sub.stop()
	}
	e.subs = make(map[int]*lifecycleSub)
	e.subsMu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Engine", "Stop", "wait for goroutines")
	}
}

func (e *Engine) expiryLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			expired := e.pending.Expire(now)
			for _, id := range expired {
				e.alloc.Release(id)
			}
			if len(expired) > 0 {
				e.logger.Debug("Commands timed out", "count", len(expired))
				if e.metrics != nil {
					e.metrics.commandsTimedOut.Add(float64(len(expired)))
				}
			}
			e.updateGauges()
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.pendingRequests.Set(float64(e.pending.Len()))
	e.metrics.activeObservations.Set(float64(e.observations.Len()))
}

// Send implements lwm2m.Commander. The pending entry is registered before
// the outbound publish so a fast reply can never arrive unmatched.
func (e *Engine) Send(ctx context.Context, endpoint string, req lwm2m.Request, timeout time.Duration) (*lwm2m.Response, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	id, err := e.alloc.Allocate()
	if err != nil {
		return nil, err
	}

	payload, err := lwm2m.EncodeRequest(req, id)
	if err != nil {
		e.alloc.Release(id)
		return nil, err
	}

	path := lwm2m.NewPath(string(req.TargetPath()))
	pr := e.pending.Register(id, endpoint, req.Type(), path, time.Now().Add(timeout))
	if e.metrics != nil {
		e.metrics.commandsIssued.WithLabelValues(string(req.Type())).Inc()
	}
	e.updateGauges()

	e.logger.Debug("Command issued",
		"endpoint", endpoint, "msg_type", req.Type(), "path", path, "req_id", id)

	if err := e.publish(endpoint, payload); err != nil {
		if e.pending.Cancel(id) {
			e.alloc.Release(id)
		}
		return nil, errors.WrapTransient(err, "Engine", "Send", "publish command")
	}

	select {
	case out := <-pr.done:
		if out.err != nil {
			return nil, out.err
		}
		if e.metrics != nil {
			e.metrics.commandsCompleted.Inc()
		}
		return out.resp, nil
	case <-ctx.Done():
		if e.pending.Cancel(id) {
			e.alloc.Release(id)
			if e.metrics != nil {
				e.metrics.commandsCancelled.Inc()
			}
		}
		return nil, errors.WrapTransient(ctx.Err(), "Engine", "Send", "wait for response")
	}
}

// Observe implements lwm2m.Commander. The observation is registered
// locally first, so a duplicate observe on the same path is rejected
// before any transport interaction.
func (e *Engine) Observe(ctx context.Context, endpoint string, path lwm2m.Path, timeout time.Duration) (*lwm2m.Response, lwm2m.Observation, error) {
	obs, err := e.observations.Open(endpoint, path)
	if err != nil {
		return nil, nil, err
	}
	e.updateGauges()

	resp, err := e.Send(ctx, endpoint, lwm2m.ObserveRequest{Path: path}, timeout)
	if err != nil {
		obs.Close()
		e.updateGauges()
		return nil, nil, err
	}
	if !resp.Code.Success() {
		obs.Close()
		e.updateGauges()
		return resp, nil, nil
	}
	return resp, obs, nil
}

// CancelObserve implements lwm2m.Commander. The local observation is
// closed only after the device acknowledges the cancellation.
func (e *Engine) CancelObserve(ctx context.Context, endpoint string, path lwm2m.Path, timeout time.Duration) (*lwm2m.Response, error) {
	resp, err := e.Send(ctx, endpoint, lwm2m.CancelObserveRequest{Path: path}, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Code.Success() {
		e.observations.Close(endpoint, path)
		e.updateGauges()
	}
	return resp, nil
}

// Lifecycle implements lwm2m.Commander. An empty endpoint subscribes to
// every endpoint's events; no types means both register and update.
func (e *Engine) Lifecycle(endpoint string, types ...lwm2m.MessageType) (<-chan *lwm2m.Lifecycle, func()) {
	if len(types) == 0 {
		types = []lwm2m.MessageType{lwm2m.TypeRegister, lwm2m.TypeUpdate}
	}
	sub := &lifecycleSub{
		endpoint: endpoint,
		types:    make(map[lwm2m.MessageType]bool, len(types)),
		ch:       make(chan *lwm2m.Lifecycle, 16),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	e.subsMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subs[id] = sub
	e.subsMu.Unlock()

	stop := func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
		sub.stop()
	}
	return sub.ch, stop
}

// HandleUplink consumes one raw inbound payload from the transport,
// classifies it, and routes it to exactly one of lifecycle update,
// observation delivery, pending completion, or unmatched discard. It
// never returns an error: malformed and unmatched traffic is logged and
// counted, and can't affect unrelated in-flight operations.
func (e *Engine) HandleUplink(endpoint string, payload []byte) {
	up, err := lwm2m.DecodeUplink(endpoint, payload)
	if err != nil {
		e.logger.Warn("Discarding malformed envelope", "endpoint", endpoint, "error", err)
		if e.metrics != nil {
			e.metrics.malformedEnvelopes.Inc()
		}
		return
	}

	switch m := up.(type) {
	case *lwm2m.Lifecycle:
		e.handleLifecycle(m)
	case *lwm2m.Notification:
		e.handleNotification(m)
	case *lwm2m.Response:
		e.handleResponse(m)
	}
}

func (e *Engine) handleLifecycle(lc *lwm2m.Lifecycle) {
	if lc.MsgType == lwm2m.TypeRegister {
		// A fresh registration resets the device's observe state.
		if n := e.observations.CloseEndpoint(lc.Endpoint); n > 0 {
			e.logger.Info("Closed observations on re-registration",
				"endpoint", lc.Endpoint, "count", n)
		}
	}
	e.tracker.Apply(lc)
	e.logger.Debug("Lifecycle event",
		"endpoint", lc.Endpoint, "msg_type", lc.MsgType, "lifetime", lc.Lifetime)

	e.subsMu.Lock()
	for _, sub := range e.subs {
		if sub.endpoint != "" && sub.endpoint != lc.Endpoint {
			continue
		}
		if !sub.types[lc.MsgType] {
			continue
		}
		select {
		case sub.ch <- lc:
		default:
			// Subscriber not keeping up; lifecycle events are snapshots,
			// the tracker holds the latest state anyway.
		}
	}
	e.subsMu.Unlock()
	e.updateGauges()
}

func (e *Engine) handleNotification(n *lwm2m.Notification) {
	// The first notification doubles as the observe acknowledgment.
	if n.ReqID != lwm2m.NoReqID {
		ack := &lwm2m.Response{
			Endpoint:  n.Endpoint,
			MsgType:   lwm2m.TypeObserve,
			ReqID:     n.ReqID,
			Code:      n.Code,
			CodeMsg:   n.Code.Name(),
			ReqPath:   n.ReqPath,
			Content:   n.Content,
			Timestamp: n.Timestamp,
		}
		if e.pending.CompleteObserve(n.ReqID, ack) {
			e.alloc.Release(n.ReqID)
		}
	}

	delivered, matched := e.observations.Deliver(n)
	switch {
	case delivered:
		if e.metrics != nil {
			e.metrics.notifyDelivered.Inc()
		}
	case matched:
		e.logger.Debug("Dropped stale notification",
			"endpoint", n.Endpoint, "path", n.ReqPath, "seq_num", n.SeqNum)
		if e.metrics != nil {
			e.metrics.notifyStale.Inc()
		}
	default:
		e.logger.Debug("Unmatched notification discarded",
			"endpoint", n.Endpoint, "path", n.ReqPath, "seq_num", n.SeqNum)
		if e.metrics != nil {
			e.metrics.unmatchedEnvelopes.Inc()
		}
	}
	e.updateGauges()
}

func (e *Engine) handleResponse(resp *lwm2m.Response) {
	id, ok := e.pending.Complete(resp)
	if !ok {
		e.logger.Debug("Unmatched response discarded",
			"endpoint", resp.Endpoint, "msg_type", resp.MsgType,
			"req_id", resp.ReqID, "path", resp.ReqPath)
		if e.metrics != nil {
			e.metrics.unmatchedEnvelopes.Inc()
		}
		return
	}
	e.alloc.Release(id)
	e.updateGauges()
}
