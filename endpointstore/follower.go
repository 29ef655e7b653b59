package endpointstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Penlect/emqxlwm2m/component"
	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

// EventSource yields lifecycle event streams. The correlation engine
// satisfies this; an empty endpoint means all endpoints.
type EventSource interface {
	Lifecycle(endpoint string, types ...lwm2m.MessageType) (<-chan *lwm2m.Lifecycle, func())
}

// FollowerDeps holds the follower's dependencies.
type FollowerDeps struct {
	Store  *Store
	Source EventSource
	Logger *slog.Logger
}

// Follower consumes register and update events and persists them into the
// store. It implements component.LifecycleComponent.
type Follower struct {
	store  *Store
	source EventSource
	logger *slog.Logger

	events <-chan *lwm2m.Lifecycle
	stop   func()
	done   chan struct{}

	running    atomic.Bool
	startTime  time.Time
	errorCount atomic.Int64
}

var _ component.LifecycleComponent = (*Follower)(nil)

// NewFollower creates a follower.
func NewFollower(deps FollowerDeps) *Follower {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "endpoint-follower")
	}
	return &Follower{
		store:     deps.Store,
		source:    deps.Source,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Meta returns the component metadata.
func (f *Follower) Meta() component.Metadata {
	return component.Metadata{
		Name:        "endpoint-follower",
		Type:        "storage",
		Description: "Persists endpoint lifecycle events into the KV bucket",
		Version:     "1.0.0",
	}
}

// Health returns the current health status.
func (f *Follower) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    f.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(f.errorCount.Load()),
		Uptime:     time.Since(f.startTime),
	}
}

// Initialize validates dependencies.
func (f *Follower) Initialize() error {
	if f.store == nil {
		return errors.WrapInvalid(fmt.Errorf("nil store"),
			"Follower", "Initialize", "dependency check")
	}
	if f.source == nil {
		return errors.WrapInvalid(fmt.Errorf("nil event source"),
			"Follower", "Initialize", "dependency check")
	}
	return nil
}

// Start subscribes to all endpoints' lifecycle events and begins
// persisting them. Idempotent.
func (f *Follower) Start(ctx context.Context) error {
	if f.running.Load() {
		return nil
	}

	f.events, f.stop = f.source.Lifecycle("")
	f.done = make(chan struct{})
	f.running.Store(true)
	f.startTime = time.Now()

	go f.run(ctx)
	return nil
}

// Stop unsubscribes and waits for the persist loop up to timeout.
func (f *Follower) Stop(timeout time.Duration) error {
	if !f.running.Load() {
		return nil
	}
	f.running.Store(false)
	f.stop()

	select {
	case <-f.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Follower", "Stop", "graceful shutdown")
	}
}

func (f *Follower) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case lc, ok := <-f.events:
			if !ok {
				return
			}
			if err := f.store.Apply(ctx, lc); err != nil {
				f.errorCount.Add(1)
				f.logger.Warn("Failed to persist lifecycle event",
					"endpoint", lc.Endpoint, "msg_type", lc.MsgType, "error", err)
				continue
			}
			f.logger.Debug("Persisted lifecycle event",
				"endpoint", lc.Endpoint, "msg_type", lc.MsgType)
		case <-ctx.Done():
			return
		}
	}
}
