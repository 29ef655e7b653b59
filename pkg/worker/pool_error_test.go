package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SentinelErrors(t *testing.T) {
	noop := func(_ context.Context, _ downlinkTask) error { return nil }

	t.Run("submit before start", func(t *testing.T) {
		pool := NewPool(2, 10, noop)
		assert.ErrorIs(t, pool.Submit(downlinkTask{endpoint: "urn:dev:1"}), ErrPoolNotStarted)
	})

	t.Run("double start", func(t *testing.T) {
		pool := NewPool(2, 10, noop)
		ctx := context.Background()
		require.NoError(t, pool.Start(ctx))
		defer pool.Stop(5 * time.Second)

		assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)
	})

	t.Run("submit after stop", func(t *testing.T) {
		pool := NewPool(2, 10, noop)
		require.NoError(t, pool.Start(context.Background()))
		require.NoError(t, pool.Stop(5*time.Second))

		assert.ErrorIs(t, pool.Submit(downlinkTask{endpoint: "urn:dev:1"}), ErrPoolStopped)
	})

	t.Run("queue at capacity", func(t *testing.T) {
		blocking := func(_ context.Context, _ downlinkTask) error {
			time.Sleep(1 * time.Second)
			return nil
		}
		pool := NewPool(1, 2, blocking)
		require.NoError(t, pool.Start(context.Background()))
		defer pool.Stop(5 * time.Second)

		var queueFullErr error
		for i := 0; i < 10; i++ {
			if err := pool.Submit(downlinkTask{endpoint: "urn:dev:burst"}); err != nil {
				queueFullErr = err
				break
			}
		}
		assert.ErrorIs(t, queueFullErr, ErrQueueFull)
	})

	t.Run("stop timeout with slow worker", func(t *testing.T) {
		slow := func(ctx context.Context, _ downlinkTask) error {
			select {
			case <-time.After(10 * time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		pool := NewPool(1, 10, slow)
		require.NoError(t, pool.Start(context.Background()))

		_ = pool.Submit(downlinkTask{endpoint: "urn:dev:stuck"})
		time.Sleep(10 * time.Millisecond)

		assert.ErrorIs(t, pool.Stop(50*time.Millisecond), ErrStopTimeout)
	})

	t.Run("nil processor panics with sentinel", func(t *testing.T) {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected panic for nil processor")
			assert.ErrorIs(t, r.(error), ErrNilProcessor)
		}()
		NewPool[downlinkTask](5, 100, nil)
	})
}

// Sentinels are returned unwrapped so callers can compare directly.
func TestPool_ErrorsAreNotWrapped(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, _ downlinkTask) error { return nil })

	err := pool.Submit(downlinkTask{endpoint: "urn:dev:1"})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
	assert.Equal(t, ErrPoolNotStarted, err)
}
