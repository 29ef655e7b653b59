package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Penlect/emqxlwm2m/errors"
)

func TestAllocator_UniqueWhileOutstanding(t *testing.T) {
	alloc := NewAllocator(0, 9)

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		id, err := alloc.Allocate()
		require.NoError(t, err)
		assert.False(t, seen[id], "identifier %d allocated twice", id)
		assert.GreaterOrEqual(t, id, 0)
		assert.LessOrEqual(t, id, 9)
		seen[id] = true
	}
	assert.Equal(t, 10, alloc.Outstanding())
}

func TestAllocator_Exhaustion(t *testing.T) {
	alloc := NewAllocator(0, 2)
	for i := 0; i < 3; i++ {
		_, err := alloc.Allocate()
		require.NoError(t, err)
	}

	_, err := alloc.Allocate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIDExhausted)
	assert.True(t, errors.IsFatal(err))
}

func TestAllocator_ReleaseEnablesReuse(t *testing.T) {
	alloc := NewAllocator(0, 1)
	a, err := alloc.Allocate()
	require.NoError(t, err)
	b, err := alloc.Allocate()
	require.NoError(t, err)

	alloc.Release(a)
	c, err := alloc.Allocate()
	require.NoError(t, err)
	assert.Equal(t, a, c, "released identifier should be reusable")
	assert.NotEqual(t, b, c)
}

func TestAllocator_BadRangeFallsBackToDefaults(t *testing.T) {
	alloc := NewAllocator(5, 5)
	id, err := alloc.Allocate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, DefaultReqIDMin)
	assert.LessOrEqual(t, id, DefaultReqIDMax)
}
