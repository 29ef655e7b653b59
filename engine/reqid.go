package engine

import (
	"math/rand"
	"sync"

	"github.com/Penlect/emqxlwm2m/errors"
)

// Default request identifier range.
const (
	DefaultReqIDMin = 0
	DefaultReqIDMax = 10000
)

// Allocator hands out request identifiers from a bounded range. The cursor
// wraps around and skips identifiers still assigned to an outstanding
// request, so an identifier is never reused while its request is in
// flight.
type Allocator struct {
	mu    sync.Mutex
	next  int
	min   int
	max   int
	inUse map[int]struct{}
}

// NewAllocator creates an allocator over [min, max]. The cursor starts at
// a random position so restarts don't replay the same identifiers.
func NewAllocator(min, max int) *Allocator {
	if max <= min {
		min, max = DefaultReqIDMin, DefaultReqIDMax
	}
	return &Allocator{
		next:  min + rand.Intn(max-min+1),
		min:   min,
		max:   max,
		inUse: make(map[int]struct{}),
	}
}

// Allocate returns an identifier not assigned to any outstanding request.
// It fails with ErrIDExhausted when every identifier in the range is in
// use, which signals a pathological command backlog.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.max - a.min + 1
	for i := 0; i < size; i++ {
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		if _, taken := a.inUse[a.next]; !taken {
			a.inUse[a.next] = struct{}{}
			return a.next, nil
		}
	}
	return 0, errors.WrapFatal(errors.ErrIDExhausted, "Allocator", "Allocate", "find free identifier")
}

// Release returns an identifier to the pool once its request reached a
// terminal state.
func (a *Allocator) Release(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, id)
}

// Outstanding returns the number of identifiers currently assigned.
func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
