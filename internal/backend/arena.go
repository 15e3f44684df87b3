package backend

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/tensor"
)

// slot is one buffer record of an Arena.
type slot[T any] struct {
	value      T
	refCount   int
	generation uint32
	live       bool
}

// Arena is the buffer store of a backend: a slot-map from DataID to a record of type T
// with an explicit reference count.
//
// Freed slots are reused, but each reuse bumps the slot generation, so ids handed out
// before the reuse fail with ErrAlreadyDisposed instead of reaching the new record.
// The mutex only protects the slots: the engine drives an Arena from a single goroutine,
// except for concurrent reads.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
	live  int
}

// NewArena creates an empty Arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores value in a new record with the given reference count.
func (a *Arena[T]) Insert(value T, refCount int) tensor.DataID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots)) //nolint:gosec // G115: arena never exceeds 2^32 slots
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[idx]
	s.generation++
	s.value = value
	s.refCount = refCount
	s.live = true
	a.live++

	return tensor.DataID{Index: idx, Generation: s.generation}
}

// lookup returns the live slot for id. Must hold a.mu.
func (a *Arena[T]) lookup(id tensor.DataID) (*slot[T], error) {
	if id.IsZero() || int(id.Index) >= len(a.slots) {
		return nil, errors.Wrapf(ErrUnknownDataID, "data id %s", id)
	}
	s := &a.slots[id.Index]
	if !s.live || s.generation != id.Generation {
		return nil, errors.Wrapf(ErrAlreadyDisposed, "data id %s", id)
	}
	return s, nil
}

// Get returns the record for id.
func (a *Arena[T]) Get(id tensor.DataID) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the record for id, keeping its reference count.
func (a *Arena[T]) Set(id tensor.DataID, value T) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(id)
	if err != nil {
		return err
	}
	s.value = value
	return nil
}

// IncRef adds one reference to id.
func (a *Arena[T]) IncRef(id tensor.DataID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(id)
	if err != nil {
		return err
	}
	s.refCount++
	return nil
}

// Release drops one reference to id, or all of them if force. When the count reaches 0
// the slot is freed and its value returned with reclaimed set.
func (a *Arena[T]) Release(id tensor.DataID, force bool) (value T, reclaimed bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(id)
	if err != nil {
		return value, false, err
	}
	if force {
		s.refCount = 0
	} else if s.refCount > 0 {
		s.refCount--
	}
	if s.refCount > 0 {
		return value, false, nil
	}

	value = s.value
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, id.Index)
	a.live--
	return value, true, nil
}

// RefCount returns the reference count of id, or 0 if id is not live.
func (a *Arena[T]) RefCount(id tensor.DataID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(id)
	if err != nil {
		return 0
	}
	return s.refCount
}

// Len returns the number of live records.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Range calls fn for every live record until fn returns false.
func (a *Arena[T]) Range(fn func(id tensor.DataID, value T) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		id := tensor.DataID{Index: uint32(i), Generation: s.generation} //nolint:gosec // G115: bounded by len(slots)
		if !fn(id, s.value) {
			return
		}
	}
}

// Clear frees every record and returns the values that were live.
func (a *Arena[T]) Clear() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	var values []T
	var zero T
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		values = append(values, s.value)
		s.value = zero
		s.refCount = 0
		s.live = false
		a.free = append(a.free, uint32(i)) //nolint:gosec // G115: bounded by len(slots)
	}
	a.live = 0
	return values
}
