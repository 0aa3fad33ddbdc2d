// Package pool implements the generic owner-epoch handle pool used by the
// source pool (C5); the effect-slot pool (C6) holds backend handles
// directly. It is spec §9's "owner epoch" note generalized into one
// reusable type, so a handle captured before its slot is released and
// reacquired reliably fails its Get rather than aliasing whatever got
// bound into the same slot afterward.
package pool

import "errors"

// ErrStale is returned by Get when handle.epoch no longer matches the slot.
var ErrStale = errors.New("pool: stale handle")

// Handle identifies a slot plus the generation it was bound under.
type Handle struct {
	index uint32
	epoch uint32
}

// Valid reports whether h was ever issued (the zero Handle never is).
func (h Handle) Valid() bool { return h.epoch != 0 }

type slot[T any] struct {
	epoch    uint32
	occupied bool
	value    T
}

// Pool is a fixed-capacity set of owner-epoch-guarded slots holding T.
// It is not safe for concurrent use; every pool in this module lives
// entirely on the audio thread (spec §5).
type Pool[T any] struct {
	slots []slot[T]
	free  []uint32 // stack of free slot indices, LIFO reuse like the teacher's worker table
}

// New creates a pool with the given fixed capacity.
func New[T any](capacity int) *Pool[T] {
	p := &Pool[T]{
		slots: make([]slot[T], capacity),
		free:  make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free[i] = uint32(capacity - 1 - i)
	}
	return p
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// Used returns the number of currently occupied slots.
func (p *Pool[T]) Used() int { return len(p.slots) - len(p.free) }

// Acquire binds value into a free slot and returns its handle. ok is false
// if the pool has no free slot (caller decides fallback: grow, evict, or
// refuse, per spec §4.5 step 2/3).
func (p *Pool[T]) Acquire(value T) (Handle, bool) {
	if len(p.free) == 0 {
		return Handle{}, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	s := &p.slots[idx]
	s.epoch++
	if s.epoch == 0 {
		s.epoch = 1 // never let an epoch wrap back to the "unissued" sentinel
	}
	s.occupied = true
	s.value = value

	return Handle{index: idx, epoch: s.epoch}, true
}

// Get returns the slot's current value if h is still current.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	if !h.Valid() || int(h.index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[h.index]
	if !s.occupied || s.epoch != h.epoch {
		return nil, false
	}
	return &s.value, true
}

// Release frees h's slot. Any handle copy captured before this call fails
// Get/Release from now on: the slot is unoccupied until the next Acquire,
// which bumps its epoch (spec §4.5's eviction semantics: "the evicted
// source's previous owner is not notified").
func (p *Pool[T]) Release(h Handle) bool {
	if !h.Valid() || int(h.index) >= len(p.slots) {
		return false
	}
	s := &p.slots[h.index]
	if !s.occupied || s.epoch != h.epoch {
		return false
	}
	var zero T
	s.value = zero
	s.occupied = false
	p.free = append(p.free, h.index)
	return true
}

// Grow appends n additional free slots, used when a pool lazily discovers
// backend headroom (mirrors the teacher's lazily-created worker slots).
func (p *Pool[T]) Grow(n int) {
	base := uint32(len(p.slots))
	p.slots = append(p.slots, make([]slot[T], n)...)
	for i := 0; i < n; i++ {
		p.free = append(p.free, base+uint32(n-1-i))
	}
}

// Each calls fn for every occupied slot's (Handle, *T), in slot order.
// fn must not Acquire or Release while iterating.
func (p *Pool[T]) Each(fn func(Handle, *T)) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.occupied {
			fn(Handle{index: uint32(i), epoch: s.epoch}, &s.value)
		}
	}
}
