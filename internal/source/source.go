// Package source implements the bounded hardware-source pool (spec §4.5,
// C5): binding by (owner, importance), eviction of the lowest-importance
// bound source when the pool is exhausted, and the "previous owner not
// notified" eviction contract built on top of internal/pool's
// owner-epoch handles.
package source

import (
	"sort"

	"github.com/intuitionamiga/auralcore/internal/backend"
	"github.com/intuitionamiga/auralcore/internal/pool"
)

// OwnerID identifies the emitter that currently owns a bound source. The
// zero value never owns anything.
type OwnerID uint64

// binding is the per-slot bookkeeping behind a pool.Handle. bound
// distinguishes "hardware source exists but idle" (unbound) from
// "assigned to an emitter" (bound) — spec §4.5 invariant: bound_count +
// unbound_count = total_count, so sources are never destroyed by
// unbind/eviction, only released back to the unbound state.
type binding struct {
	backendHandle backend.Handle
	bound         bool
	owner         OwnerID
	importance    float64
	filter        backend.Handle
	hasFilter     bool
	auxSlot       backend.Handle
	hasAuxSlot    bool
}

// Pool is the C5 source pool: a fixed-then-lazily-grown set of hardware
// sources multiplexed across an unbounded set of emitters by importance.
type Pool struct {
	be           backend.Backend
	slots        *pool.Pool[binding]
	estimatedCap int // set once CreateSource first fails (spec §4.5 step 2)
	capKnown     bool
}

// New creates an empty source pool; hardware sources are created lazily
// on first bind rather than pre-allocated, since the backend's true
// capacity is only discovered by trying to exceed it.
func New(be backend.Backend) *Pool {
	return &Pool{be: be, slots: pool.New[binding](0)}
}

// BoundCount and UnboundCount implement spec invariant 1's two halves.
func (p *Pool) BoundCount() int {
	n := 0
	p.slots.Each(func(_ pool.Handle, b *binding) {
		if b.bound {
			n++
		}
	})
	return n
}

func (p *Pool) UnboundCount() int {
	n := 0
	p.slots.Each(func(_ pool.Handle, b *binding) {
		if !b.bound {
			n++
		}
	})
	return n
}

// TotalCount is bound+unbound (spec invariant 1).
func (p *Pool) TotalCount() int { return p.slots.Used() }

// Owner returns h's current owner and whether h still resolves to a
// bound slot. A caller must check this before every access (spec §4.5:
// "it must check source.owner == self before every access") since an
// eviction never notifies the previous owner.
func (p *Pool) Owner(h pool.Handle) (OwnerID, bool) {
	b, ok := p.slots.Get(h)
	if !ok || !b.bound {
		return 0, false
	}
	return b.owner, true
}

// Bind implements spec §4.5's bind(owner, importance) algorithm.
func (p *Pool) Bind(owner OwnerID, importance float64) (pool.Handle, bool) {
	if h, ok := p.firstUnbound(); ok {
		b, _ := p.slots.Get(h)
		b.bound = true
		b.owner = owner
		b.importance = importance
		return h, true
	}

	if !p.capKnown {
		if created, ok := p.tryCreate(); ok {
			p.slots.Grow(1)
			h, _ := p.slots.Acquire(binding{backendHandle: created, bound: true, owner: owner, importance: importance})
			return h, true
		}
		p.estimatedCap = p.slots.Used()
		p.capKnown = true
	}

	victim, victimImportance, ok := p.lowestImportanceBound()
	if !ok || importance > victimImportance {
		return pool.Handle{}, false
	}
	p.evict(victim)
	b, _ := p.slots.Get(victim)
	b.bound = true
	b.owner = owner
	b.importance = importance
	return victim, true
}

// Unbind stops playback, clears buffers/filter/aux assignment, and marks
// the source unbound without destroying the underlying hardware source
// (spec §4.5: "unbind(handle): stops playback, clears buffers and
// filter, marks source unbound").
func (p *Pool) Unbind(h pool.Handle) error {
	b, ok := p.slots.Get(h)
	if !ok {
		return nil
	}
	return p.clear(b)
}

// evict performs the same state clearing as Unbind but for a slot being
// reassigned rather than released by its own owner; the previous owner
// is never informed (spec §4.5 eviction semantics).
func (p *Pool) evict(h pool.Handle) {
	b, ok := p.slots.Get(h)
	if !ok {
		return
	}
	_ = p.clear(b)
}

func (p *Pool) clear(b *binding) error {
	if err := p.be.Stop(b.backendHandle); err != nil {
		return err
	}
	if b.hasFilter {
		if err := p.be.SetSourceDirectFilter(b.backendHandle, backend.Handle(0)); err != nil {
			return err
		}
		b.hasFilter = false
	}
	if b.hasAuxSlot {
		if err := p.be.SetSourceAuxSend(b.backendHandle, backend.Handle(0)); err != nil {
			return err
		}
		b.hasAuxSlot = false
	}
	if _, err := p.be.UnqueueBuffers(b.backendHandle, 1<<20); err != nil {
		return err
	}
	b.bound = false
	b.owner = 0
	b.importance = 0
	return nil
}

// SetFilter assigns a direct-path filter to a bound source (spec §4.1,
// §4.8); called by the environment layer (C8), not by bind/unbind.
func (p *Pool) SetFilter(h pool.Handle, filter backend.Handle) error {
	b, ok := p.slots.Get(h)
	if !ok {
		return nil
	}
	if err := p.be.SetSourceDirectFilter(b.backendHandle, filter); err != nil {
		return err
	}
	b.filter = filter
	b.hasFilter = true
	return nil
}

// SetAuxSend assigns a shared reverb effect slot to a bound source (C6).
func (p *Pool) SetAuxSend(h pool.Handle, slot backend.Handle) error {
	b, ok := p.slots.Get(h)
	if !ok {
		return nil
	}
	if err := p.be.SetSourceAuxSend(b.backendHandle, slot); err != nil {
		return err
	}
	b.auxSlot = slot
	b.hasAuxSlot = true
	return nil
}

// BackendHandle returns the live backend.Handle behind h, for components
// that program source position/gain/pitch/etc. directly.
func (p *Pool) BackendHandle(h pool.Handle) (backend.Handle, bool) {
	b, ok := p.slots.Get(h)
	if !ok {
		return 0, false
	}
	return b.backendHandle, true
}

func (p *Pool) firstUnbound() (pool.Handle, bool) {
	var found pool.Handle
	hasFound := false
	p.slots.Each(func(h pool.Handle, b *binding) {
		if hasFound || b.bound {
			return
		}
		found = h
		hasFound = true
	})
	return found, hasFound
}

func (p *Pool) tryCreate() (backend.Handle, bool) {
	h, err := p.be.CreateSource()
	if err != nil {
		return 0, false
	}
	return h, true
}

func (p *Pool) lowestImportanceBound() (pool.Handle, float64, bool) {
	type candidate struct {
		h          pool.Handle
		importance float64
	}
	var candidates []candidate
	p.slots.Each(func(h pool.Handle, b *binding) {
		if b.bound {
			candidates = append(candidates, candidate{h, b.importance})
		}
	})
	if len(candidates) == 0 {
		return pool.Handle{}, 0, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].importance < candidates[j].importance })
	return candidates[0].h, candidates[0].importance, true
}
