package probe

import (
	"container/list"
	"context"
	"runtime"
	"sync"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/auralcore/internal/raytrace"
)

// ReuseDistance is the default radius within which a cached probe is
// reused instead of retraced (spec §4.9 step 1: "≈0.25 m").
const ReuseDistance = 0.25

type entry struct {
	position r3.Vector
	probe    *Probe
}

// Cache is a bounded LRU of probes keyed by position (spec §4.9: "a
// bounded LRU of probes keyed by probe position"). One lives per
// listener and per meter.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	elems    map[*list.Element]struct{}
}

// NewCache creates an LRU with the given capacity.
func NewCache(capacity int) *Cache {
	return &Cache{capacity: capacity, order: list.New(), elems: map[*list.Element]struct{}{}}
}

// Get implements spec §4.9 step 1: reuse a cached probe within
// ReuseDistance, else report a miss. valid is the octree-invalidation
// check performed by the caller (world layer); a caller passes false
// here after any octree change near this probe region.
func (c *Cache) Get(position r3.Vector, valid bool) (*Probe, bool) {
	if !valid {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.order.Front(); e != nil; e = e.Next() {
		en := e.Value.(*entry)
		if position.Sub(en.position).Norm() <= ReuseDistance {
			c.order.MoveToFront(e)
			return en.probe, true
		}
	}
	return nil, false
}

// Put inserts a freshly traced probe, evicting the least-recently-used
// entry if the cache is over capacity (spec §4.9 step 4).
func (c *Cache) Put(position r3.Vector, p *Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.order.PushFront(&entry{position: position, probe: p})
	c.elems[e] = struct{}{}
	for c.order.Len() > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.elems, back)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Invalidate drops every cached entry; called when the octree changes in
// a way that could invalidate any probe (a conservative over-eviction,
// since the spec only requires invalidating affected probes but doesn't
// specify a spatial invalidation index).
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.elems = map[*list.Element]struct{}{}
}

// GetOrTrace resolves position to a probe, reusing the cache when
// possible and tracing fresh otherwise, storing the result back.
func (c *Cache) GetOrTrace(bvh *raytrace.BVH, position r3.Vector, params Params) *Probe {
	if p, ok := c.Get(position, true); ok {
		return p
	}
	p := Trace(bvh, position, params)
	c.Put(position, p)
	return p
}

// TraceParallel runs Trace for every requested listener/meter position
// concurrently across a worker pool of at most GOMAXPROCS goroutines
// (spec §4.9's "probe computation runs in parallel workers"), returning
// results in input order. If ctx is canceled mid-compute, traces that
// have not started yet are skipped and their result is nil (spec:
// "partially-built probes may be dropped and the caller treats it as
// absent"); a trace that is already running completes.
func TraceParallel(ctx context.Context, bvh *raytrace.BVH, positions []r3.Vector, params Params) []*Probe {
	results := make([]*Probe, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			results[i] = Trace(bvh, pos, params)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
