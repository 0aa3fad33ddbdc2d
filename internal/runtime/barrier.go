package runtime

import (
	"sync"
	"time"
)

// Barrier is a reusable two-party rendezvous point (spec §4.11:
// "Two Barrier(parties=2)"). Unlike sync.WaitGroup, it can be waited on
// repeatedly — each pair of Wait/TryWait calls releases both callers and
// immediately resets for the next cycle, which a WaitGroup cannot express
// without a race between the last Done and the next Add.
type Barrier struct {
	mu      sync.Mutex
	arrived int
	gen     chan struct{}
}

// NewBarrier creates a two-party barrier ready for its first cycle.
func NewBarrier() *Barrier {
	return &Barrier{gen: make(chan struct{})}
}

// Wait blocks until the other party also calls Wait (or TryWait), then
// both return together.
func (b *Barrier) Wait() {
	b.TryWait(-1)
}

// TryWait behaves like Wait but gives up after timeout elapses without the
// other party arriving. A negative timeout waits forever. Returns true iff
// both parties met.
func (b *Barrier) TryWait(timeout time.Duration) bool {
	b.mu.Lock()
	b.arrived++
	if b.arrived == 2 {
		close(b.gen)
		b.arrived = 0
		b.gen = make(chan struct{})
		b.mu.Unlock()
		return true
	}
	ch := b.gen
	b.mu.Unlock()

	if timeout < 0 {
		<-ch
		return true
	}

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == ch {
			// Nobody arrived after us in this generation: safe to withdraw.
			b.arrived--
			return false
		}
		// The generation already advanced — the other party arrived right as
		// our timer fired, so we were in fact released.
		return true
	}
}
