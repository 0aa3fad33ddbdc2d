package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New[int](4)
	h, ok := p.Acquire(42)
	require.True(t, ok)
	require.Equal(t, 1, p.Used())

	v, ok := p.Get(h)
	require.True(t, ok)
	assert.Equal(t, 42, *v)

	require.True(t, p.Release(h))
	assert.Equal(t, 0, p.Used())

	_, ok = p.Get(h)
	assert.False(t, ok, "handle must not resolve after release")
}

func TestStaleHandleAfterReacquire(t *testing.T) {
	p := New[string](1)
	h1, ok := p.Acquire("first")
	require.True(t, ok)
	require.True(t, p.Release(h1))

	h2, ok := p.Acquire("second")
	require.True(t, ok)

	_, ok = p.Get(h1)
	assert.False(t, ok, "stale handle from before eviction must not alias the new occupant")

	v, ok := p.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "second", *v)
}

func TestCapacityExhausted(t *testing.T) {
	p := New[int](2)
	_, ok := p.Acquire(1)
	require.True(t, ok)
	_, ok = p.Acquire(2)
	require.True(t, ok)
	_, ok = p.Acquire(3)
	assert.False(t, ok)
}

// TestBoundUnboundInvariant models spec invariant 1:
// bound_source_count + unbound_source_count == total_source_count always.
func TestBoundUnboundInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cap := rapid.IntRange(1, 16).Draw(rt, "cap")
		p := New[int](cap)
		var live []Handle

		steps := rapid.IntRange(0, 64).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if len(live) == 0 || rapid.Boolean().Draw(rt, "acquire") {
				if h, ok := p.Acquire(i); ok {
					live = append(live, h)
				}
			} else {
				idx := rapid.IntRange(0, len(live)-1).Draw(rt, "idx")
				if p.Release(live[idx]) {
					live = append(live[:idx], live[idx+1:]...)
				}
			}
			if p.Used()+len(p.free) != p.Cap() {
				rt.Fatalf("bound+unbound=%d+%d != cap=%d", p.Used(), len(p.free), p.Cap())
			}
		}
	})
}
