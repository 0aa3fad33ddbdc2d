package probe

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
)

func boxRoom(t *testing.T) *raytrace.BVH {
	t.Helper()
	box := geomx.Box{Min: r3.Vector{X: -5, Y: -5, Z: -5}, Max: r3.Vector{X: 5, Y: 5, Z: 5}}
	mat := raytrace.Material{AbsorptionLow: 0.1, AbsorptionMid: 0.2, AbsorptionHigh: 0.3}
	tris := raytrace.BoxTriangles(box, mat, 1)
	return raytrace.Build(tris)
}

func TestTraceProducesPositiveRoomVolumeInsideClosedBox(t *testing.T) {
	bvh := boxRoom(t)
	p := Trace(bvh, r3.Vector{}, Params{RayCount: 64, MaxBounces: 1, Range: 100})
	require.NotEmpty(t, p.Rays)
	assert.Greater(t, p.Stats.Volume, 0.0)
	assert.Greater(t, p.Stats.Surface, 0.0)
	assert.Greater(t, p.Stats.ReverbTimeMid, 0.0)
	assert.Greater(t, p.Stats.MeanFreePath, 0.0)
}

func TestCacheReusesWithinReuseDistance(t *testing.T) {
	bvh := boxRoom(t)
	c := NewCache(4)
	p1 := c.GetOrTrace(bvh, r3.Vector{X: 0, Y: 0, Z: 0}, Params{RayCount: 32, MaxBounces: 1, Range: 100})
	p2 := c.GetOrTrace(bvh, r3.Vector{X: 0.1, Y: 0, Z: 0}, Params{RayCount: 32, MaxBounces: 1, Range: 100})
	assert.Same(t, p1, p2, "within reuse distance must return the same cached probe")
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsLRUOverCapacity(t *testing.T) {
	bvh := boxRoom(t)
	c := NewCache(2)
	params := Params{RayCount: 16, MaxBounces: 0, Range: 100}
	c.GetOrTrace(bvh, r3.Vector{X: 0}, params)
	c.GetOrTrace(bvh, r3.Vector{X: 10}, params)
	c.GetOrTrace(bvh, r3.Vector{X: 20}, params)
	assert.Equal(t, 2, c.Len())
}

func TestTraceNestsTransmittedSubRaysThroughThinObstacle(t *testing.T) {
	room := geomx.Box{Min: r3.Vector{X: -10, Y: -10, Z: -10}, Max: r3.Vector{X: 10, Y: 10, Z: 10}}
	roomMat := raytrace.Material{AbsorptionLow: 0.1, AbsorptionMid: 0.1, AbsorptionHigh: 0.1}
	pane := geomx.Box{Min: r3.Vector{X: 2, Y: -5, Z: -5}, Max: r3.Vector{X: 2.1, Y: 5, Z: 5}}
	paneMat := raytrace.Material{AbsorptionLow: 0.05, AbsorptionMid: 0.05, AbsorptionHigh: 0.05}

	var tris []raytrace.Triangle
	tris = append(tris, raytrace.BoxTriangles(room, roomMat, 1)...)
	tris = append(tris, raytrace.BoxTriangles(pane, paneMat, 2)...)
	bvh := raytrace.Build(tris)

	dir := r3.Vector{X: 1}
	sub := traceTransmitted(bvh, r3.Vector{}, dir, 2, 100)
	require.NotNil(t, sub, "ray toward the pane must hit its near face")
	assert.InDelta(t, 2.0, sub.Length, 1e-6)
	require.NotNil(t, sub.Transmitted, "transmit budget of 2 must nest a second hit past the pane")
	assert.Greater(t, sub.Transmitted.Length, 0.0)
}

func TestTraceTransmittedStopsAtZeroBudget(t *testing.T) {
	bvh := boxRoom(t)
	sub := traceTransmitted(bvh, r3.Vector{}, r3.Vector{X: 1}, 0, 100)
	assert.Nil(t, sub, "max_transmits=0 must not trace any transmitted sub-ray")
}

func TestTraceParallelReturnsOneProbePerPosition(t *testing.T) {
	bvh := boxRoom(t)
	positions := []r3.Vector{{X: 0}, {X: 1}, {X: 2}}
	results := TraceParallel(context.Background(), bvh, positions, Params{RayCount: 16, MaxBounces: 0, Range: 100})
	require.Len(t, results, 3)
	for _, p := range results {
		assert.NotNil(t, p)
	}
}
