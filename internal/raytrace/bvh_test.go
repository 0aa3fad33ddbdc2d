package raytrace

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/geomx"
)

func opaqueMaterial() Material {
	return Material{AbsorptionLow: 0.1, AbsorptionMid: 0.2, AbsorptionHigh: 0.3}
}

func TestFirstHitFindsNearestBox(t *testing.T) {
	near := geomx.BoxFromCenterExtent(r3.Vector{X: 5, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 1, Z: 1})
	far := geomx.BoxFromCenterExtent(r3.Vector{X: 10, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 1, Z: 1})
	var tris []Triangle
	tris = append(tris, BoxTriangles(near, opaqueMaterial(), 1)...)
	tris = append(tris, BoxTriangles(far, opaqueMaterial(), 2)...)
	bvh := Build(tris)

	ray := geomx.Ray{Origin: r3.Vector{}, Dir: r3.Vector{X: 1, Y: 0, Z: 0}}
	hit, ok := bvh.FirstHit(ray, 100)
	require.True(t, ok)
	assert.InDelta(t, 4.0, hit.T, 1e-6)
	assert.Equal(t, uint32(1), hit.Triangle.ComponentID)
}

func TestAllHitsSortedAscending(t *testing.T) {
	a := geomx.BoxFromCenterExtent(r3.Vector{X: 3, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 1, Z: 1})
	b := geomx.BoxFromCenterExtent(r3.Vector{X: 6, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 1, Z: 1})
	var tris []Triangle
	tris = append(tris, BoxTriangles(a, opaqueMaterial(), 1)...)
	tris = append(tris, BoxTriangles(b, opaqueMaterial(), 2)...)
	bvh := Build(tris)

	ray := geomx.Ray{Origin: r3.Vector{}, Dir: r3.Vector{X: 1, Y: 0, Z: 0}}
	hits := bvh.AllHits(ray, 100)
	require.Len(t, hits, 4) // enter+exit of each box
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].T, hits[i].T)
	}
}

func TestSegmentBlockedByOpaqueMaterial(t *testing.T) {
	wall := geomx.BoxFromCenterExtent(r3.Vector{X: 5, Y: 0, Z: 0}, r3.Vector{X: 0.1, Y: 2, Z: 2})
	bvh := Build(BoxTriangles(wall, opaqueMaterial(), 1))
	assert.True(t, bvh.SegmentBlocked(r3.Vector{X: 0}, r3.Vector{X: 10}))
}

func TestSegmentNotBlockedByTransmissiveMaterial(t *testing.T) {
	wall := geomx.BoxFromCenterExtent(r3.Vector{X: 5, Y: 0, Z: 0}, r3.Vector{X: 0.1, Y: 2, Z: 2})
	transmissive := Material{TransmissionLow: 0.5, TransmissionMid: 0.5, TransmissionHigh: 0.5}
	bvh := Build(BoxTriangles(wall, transmissive, 1))
	assert.False(t, bvh.SegmentBlocked(r3.Vector{X: 0}, r3.Vector{X: 10}))
}

func TestEmptyBVHNeverHits(t *testing.T) {
	bvh := Build(nil)
	ray := geomx.Ray{Origin: r3.Vector{}, Dir: r3.Vector{X: 1, Y: 0, Z: 0}}
	_, ok := bvh.FirstHit(ray, 100)
	assert.False(t, ok)
	assert.False(t, bvh.SegmentBlocked(r3.Vector{}, r3.Vector{X: 10}))
}
