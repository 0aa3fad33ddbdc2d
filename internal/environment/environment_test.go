package environment

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"

	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
)

func wallBVH(t *testing.T, transmission float64) *raytrace.BVH {
	t.Helper()
	box := geomx.Box{Min: r3.Vector{X: 4, Y: -5, Z: -5}, Max: r3.Vector{X: 6, Y: 5, Z: 5}}
	mat := raytrace.Material{
		AbsorptionLow: 0.1, AbsorptionMid: 0.1, AbsorptionHigh: 0.1,
		TransmissionLow: transmission, TransmissionMid: transmission, TransmissionHigh: transmission,
	}
	tris := raytrace.BoxTriangles(box, mat, 1)
	return raytrace.Build(tris)
}

func TestUpdateSilentExactlyAtRange(t *testing.T) {
	tr := New()
	r := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 10}, 10, 1.0/60)
	assert.True(t, r.Silent)
	assert.Equal(t, 0.0, r.DirectGain)
}

func TestUpdateAudibleWithinRangeNoOcclusion(t *testing.T) {
	tr := New()
	r := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 1}, 100, 1.0/60)
	assert.False(t, r.Silent)
	assert.Greater(t, r.DirectGain, 0.0)
}

func TestUpdateFullyOpaqueOccluderSilencesEmitter(t *testing.T) {
	bvh := wallBVH(t, 0.0)
	tr := New()
	r := tr.Update(bvh, nil, r3.Vector{X: 0}, r3.Vector{X: 20}, 100, 1.0/60)
	assert.True(t, r.Silent)
}

func TestUpdatePartiallyTransparentOccluderAttenuatesButAudible(t *testing.T) {
	bvh := wallBVH(t, 0.5)
	tr := New()
	r := tr.Update(bvh, nil, r3.Vector{X: 0}, r3.Vector{X: 20}, 100, 1.0/60)
	assert.False(t, r.Silent)
	assert.Greater(t, r.DirectGain, 0.0)
}

func TestSmoothingSkippedOnFirstUpdateAfterReset(t *testing.T) {
	tr := New()
	first := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 1}, 100, 1.0/60)
	second := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 50}, 100, 1.0/60)
	assert.NotEqual(t, first.DirectGain, second.DirectGain)

	tr.ResetSmoothing()
	jumped := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 1}, 100, 1.0/60)
	direct := distanceAttenuation(1, 100)
	assert.InDelta(t, direct, jumped.DirectGain, 1e-9)
}

func TestKeepAliveHoldsReverbAfterGoingSilent(t *testing.T) {
	tr := New()
	tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 1}, 100, 1.0/60)
	held := tr.Update(nil, nil, r3.Vector{}, r3.Vector{X: 200}, 100, 1.0/60)
	assert.True(t, held.Silent)
	assert.True(t, held.KeepAliveSet)
}
