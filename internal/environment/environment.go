// Package environment implements the per-emitter direct-path and
// indirect-path acoustic tracker (spec §4.8, C8): band-filtered
// occlusion via the world BVH, Sabine-derived reverb parameters from a
// listener probe, distance smoothing, and keep-alive.
package environment

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/backend"
	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/probe"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
)

// KeepAliveTimeout is the default hold duration after an emitter stops
// being audible (spec §4.8: "≈100 ms").
const KeepAliveTimeout = 0.1

// smoothingFactor is the exponential smoothing weight applied to each
// parameter per frame (spec §4.8: "low-pass filtered against the
// previous frame's parameters").
const smoothingFactor = 0.2

// Result is one frame's computed direct+indirect path for an emitter.
type Result struct {
	Filter       backend.FilterParams
	Reverb       backend.ReverbParams
	DirectGain   float64
	KeepAliveSet bool
	Silent       bool
}

// Tracker holds one emitter's smoothing state across frames.
type Tracker struct {
	prev         Result
	hasPrev      bool
	keepAlive    float64
	resetSmooth  bool
}

// New creates a tracker with smoothing reset on its first update (spec
// §4.8: "except when reset_listener_smooth is set on first audibility or
// after teleport").
func New() *Tracker {
	return &Tracker{resetSmooth: true}
}

// ResetSmoothing forces the next Update to skip smoothing, e.g. after a
// teleport or when the emitter transitions from inaudible to audible.
func (t *Tracker) ResetSmoothing() { t.resetSmooth = true }

// Update computes this frame's direct and indirect path for an emitter at
// emitterPos relative to listenerPos, given the world BVH for occlusion
// and a probe for indirect-path statistics. rangeMeters is the emitter's
// hard cutoff (spec: "attenuation forced to 0 at range").
func (t *Tracker) Update(bvh *raytrace.BVH, p *probe.Probe, listenerPos, emitterPos r3.Vector, rangeMeters float64, dt float64) Result {
	dist := emitterPos.Sub(listenerPos).Norm()

	// Boundary B2: exactly at range is silent, not merely attenuated.
	if dist >= rangeMeters {
		return t.silent(dt)
	}

	transLow, transMid, transHigh := 1.0, 1.0, 1.0
	if bvh != nil {
		hits := bvh.AllHits(rayBetween(listenerPos, emitterPos), dist)
		for _, h := range hits {
			transLow *= h.Triangle.Material.Transmission(raytrace.BandLow)
			transMid *= h.Triangle.Material.Transmission(raytrace.BandMid)
			transHigh *= h.Triangle.Material.Transmission(raytrace.BandHigh)
		}
	}
	if transLow == 0 && transMid == 0 && transHigh == 0 {
		return t.silent(dt)
	}

	attenuation := distanceAttenuation(dist, rangeMeters)
	directGain := attenuation * transMid

	// backend.go: FilterBandPass behaves as a low-pass filter when
	// GainHF < GainLF, and as a high-pass filter otherwise.
	filterType := backend.FilterBandPass
	if transHigh < transLow {
		filterType = backend.FilterLowPass
	} else {
		filterType = backend.FilterHighPass
	}

	result := Result{
		Filter: backend.FilterParams{
			Type:   filterType,
			Gain:   directGain,
			GainLF: transLow,
			GainHF: transHigh,
		},
		DirectGain: directGain,
	}

	if p != nil {
		result.Reverb = reverbFromStats(p, directGain)
	}

	smoothed := t.smooth(result)
	t.keepAlive = KeepAliveTimeout
	t.prev = smoothed
	t.hasPrev = true
	smoothed.KeepAliveSet = true
	return smoothed
}

func (t *Tracker) silent(dt float64) Result {
	t.keepAlive -= dt
	r := Result{Silent: true, DirectGain: 0}
	if t.keepAlive > 0 {
		r.Reverb = t.prev.Reverb
		r.KeepAliveSet = true
	}
	t.prev = r
	t.hasPrev = true
	return r
}

func (t *Tracker) smooth(r Result) Result {
	if !t.hasPrev || t.resetSmooth {
		t.resetSmooth = false
		return r
	}
	a := smoothingFactor
	lerp := func(prev, next float64) float64 { return prev + a*(next-prev) }
	r.DirectGain = lerp(t.prev.DirectGain, r.DirectGain)
	r.Filter.Gain = lerp(t.prev.Filter.Gain, r.Filter.Gain)
	r.Filter.GainLF = lerp(t.prev.Filter.GainLF, r.Filter.GainLF)
	r.Filter.GainHF = lerp(t.prev.Filter.GainHF, r.Filter.GainHF)
	r.Reverb.Gain = lerp(t.prev.Reverb.Gain, r.Reverb.Gain)
	r.Reverb.GainLF = lerp(t.prev.Reverb.GainLF, r.Reverb.GainLF)
	r.Reverb.GainHF = lerp(t.prev.Reverb.GainHF, r.Reverb.GainHF)
	r.Reverb.DecayTime = lerp(t.prev.Reverb.DecayTime, r.Reverb.DecayTime)
	r.Reverb.ReflectionGain = lerp(t.prev.Reverb.ReflectionGain, r.Reverb.ReflectionGain)
	r.Reverb.LateReverbGain = lerp(t.prev.Reverb.LateReverbGain, r.Reverb.LateReverbGain)
	return r
}

// distanceAttenuation is an inverse-clamped falloff to 0 exactly at
// range (spec B2), independent of the backend's own distance model
// (which auralcore leaves at DistanceInverseClamped and never relies on
// for gain — see backend.DistanceModel's doc comment).
func distanceAttenuation(dist, rangeMeters float64) float64 {
	if dist <= 0 {
		return 1
	}
	if dist >= rangeMeters {
		return 0
	}
	g := 1.0 / (1.0 + dist)
	falloff := 1.0 - dist/rangeMeters
	return g * falloff
}

func reverbFromStats(p *probe.Probe, directGain float64) backend.ReverbParams {
	s := p.Stats
	return backend.ReverbParams{
		Gain:            clamp01(1.0 - s.SabineMid/math.Max(s.Surface, 1e-6)),
		GainLF:          clamp01(1.0 - s.SabineLow/math.Max(s.Surface, 1e-6)),
		GainHF:          clamp01(1.0 - s.SabineHigh/math.Max(s.Surface, 1e-6)),
		DecayTime:       s.ReverbTimeMid,
		DecayHFRatio:    ratio(s.ReverbTimeHigh, s.ReverbTimeMid),
		DecayLFRatio:    ratio(s.ReverbTimeLow, s.ReverbTimeMid),
		ReflectionGain:  clamp01(0.5 * directGain),
		ReflectionDelay: s.EchoDelay,
		ReflectionPan:   p.ReflectionPan,
		LateReverbGain:  clamp01(0.3 * directGain),
		LateReverbDelay: s.EchoDelay * 2,
		LateReverbPan:   p.ReflectionPan,
		EchoTime:        s.MeanFreePath / 343.0,
	}
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 1
	}
	return a / b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rayBetween(a, b r3.Vector) geomx.Ray { return geomx.Ray{Origin: a, Dir: b.Sub(a).Normalize()} }
