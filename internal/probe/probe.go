// Package probe implements the listener sound-ray probe and its room
// statistics derivation (spec §4.9, C9): N-ray sampling against the
// world BVH, Sabine-formula room acoustics, and an LRU probe cache keyed
// by position.
package probe

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
)

const speedOfSound = 343.0 // m/s, used to convert path length to delay

// Segment is one traced ray leg (spec §4.9 step 2: "a sequence of
// segments {origin, direction, length, material}").
type Segment struct {
	Origin    r3.Vector
	Direction r3.Vector
	Length    float64
	Material  raytrace.Material
	// Reflected is the single follow-up bounce traced from this segment's
	// hit point, used for pan-vector and echo-delay derivation. nil when
	// Params.MaxBounces is 0 or the bounce ray hits nothing.
	Reflected *Segment

	// Transmitted is the sub-ray continuing straight through this
	// segment's hit point in the same direction (spec §4.9 step 2:
	// "transmitted sub-rays are stored nested"), nested up to
	// Params.MaxTransmits deep. nil once the transmit budget is spent or
	// the ray exits the scene.
	Transmitted *Segment
}

// RoomStats is the per-band room-acoustics summary derived from a probe's
// ray list (spec §4.9 step 3, §4.8's Sabine/Eyring reference).
type RoomStats struct {
	Volume        float64
	Surface       float64
	SabineLow     float64 // S·α, low band
	SabineMid     float64
	SabineHigh    float64
	ReverbTimeLow float64 // seconds, Sabine RT60
	ReverbTimeMid float64
	ReverbTimeHigh float64
	MeanFreePath  float64 // 4V/S
	EchoDelay     float64 // seconds, direct-to-first-reflection separation
	MinExtent     r3.Vector
	MaxExtent     r3.Vector
}

// Probe is the full result of tracing N rays from a listener position.
type Probe struct {
	Position r3.Vector
	Range    float64
	Rays     []Segment
	Stats    RoomStats

	// ReflectionPan is the energy-weighted mean direction of early
	// reflections (spec §4.8: "pan vectors are set from the
	// energy-weighted mean direction of early reflections").
	ReflectionPan r3.Vector
}

// Params bundles the quality-derived tracing parameters (spec §6:
// ray_count, max_bounces, max_transmits).
type Params struct {
	RayCount    int
	MaxBounces  int
	MaxTransmits int
	Range       float64
}

// Trace shoots Params.RayCount rays from position against bvh and derives
// room statistics (spec §4.9 steps 2-3).
func Trace(bvh *raytrace.BVH, position r3.Vector, p Params) *Probe {
	dirs := fibonacciSphere(p.RayCount)
	rays := make([]Segment, 0, p.RayCount)

	var sumR3, sumR2 float64
	var sabineLow, sabineMid, sabineHigh float64
	minExtent := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxExtent := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}

	var panSum r3.Vector
	var panWeight float64

	for _, dir := range dirs {
		ray := rayAt(position, dir)
		hit, ok := bvh.FirstHit(ray, p.Range)
		if !ok {
			continue
		}
		seg := Segment{Origin: position, Direction: dir, Length: hit.T, Material: hit.Triangle.Material}

		solidAngleElement := 4 * math.Pi / float64(len(dirs))
		r := hit.T
		sumR3 += r * r * r
		areaElement := solidAngleElement * r * r
		sumR2 += r * r

		sabineLow += areaElement * hit.Triangle.Material.Absorption(raytrace.BandLow)
		sabineMid += areaElement * hit.Triangle.Material.Absorption(raytrace.BandMid)
		sabineHigh += areaElement * hit.Triangle.Material.Absorption(raytrace.BandHigh)

		extent := hit.Point
		minExtent = minOf(minExtent, extent)
		maxExtent = maxOf(maxExtent, extent)

		if p.MaxBounces > 0 {
			normal := faceNormal(hit.Triangle)
			reflectedDir := reflect(dir, normal)
			reflectedRay := rayAt(hit.Point, reflectedDir)
			if rhit, ok := bvh.FirstHit(reflectedRay, p.Range); ok {
				rseg := Segment{Origin: hit.Point, Direction: reflectedDir, Length: rhit.T, Material: rhit.Triangle.Material}
				seg.Reflected = &rseg

				energy := 1.0 - hit.Triangle.Material.Absorption(raytrace.BandMid)
				panSum = panSum.Add(reflectedDir.Mul(energy))
				panWeight += energy
			}
		}

		seg.Transmitted = traceTransmitted(bvh, hit.Point, dir, p.MaxTransmits, p.Range-hit.T)

		rays = append(rays, seg)
	}

	solidAngleElement := 4 * math.Pi / float64(len(dirs))
	volume := (solidAngleElement / 3.0) * sumR3
	surface := solidAngleElement * sumR2

	stats := RoomStats{
		Volume:     volume,
		Surface:    surface,
		SabineLow:  sabineLow,
		SabineMid:  sabineMid,
		SabineHigh: sabineHigh,
		MinExtent:  minExtent,
		MaxExtent:  maxExtent,
	}
	if sabineLow > 0 {
		stats.ReverbTimeLow = 0.161 * volume / sabineLow
	}
	if sabineMid > 0 {
		stats.ReverbTimeMid = 0.161 * volume / sabineMid
	}
	if sabineHigh > 0 {
		stats.ReverbTimeHigh = 0.161 * volume / sabineHigh
	}
	if surface > 0 {
		stats.MeanFreePath = 4 * volume / surface
	}
	if len(rays) > 0 {
		meanR := math.Sqrt(sumR2 / float64(len(rays)))
		stats.EchoDelay = meanR / speedOfSound
	}

	pan := r3.Vector{}
	if panWeight > 0 {
		pan = panSum.Mul(1.0 / panWeight)
	}

	return &Probe{
		Position:      position,
		Range:         p.Range,
		Rays:          rays,
		Stats:         stats,
		ReflectionPan: pan,
	}
}

// traceTransmitted continues a ray straight through a hit point in the same
// direction, nesting up to remaining levels deep (spec §4.9 step 2:
// "transmitted sub-rays are stored nested"). Starting the next ray exactly
// at the previous hit point is safe because raytrace.Triangle.intersect
// only accepts hits in (epsilon, maxT], so the entering surface itself is
// never re-hit at t≈0.
func traceTransmitted(bvh *raytrace.BVH, origin, dir r3.Vector, remaining int, maxRange float64) *Segment {
	if remaining <= 0 || maxRange <= 0 {
		return nil
	}
	hit, ok := bvh.FirstHit(rayAt(origin, dir), maxRange)
	if !ok {
		return nil
	}
	seg := &Segment{Origin: origin, Direction: dir, Length: hit.T, Material: hit.Triangle.Material}
	seg.Transmitted = traceTransmitted(bvh, hit.Point, dir, remaining-1, maxRange-hit.T)
	return seg
}

func rayAt(origin, dir r3.Vector) geomx.Ray { return geomx.Ray{Origin: origin, Dir: dir} }

func faceNormal(t raytrace.Triangle) r3.Vector {
	e1 := t.B.Sub(t.A)
	e2 := t.C.Sub(t.A)
	n := e1.Cross(e2)
	if n.Norm() == 0 {
		return r3.Vector{X: 0, Y: 1, Z: 0}
	}
	return n.Normalize()
}

func reflect(dir, normal r3.Vector) r3.Vector {
	return dir.Sub(normal.Mul(2 * dir.Dot(normal)))
}

func minOf(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

func maxOf(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

// fibonacciSphere generates n approximately-evenly-distributed unit
// direction vectors (golden-spiral sampling), used for the probe's
// isotropic ray fan.
func fibonacciSphere(n int) []r3.Vector {
	if n <= 0 {
		n = 1
	}
	out := make([]r3.Vector, n)
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	denom := float64(n - 1)
	if denom == 0 {
		denom = 1
	}
	for i := 0; i < n; i++ {
		y := 1 - (float64(i)/denom)*2
		radius := math.Sqrt(math.Max(0, 1-y*y))
		theta := goldenAngle * float64(i)
		out[i] = r3.Vector{X: math.Cos(theta) * radius, Y: y, Z: math.Sin(theta) * radius}
	}
	return out
}
