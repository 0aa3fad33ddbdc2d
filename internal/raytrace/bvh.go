// Package raytrace implements the per-listener ray-trace world BVH from
// spec §4.3: a triangle BVH built from nearby components, supporting
// first-hit and all-hits queries with material lookup, rebuilt whenever a
// listener's nearby-component set changes (spec §4.9).
package raytrace

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// Triangle is one face of a component's world-space box, tagged with the
// owning component's material. Components are boxes (spec §3), so each
// contributes up to 12 triangles (2 per face) when built into the BVH.
type Triangle struct {
	A, B, C  r3.Vector
	Material Material
	// ComponentID lets callers trace a hit back to the owning component,
	// e.g. for the diagnostics console's dm_capture_speaker_direct_closest.
	ComponentID uint32
}

func (t Triangle) bounds() geomx.Box {
	min := r3.Vector{X: math.Min(t.A.X, math.Min(t.B.X, t.C.X)), Y: math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)), Z: math.Min(t.A.Z, math.Min(t.B.Z, t.C.Z))}
	max := r3.Vector{X: math.Max(t.A.X, math.Max(t.B.X, t.C.X)), Y: math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)), Z: math.Max(t.A.Z, math.Max(t.B.Z, t.C.Z))}
	return geomx.Box{Min: min, Max: max}
}

func (t Triangle) centroid() r3.Vector {
	return t.A.Add(t.B).Add(t.C).Mul(1.0 / 3.0)
}

// intersect implements the Möller–Trumbore ray/triangle test. Returns the
// hit distance and whether it landed within (epsilon, maxT].
func (t Triangle) intersect(ray geomx.Ray, maxT float64) (float64, bool) {
	const eps = 1e-9
	edge1 := t.B.Sub(t.A)
	edge2 := t.C.Sub(t.A)
	h := ray.Dir.Cross(edge2)
	a := edge1.Dot(h)
	if a > -eps && a < eps {
		return 0, false
	}
	f := 1.0 / a
	s := ray.Origin.Sub(t.A)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(edge1)
	v := f * ray.Dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	dist := f * edge2.Dot(q)
	if dist <= eps || dist > maxT {
		return 0, false
	}
	return dist, true
}

// Hit is one ray/triangle intersection result.
type Hit struct {
	T        float64
	Point    r3.Vector
	Triangle Triangle
}

type bvhNode struct {
	box         geomx.Box
	left, right *bvhNode
	triangles   []Triangle // non-empty only on leaves
}

// BVH is an immutable, per-build triangle acceleration structure. Rebuild
// it (via Build) whenever the listener's nearby-component set changes;
// queries are read-only and safe to call concurrently from the probe
// worker pool (spec §5).
type BVH struct {
	root *bvhNode
}

const leafSize = 4

// Build constructs a BVH over the given triangles using a median-split on
// the axis of greatest extent, recursing until a leaf holds <= leafSize
// triangles. An empty triangle list yields a BVH that never reports a hit.
func Build(triangles []Triangle) *BVH {
	if len(triangles) == 0 {
		return &BVH{root: &bvhNode{}}
	}
	ts := append([]Triangle(nil), triangles...)
	return &BVH{root: buildNode(ts)}
}

func buildNode(ts []Triangle) *bvhNode {
	box := ts[0].bounds()
	for _, t := range ts[1:] {
		box = union(box, t.bounds())
	}
	if len(ts) <= leafSize {
		return &bvhNode{box: box, triangles: ts}
	}

	axis := longestAxis(box)
	sort.Slice(ts, func(i, j int) bool {
		return axisValue(ts[i].centroid(), axis) < axisValue(ts[j].centroid(), axis)
	})
	mid := len(ts) / 2
	return &bvhNode{
		box:   box,
		left:  buildNode(ts[:mid]),
		right: buildNode(ts[mid:]),
	}
}

func union(a, b geomx.Box) geomx.Box {
	return geomx.Box{
		Min: r3.Vector{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y), Z: math.Min(a.Min.Z, b.Min.Z)},
		Max: r3.Vector{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y), Z: math.Max(a.Max.Z, b.Max.Z)},
	}
}

func longestAxis(b geomx.Box) int {
	d := b.Max.Sub(b.Min)
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

func axisValue(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// FirstHit returns the closest intersection along ray within (0, maxT].
func (b *BVH) FirstHit(ray geomx.Ray, maxT float64) (Hit, bool) {
	best := Hit{T: maxT}
	found := false
	firstHit(b.root, ray, maxT, &best, &found)
	return best, found
}

func firstHit(n *bvhNode, ray geomx.Ray, maxT float64, best *Hit, found *bool) {
	if n == nil {
		return
	}
	if len(n.triangles) == 0 && n.left == nil && n.right == nil {
		return // empty BVH sentinel
	}
	if _, _, hit := ray.IntersectsBox(n.box, best.T); !hit {
		return
	}
	if n.triangles != nil {
		for _, t := range n.triangles {
			if d, ok := t.intersect(ray, best.T); ok {
				best.T = d
				best.Point = ray.At(d)
				best.Triangle = t
				*found = true
			}
		}
		return
	}
	firstHit(n.left, ray, maxT, best, found)
	firstHit(n.right, ray, maxT, best, found)
}

// AllHits returns every surface crossing along ray within (0, maxT], sorted
// by ascending distance, used by the environment tracker's direct-path
// transmission product and by SegmentBlocked (spec §4.3, §4.8). A ray
// through the shared edge of two triangles of one component intersects
// both at the same distance; that crossing is reported once.
func (b *BVH) AllHits(ray geomx.Ray, maxT float64) []Hit {
	var out []Hit
	allHits(b.root, ray, maxT, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].T < out[j].T })
	deduped := out[:0]
	for _, h := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Triangle.ComponentID == h.Triangle.ComponentID && h.T-deduped[n-1].T <= 1e-9 {
			continue
		}
		deduped = append(deduped, h)
	}
	return deduped
}

func allHits(n *bvhNode, ray geomx.Ray, maxT float64, out *[]Hit) {
	if n == nil {
		return
	}
	if len(n.triangles) == 0 && n.left == nil && n.right == nil {
		return
	}
	if _, _, hit := ray.IntersectsBox(n.box, maxT); !hit {
		return
	}
	if n.triangles != nil {
		for _, t := range n.triangles {
			if d, ok := t.intersect(ray, maxT); ok {
				*out = append(*out, Hit{T: d, Point: ray.At(d), Triangle: t})
			}
		}
		return
	}
	allHits(n.left, ray, maxT, out)
	allHits(n.right, ray, maxT, out)
}

// SegmentBlocked reports whether any triangle fully blocks (zero
// transmission on every band) the segment from a to b — a direct-path
// occlusion test (spec §4.8).
func (b *BVH) SegmentBlocked(a, c r3.Vector) bool {
	d := c.Sub(a)
	dist := d.Norm()
	if dist == 0 {
		return false
	}
	ray := geomx.Ray{Origin: a, Dir: d.Mul(1 / dist)}
	for _, h := range b.AllHits(ray, dist) {
		m := h.Triangle.Material
		if m.TransmissionLow == 0 && m.TransmissionMid == 0 && m.TransmissionHigh == 0 {
			return true
		}
	}
	return false
}

// BoxTriangles returns the 12 triangles (2 per face) of an axis-aligned box,
// tagged with material and componentID, used by callers to turn a
// component's world extent into BVH input (spec §4.3: "components are
// boxes").
func BoxTriangles(box geomx.Box, material Material, componentID uint32) []Triangle {
	m := box.Min
	x := box.Max
	corners := [8]r3.Vector{
		{X: m.X, Y: m.Y, Z: m.Z}, {X: x.X, Y: m.Y, Z: m.Z},
		{X: x.X, Y: x.Y, Z: m.Z}, {X: m.X, Y: x.Y, Z: m.Z},
		{X: m.X, Y: m.Y, Z: x.Z}, {X: x.X, Y: m.Y, Z: x.Z},
		{X: x.X, Y: x.Y, Z: x.Z}, {X: m.X, Y: x.Y, Z: x.Z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, // -Z
		{4, 5, 6, 7}, // +Z
		{0, 1, 5, 4}, // -Y
		{3, 2, 6, 7}, // +Y
		{0, 3, 7, 4}, // -X
		{1, 2, 6, 5}, // +X
	}
	out := make([]Triangle, 0, 12)
	for _, f := range faces {
		out = append(out,
			Triangle{A: corners[f[0]], B: corners[f[1]], C: corners[f[2]], Material: material, ComponentID: componentID},
			Triangle{A: corners[f[0]], B: corners[f[2]], C: corners[f[3]], Material: material, ComponentID: componentID},
		)
	}
	return out
}
