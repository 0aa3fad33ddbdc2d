// Package geomx supplies the small set of geometric primitives the audio
// thread needs on top of github.com/golang/geo/r3: an orientation basis, an
// axis-aligned box, and a ray. The engine never needs full quaternion slerp
// (emitters and listeners only ever face a direction and reorient per
// frame), so orientation is kept to a forward+up basis rather than pulling
// in a full quaternion library.
package geomx

import "github.com/golang/geo/r3"

// Orientation is a right-handed forward/up basis. Right is derived, never
// stored, so the basis can't drift out of orthogonality across updates.
type Orientation struct {
	Forward r3.Vector
	Up      r3.Vector
}

// Right returns the derived right-hand vector.
func (o Orientation) Right() r3.Vector {
	return o.Forward.Cross(o.Up).Normalize()
}

// IdentityOrientation faces -Z with +Y up, the engine's default pose.
var IdentityOrientation = Orientation{
	Forward: r3.Vector{X: 0, Y: 0, Z: -1},
	Up:      r3.Vector{X: 0, Y: 1, Z: 0},
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max r3.Vector
}

// BoxFromCenterExtent builds a box centered on c with half-size extent.
func BoxFromCenterExtent(c, extent r3.Vector) Box {
	return Box{Min: c.Sub(extent), Max: c.Add(extent)}
}

// BoxFromCenterRadius builds the bounding box of a sphere, used for an
// emitter's range-bounded insertion box (spec §4.2).
func BoxFromCenterRadius(c r3.Vector, radius float64) Box {
	e := r3.Vector{X: radius, Y: radius, Z: radius}
	return BoxFromCenterExtent(c, e)
}

// Contains reports whether b fully contains other, used by the octree to
// find the deepest node whose bounds fully contain an entity (spec §4.2).
func (b Box) Contains(other Box) bool {
	return other.Min.X >= b.Min.X && other.Min.Y >= b.Min.Y && other.Min.Z >= b.Min.Z &&
		other.Max.X <= b.Max.X && other.Max.Y <= b.Max.Y && other.Max.Z <= b.Max.Z
}

// Intersects reports whether b and other overlap on every axis.
func (b Box) Intersects(other Box) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// ContainsPoint reports whether p lies within b (inclusive).
func (b Box) ContainsPoint(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Center returns the box's midpoint.
func (b Box) Center() r3.Vector { return b.Min.Add(b.Max).Mul(0.5) }

// Octant returns one of the 8 child boxes of b split at its center.
// idx bit 0 = +X half, bit 1 = +Y half, bit 2 = +Z half.
func (b Box) Octant(idx int) Box {
	c := b.Center()
	min, max := b.Min, b.Max
	if idx&1 != 0 {
		min.X = c.X
	} else {
		max.X = c.X
	}
	if idx&2 != 0 {
		min.Y = c.Y
	} else {
		max.Y = c.Y
	}
	if idx&4 != 0 {
		min.Z = c.Z
	} else {
		max.Z = c.Z
	}
	return Box{Min: min, Max: max}
}

// Ray is a half-line used by the BVH and octree for occlusion and hit tests.
type Ray struct {
	Origin, Dir r3.Vector
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Dir.Mul(t))
}

// IntersectsBox does a slab test against b, returning the near/far
// intersection distances and whether the ray hits the box within [0, maxT].
func (r Ray) IntersectsBox(b Box, maxT float64) (tMin, tMax float64, hit bool) {
	tMin, tMax = 0, maxT
	dirs := [3]float64{r.Dir.X, r.Dir.Y, r.Dir.Z}
	origins := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	mins := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	maxs := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if dirs[i] == 0 {
			if origins[i] < mins[i] || origins[i] > maxs[i] {
				return 0, 0, false
			}
			continue
		}
		invD := 1 / dirs[i]
		t0 := (mins[i] - origins[i]) * invD
		t1 := (maxs[i] - origins[i]) * invD
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, 0, false
		}
	}
	return tMin, tMax, true
}
