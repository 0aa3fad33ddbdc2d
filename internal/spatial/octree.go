// Package spatial implements the octree of spec §4.2: a dynamic spatial
// index over components, emitters, listeners and meters, with
// extent-bounded insert/remove and range/layer-mask-filtered visits.
//
// Every node's box is the exact octant of its parent, split at the
// parent's center, so sibling bounds do not overlap (the tree is not a
// loose octree). An entity is placed at the deepest node whose box *fully
// contains* the entity's own bounding box, so it lives in exactly one
// node; an entity that straddles a split plane stays at the parent
// however small it is, so placement depth does not follow entity size.
package spatial

import (
	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// Kind distinguishes the four entity lists a node carries.
type Kind int

const (
	KindComponent Kind = iota
	KindEmitter
	KindListener
	KindMeter
)

// ID is an opaque per-kind identifier; kind+ID together are globally unique.
// IDs are allocated independently per kind (AllocID), so the same numeric
// ID can and does belong to entities of different kinds simultaneously —
// every entity lookup must key on (kind, id), never on id alone.
type ID uint32

// entityKey is the only safe node-map key: IDs repeat across kinds.
type entityKey struct {
	kind Kind
	id   ID
}

type entity struct {
	id        ID
	kind      Kind
	box       geomx.Box
	center    r3.Vector
	rangeSq   float64 // for emitters: range^2, used by FindSpeakers
	layerMask uint64
}

const maxDepth = 8

// node is one octree cell. Children are allocated lazily and are kept
// after they become empty; remove does not prune nodes.
type node struct {
	box      geomx.Box
	depth    int
	children [8]*node
	entities map[entityKey]*entity
}

func newNode(box geomx.Box, depth int) *node {
	return &node{box: box, depth: depth, entities: make(map[entityKey]*entity)}
}

// Octree is an octree with a fixed root half-size, per spec §4.2.
type Octree struct {
	root     *node
	index    map[Kind]map[ID]*entity // live entities per kind; remove still walks the tree to find the owning node
	nextID   map[Kind]ID
}

// New builds an octree whose root spans [-halfSize, +halfSize] on every
// axis (spec: "fixed root half-size, half the world size").
func New(halfSize float64) *Octree {
	box := geomx.Box{
		Min: r3.Vector{X: -halfSize, Y: -halfSize, Z: -halfSize},
		Max: r3.Vector{X: halfSize, Y: halfSize, Z: halfSize},
	}
	return &Octree{
		root: newNode(box, 0),
		index: map[Kind]map[ID]*entity{
			KindComponent: {},
			KindEmitter:   {},
			KindListener:  {},
			KindMeter:     {},
		},
		nextID: map[Kind]ID{},
	}
}

// AllocID returns a fresh, never-reused ID for the given kind.
func (o *Octree) AllocID(kind Kind) ID {
	o.nextID[kind]++
	return o.nextID[kind]
}

// InsertComponent inserts a component's world-space oriented extent. box is
// the component's axis-aligned world extent (spec §4.2).
func (o *Octree) InsertComponent(id ID, box geomx.Box, layerMask uint64) {
	o.insert(&entity{id: id, kind: KindComponent, box: box, center: box.Center(), layerMask: layerMask})
}

// InsertEmitter inserts an emitter whose insertion box is position +/- range
// (spec §4.2), recording range^2 for FindSpeakers' distance test.
func (o *Octree) InsertEmitter(id ID, position r3.Vector, rng float64, layerMask uint64) {
	box := geomx.BoxFromCenterRadius(position, rng)
	o.insert(&entity{id: id, kind: KindEmitter, box: box, center: position, rangeSq: rng * rng, layerMask: layerMask})
}

// InsertListener inserts a listener at a point (zero-extent box).
func (o *Octree) InsertListener(id ID, position r3.Vector, layerMask uint64) {
	box := geomx.Box{Min: position, Max: position}
	o.insert(&entity{id: id, kind: KindListener, box: box, center: position, layerMask: layerMask})
}

// InsertMeter inserts a meter at a point, identical placement rules to a listener.
func (o *Octree) InsertMeter(id ID, position r3.Vector, layerMask uint64) {
	box := geomx.Box{Min: position, Max: position}
	o.insert(&entity{id: id, kind: KindMeter, box: box, center: position, layerMask: layerMask})
}

func (o *Octree) insert(e *entity) {
	o.removeFromIndex(e.kind, e.id) // Update() calls insert again; make it idempotent
	n := o.root
	for n.depth < maxDepth {
		childIdx, child := fittingChild(n, e.box)
		if child == nil {
			break
		}
		if n.children[childIdx] == nil {
			n.children[childIdx] = newNode(child, n.depth+1)
		}
		n = n.children[childIdx]
	}
	n.entities[entityKey{e.kind, e.id}] = e
	o.index[e.kind][e.id] = e
}

// fittingChild returns the octant of n that fully contains box, or (-1, nil)
// if box doesn't fit in any single octant (it stays at n).
func fittingChild(n *node, box geomx.Box) (int, *geomx.Box) {
	for i := 0; i < 8; i++ {
		oct := n.box.Octant(i)
		if oct.Contains(box) {
			return i, &oct
		}
	}
	return -1, nil
}

// Remove deletes the entity with the given kind and ID, if present.
func (o *Octree) Remove(kind Kind, id ID) {
	o.removeFromIndex(kind, id)
}

func (o *Octree) removeFromIndex(kind Kind, id ID) {
	e, ok := o.index[kind][id]
	if !ok {
		return
	}
	delete(o.index[kind], id)
	removeFromNode(o.root, e)
}

func removeFromNode(n *node, e *entity) bool {
	key := entityKey{e.kind, e.id}
	if _, ok := n.entities[key]; ok {
		delete(n.entities, key)
		return true
	}
	for _, c := range n.children {
		if c == nil {
			continue
		}
		if removeFromNode(c, e) {
			return true
		}
	}
	return false
}

// Update repositions an existing entity; equivalent to Remove+Insert.
func (o *Octree) UpdateEmitter(id ID, position r3.Vector, rng float64, layerMask uint64) {
	o.InsertEmitter(id, position, rng, layerMask)
}

// ClearComponents fast-clears every component from the tree, used when the
// world's all-mic layer mask changes and every component must re-assert
// itself (spec §4.2, §4.10).
func (o *Octree) ClearComponents() {
	for id := range o.index[KindComponent] {
		delete(o.index[KindComponent], id)
	}
	clearKindFromNode(o.root, KindComponent)
}

func clearKindFromNode(n *node, kind Kind) {
	for key := range n.entities {
		if key.kind == kind {
			delete(n.entities, key)
		}
	}
	for _, c := range n.children {
		if c != nil {
			clearKindFromNode(c, kind)
		}
	}
}

// VisitColliding descends only nodes whose extent intersects [min,max] and
// calls fn once for every entity (of any kind) whose own box also
// intersects the query box.
func (o *Octree) VisitColliding(min, max r3.Vector, fn func(kind Kind, id ID)) {
	box := geomx.Box{Min: min, Max: max}
	visitColliding(o.root, box, fn)
}

func visitColliding(n *node, box geomx.Box, fn func(Kind, ID)) {
	if !n.box.Intersects(box) {
		return
	}
	for _, e := range n.entities {
		if e.box.Intersects(box) {
			fn(e.kind, e.id)
		}
	}
	for _, c := range n.children {
		if c != nil {
			visitColliding(c, box, fn)
		}
	}
}

// FindSpeakers appends every emitter whose layer_mask intersects layerMask
// and whose squared distance from center is <= the emitter's own range^2
// (spec §4.2).
func (o *Octree) FindSpeakers(center r3.Vector, layerMask uint64, out []ID) []ID {
	return findSpeakers(o.root, center, layerMask, out)
}

func findSpeakers(n *node, center r3.Vector, layerMask uint64, out []ID) []ID {
	// No node-level pruning: every node is visited and each emitter is
	// tested by its own distance and range.
	for _, e := range n.entities {
		if e.kind != KindEmitter {
			continue
		}
		if e.layerMask&layerMask == 0 {
			continue
		}
		if center.Sub(e.center).Norm2() <= e.rangeSq {
			out = append(out, e.id)
		}
	}
	for _, c := range n.children {
		if c != nil {
			out = findSpeakers(c, center, layerMask, out)
		}
	}
	return out
}

// RayHitsComponent returns the IDs of every component in the octree whose
// box intersects ray within [0, maxT] and whose layer mask intersects
// layerMask; used as the direct-path occlusion broad-phase (spec §4.2).
func (o *Octree) RayHitsComponent(ray geomx.Ray, layerMask uint64, maxT float64) []ID {
	var out []ID
	rayHitsComponent(o.root, ray, layerMask, maxT, &out)
	return out
}

func rayHitsComponent(n *node, ray geomx.Ray, layerMask uint64, maxT float64, out *[]ID) {
	if _, _, hit := ray.IntersectsBox(n.box, maxT); !hit {
		return
	}
	for _, e := range n.entities {
		if e.kind != KindComponent {
			continue
		}
		if e.layerMask&layerMask == 0 {
			continue
		}
		if _, _, hit := ray.IntersectsBox(e.box, maxT); hit {
			*out = append(*out, e.id)
		}
	}
	for _, c := range n.children {
		if c != nil {
			rayHitsComponent(c, ray, layerMask, maxT, out)
		}
	}
}

// Count returns the number of live entities of the given kind, for tests
// and the diagnostics console.
func (o *Octree) Count(kind Kind) int { return len(o.index[kind]) }
