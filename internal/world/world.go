// Package world implements the top-level aggregate (spec §4.10, C10):
// octree membership for components/emitters/listeners/meters, the
// derived all-mic layer mask, per-kind dirty lists, and the
// audio-thread-side synchronize pass that drains them.
package world

import (
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/intuitionamiga/auralcore/internal/emitter"
	"github.com/intuitionamiga/auralcore/internal/environment"
	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/probe"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
	"github.com/intuitionamiga/auralcore/internal/spatial"
)

// Listener is a microphone-equivalent tracked position with its own layer
// mask and probe cache (spec §4.9: "one [cache] per listener and per
// meter").
type Listener struct {
	ID        spatial.ID
	Position  r3.Vector
	LayerMask uint64
	Probes    *probe.Cache
}

// Meter is a measurement point; identical membership rules to a listener.
type Meter struct {
	ID        spatial.ID
	Position  r3.Vector
	LayerMask uint64
	Probes    *probe.Cache
}

// Component is an occluding/reflecting piece of static scene geometry.
// Its Material drives the BVH triangles generated for it (spec §4.2, §4.3:
// a component is the unit the direct-path occlusion and probe ray-tracing
// both query); a component is approximated as a closed box for ray-tracing
// purposes, matching the granularity spec.md itself works at.
type Component struct {
	ID spatial.ID

	// UUID is the component's stable, externally-referenced identity
	// (spec §3: cold entities get a uuid.UUID rather than a branch-free
	// integer handle, since components are authored/debugged by name
	// across editor sessions, not just looked up on the hot path).
	// AddComponent assigns a random one when it is left as the zero UUID.
	UUID uuid.UUID

	Box       geomx.Box
	LayerMask uint64
	Material  raytrace.Material
}

// Shadow is the main-thread-writable mirror a dirty entity copies itself
// into on synchronize (spec §9's Shadow[T] mirror-state pattern); world
// only needs the position/mask projection used for octree membership,
// since Emitter itself already carries the full per-type shadow state
// consumed directly during AdvanceFrame.
type Shadow struct {
	Position  r3.Vector
	Range     float64
	LayerMask uint64
}

// World is the container of components, emitters, listeners and meters
// (spec §4.10).
type World struct {
	octree *spatial.Octree

	components map[spatial.ID]*Component
	emitters   map[spatial.ID]*emitter.Emitter
	listeners  map[spatial.ID]*Listener
	meters     map[spatial.ID]*Meter

	allMicLayerMask uint64

	dirtyComponents map[spatial.ID]Shadow
	dirtyEmitters   map[spatial.ID]Shadow
	dirtyListeners  map[spatial.ID]Shadow
	dirtyMeters     map[spatial.ID]Shadow

	probeCapacity int

	bvh *raytrace.BVH
}

// New builds an empty world with an octree of the given root half-size
// (spec §4.2) and a default per-listener/meter probe cache capacity.
func New(octreeHalfSize float64, probeCacheCapacity int) *World {
	return &World{
		octree:          spatial.New(octreeHalfSize),
		components:      map[spatial.ID]*Component{},
		emitters:        map[spatial.ID]*emitter.Emitter{},
		listeners:       map[spatial.ID]*Listener{},
		meters:          map[spatial.ID]*Meter{},
		dirtyComponents: map[spatial.ID]Shadow{},
		dirtyEmitters:   map[spatial.ID]Shadow{},
		dirtyListeners:  map[spatial.ID]Shadow{},
		dirtyMeters:     map[spatial.ID]Shadow{},
		probeCapacity:   probeCacheCapacity,
	}
}

// Octree exposes the underlying index for the environment/probe passes.
func (w *World) Octree() *spatial.Octree { return w.octree }

// BVH returns the ray-traceable geometry built from every component
// currently within the all-mic layer mask, rebuilt whenever component
// membership changes. Used by C8 (direct-path occlusion) and C9 (probe
// tracing). Returns an empty (never nil) BVH if the world has no
// components yet.
func (w *World) BVH() *raytrace.BVH {
	if w.bvh == nil {
		w.rebuildBVH()
	}
	return w.bvh
}

func (w *World) rebuildBVH() {
	var tris []raytrace.Triangle
	for _, c := range w.components {
		if c.LayerMask&w.allMicLayerMask == 0 {
			continue
		}
		tris = append(tris, raytrace.BoxTriangles(c.Box, c.Material, uint32(c.ID))...)
	}
	w.bvh = raytrace.Build(tris)
}

// AllMicLayerMask is the bitwise OR of every listener and meter layer mask
// (spec §3, §4.10). Components outside this mask are excluded from the
// octree.
func (w *World) AllMicLayerMask() uint64 { return w.allMicLayerMask }

// AddComponent inserts a new static scene component, recomputing the
// all-mic mask only if this is a listener/meter add (components never
// change it themselves).
func (w *World) AddComponent(c *Component) {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	w.components[c.ID] = c
	if c.LayerMask&w.allMicLayerMask != 0 {
		w.octree.InsertComponent(c.ID, c.Box, c.LayerMask)
	}
	w.bvh = nil
}

// RemoveComponent deletes a component from the world and octree.
func (w *World) RemoveComponent(id spatial.ID) {
	delete(w.components, id)
	delete(w.dirtyComponents, id)
	w.octree.Remove(spatial.KindComponent, id)
	w.bvh = nil
}

// AddEmitter inserts a new emitter, tracked both in the world map and the
// spatial index.
func (w *World) AddEmitter(id spatial.ID, e *emitter.Emitter) {
	w.emitters[id] = e
	w.octree.InsertEmitter(id, e.Position, e.Range, e.LayerMask)
}

// RemoveEmitter deletes an emitter.
func (w *World) RemoveEmitter(id spatial.ID) {
	delete(w.emitters, id)
	delete(w.dirtyEmitters, id)
	w.octree.Remove(spatial.KindEmitter, id)
}

// AddListener inserts a listener, recomputing the all-mic layer mask and,
// per spec §4.10, clearing and re-asserting every component in the octree
// since the set of visible components may have changed.
func (w *World) AddListener(l *Listener) {
	if l.Probes == nil {
		l.Probes = probe.NewCache(w.probeCapacity)
	}
	w.listeners[l.ID] = l
	w.octree.InsertListener(l.ID, l.Position, l.LayerMask)
	w.recomputeAllMicMask()
}

// RemoveListener deletes a listener and recomputes the all-mic mask.
func (w *World) RemoveListener(id spatial.ID) {
	delete(w.listeners, id)
	delete(w.dirtyListeners, id)
	w.octree.Remove(spatial.KindListener, id)
	w.recomputeAllMicMask()
}

// AddMeter inserts a meter, identical membership rules to a listener.
func (w *World) AddMeter(m *Meter) {
	if m.Probes == nil {
		m.Probes = probe.NewCache(w.probeCapacity)
	}
	w.meters[m.ID] = m
	w.octree.InsertMeter(m.ID, m.Position, m.LayerMask)
	w.recomputeAllMicMask()
}

// RemoveMeter deletes a meter and recomputes the all-mic mask.
func (w *World) RemoveMeter(id spatial.ID) {
	delete(w.meters, id)
	delete(w.dirtyMeters, id)
	w.octree.Remove(spatial.KindMeter, id)
	w.recomputeAllMicMask()
}

// recomputeAllMicMask ORs every listener+meter layer mask (spec §3) and,
// on change, clears every component from the octree so each one
// re-asserts itself against the new mask (spec §4.10).
func (w *World) recomputeAllMicMask() {
	var mask uint64
	for _, l := range w.listeners {
		mask |= l.LayerMask
	}
	for _, m := range w.meters {
		mask |= m.LayerMask
	}
	if mask == w.allMicLayerMask {
		return
	}
	w.allMicLayerMask = mask
	w.octree.ClearComponents()
	for _, c := range w.components {
		if c.LayerMask&mask != 0 {
			w.octree.InsertComponent(c.ID, c.Box, c.LayerMask)
		}
	}
	w.bvh = nil
}

// MarkComponentDirty queues a main-thread shadow write for synchronize
// (spec §4.10's per-kind sync lists).
func (w *World) MarkComponentDirty(id spatial.ID, s Shadow) { w.dirtyComponents[id] = s }

// MarkEmitterDirty queues an emitter shadow write.
func (w *World) MarkEmitterDirty(id spatial.ID, s Shadow) { w.dirtyEmitters[id] = s }

// MarkListenerDirty queues a listener shadow write.
func (w *World) MarkListenerDirty(id spatial.ID, s Shadow) { w.dirtyListeners[id] = s }

// MarkMeterDirty queues a meter shadow write.
func (w *World) MarkMeterDirty(id spatial.ID, s Shadow) { w.dirtyMeters[id] = s }

// PrepareProcessAudio drains every per-kind dirty list, applying each
// entity's queued shadow write and re-asserting its octree membership
// (spec §4.10: "drain per-kind sync lists, triggering each entity's
// synchronize() which copies from its main-thread mirror"). Must only be
// called from the audio thread between sync_in and the next sync_out
// (spec §5 ordering guarantees).
func (w *World) PrepareProcessAudio() {
	if len(w.dirtyComponents) > 0 {
		w.bvh = nil
	}
	for id, s := range w.dirtyComponents {
		if c, ok := w.components[id]; ok {
			c.Box = geomx.BoxFromCenterRadius(s.Position, s.Range)
			c.LayerMask = s.LayerMask
			if c.LayerMask&w.allMicLayerMask != 0 {
				w.octree.InsertComponent(id, c.Box, c.LayerMask)
			} else {
				w.octree.Remove(spatial.KindComponent, id)
			}
		}
	}
	for id := range w.dirtyComponents {
		delete(w.dirtyComponents, id)
	}

	for id, s := range w.dirtyEmitters {
		if e, ok := w.emitters[id]; ok {
			e.Position = s.Position
			e.Range = s.Range
			e.LayerMask = s.LayerMask
			w.octree.UpdateEmitter(id, e.Position, e.Range, e.LayerMask)
		}
	}
	for id := range w.dirtyEmitters {
		delete(w.dirtyEmitters, id)
	}

	for id, s := range w.dirtyListeners {
		if l, ok := w.listeners[id]; ok {
			l.Position = s.Position
			l.LayerMask = s.LayerMask
			w.octree.InsertListener(id, l.Position, l.LayerMask)
		}
	}
	for id := range w.dirtyListeners {
		delete(w.dirtyListeners, id)
	}

	for id, s := range w.dirtyMeters {
		if m, ok := w.meters[id]; ok {
			m.Position = s.Position
			m.LayerMask = s.LayerMask
			w.octree.InsertMeter(id, m.Position, m.LayerMask)
		}
	}
	for id := range w.dirtyMeters {
		delete(w.dirtyMeters, id)
	}
}

// ActiveEmitters returns every emitter within range of any listener's
// position on the given layer mask (spec §5 step (c): "find active
// emitters"), deduplicated.
func (w *World) ActiveEmitters() []*emitter.Emitter {
	seen := map[spatial.ID]struct{}{}
	var out []*emitter.Emitter
	for _, l := range w.listeners {
		ids := w.octree.FindSpeakers(l.Position, l.LayerMask, nil)
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if e, ok := w.emitters[id]; ok {
				out = append(out, e)
			}
		}
	}
	return out
}

// Components returns every static scene component, for diagnostics.
func (w *World) Components() []*Component {
	out := make([]*Component, 0, len(w.components))
	for _, c := range w.components {
		out = append(out, c)
	}
	return out
}

// Listeners returns every listener, for the per-listener probe/environment
// pass.
func (w *World) Listeners() []*Listener {
	out := make([]*Listener, 0, len(w.listeners))
	for _, l := range w.listeners {
		out = append(out, l)
	}
	return out
}

// Environments holds one environment.Tracker per (listener, emitter) pair,
// created lazily; owned by the world so trackers survive across frames for
// their smoothing state.
type Environments struct {
	trackers map[[2]spatial.ID]*environment.Tracker
}

// NewEnvironments creates an empty per-pair tracker table.
func NewEnvironments() *Environments {
	return &Environments{trackers: map[[2]spatial.ID]*environment.Tracker{}}
}

// Tracker returns the tracker for (listenerID, emitterID), creating one on
// first use.
func (e *Environments) Tracker(listenerID, emitterID spatial.ID) *environment.Tracker {
	key := [2]spatial.ID{listenerID, emitterID}
	t, ok := e.trackers[key]
	if !ok {
		t = environment.New()
		e.trackers[key] = t
	}
	return t
}

// Drop removes the tracker of one (listener, emitter) pair, if present.
func (e *Environments) Drop(listenerID, emitterID spatial.ID) {
	delete(e.trackers, [2]spatial.ID{listenerID, emitterID})
}
