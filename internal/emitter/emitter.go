// Package emitter implements the per-emitter ("speaker") playback state
// machine from spec §4.7 (C7): streaming-queue refill, underrun
// detection/recovery, and position-offset simulation while unbound.
package emitter

import (
	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/asset"
	"github.com/intuitionamiga/auralcore/internal/backend"
	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/pool"
)

// PlayState mirrors spec §4.7's three-state machine.
type PlayState int

const (
	Stopped PlayState = iota
	Paused
	Playing
)

// EmitterType distinguishes a point emitter from a directional one (spec
// §3's emitter attribute list).
type EmitterType int

const (
	TypePoint EmitterType = iota
	TypeDirectional
)

// streaming buffer parameters (spec §4.7): count × duration.
const (
	soundBufferCount  = 5
	soundBufferMs     = 200
	videoBufferCount  = 5
	videoBufferMs     = 200
	synthBufferCount  = 2
	synthBufferMs     = 50
)

func streamingParams(variant asset.SampleSource) (count int, bufMs float64) {
	switch variant.(type) {
	case *asset.Synth:
		return synthBufferCount, synthBufferMs
	case *asset.VideoStream:
		return videoBufferCount, videoBufferMs
	default:
		return soundBufferCount, soundBufferMs
	}
}

type dirty struct {
	geometry      bool
	gain          bool
	distanceModel bool
	pitch         bool
	looping       bool
}

// Emitter is one "speaker": a source variant plus spatial/playback state.
type Emitter struct {
	ID uint64

	Variant asset.SampleSource // nil == source:none

	Position    r3.Vector
	Velocity    r3.Vector
	Orientation geomx.Orientation
	LayerMask   uint64
	Type        EmitterType
	Range       float64
	Volume      float64
	Muted       bool
	Looping     bool
	PlaySpeed   float64
	PlayFrom    int64
	PlayTo      int64
	Positionless bool

	PlayState    PlayState
	PlayPosition int64
	PlayFinished bool

	sampleRate int

	bound             pool.Handle
	isBound           bool
	queueSampleOffset int64
	queuedCount       int
	lastProcessed     int64

	dirtyFlags  dirty
	distModel   backend.DistanceModel
	directGain  float64
	underrunLog int

	resolveFn func(pool.Handle) (backend.Handle, bool)
}

// UnderrunCount is the number of buffer underruns observed over the
// emitter's lifetime (Bind does not reset it),
// surfaced for diagnostics (spec S2: "logs 'Buffer Underrun'").
func (e *Emitter) UnderrunCount() int { return e.underrunLog }

// SetDirectGain records the direct-path gain computed by the environment
// tracker (C8) and marks it dirty for the next backend sync.
func (e *Emitter) SetDirectGain(gain float64) {
	e.directGain = gain
	e.dirtyFlags.gain = true
}

// DirectGain returns the last gain set by SetDirectGain (used by the
// effect-slot pool's gain compensation, spec §4.6).
func (e *Emitter) DirectGain() float64 { return e.directGain }

// SetDistanceModel marks the backend distance-model knob dirty (spec
// §4.1: auralcore always uses DistanceInverseClamped since it computes
// its own gain upstream, but the knob is still synced per §6).
func (e *Emitter) SetDistanceModel(m backend.DistanceModel) {
	e.distModel = m
	e.dirtyFlags.distanceModel = true
}

// SetResolver wires the handle-resolution function (normally
// source.Pool.BackendHandle) used to turn e.bound into a live
// backend.Handle each frame.
func (e *Emitter) SetResolver(fn func(pool.Handle) (backend.Handle, bool)) {
	e.resolveFn = fn
}

// New creates an emitter sourced by variant (nil for source:none), whose
// sample rate is used to convert elapsed wall-clock time into sample
// counts (spec §4.7 step 1).
func New(id uint64, variant asset.SampleSource, sampleRate int) *Emitter {
	return &Emitter{
		ID:         id,
		Variant:    variant,
		PlaySpeed:  1.0,
		sampleRate: sampleRate,
		Volume:     1.0,
	}
}

// Bind attaches a hardware source handle obtained from a source.Pool.
func (e *Emitter) Bind(h pool.Handle) {
	e.bound = h
	e.isBound = true
	e.dirtyFlags = dirty{geometry: true, gain: true, distanceModel: true, pitch: true, looping: true}
}

// Unbind drops the hardware source association; the pool-level unbind
// (stopping playback, clearing filter/aux) is the caller's job via
// source.Pool.Unbind.
func (e *Emitter) Unbind() {
	e.isBound = false
	e.bound = pool.Handle{}
	e.queuedCount = 0
	e.queueSampleOffset = 0
}

// IsBound reports whether a hardware source is currently assigned.
func (e *Emitter) IsBound() bool { return e.isBound }

// MarkDirty flags geometry/gain/etc. for reapplication to the backend on
// the next AdvanceFrame (spec §4.7 step 3).
func (e *Emitter) MarkDirty() {
	e.dirtyFlags = dirty{geometry: true, gain: true, distanceModel: true, pitch: true, looping: true}
}

// AdvanceFrame runs one audio-thread pass for this emitter (spec §4.7
// steps 1-4). be is the active backend, used only when the emitter is
// bound; elapsedSeconds is the frame's elapsed wall-clock time already
// including any fast-pass carryover (spec §4.11, invariant 6/S6).
func (e *Emitter) AdvanceFrame(be backend.Backend, elapsedSeconds float64) error {
	if e.PlayState != Playing || e.PlayFinished {
		return nil
	}

	if !e.isBound {
		e.advancePosition(elapsedSeconds)
		return nil
	}

	handle, ok := e.resolveHandle()
	if !ok {
		e.isBound = false
		return nil
	}

	status, err := be.SourceStatus(handle)
	if err != nil {
		return err
	}

	streaming := e.isStreaming()
	if status.State == backend.StateStopped {
		if streaming && e.PlayPosition < e.PlayTo {
			e.underrunLog++
			if err := e.refill(be, handle, true); err != nil {
				return err
			}
			return nil
		}
		if e.PlayPosition >= e.PlayTo {
			e.PlayFinished = true
			return nil
		}
	}

	if err := e.applyDirty(be, handle); err != nil {
		return err
	}

	if streaming {
		// Position while bound and streaming is derived from the backend's
		// processed-buffer count rather than wall-clock time (spec §4.7
		// step 4: "track queue_sample_offset to map backend's per-source
		// sample counter to absolute play_position").
		_, bufMs := streamingParams(e.Variant)
		samplesPerBuffer := int64(float64(e.sampleRate) * bufMs / 1000.0)
		deltaBuffers := int64(status.ProcessedCount) - e.lastProcessed
		if deltaBuffers > 0 {
			e.PlayPosition += deltaBuffers * samplesPerBuffer
		}
		e.lastProcessed = int64(status.ProcessedCount)
		if !e.Looping && e.PlayPosition >= e.PlayTo {
			e.PlayFinished = true
			return nil
		}
		return e.refill(be, handle, false)
	}

	// Resident, non-streaming playback: approximate position by elapsed
	// wall-clock time, since the backend doesn't expose a mid-buffer
	// sample offset for a single static-buffer source.
	e.advancePosition(elapsedSeconds)
	return nil
}

func (e *Emitter) resolveHandle() (backend.Handle, bool) {
	if e.resolveFn != nil {
		return e.resolveFn(e.bound)
	}
	return backend.Handle(0), e.isBound
}

func (e *Emitter) advancePosition(elapsedSeconds float64) {
	delta := int64(float64(e.sampleRate) * elapsedSeconds * e.PlaySpeed)
	e.PlayPosition += delta
	if !e.Looping && e.PlayPosition >= e.PlayTo {
		e.PlayFinished = true
	} else if e.Looping && e.PlayTo > e.PlayFrom && e.PlayPosition >= e.PlayTo {
		span := e.PlayTo - e.PlayFrom
		e.PlayPosition = e.PlayFrom + (e.PlayPosition-e.PlayFrom)%span
	}
}

func (e *Emitter) isStreaming() bool {
	if s, ok := e.Variant.(*asset.Sound); ok {
		return s.Streaming()
	}
	return e.Variant != nil
}

func (e *Emitter) applyDirty(be backend.Backend, h backend.Handle) error {
	if e.dirtyFlags.geometry {
		if !e.Positionless {
			if err := be.SetSourcePosition(h, e.Position); err != nil {
				return err
			}
			if err := be.SetSourceVelocity(h, e.Velocity); err != nil {
				return err
			}
			if err := be.SetSourceOrientation(h, e.Orientation); err != nil {
				return err
			}
		}
		e.dirtyFlags.geometry = false
	}
	if e.dirtyFlags.gain {
		gain := e.directGain
		if e.Muted {
			gain = 0
		}
		if err := be.SetSourceGain(h, gain); err != nil {
			return err
		}
		e.dirtyFlags.gain = false
	}
	if e.dirtyFlags.distanceModel {
		if err := be.SetSourceDistanceModel(h, e.distModel); err != nil {
			return err
		}
		e.dirtyFlags.distanceModel = false
	}
	if e.dirtyFlags.pitch {
		if err := be.SetSourcePitch(h, e.PlaySpeed); err != nil {
			return err
		}
		e.dirtyFlags.pitch = false
	}
	if e.dirtyFlags.looping {
		if err := be.SetSourceLooping(h, e.Looping); err != nil {
			return err
		}
		e.dirtyFlags.looping = false
	}
	return nil
}

// refill unqueues finished buffers and tops the queue back up to its
// target depth, re-issuing Play on underrun or looping wraparound with
// every buffer finished (spec §4.7 step 4).
func (e *Emitter) refill(be backend.Backend, h backend.Handle, underrun bool) error {
	if e.Variant == nil {
		return nil
	}
	count, bufMs := streamingParams(e.Variant)
	samplesPerBuffer := int(float64(e.sampleRate) * bufMs / 1000.0)

	finished, err := be.UnqueueBuffers(h, count)
	if err != nil {
		return err
	}
	e.queuedCount -= len(finished)
	if e.queuedCount < 0 {
		e.queuedCount = 0
	}

	allFinished := e.queuedCount == 0
	needed := count - e.queuedCount
	for i := 0; i < needed; i++ {
		chunk, err := e.Variant.ReadSamples(e.PlayPosition+e.queueSampleOffset, samplesPerBuffer)
		if err != nil {
			return err
		}
		buf, err := be.CreateBuffer(chunk, backend.PCMFormat{
			SampleRate:    e.Variant.SampleRate(),
			Channels:      e.Variant.Channels(),
			BitsPerSample: e.Variant.BytesPerSample() * 8,
		})
		if err != nil {
			return err
		}
		if err := be.QueueBuffer(h, buf); err != nil {
			return err
		}
		e.queuedCount++
		e.queueSampleOffset += int64(samplesPerBuffer)
	}

	if underrun || (allFinished && e.Looping) {
		if err := be.Play(h); err != nil {
			return err
		}
	}
	return nil
}
