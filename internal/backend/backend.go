// Package backend is the thin, handle-typed abstraction over a low-level 3D
// audio backend described in spec §4.1 and §6: sources, buffers, filters,
// and reverb effect slots. Every operation wraps exactly one backend call
// and fails fast with a typed error (errs.Backend) — callers never silently
// drop a backend failure.
package backend

import (
	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// Handle is a backend-native resource identifier. The zero value never
// refers to a live resource.
type Handle uint32

// FilterType selects the direct-path filter shape (spec §4.1, §4.8). The
// backend's own naming is misleading: FilterBandPass behaves as a low-pass
// filter when GainHF < GainLF, and as a high-pass filter otherwise.
type FilterType int

const (
	FilterNull FilterType = iota
	FilterLowPass
	FilterHighPass
	FilterBandPass
)

// FilterParams programs one direct-path filter.
type FilterParams struct {
	Type           FilterType
	Gain, GainLF, GainHF float64
}

// DistanceModel selects the attenuation curve the backend applies between
// SetSourcePosition calls; auralcore computes its own gain upstream (C8) so
// in practice this is always set to "inverse, clamped" and left alone, but
// the knob exists because the backend contract requires it.
type DistanceModel int

const (
	DistanceInverseClamped DistanceModel = iota
	DistanceLinearClamped
	DistanceExponentClamped
)

// SourceStatus is the live backend-reported playback status of a source
// (spec §4.1: "query {state, processed_count, sample_offset}").
type SourceStatus struct {
	State          PlaybackState
	ProcessedCount int
	SampleOffset   int64
}

// PlaybackState mirrors the backend's own source state machine.
type PlaybackState int

const (
	StateInitial PlaybackState = iota
	StatePlaying
	StatePaused
	StateStopped
)

// PCMFormat describes a buffer's sample layout.
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitsPerSample int
}

// ReverbParams is the EAX-reverb-equivalent parameter block from spec §4.8
// and the GLOSSARY, programmed wholesale onto one effect slot.
type ReverbParams struct {
	Gain, GainLF, GainHF           float64
	DecayTime                      float64
	DecayHFRatio, DecayLFRatio     float64
	ReflectionGain, ReflectionDelay float64
	ReflectionPan                   r3.Vector
	LateReverbGain, LateReverbDelay float64
	LateReverbPan                   r3.Vector
	EchoTime                        float64
}

// Capabilities reports which optional extensions a backend context actually
// exposes, probed once at Open (spec §6: "Optional extensions (head-tracking
// HRTF; EFX) are probed at context creation and disabled gracefully if
// absent").
type Capabilities struct {
	HasEFX  bool
	HasHRTF bool
}

// Backend is the full surface consumed by every other component. All
// operations execute on the audio thread; implementations may assert that
// with a debug-only thread-identity check (spec §4.1).
type Backend interface {
	// Open opens the named device ("" = backend default) and probes
	// capabilities, honoring the disabled-extensions set.
	Open(deviceName string, disabledExtensions map[string]bool) (Capabilities, error)
	Close() error

	SetListener(pos, vel r3.Vector, orientation geomx.Orientation, gain float64) error

	CreateSource() (Handle, error)
	DestroySource(Handle) error
	SetSourcePosition(Handle, r3.Vector) error
	SetSourceOrientation(Handle, geomx.Orientation) error
	SetSourceVelocity(Handle, r3.Vector) error
	SetSourceGain(Handle, float64) error
	SetSourcePitch(Handle, float64) error
	SetSourceLooping(Handle, bool) error
	SetSourceDistanceModel(Handle, DistanceModel) error
	SetSourceDirectFilter(source, filter Handle) error
	SetSourceAuxSend(source, slot Handle) error
	QueueBuffer(source, buffer Handle) error
	UnqueueBuffers(source Handle, max int) ([]Handle, error)
	SourceStatus(Handle) (SourceStatus, error)
	Play(Handle) error
	Pause(Handle) error
	Stop(Handle) error

	CreateBuffer(pcm []byte, format PCMFormat) (Handle, error)
	DestroyBuffer(Handle) error

	CreateFilter() (Handle, error)
	DestroyFilter(Handle) error
	SetFilter(Handle, FilterParams) error

	CreateEffectSlot() (Handle, error)
	DestroyEffectSlot(Handle) error
	SetReverb(slot Handle, params ReverbParams) error
}
