package backend

import (
	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/errs"
	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// HeadlessBackend is an in-memory Backend with no device I/O, used by tests
// and the diagnostics console's dry-run mode (spec §6, §4.1). It runs the
// same mixer every hardware backend uses, so tests exercise real queue and
// status-transition behavior without opening a device.
type HeadlessBackend struct {
	mix   *mixer
	open  bool
	caps  Capabilities
	filters map[Handle]FilterParams
	slots   map[Handle]ReverbParams
}

// NewHeadlessBackend constructs a closed headless backend; call Open before use.
func NewHeadlessBackend() *HeadlessBackend {
	return &HeadlessBackend{
		filters: make(map[Handle]FilterParams),
		slots:   make(map[Handle]ReverbParams),
	}
}

func (b *HeadlessBackend) Open(_ string, disabled map[string]bool) (Capabilities, error) {
	b.mix = newMixer(44100)
	b.caps = Capabilities{HasEFX: !disabled["efx"], HasHRTF: !disabled["hrtf"]}
	b.open = true
	return b.caps, nil
}

func (b *HeadlessBackend) Close() error {
	b.open = false
	return nil
}

func (b *HeadlessBackend) requireOpen() error {
	if !b.open {
		return errs.Backend
	}
	return nil
}

func (b *HeadlessBackend) SetListener(pos, vel r3.Vector, o geomx.Orientation, gain float64) error {
	if err := b.requireOpen(); err != nil {
		return err
	}
	b.mix.setListener(pos, vel, o, gain)
	return nil
}

func (b *HeadlessBackend) CreateSource() (Handle, error) {
	if err := b.requireOpen(); err != nil {
		return 0, err
	}
	return b.mix.createSource(), nil
}

func (b *HeadlessBackend) DestroySource(h Handle) error { return b.mix.destroySource(h) }

func (b *HeadlessBackend) SetSourcePosition(h Handle, pos r3.Vector) error {
	return b.mix.withSource(h, func(v *voice) { v.pos = pos })
}
func (b *HeadlessBackend) SetSourceOrientation(h Handle, o geomx.Orientation) error {
	return b.mix.withSource(h, func(v *voice) { v.orientation = o })
}
func (b *HeadlessBackend) SetSourceVelocity(h Handle, vel r3.Vector) error {
	return b.mix.withSource(h, func(v *voice) { v.vel = vel })
}
func (b *HeadlessBackend) SetSourceGain(h Handle, gain float64) error {
	return b.mix.withSource(h, func(v *voice) { v.gain = gain })
}
func (b *HeadlessBackend) SetSourcePitch(h Handle, pitch float64) error {
	return b.mix.withSource(h, func(v *voice) { v.pitch = pitch })
}
func (b *HeadlessBackend) SetSourceLooping(h Handle, looping bool) error {
	return b.mix.withSource(h, func(v *voice) { v.looping = looping })
}
func (b *HeadlessBackend) SetSourceDistanceModel(h Handle, dm DistanceModel) error {
	return b.mix.withSource(h, func(v *voice) { v.distanceModel = dm })
}
func (b *HeadlessBackend) SetSourceDirectFilter(source, filter Handle) error {
	return b.mix.withSource(source, func(v *voice) { v.directFilter = filter })
}
func (b *HeadlessBackend) SetSourceAuxSend(source, slot Handle) error {
	return b.mix.withSource(source, func(v *voice) { v.auxSend = slot })
}
func (b *HeadlessBackend) QueueBuffer(source, buffer Handle) error {
	return b.mix.queueBuffer(source, buffer)
}
func (b *HeadlessBackend) UnqueueBuffers(source Handle, max int) ([]Handle, error) {
	return b.mix.unqueueBuffers(source, max)
}
func (b *HeadlessBackend) SourceStatus(h Handle) (SourceStatus, error) { return b.mix.status(h) }
func (b *HeadlessBackend) Play(h Handle) error                         { return b.mix.play(h) }
func (b *HeadlessBackend) Pause(h Handle) error                        { return b.mix.pause(h) }
func (b *HeadlessBackend) Stop(h Handle) error                         { return b.mix.stop(h) }

func (b *HeadlessBackend) CreateBuffer(pcm []byte, _ PCMFormat) (Handle, error) {
	if err := b.requireOpen(); err != nil {
		return 0, err
	}
	return b.mix.createBuffer(pcm), nil
}
func (b *HeadlessBackend) DestroyBuffer(h Handle) error { return b.mix.destroyBuffer(h) }

func (b *HeadlessBackend) CreateFilter() (Handle, error) {
	if err := b.requireOpen(); err != nil {
		return 0, err
	}
	h := b.mix.alloc()
	b.filters[h] = FilterParams{}
	return h, nil
}
func (b *HeadlessBackend) DestroyFilter(h Handle) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.filters, h)
	return nil
}
func (b *HeadlessBackend) SetFilter(h Handle, p FilterParams) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	b.filters[h] = p
	return nil
}

func (b *HeadlessBackend) CreateEffectSlot() (Handle, error) {
	if !b.caps.HasEFX {
		return 0, errs.OutOfBackendResource
	}
	h := b.mix.alloc()
	b.slots[h] = ReverbParams{}
	return h, nil
}
func (b *HeadlessBackend) DestroyEffectSlot(h Handle) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.slots, h)
	return nil
}
func (b *HeadlessBackend) SetReverb(h Handle, p ReverbParams) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	b.slots[h] = p
	return nil
}

// MixFrame exposes the internal mixer for test harnesses and the
// diagnostics console's audio-free scene auditioning.
func (b *HeadlessBackend) MixFrame(out []float32) { b.mix.mixFrame(out) }

var _ Backend = (*HeadlessBackend)(nil)
