// Grounded on the teacher's audio_backend_oto.go: a *mixer's mixed frame
// feeds an oto.Player's Read callback, atomically swapped in at SetupPlayer
// time so the hot path never takes a lock.
package backend

import (
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/errs"
	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// OtoBackend drives playback through github.com/ebitengine/oto/v3, the
// cross-platform backend the teacher uses for its own sound chip output.
type OtoBackend struct {
	ctx    *oto.Context
	player *oto.Player
	mix    atomic.Pointer[mixer]
	caps   Capabilities
	filters map[Handle]FilterParams
	slots   map[Handle]ReverbParams
}

// NewOtoBackend constructs a closed Oto backend; call Open before use.
func NewOtoBackend() *OtoBackend {
	return &OtoBackend{
		filters: make(map[Handle]FilterParams),
		slots:   make(map[Handle]ReverbParams),
	}
}

func (b *OtoBackend) Open(deviceName string, disabled map[string]bool) (Capabilities, error) {
	const sampleRate = 44100
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return Capabilities{}, errs.Backend
	}
	<-ready

	b.ctx = ctx
	m := newMixer(sampleRate)
	b.mix.Store(m)
	b.player = ctx.NewPlayer(b)
	// Oto has no device-name selection of its own; PortAudio is the
	// backend to reach for when a specific named device is required
	// (spec §6 backend surface note).
	_ = deviceName
	b.caps = Capabilities{HasEFX: !disabled["efx"], HasHRTF: !disabled["hrtf"]}
	b.player.Play()
	return b.caps, nil
}

// Read implements io.Reader for oto.Player: the audio-thread-driven mix,
// pulled by Oto's own output goroutine.
func (b *OtoBackend) Read(p []byte) (int, error) {
	m := b.mix.Load()
	if m == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := len(p) / 4
	samples := make([]float32, n)
	m.mixFrame(samples)
	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (b *OtoBackend) Close() error {
	if b.player != nil {
		b.player.Close()
	}
	return nil
}

func (b *OtoBackend) m() *mixer { return b.mix.Load() }

func (b *OtoBackend) SetListener(pos, vel r3.Vector, o geomx.Orientation, gain float64) error {
	b.m().setListener(pos, vel, o, gain)
	return nil
}
func (b *OtoBackend) CreateSource() (Handle, error) { return b.m().createSource(), nil }
func (b *OtoBackend) DestroySource(h Handle) error  { return b.m().destroySource(h) }
func (b *OtoBackend) SetSourcePosition(h Handle, pos r3.Vector) error {
	return b.m().withSource(h, func(v *voice) { v.pos = pos })
}
func (b *OtoBackend) SetSourceOrientation(h Handle, o geomx.Orientation) error {
	return b.m().withSource(h, func(v *voice) { v.orientation = o })
}
func (b *OtoBackend) SetSourceVelocity(h Handle, vel r3.Vector) error {
	return b.m().withSource(h, func(v *voice) { v.vel = vel })
}
func (b *OtoBackend) SetSourceGain(h Handle, gain float64) error {
	return b.m().withSource(h, func(v *voice) { v.gain = gain })
}
func (b *OtoBackend) SetSourcePitch(h Handle, pitch float64) error {
	return b.m().withSource(h, func(v *voice) { v.pitch = pitch })
}
func (b *OtoBackend) SetSourceLooping(h Handle, looping bool) error {
	return b.m().withSource(h, func(v *voice) { v.looping = looping })
}
func (b *OtoBackend) SetSourceDistanceModel(h Handle, dm DistanceModel) error {
	return b.m().withSource(h, func(v *voice) { v.distanceModel = dm })
}
func (b *OtoBackend) SetSourceDirectFilter(source, filter Handle) error {
	return b.m().withSource(source, func(v *voice) { v.directFilter = filter })
}
func (b *OtoBackend) SetSourceAuxSend(source, slot Handle) error {
	return b.m().withSource(source, func(v *voice) { v.auxSend = slot })
}
func (b *OtoBackend) QueueBuffer(source, buffer Handle) error { return b.m().queueBuffer(source, buffer) }
func (b *OtoBackend) UnqueueBuffers(source Handle, max int) ([]Handle, error) {
	return b.m().unqueueBuffers(source, max)
}
func (b *OtoBackend) SourceStatus(h Handle) (SourceStatus, error) { return b.m().status(h) }
func (b *OtoBackend) Play(h Handle) error                         { return b.m().play(h) }
func (b *OtoBackend) Pause(h Handle) error                        { return b.m().pause(h) }
func (b *OtoBackend) Stop(h Handle) error                         { return b.m().stop(h) }

func (b *OtoBackend) CreateBuffer(pcm []byte, _ PCMFormat) (Handle, error) {
	return b.m().createBuffer(pcm), nil
}
func (b *OtoBackend) DestroyBuffer(h Handle) error { return b.m().destroyBuffer(h) }

func (b *OtoBackend) CreateFilter() (Handle, error) {
	h := b.m().alloc()
	b.filters[h] = FilterParams{}
	return h, nil
}
func (b *OtoBackend) DestroyFilter(h Handle) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.filters, h)
	return nil
}
func (b *OtoBackend) SetFilter(h Handle, p FilterParams) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	b.filters[h] = p
	return nil
}

func (b *OtoBackend) CreateEffectSlot() (Handle, error) {
	if !b.caps.HasEFX {
		return 0, errs.OutOfBackendResource
	}
	h := b.m().alloc()
	b.slots[h] = ReverbParams{}
	return h, nil
}
func (b *OtoBackend) DestroyEffectSlot(h Handle) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.slots, h)
	return nil
}
func (b *OtoBackend) SetReverb(h Handle, p ReverbParams) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	b.slots[h] = p
	return nil
}

var _ Backend = (*OtoBackend)(nil)
