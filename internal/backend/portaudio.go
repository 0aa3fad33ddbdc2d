// PortAudioBackend is the named-device alternative to OtoBackend, backed by
// github.com/gordonklaus/portaudio (as richinsley-goshadertoy and
// rustyguts-bken both use for real-time audio I/O in this pack). Oto has no
// concept of device enumeration; PortAudio does, which is what C1 needs
// when spec §6's device_name names a specific piece of hardware rather than
// the OS default.
package backend

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/gordonklaus/portaudio"

	"github.com/intuitionamiga/auralcore/internal/errs"
	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// PortAudioBackend drives playback through a named PortAudio output stream.
type PortAudioBackend struct {
	stream  *portaudio.Stream
	mix     *mixer
	caps    Capabilities
	filters map[Handle]FilterParams
	slots   map[Handle]ReverbParams
}

// NewPortAudioBackend constructs a closed PortAudio backend; call Open before use.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{
		filters: make(map[Handle]FilterParams),
		slots:   make(map[Handle]ReverbParams),
	}
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no output device named %q", errs.Backend, name)
}

func (b *PortAudioBackend) Open(deviceName string, disabled map[string]bool) (Capabilities, error) {
	if err := portaudio.Initialize(); err != nil {
		return Capabilities{}, fmt.Errorf("%w: portaudio init: %v", errs.Backend, err)
	}
	device, err := findDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return Capabilities{}, err
	}

	const sampleRate = 44100
	b.mix = newMixer(sampleRate)

	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = 1
	params.SampleRate = sampleRate

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		b.mix.mixFrame(out)
	})
	if err != nil {
		portaudio.Terminate()
		return Capabilities{}, fmt.Errorf("%w: open stream: %v", errs.Backend, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return Capabilities{}, fmt.Errorf("%w: start stream: %v", errs.Backend, err)
	}

	b.stream = stream
	// PortAudio's own device API carries no EFX/HRTF concept; those are
	// properties of the higher-level auralization pipeline, not the raw
	// device, so both are reported available unless explicitly disabled.
	b.caps = Capabilities{HasEFX: !disabled["efx"], HasHRTF: !disabled["hrtf"]}
	return b.caps, nil
}

func (b *PortAudioBackend) Close() error {
	if b.stream != nil {
		b.stream.Stop()
		b.stream.Close()
	}
	portaudio.Terminate()
	return nil
}

func (b *PortAudioBackend) SetListener(pos, vel r3.Vector, o geomx.Orientation, gain float64) error {
	b.mix.setListener(pos, vel, o, gain)
	return nil
}
func (b *PortAudioBackend) CreateSource() (Handle, error) { return b.mix.createSource(), nil }
func (b *PortAudioBackend) DestroySource(h Handle) error  { return b.mix.destroySource(h) }
func (b *PortAudioBackend) SetSourcePosition(h Handle, pos r3.Vector) error {
	return b.mix.withSource(h, func(v *voice) { v.pos = pos })
}
func (b *PortAudioBackend) SetSourceOrientation(h Handle, o geomx.Orientation) error {
	return b.mix.withSource(h, func(v *voice) { v.orientation = o })
}
func (b *PortAudioBackend) SetSourceVelocity(h Handle, vel r3.Vector) error {
	return b.mix.withSource(h, func(v *voice) { v.vel = vel })
}
func (b *PortAudioBackend) SetSourceGain(h Handle, gain float64) error {
	return b.mix.withSource(h, func(v *voice) { v.gain = gain })
}
func (b *PortAudioBackend) SetSourcePitch(h Handle, pitch float64) error {
	return b.mix.withSource(h, func(v *voice) { v.pitch = pitch })
}
func (b *PortAudioBackend) SetSourceLooping(h Handle, looping bool) error {
	return b.mix.withSource(h, func(v *voice) { v.looping = looping })
}
func (b *PortAudioBackend) SetSourceDistanceModel(h Handle, dm DistanceModel) error {
	return b.mix.withSource(h, func(v *voice) { v.distanceModel = dm })
}
func (b *PortAudioBackend) SetSourceDirectFilter(source, filter Handle) error {
	return b.mix.withSource(source, func(v *voice) { v.directFilter = filter })
}
func (b *PortAudioBackend) SetSourceAuxSend(source, slot Handle) error {
	return b.mix.withSource(source, func(v *voice) { v.auxSend = slot })
}
func (b *PortAudioBackend) QueueBuffer(source, buffer Handle) error {
	return b.mix.queueBuffer(source, buffer)
}
func (b *PortAudioBackend) UnqueueBuffers(source Handle, max int) ([]Handle, error) {
	return b.mix.unqueueBuffers(source, max)
}
func (b *PortAudioBackend) SourceStatus(h Handle) (SourceStatus, error) { return b.mix.status(h) }
func (b *PortAudioBackend) Play(h Handle) error                         { return b.mix.play(h) }
func (b *PortAudioBackend) Pause(h Handle) error                        { return b.mix.pause(h) }
func (b *PortAudioBackend) Stop(h Handle) error                         { return b.mix.stop(h) }

func (b *PortAudioBackend) CreateBuffer(pcm []byte, _ PCMFormat) (Handle, error) {
	return b.mix.createBuffer(pcm), nil
}
func (b *PortAudioBackend) DestroyBuffer(h Handle) error { return b.mix.destroyBuffer(h) }

func (b *PortAudioBackend) CreateFilter() (Handle, error) {
	h := b.mix.alloc()
	b.filters[h] = FilterParams{}
	return h, nil
}
func (b *PortAudioBackend) DestroyFilter(h Handle) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.filters, h)
	return nil
}
func (b *PortAudioBackend) SetFilter(h Handle, p FilterParams) error {
	if _, ok := b.filters[h]; !ok {
		return errs.InvalidParameter
	}
	b.filters[h] = p
	return nil
}

func (b *PortAudioBackend) CreateEffectSlot() (Handle, error) {
	if !b.caps.HasEFX {
		return 0, errs.OutOfBackendResource
	}
	h := b.mix.alloc()
	b.slots[h] = ReverbParams{}
	return h, nil
}
func (b *PortAudioBackend) DestroyEffectSlot(h Handle) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	delete(b.slots, h)
	return nil
}
func (b *PortAudioBackend) SetReverb(h Handle, p ReverbParams) error {
	if _, ok := b.slots[h]; !ok {
		return errs.InvalidParameter
	}
	b.slots[h] = p
	return nil
}

var _ Backend = (*PortAudioBackend)(nil)
