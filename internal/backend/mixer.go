package backend

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/intuitionamiga/auralcore/internal/errs"
	"github.com/intuitionamiga/auralcore/internal/geomx"
)

// mixer is the software voice-mixing engine shared by every concrete
// hardware backend (Oto, PortAudio). It owns the actual queued-buffer
// playback state per source; the device-specific backend just pulls
// mixed float32 frames out of it on its own callback, mirroring the
// teacher's SoundChip.ReadSample/OtoPlayer.Read split between "what to
// play" and "how to hand it to the OS".
type mixer struct {
	mu        sync.Mutex
	listener  listenerState
	sources   map[Handle]*voice
	filters   map[Handle]*FilterParams
	slots     map[Handle]*ReverbParams
	buffers   map[Handle][]byte
	nextID    uint32
	sampleRate int
}

type listenerState struct {
	pos, vel    r3.Vector
	orientation geomx.Orientation
	gain        float64
}

type voice struct {
	pos, vel     r3.Vector
	orientation  geomx.Orientation
	gain         float64
	pitch        float64
	looping      bool
	distanceModel DistanceModel
	directFilter  Handle
	auxSend       Handle

	queue    []Handle // queued, not-yet-processed buffers, FIFO
	cursor   int      // byte offset into queue[0]
	processed int      // cumulative processed-buffer count (spec: "processed_count")
	state    PlaybackState
}

func newMixer(sampleRate int) *mixer {
	return &mixer{
		sources:    make(map[Handle]*voice),
		filters:    make(map[Handle]*FilterParams),
		slots:      make(map[Handle]*ReverbParams),
		buffers:    make(map[Handle][]byte),
		sampleRate: sampleRate,
	}
}

func (m *mixer) alloc() Handle {
	m.nextID++
	return Handle(m.nextID)
}

func (m *mixer) setListener(pos, vel r3.Vector, o geomx.Orientation, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listenerState{pos: pos, vel: vel, orientation: o, gain: gain}
}

func (m *mixer) createSource() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.alloc()
	m.sources[h] = &voice{gain: 1, pitch: 1, state: StateInitial}
	return h
}

func (m *mixer) destroySource(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[h]; !ok {
		return errs.InvalidParameter
	}
	delete(m.sources, h)
	return nil
}

func (m *mixer) withSource(h Handle, fn func(*voice)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sources[h]
	if !ok {
		return errs.InvalidParameter
	}
	fn(v)
	return nil
}

func (m *mixer) createBuffer(pcm []byte) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.alloc()
	cp := append([]byte(nil), pcm...)
	m.buffers[h] = cp
	return h
}

func (m *mixer) destroyBuffer(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buffers[h]; !ok {
		return errs.InvalidParameter
	}
	delete(m.buffers, h)
	return nil
}

func (m *mixer) queueBuffer(source, buf Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sources[source]
	if !ok {
		return errs.InvalidParameter
	}
	if _, ok := m.buffers[buf]; !ok {
		return errs.InvalidParameter
	}
	v.queue = append(v.queue, buf)
	return nil
}

func (m *mixer) unqueueBuffers(source Handle, max int) ([]Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sources[source]
	if !ok {
		return nil, errs.InvalidParameter
	}
	// A queued buffer is eligible for unqueue once its bytes are fully
	// consumed by mixFrame; the cursor only ever points inside queue[0].
	out := make([]Handle, 0, max)
	for len(v.queue) > 0 && len(out) < max && v.cursor >= len(m.buffers[v.queue[0]]) {
		out = append(out, v.queue[0])
		v.queue = v.queue[1:]
		v.cursor = 0
		v.processed++
	}
	return out, nil
}

func (m *mixer) status(h Handle) (SourceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sources[h]
	if !ok {
		return SourceStatus{}, errs.InvalidParameter
	}
	return SourceStatus{State: v.state, ProcessedCount: v.processed}, nil
}

func (m *mixer) play(h Handle) error {
	return m.withSource(h, func(v *voice) { v.state = StatePlaying })
}
func (m *mixer) pause(h Handle) error {
	return m.withSource(h, func(v *voice) { v.state = StatePaused })
}
func (m *mixer) stop(h Handle) error {
	return m.withSource(h, func(v *voice) {
		v.state = StateStopped
		v.queue = nil
		v.cursor = 0
	})
}

// mixFrame produces numSamples mono float32 samples by summing every
// playing voice's PCM (interpreted as mono float32LE for simplicity; real
// hardware backends resample/convert per PCMFormat). Looping voices replay
// their front buffer from its start on exhaustion instead of stopping.
func (m *mixer) mixFrame(out []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range out {
		out[i] = 0
	}
	for _, v := range m.sources {
		if v.state != StatePlaying {
			continue
		}
		for i := range out {
			s, ok := m.nextSample(v)
			if !ok {
				break
			}
			out[i] += s * float32(v.gain)
		}
	}
	for i := range out {
		out[i] = float32(clamp(float64(out[i]), -1, 1))
	}
}

func (m *mixer) nextSample(v *voice) (float32, bool) {
	for {
		if len(v.queue) == 0 {
			return 0, false
		}
		buf := m.buffers[v.queue[0]]
		if v.cursor+4 > len(buf) {
			if v.looping {
				v.cursor = 0
				continue
			}
			return 0, false
		}
		bits := uint32(buf[v.cursor]) | uint32(buf[v.cursor+1])<<8 | uint32(buf[v.cursor+2])<<16 | uint32(buf[v.cursor+3])<<24
		v.cursor += 4
		return math.Float32frombits(bits), true
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
