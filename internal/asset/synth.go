package asset

import "sync"

// Generator produces PCM on demand for a synthesizer instance — the
// controller-driven alternative to a decoded sound (spec §3: "Synthesizer
// instance... alternatives to a sound asset").
type Generator interface {
	// Generate writes count frames starting at the generator's current
	// position into p (sized count*frameBytes by the caller) and advances.
	// It returns the number of bytes written; Synth zero-fills the rest of p.
	Generate(p []byte, count int) (int, error)
}

// Synth wraps a Generator behind the uniform SampleSource contract.
// Mutated only under mu: the main thread may swap or drop the generator
// at any time while the audio thread is mid-read (spec §3, §4.11).
type Synth struct {
	mu             sync.Mutex
	gen            Generator
	bytesPerSample int
	channels       int
	sampleRate     int
	position       int64
}

// NewSynth wraps a Generator for audio-thread consumption.
func NewSynth(gen Generator, bytesPerSample, channels, sampleRate int) *Synth {
	return &Synth{gen: gen, bytesPerSample: bytesPerSample, channels: channels, sampleRate: sampleRate}
}

func (s *Synth) BytesPerSample() int { return s.bytesPerSample }
func (s *Synth) Channels() int       { return s.channels }
func (s *Synth) SampleRate() int     { return s.sampleRate }

// TotalSamples is unbounded for a live synth; callers must not rely on it
// for range checks the way they would for a Sound.
func (s *Synth) TotalSamples() int64 { return -1 }

// SetGenerator swaps the underlying generator, e.g. when the controller
// driving it is reconfigured. Safe to call concurrently with ReadSamples.
func (s *Synth) SetGenerator(gen Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
}

// ReadSamples generates count samples. Synth playback is inherently
// forward-only and stateful: offset is ignored, and this method always
// advances from where the generator currently is (resetting the generator
// on a seek is the caller's responsibility).
func (s *Synth) ReadSamples(offset int64, count int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := s.bytesPerSample * s.channels
	out := make([]byte, count*frame)
	if s.gen == nil {
		s.position += int64(count)
		return out, nil
	}
	n, err := s.gen.Generate(out, count)
	if err != nil {
		return out, err
	}
	if n < len(out) {
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
	}
	s.position += int64(count)
	return out, nil
}
