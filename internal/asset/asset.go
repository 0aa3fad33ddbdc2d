package asset

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/intuitionamiga/auralcore/internal/cache"
	"github.com/intuitionamiga/auralcore/internal/errs"
)

// soundNamespace seeds the deterministic UUIDs LoadSound derives from a
// sound's cache key, so the same source file gets the same stable
// identity across process restarts and cache regenerations.
var soundNamespace = uuid.MustParse("f35d02d4-3e40-4f6b-9f0b-8a6a2e9d8d21")

// StreamBufSizeThreshold is the default total-byte cutoff above which a
// mono asset is forced to stream rather than load fully resident (spec §6
// config table: stream_buf_size_threshold, default 700000).
const StreamBufSizeThreshold = 700000

// SampleSource is the uniform contract an emitter's source variant
// exposes, flattening the sound/synth/video hierarchy into one shape
// (spec §9 redesign: "a uniform read_samples(offset, n) behavior").
type SampleSource interface {
	BytesPerSample() int
	Channels() int
	SampleRate() int
	TotalSamples() int64
	ReadSamples(offset int64, n int) ([]byte, error)
}

// Fingerprint identifies the decoded form of a source file: its
// modification time and a caller-supplied format tag (e.g. a hash of
// codec parameters). A cache entry is rejected if either field, or the
// cache codec version, differs from the fingerprint recorded at decode
// time.
type Fingerprint struct {
	ModTime int64
	Format  uint8
}

// Sound is an immutable, content-addressed PCM source (spec §3, §4.4).
// Non-streaming sounds hold their entire decode resident; streaming
// sounds keep only a decoder factory and serve ReadSamples on demand.
type Sound struct {
	// ID is a stable, human-debuggable identity for this asset across
	// the disk cache and diagnostics output (spec §3: cold,
	// externally-referenced entities get a uuid.UUID rather than a
	// branch-free integer handle). Derived deterministically from the
	// cache key, not random, so the same source file always resolves to
	// the same ID.
	ID uuid.UUID

	bytesPerSample int
	channels       int
	sampleRate     int
	streaming      bool

	pcm          []byte // resident decode, nil if streaming
	totalSamples int64

	newDecoder func() (Decoder, error) // streaming source of truth
	used       bool
}

// IsStreaming reports the policy decision from spec §4.4: "streaming flag
// = channels > 1 OR total_bytes > threshold".
func IsStreaming(channels int, totalBytes int64) bool {
	return channels > 1 || totalBytes > StreamBufSizeThreshold
}

// LoadSound resolves a sound asset either from the disk cache or by
// decoding newDecoder fresh, honoring the streaming policy. key is the
// cache key (conventionally the source filename); fp is the fingerprint
// the caller computed for the source file (its mtime and a format tag).
func LoadSound(store *cache.Store, key string, fp Fingerprint, bytesPerSample, channels, sampleRate int, totalSamples int64, newDecoder func() (Decoder, error)) (*Sound, error) {
	streaming := IsStreaming(channels, totalSamples*int64(bytesPerSample))
	s := &Sound{
		ID:             uuid.NewSHA1(soundNamespace, []byte(key)),
		bytesPerSample: bytesPerSample,
		channels:       channels,
		sampleRate:     sampleRate,
		streaming:      streaming,
		totalSamples:   totalSamples,
		newDecoder:     newDecoder,
	}
	if streaming {
		return s, nil
	}

	if entry, err := store.Read(key); err == nil {
		if entry.Header.ModTime == fp.ModTime && entry.Header.Version == cache.Version && entry.Header.Format == fp.Format {
			s.used = entry.Header.Used()
			if s.used {
				s.pcm = entry.PCM
			}
			return s, nil
		}
		_ = store.Delete(key)
	} else if !os.IsNotExist(err) {
		_ = store.Delete(key)
	}

	pcm, err := decodeAll(newDecoder, bytesPerSample, channels, totalSamples)
	if err != nil {
		return nil, err
	}
	s.pcm = pcm
	s.used = true

	h := cache.Header{
		ModTime:        fp.ModTime,
		Version:        cache.Version,
		BytesPerSample: uint8(bytesPerSample),
		Channels:       uint8(channels),
		SampleCount:    uint32(totalSamples),
		SampleRate:     uint32(sampleRate),
		Format:         fp.Format,
		BufferSize:     uint32(len(pcm)),
	}.SetUsed()
	if err := store.Write(key, h, pcm); err != nil {
		return nil, fmt.Errorf("cache resident sound: %w", err)
	}
	return s, nil
}

func decodeAll(newDecoder func() (Decoder, error), bytesPerSample, channels int, totalSamples int64) ([]byte, error) {
	d, err := newDecoder()
	if err != nil {
		return nil, fmt.Errorf("%w: open decoder: %v", errs.DecodeFailure, err)
	}
	total := int(totalSamples) * bytesPerSample * channels
	buf := NewDecodeBuffer(total)
	return buf.Decode(d, total)
}

func (s *Sound) BytesPerSample() int { return s.bytesPerSample }
func (s *Sound) Channels() int       { return s.channels }
func (s *Sound) SampleRate() int     { return s.sampleRate }
func (s *Sound) TotalSamples() int64 { return s.totalSamples }
func (s *Sound) Streaming() bool     { return s.streaming }
func (s *Sound) Used() bool          { return s.used }

// ReadSamples returns count samples' worth of PCM starting at offset. For
// a resident sound this slices the static buffer (zero-filling past the
// end); for a streaming sound it decodes fresh each call — callers are
// expected to read forward monotonically, matching the emitter's
// streaming queue refill pattern (spec §4.7).
func (s *Sound) ReadSamples(offset int64, count int) ([]byte, error) {
	frame := s.bytesPerSample * s.channels
	nBytes := count * frame
	if !s.streaming {
		start := offset * int64(frame)
		out := make([]byte, nBytes)
		if start < int64(len(s.pcm)) {
			copy(out, s.pcm[start:])
		}
		return out, nil
	}

	d, err := s.newDecoder()
	if err != nil {
		return nil, fmt.Errorf("%w: reopen streaming decoder: %v", errs.DecodeFailure, err)
	}
	skip := make([]byte, offset*int64(frame))
	if len(skip) > 0 {
		if _, err := d.Decode(skip); err != nil {
			return nil, fmt.Errorf("%w: seek streaming decoder: %v", errs.DecodeFailure, err)
		}
	}
	buf := NewDecodeBuffer(nBytes)
	return buf.Decode(d, nBytes)
}

// MarkUsed sets the used flag once an emitter first asks for this sound
// (spec §4.4: "A sound is marked used once an emitter asks for it").
func (s *Sound) MarkUsed() { s.used = true }
