package asset

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/cache"
)

// fakeDecoder replays a fixed byte slice, looping on Rewind.
type fakeDecoder struct {
	data []byte
	pos  int
}

func (d *fakeDecoder) Decode(p []byte) (int, error) {
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	n := copy(p, d.data[d.pos:])
	d.pos += n
	return n, nil
}

func (d *fakeDecoder) Rewind() error {
	d.pos = 0
	return nil
}

func TestDecodeBufferZeroFillsShortRead(t *testing.T) {
	db := NewDecodeBuffer(4)
	dec := &fakeDecoder{data: []byte{1, 2}}
	out, err := db.Decode(dec, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0}, out)
}

func TestDecodeLoopingFillsAcrossRewind(t *testing.T) {
	db := NewDecodeBuffer(6)
	dec := &fakeDecoder{data: []byte{1, 2}}
	out, err := db.DecodeLooping(dec, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 1, 2, 1, 2}, out)
}

func TestIsStreamingPolicy(t *testing.T) {
	assert.False(t, IsStreaming(1, 1000))
	assert.True(t, IsStreaming(2, 1000), "stereo always streams")
	assert.True(t, IsStreaming(1, StreamBufSizeThreshold+1))
	assert.False(t, IsStreaming(1, StreamBufSizeThreshold))
}

func newDecoderFor(data []byte) func() (Decoder, error) {
	return func() (Decoder, error) { return &fakeDecoder{data: bytes.Clone(data)}, nil }
}

// TestLoadSoundCachesResidentDecode models S1: a non-streaming sound's
// first load decodes and writes the cache; a subsequent load with a
// matching fingerprint reuses the cached PCM without invoking newDecoder.
func TestLoadSoundCachesResidentDecode(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir)
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	fp := Fingerprint{ModTime: 100, Format: 1}

	s, err := LoadSound(store, "k", fp, 2, 1, 44100, 4, newDecoderFor(pcm))
	require.NoError(t, err)
	assert.False(t, s.Streaming())
	assert.True(t, s.Used())

	calls := 0
	counting := func() (Decoder, error) {
		calls++
		return &fakeDecoder{data: pcm}, nil
	}
	s2, err := LoadSound(store, "k", fp, 2, 1, 44100, 4, counting)
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "cache hit must not invoke the decoder")
	out, err := s2.ReadSamples(0, 4)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
}

// TestLoadSoundRejectsStaleFingerprint models the mtime/version/format
// mismatch path: re-decodes rather than trusting a stale cache entry.
func TestLoadSoundRejectsStaleFingerprint(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir)
	fp := Fingerprint{ModTime: 100, Format: 1}
	_, err := LoadSound(store, "k", fp, 2, 1, 44100, 4, newDecoderFor([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, err)

	newFP := Fingerprint{ModTime: 200, Format: 1}
	calls := 0
	dec := func() (Decoder, error) {
		calls++
		return &fakeDecoder{data: []byte{9, 9, 9, 9, 9, 9, 9, 9}}, nil
	}
	s, err := LoadSound(store, "k", newFP, 2, 1, 44100, 4, dec)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "stale fingerprint must trigger a fresh decode")
	out, err := s.ReadSamples(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9, 9, 9}, out)
}

func TestStreamingSoundReadsForwardWithoutResidentBuffer(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir)
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	fp := Fingerprint{ModTime: 1, Format: 1}
	s, err := LoadSound(store, "k", fp, 2, 2, 44100, 2, newDecoderFor(pcm))
	require.NoError(t, err)
	require.True(t, s.Streaming(), "stereo sources always stream")

	out, err := s.ReadSamples(0, 1)
	require.NoError(t, err)
	assert.Equal(t, pcm[:4], out)
}

func TestSynthReadSamplesZeroFillsShortGenerate(t *testing.T) {
	gen := generatorFunc(func(p []byte, count int) (int, error) {
		return copy(p, []byte{7, 7}), nil
	})
	synth := NewSynth(gen, 2, 1, 44100)
	out, err := synth.ReadSamples(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 0, 0, 0, 0, 0, 0}, out)
}

type generatorFunc func(p []byte, count int) (int, error)

func (f generatorFunc) Generate(p []byte, count int) (int, error) { return f(p, count) }

func TestVideoStreamDropYieldsSilence(t *testing.T) {
	v := NewVideoStream(&fakeDecoder{data: []byte{1, 2, 3, 4}}, 2, 1, 44100, 2)
	v.Drop()
	out, err := v.ReadSamples(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}
