package backend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/geomx"
)

func openHeadless(t *testing.T) *HeadlessBackend {
	t.Helper()
	b := NewHeadlessBackend()
	_, err := b.Open("", nil)
	require.NoError(t, err)
	return b
}

func TestCreateDestroySourceRoundTrip(t *testing.T) {
	b := openHeadless(t)
	h, err := b.CreateSource()
	require.NoError(t, err)
	require.NoError(t, b.SetSourceGain(h, 0.5))
	require.NoError(t, b.DestroySource(h))

	err = b.SetSourceGain(h, 0.5)
	assert.Error(t, err, "destroyed source handle must not resolve")
}

// TestStopClearsPlaybackState covers the playback part of spec invariant 2:
// after Stop on a playing source, its state is Stopped.
func TestStopClearsPlaybackState(t *testing.T) {
	b := openHeadless(t)
	h, err := b.CreateSource()
	require.NoError(t, err)
	buf, err := b.CreateBuffer(make([]byte, 16), PCMFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 32})
	require.NoError(t, err)
	require.NoError(t, b.QueueBuffer(h, buf))
	require.NoError(t, b.Play(h))

	require.NoError(t, b.Stop(h))
	status, err := b.SourceStatus(h)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, status.State)
}

func TestMixFrameSumsPlayingVoices(t *testing.T) {
	b := openHeadless(t)
	mkSource := func(val float32) Handle {
		h, err := b.CreateSource()
		require.NoError(t, err)
		raw := make([]byte, 4*4)
		bits := math.Float32bits(val)
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(raw[i*4:], bits)
		}
		buf, err := b.CreateBuffer(raw, PCMFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 32})
		require.NoError(t, err)
		require.NoError(t, b.QueueBuffer(h, buf))
		require.NoError(t, b.SetSourceGain(h, 1))
		require.NoError(t, b.Play(h))
		return h
	}
	mkSource(0.1)
	mkSource(0.2)

	out := make([]float32, 4)
	b.MixFrame(out)
	assert.InDelta(t, 0.3, out[0], 1e-5)
}

func TestSetListenerDoesNotError(t *testing.T) {
	b := openHeadless(t)
	err := b.SetListener(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{}, geomx.IdentityOrientation, 1)
	assert.NoError(t, err)
}
