package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/backend"
	"github.com/intuitionamiga/auralcore/internal/pool"
)

func openHeadless(t *testing.T) *backend.HeadlessBackend {
	t.Helper()
	b := backend.NewHeadlessBackend()
	_, err := b.Open("", nil)
	require.NoError(t, err)
	return b
}

func bindToHeadless(t *testing.T, e *Emitter, b *backend.HeadlessBackend) backend.Handle {
	t.Helper()
	h, err := b.CreateSource()
	require.NoError(t, err)
	e.Bind(pool.Handle{})
	e.SetResolver(func(pool.Handle) (backend.Handle, bool) { return h, true })
	return h
}

func TestUnboundEmitterAdvancesPositionWithoutBackendCalls(t *testing.T) {
	e := New(1, nil, 44100)
	e.PlayState = Playing
	e.PlayTo = 1 << 30
	require.NoError(t, e.AdvanceFrame(nil, 0.5))
	assert.Equal(t, int64(22050), e.PlayPosition)
}

// TestPlayPositionStaysWithinBounds models invariant 3: play_from ≤
// play_position ≤ play_to, modulo looping normalization.
func TestPlayPositionStaysWithinBounds(t *testing.T) {
	e := New(1, nil, 44100)
	e.PlayState = Playing
	e.Looping = true
	e.PlayFrom = 0
	e.PlayTo = 100
	e.PlayPosition = 90
	require.NoError(t, e.AdvanceFrame(nil, 1.0)) // huge elapsed to force wraparound
	assert.GreaterOrEqual(t, e.PlayPosition, e.PlayFrom)
	assert.Less(t, e.PlayPosition, e.PlayTo)
}

func TestNonLoopingEmitterMarksFinishedPastPlayTo(t *testing.T) {
	e := New(1, nil, 44100)
	e.PlayState = Playing
	e.PlayTo = 100
	e.PlayPosition = 99
	require.NoError(t, e.AdvanceFrame(nil, 1.0))
	assert.True(t, e.PlayFinished)
}

func TestPlayFinishedStaysTrueUntilReplay(t *testing.T) {
	e := New(1, nil, 44100)
	e.PlayState = Playing
	e.PlayTo = 1
	e.PlayPosition = 1
	require.NoError(t, e.AdvanceFrame(nil, 0.001))
	assert.True(t, e.PlayFinished)

	// Subsequent frames while still "Playing" must not un-finish it.
	require.NoError(t, e.AdvanceFrame(nil, 0.001))
	assert.True(t, e.PlayFinished)
}

type fakeSource struct {
	bytesPerSample, channels, sampleRate int
	reads                                 int
}

func (f *fakeSource) BytesPerSample() int   { return f.bytesPerSample }
func (f *fakeSource) Channels() int         { return f.channels }
func (f *fakeSource) SampleRate() int       { return f.sampleRate }
func (f *fakeSource) TotalSamples() int64   { return 1 << 20 }
func (f *fakeSource) ReadSamples(offset int64, n int) ([]byte, error) {
	f.reads++
	return make([]byte, n*f.bytesPerSample*f.channels), nil
}

// TestStreamingUnderrunRefillsAndReplays models S2: backend reports
// Stopped with play_position < play_to -> underrun -> refill + replay.
func TestStreamingUnderrunRefillsAndReplays(t *testing.T) {
	b := openHeadless(t)
	variant := &fakeSource{bytesPerSample: 2, channels: 2, sampleRate: 44100}
	e := New(1, variant, 44100)
	e.PlayState = Playing
	e.PlayTo = 1 << 30
	h := bindToHeadless(t, e, b)
	// Simulate the backend having run dry mid-stream: Stopped with
	// play_position still short of play_to.
	require.NoError(t, b.Play(h))
	require.NoError(t, b.Stop(h))

	require.NoError(t, e.AdvanceFrame(b, 0))
	assert.Equal(t, 1, e.UnderrunCount())
	assert.Greater(t, variant.reads, 0, "underrun must refill buffers")

	status, err := b.SourceStatus(h)
	require.NoError(t, err)
	assert.Equal(t, backend.StatePlaying, status.State, "underrun re-issues Play")
}

// TestFastPassAdvanceNeverDecreasesPlayPosition models invariant 6's
// play_position half: a fast pass must never move position backward.
func TestFastPassAdvanceNeverDecreasesPlayPosition(t *testing.T) {
	e := New(1, nil, 44100)
	e.PlayState = Playing
	e.PlayTo = 1 << 30
	before := e.PlayPosition
	require.NoError(t, e.AdvanceFrame(nil, 0.25))
	assert.GreaterOrEqual(t, e.PlayPosition, before)
}
