package asset

import (
	"fmt"
	"sync"

	"github.com/intuitionamiga/auralcore/internal/errs"
)

// VideoStream wraps a video container's demuxed audio track behind the
// uniform SampleSource contract (spec §3: "video audio stream... an
// alternative to a sound asset"). Like Synth, the main thread may drop
// the underlying decoder at any time; the audio thread only ever holds
// mu around a single read.
type VideoStream struct {
	mu             sync.Mutex
	decoder        Decoder
	bytesPerSample int
	channels       int
	sampleRate     int
	totalSamples   int64
}

// NewVideoStream wraps a demuxed audio-track decoder.
func NewVideoStream(decoder Decoder, bytesPerSample, channels, sampleRate int, totalSamples int64) *VideoStream {
	return &VideoStream{decoder: decoder, bytesPerSample: bytesPerSample, channels: channels, sampleRate: sampleRate, totalSamples: totalSamples}
}

func (v *VideoStream) BytesPerSample() int { return v.bytesPerSample }
func (v *VideoStream) Channels() int       { return v.channels }
func (v *VideoStream) SampleRate() int     { return v.sampleRate }
func (v *VideoStream) TotalSamples() int64 { return v.totalSamples }

// Drop releases the underlying decoder; subsequent ReadSamples calls
// return silence instead of an error, matching the spec's
// drop-while-reading tolerance (§4.11: "main thread may drop them at any
// time via a per-instance mutex that the audio thread holds only around
// reads").
func (v *VideoStream) Drop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.decoder = nil
}

// ReadSamples decodes count samples from the current demux position. A
// nil decoder (dropped or not yet attached) yields silence rather than an
// error, since the player driving playback may legitimately race ahead of
// demuxer attachment.
func (v *VideoStream) ReadSamples(offset int64, count int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	frame := v.bytesPerSample * v.channels
	nBytes := count * frame
	if v.decoder == nil {
		return make([]byte, nBytes), nil
	}
	buf := NewDecodeBuffer(nBytes)
	out, err := buf.Decode(v.decoder, nBytes)
	if err != nil {
		return out, fmt.Errorf("%w: video audio read: %v", errs.DecodeFailure, err)
	}
	return out, nil
}
