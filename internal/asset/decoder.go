// Package asset implements the decode staging buffer and sound asset
// described in spec §3 and §4.4, plus the synthesizer-instance and
// video-audio-stream alternatives to a sound asset (spec §3: "alternatives
// to a sound asset... each exposes read_samples(offset, count)").
package asset

import (
	"fmt"

	"github.com/intuitionamiga/auralcore/internal/errs"
)

// Decoder is the minimal PCM decoder contract a sound source is built
// from. It is delivered externally (spec §1 Non-goals: file-format
// decoding is out of scope) — auralcore only consumes the stream of PCM
// frames it produces.
type Decoder interface {
	// Decode reads up to len(p) decoded PCM bytes into p, returning the
	// number of bytes actually produced. A short read (n < len(p)) at
	// end-of-stream is not an error; it signals exhaustion.
	Decode(p []byte) (n int, err error)
	// Rewind resets the decoder to the start of the stream, used by
	// DecodeLooping and by a looping emitter's queue refill.
	Rewind() error
}

// DecodeBuffer is a thread-local fixed-capacity PCM staging area (spec
// §4.4). One lives on the audio thread per concurrently-refilling
// streaming voice; it is never shared across goroutines.
type DecodeBuffer struct {
	buf []byte
}

// NewDecodeBuffer allocates a staging buffer of the given byte capacity.
func NewDecodeBuffer(capacity int) *DecodeBuffer {
	return &DecodeBuffer{buf: make([]byte, capacity)}
}

// Decode reads nBytes from decoder into the staging buffer (growing it if
// needed), zero-filling any short read, and returns the slice actually
// written to the caller's queue buffer.
func (d *DecodeBuffer) Decode(decoder Decoder, nBytes int) ([]byte, error) {
	d.ensure(nBytes)
	out := d.buf[:nBytes]
	n, err := decoder.Decode(out)
	if n < nBytes {
		for i := n; i < nBytes; i++ {
			out[i] = 0
		}
	}
	if err != nil && n == 0 {
		return out, fmt.Errorf("%w: %v", errs.DecodeFailure, err)
	}
	return out, nil
}

// DecodeLooping reads nBytes from decoder, rewinding and continuing on a
// short read until nBytes have been produced (spec §4.4: "rewinds the
// decoder on short reads until n_bytes are filled").
func (d *DecodeBuffer) DecodeLooping(decoder Decoder, nBytes int) ([]byte, error) {
	d.ensure(nBytes)
	out := d.buf[:nBytes]
	written := 0
	for written < nBytes {
		n, _ := decoder.Decode(out[written:])
		written += n
		if n == 0 {
			if err := decoder.Rewind(); err != nil {
				return out, fmt.Errorf("%w: rewind: %v", errs.DecodeFailure, err)
			}
		}
	}
	return out, nil
}

func (d *DecodeBuffer) ensure(n int) {
	if len(d.buf) < n {
		d.buf = make([]byte, n)
	}
}
