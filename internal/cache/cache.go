// Package cache implements the on-disk PCM cache codec from spec §4.4 and
// §4.15: a fixed binary header followed by the raw PCM blob, stored under
// /cache/local/sound/<key>, keyed by filename with mtime+version+format
// fingerprint validation.
package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/intuitionamiga/auralcore/internal/errs"
)

// Version is the 1-byte format tag embedded in every header (spec §4.4).
// Bump it whenever the header or blob layout changes; a mismatch is
// treated identically to a corrupt cache (delete and re-decode).
const Version uint8 = 1

// Header is the fixed-size metadata a cache entry opens with.
type Header struct {
	ModTime        int64
	Version        uint8
	Flags          uint8 // bit 0 = Used
	BytesPerSample uint8
	Channels       uint8
	SampleCount    uint32
	SampleRate     uint32
	Format         uint8
	BufferSize     uint32
}

const (
	flagUsed = 1 << 0
)

// Used reports whether an emitter has ever asked for this sound (spec §4.4:
// "used=false means the cached entry has the header but no PCM blob").
func (h Header) Used() bool { return h.Flags&flagUsed != 0 }

// SetUsed returns a copy of h with the used bit set.
func (h Header) SetUsed() Header { h.Flags |= flagUsed; return h }

const headerSize = 8 /*mtime*/ + 1 + 1 + 1 + 1 + 4 + 4 + 1 + 4

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.ModTime))
	buf[8] = h.Version
	buf[9] = h.Flags
	buf[10] = h.BytesPerSample
	buf[11] = h.Channels
	binary.LittleEndian.PutUint32(buf[12:16], h.SampleCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.SampleRate)
	buf[20] = h.Format
	binary.LittleEndian.PutUint32(buf[21:25], h.BufferSize)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", errs.CacheCorruption, len(buf))
	}
	h := Header{
		ModTime:        int64(binary.LittleEndian.Uint64(buf[0:8])),
		Version:        buf[8],
		Flags:          buf[9],
		BytesPerSample: buf[10],
		Channels:       buf[11],
		SampleCount:    binary.LittleEndian.Uint32(buf[12:16]),
		SampleRate:     binary.LittleEndian.Uint32(buf[16:20]),
		Format:         buf[20],
		BufferSize:     binary.LittleEndian.Uint32(buf[21:25]),
	}
	return h, nil
}

// Entry is a decoded cache file: its header and (if Used) PCM blob.
type Entry struct {
	Header Header
	PCM    []byte
}

// Validate implements invariant 7: sampleCount*bytesPerSample*channels must
// equal bufferSize, unless bufferSize is 0 (an unused, header-only entry).
func (h Header) Validate() error {
	if h.BufferSize == 0 {
		return nil
	}
	want := uint32(h.SampleCount) * uint32(h.BytesPerSample) * uint32(h.Channels)
	if want != h.BufferSize {
		return fmt.Errorf("%w: sampleCount*bytesPerSample*channels=%d != bufferSize=%d", errs.CacheCorruption, want, h.BufferSize)
	}
	return nil
}

// Store roots the /cache/local/sound/<key> hierarchy at a base directory
// (injected, not hardcoded, so tests never touch a real filesystem root).
type Store struct {
	baseDir string
}

// NewStore roots a cache store at baseDir/cache/local/sound.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: filepath.Join(baseDir, "cache", "local", "sound")}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.baseDir, key)
}

// Write encodes and writes an entry, truncating any previous file at key.
func (s *Store) Write(key string, h Header, pcm []byte) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir cache dir: %w", err)
	}
	if h.BufferSize == 0 && len(pcm) > 0 {
		h.BufferSize = uint32(len(pcm))
	}
	if err := h.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(h.encode())
	buf.Write(pcm)

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, s.path(key))
}

// Read decodes the entry at key. A mismatched ModTime or Version against
// the caller's expectation is the caller's job to check (spec §4.4: "A
// cached entry is rejected if mtime or version mismatch, or if the format
// fingerprint changed"); Read itself only validates structural integrity.
func (s *Store) Read(key string) (Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("%w: read cache entry: %v", errs.CacheCorruption, err)
	}
	if len(data) < headerSize {
		return Entry{}, fmt.Errorf("%w: file shorter than header", errs.CacheCorruption)
	}
	h, err := decodeHeader(data[:headerSize])
	if err != nil {
		return Entry{}, err
	}
	if err := h.Validate(); err != nil {
		return Entry{}, err
	}
	blob := data[headerSize:]
	if h.Used() && uint32(len(blob)) != h.BufferSize {
		return Entry{}, fmt.Errorf("%w: blob length %d != header bufferSize %d", errs.CacheCorruption, len(blob), h.BufferSize)
	}
	return Entry{Header: h, PCM: blob}, nil
}

// Delete removes a corrupted or stale entry (spec §7: CacheCorruption →
// delete and re-decode).
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether a file is present at key without validating it.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}
