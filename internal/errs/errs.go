// Package errs defines the error taxonomy shared by every auralcore component.
package errs

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) at the call site so
// errors.Is still matches while the message carries call-specific context.
var (
	// InvalidParameter is a contract violation at an API boundary (e.g. an
	// out-of-range index). Always recoverable by the caller.
	InvalidParameter = errors.New("invalid parameter")

	// OutOfBackendResource means the backend refused to create a source,
	// slot, or buffer. Handled internally; never surfaced past the pool.
	OutOfBackendResource = errors.New("out of backend resource")

	// DecodeFailure is a short read from a sound/video decoder.
	DecodeFailure = errors.New("decode failure")

	// Backend is any typed failure reported by the audio backend.
	Backend = errors.New("backend error")

	// CacheCorruption is a PCM cache entry that failed to parse.
	CacheCorruption = errors.New("cache corruption")

	// ThreadFailure is an uncaught error in the audio thread body.
	ThreadFailure = errors.New("audio thread failure")
)

// Is reports whether err wraps kind, for callers that don't want to import
// errors directly.
func Is(err, kind error) bool { return errors.Is(err, kind) }
