// Package runtime implements the two-thread audio runtime described in
// spec §4.11, C11: a dedicated audio thread synchronized with the main
// (game) thread across two barriers, time-history-based sync-skipping,
// a frame-rate limiter, and the delayed-deletion queue.
package runtime

import (
	"math"
	"sync/atomic"
	"time"
)

// State is a node of the audio thread's lifecycle state machine (spec
// §4.11's diagram).
type State int

const (
	StateStopped State = iota
	StateInitialize
	StateSynchronize
	StateAudio
	StateFinishedAudio
	StateCleaningUp
)

// SyncInTimeout is the audio thread's wait budget for the next sync_in
// barrier pass before it falls back to a fast pass (spec §4.11 step 2:
// "timeout = max(50ms - elapsed_since_frame, 0)").
const SyncInTimeout = 50 * time.Millisecond

// Runtime coordinates one main thread and one audio thread through
// sync_in/sync_out barriers, a skip-sync-time-ratio heuristic, and a
// frame-rate limiter. All its exported methods except the barrier waits
// themselves are safe to call from either thread only at the points the
// state machine allows (spec §5 ordering guarantees); Runtime does not
// itself enforce that — callers follow the documented call order.
type Runtime struct {
	syncIn  *Barrier
	syncOut *Barrier

	state atomic.Int32

	frameRateLimit float64 // Hz
	skipSyncRatio  float64 // spec: async_audio_skip_sync_time_ratio, default 0.5

	mainTimes           *TimeHistory
	audioTimes          *TimeHistory
	estimatedAudioTimes *TimeHistory

	accumulatedMainTime atomic.Value // float64, seconds since last sync
	estimatedMainTime   atomic.Value // float64
	estimatedAudioTime  atomic.Value // float64

	readyToWait atomic.Bool
	failure     atomic.Bool

	waitSkippedElapsed float64 // accumulates across fast passes, folded into the next full pass

	deletions *DeletionQueue
}

// New builds a runtime with the given frame-rate limit (Hz) and sync-skip
// ratio (spec config keys frame_rate_limit, async_audio_skip_sync_time_ratio).
func New(frameRateLimit, skipSyncRatio float64) *Runtime {
	r := &Runtime{
		syncIn:              NewBarrier(),
		syncOut:             NewBarrier(),
		frameRateLimit:      frameRateLimit,
		skipSyncRatio:       skipSyncRatio,
		mainTimes:           NewTimeHistory(),
		audioTimes:          NewTimeHistory(),
		estimatedAudioTimes: NewTimeHistory(),
		deletions:           NewDeletionQueue(),
	}
	r.state.Store(int32(StateStopped))
	r.accumulatedMainTime.Store(0.0)
	r.estimatedMainTime.Store(0.0)
	r.estimatedAudioTime.Store(0.0)
	return r
}

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Deletions exposes the delayed-deletion queue for main-thread drop
// pushes.
func (r *Runtime) Deletions() *DeletionQueue { return r.deletions }

// Failed reports whether the audio thread has signalled a fatal failure
// (spec §4.11: "the main thread observes after the next synchronization").
func (r *Runtime) Failed() bool { return r.failure.Load() }

// SignalFailure marks the runtime failed; called from the audio thread
// when a fatal error aborts the pipeline. Cleanup proceeds regardless.
func (r *Runtime) SignalFailure() { r.failure.Store(true) }

// AccumulateMainTime adds to the running total of main-thread time spent
// since the last sync, used by the skip-ratio heuristic.
func (r *Runtime) AccumulateMainTime(dt float64) {
	cur := r.accumulatedMainTime.Load().(float64)
	r.accumulatedMainTime.Store(cur + dt)
}

// ShouldWaitFinishAudio implements spec §4.11 main-thread step 1: decide
// whether the caller may proceed to block on sync_in this frame, or must
// run another game frame first.
func (r *Runtime) ShouldWaitFinishAudio() bool {
	estAudio := r.estimatedAudioTime.Load().(float64)
	estMain := r.estimatedMainTime.Load().(float64)
	accMain := r.accumulatedMainTime.Load().(float64)
	if estMain <= 0 {
		return true
	}
	ratio := (estAudio - accMain) / estMain
	if ratio >= r.skipSyncRatio && !r.readyToWait.Load() {
		return false
	}
	return true
}

// ProcessAudio is the main thread's process_audio() (spec §4.11 steps
// 1-5). mutateShadow performs step 3 (drain retained resources, finalize
// async loads, mutate shadow data) while both threads are quiesced at
// sync_in. Returns false if the caller must try again next game frame.
func (r *Runtime) ProcessAudio(mutateShadow func()) bool {
	start := time.Now()
	if !r.ShouldWaitFinishAudio() {
		return false
	}
	r.syncIn.Wait()
	mutateShadow()
	r.state.Store(int32(StateAudio))
	r.syncOut.Wait()

	r.accumulatedMainTime.Store(0.0)
	elapsed := time.Since(start).Seconds()
	r.mainTimes.Record(elapsed)
	r.estimatedMainTime.Store(r.mainTimes.Average())
	return true
}

// AudioFrame runs one iteration of the audio thread loop (spec §4.11
// audio-thread steps 1-4). elapsedSinceFrame is the time since the
// previous frame started; fullPass runs the complete per-frame pipeline
// (spec §5 step order a-g) given the elapsed budget (including any
// carried-over fast-pass time, per S6); fastPass advances only streaming
// queue refills. Returns the duration the caller should sleep to respect
// the frame-rate limiter (zero if none).
func (r *Runtime) AudioFrame(elapsedSinceFrame time.Duration, fullPass func(elapsedFull float64) error, fastPass func(elapsed float64) error) time.Duration {
	r.readyToWait.Store(true)
	timeout := SyncInTimeout - elapsedSinceFrame
	if timeout < 0 {
		timeout = 0
	}

	if !r.syncIn.TryWait(timeout) {
		// Buffer-underrun protection: process_audio_fast().
		r.waitSkippedElapsed += elapsedSinceFrame.Seconds()
		if fastPass != nil {
			if err := fastPass(elapsedSinceFrame.Seconds()); err != nil {
				r.SignalFailure()
			}
		}
		return 0
	}

	estAudio := math.Max(r.audioTimes.Average(), r.estimatedAudioTimes.Average())
	if r.frameRateLimit > 0 {
		estAudio = math.Max(estAudio, 1.0/r.frameRateLimit)
	}
	r.estimatedAudioTime.Store(estAudio)
	r.estimatedAudioTimes.Record(estAudio)
	r.syncOut.Wait()

	if r.State() == StateCleaningUp {
		return 0
	}

	start := time.Now()
	elapsedFull := elapsedSinceFrame.Seconds() + r.waitSkippedElapsed
	r.waitSkippedElapsed = 0

	r.state.Store(int32(StateAudio))
	// Step (a) of the fixed per-frame order (spec §5): drain delayed
	// deletions before any other work. The actual backend release happens
	// wherever the caller wired DropJob handling; this queue only bounds
	// how many drops are taken off the FIFO per pass.
	r.deletions.Drain(MaxDeletionsPerPass)

	if fullPass != nil {
		if err := fullPass(elapsedFull); err != nil {
			r.SignalFailure()
		}
	}
	r.state.Store(int32(StateFinishedAudio))

	audioElapsed := time.Since(start).Seconds()
	r.audioTimes.Record(audioElapsed)

	// frame_rate_limit == 0 means unlimited (spec §6): no limiter sleep.
	if r.frameRateLimit <= 0 {
		return 0
	}
	frameTime := 1.0 / r.frameRateLimit
	sleep := frameTime - audioElapsed
	if sleep < 0 {
		sleep = 0
	}
	return time.Duration(sleep * float64(time.Second))
}

// Initialize transitions Stopped -> Initialize -> (first sync_out wait),
// matching the diagram's entry edge.
func (r *Runtime) Initialize() {
	r.state.Store(int32(StateInitialize))
}

// Cleanup transitions to CleaningUp and drains every remaining deletion
// (spec §4.11: "drains the whole queue on cleanup"; invariant 8: "the
// delayed-deletion queue is empty on cleanup() return").
func (r *Runtime) Cleanup() []DropJob {
	r.state.Store(int32(StateCleaningUp))
	return r.deletions.DrainAll()
}
