package runtime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPassNeverRunsFullSpatialPipeline(t *testing.T) {
	rt := New(60, 0.5)
	fullCalled := false
	fastCalled := false

	// elapsedSinceFrame >= SyncInTimeout forces an immediate timeout: no
	// partner ever arrives at sync_in, so this must take the fast path.
	sleep := rt.AudioFrame(SyncInTimeout, func(float64) error {
		fullCalled = true
		return nil
	}, func(float64) error {
		fastCalled = true
		return nil
	})

	assert.False(t, fullCalled, "invariant 6: a fast pass must not run the full pipeline")
	assert.True(t, fastCalled)
	assert.Equal(t, time.Duration(0), sleep)
}

func TestFastPassElapsedCarriesIntoNextFullPass(t *testing.T) {
	rt := New(60, 0.5)

	rt.AudioFrame(SyncInTimeout, nil, func(float64) error { return nil })
	assert.Greater(t, rt.waitSkippedElapsed, 0.0)

	var gotElapsed float64
	done := make(chan struct{})
	go func() {
		rt.AudioFrame(0, func(elapsedFull float64) error {
			gotElapsed = elapsedFull
			return nil
		}, nil)
		close(done)
	}()

	require.True(t, rt.ProcessAudio(func() {}))
	<-done

	assert.InDelta(t, SyncInTimeout.Seconds(), gotElapsed, 1e-6,
		"S6: the wait-skipped elapsed from the fast pass must fold into the next full pass's elapsed budget")
	assert.Equal(t, 0.0, rt.waitSkippedElapsed)
}

func TestCleanupDrainsDelayedDeletionQueue(t *testing.T) {
	rt := New(60, 0.5)
	for i := 0; i < 5; i++ {
		rt.Deletions().Push(DropJob{Kind: "source", Handle: uint64(i)})
	}
	require.Equal(t, 5, rt.Deletions().Len())

	drained := rt.Cleanup()
	assert.Len(t, drained, 5)
	assert.Equal(t, 0, rt.Deletions().Len(), "invariant 8: queue must be empty on cleanup() return")
}

func TestDeletionQueueDrainRespectsBatchCap(t *testing.T) {
	q := NewDeletionQueue()
	for i := 0; i < 1500; i++ {
		q.Push(DropJob{Kind: "slot", Handle: uint64(i)})
	}
	first := q.Drain(MaxDeletionsPerPass)
	assert.Len(t, first, MaxDeletionsPerPass)
	assert.Equal(t, 500, q.Len())
}

func TestBarrierReleasesBothPartiesTogether(t *testing.T) {
	b := NewBarrier()
	doneA := make(chan struct{})
	go func() {
		b.Wait()
		close(doneA)
	}()
	select {
	case <-doneA:
		t.Fatal("first party must not proceed until the second arrives")
	case <-time.After(20 * time.Millisecond):
	}
	b.Wait()
	select {
	case <-doneA:
	case <-time.After(time.Second):
		t.Fatal("both parties should have been released")
	}
}

func TestAudioFrameUnlimitedFrameRateNeverSleeps(t *testing.T) {
	rt := New(0, 0.5)
	done := make(chan time.Duration)
	go func() {
		done <- rt.AudioFrame(0, func(float64) error { return nil }, nil)
	}()
	require.True(t, rt.ProcessAudio(func() {}))
	sleep := <-done
	assert.Equal(t, time.Duration(0), sleep, "frame_rate_limit=0 means unlimited: no limiter sleep")
	assert.False(t, math.IsInf(rt.estimatedAudioTime.Load().(float64), 1), "unlimited rate must not poison estimated audio time with +Inf")
}

func TestBarrierTryWaitTimesOutAlone(t *testing.T) {
	b := NewBarrier()
	ok := b.TryWait(10 * time.Millisecond)
	assert.False(t, ok)
}
