package runtime

import "sync"

// MaxDeletionsPerPass bounds how many queued drops a single process_audio
// pass drains (spec §4.11: "the audio thread drains a bounded batch
// (≤1000 per pass)").
const MaxDeletionsPerPass = 1000

// DropJob is a typed deletion request for a backend handle that can only
// be freed on the audio thread (spec §9's drop-trampoline note).
type DropJob struct {
	Kind   string
	Handle uint64
}

// DeletionQueue is a mutex-protected FIFO of pending drops, pushed from
// the main thread and drained exclusively by the audio thread.
type DeletionQueue struct {
	mu    sync.Mutex
	items []DropJob
}

// NewDeletionQueue creates an empty queue.
func NewDeletionQueue() *DeletionQueue { return &DeletionQueue{} }

// Push enqueues a drop request; safe to call from the main thread at any
// time.
func (q *DeletionQueue) Push(job DropJob) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
}

// Len reports the number of pending drops.
func (q *DeletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain pops up to max pending drops, oldest first (spec §4.11: "drains a
// bounded batch (≤1000 per pass) at the start of each process_audio()").
func (q *DeletionQueue) Drain(max int) []DropJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.items) || max < 0 {
		max = len(q.items)
	}
	out := append([]DropJob(nil), q.items[:max]...)
	q.items = q.items[max:]
	return out
}

// DrainAll pops every pending drop, used on cleanup (spec §4.11: "or
// drains the whole queue on cleanup").
func (q *DeletionQueue) DrainAll() []DropJob {
	return q.Drain(-1)
}
