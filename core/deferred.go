package core

import (
	"sync"

	"github.com/gogpu/clon12/hal"
)

// deferredEntry is one backing awaiting release: a Suballocation wrapped in
// a Snatchable so a concurrent EnsureBacking reader holding a SnatchGuard
// can never race ReclaimUpTo's release, plus the command-list id that must
// be passed by the owning fence before it is safe to free.
type deferredEntry struct {
	lastUsedCLID uint64
	value        *Snatchable[hal.Suballocation]
	release      func(hal.Suballocation)
}

// DeferredDeletionQueue defers freeing a GPU-referenced backing until the
// device's fence has passed the command-list id that last touched it
// (spec.md §3 "Lifecycles", §4.2.4: "released suballocations go through the
// deferred-deletion queue keyed by last-used command-list id"). One queue
// is owned per D3DDevice, guarding that device's suballocator.
//
// Grounded on the teacher's hal.FencePool (fence-gated reuse), adapted here
// to fence-gated release instead of reuse, and on the snatch pattern for
// the actual hand-off so a reader racing the reclaim pass fails safe.
type DeferredDeletionQueue struct {
	lock *SnatchLock

	mu      sync.Mutex
	entries []deferredEntry
}

// NewDeferredDeletionQueue creates an empty queue.
func NewDeferredDeletionQueue() *DeferredDeletionQueue {
	return &DeferredDeletionQueue{lock: NewSnatchLock()}
}

// Guard acquires the queue's read lock, letting a caller safely Get() a
// Snatchable backing without racing a concurrent ReclaimUpTo.
func (q *DeferredDeletionQueue) Guard() *SnatchGuard { return q.lock.Read() }

// Enqueue defers calling release(alloc) until a ReclaimUpTo sees a
// completed-fence value at or beyond lastUsedCLID. Returns the Snatchable
// wrapper so the caller can keep handing out Get() access (under a Guard)
// until it's actually reclaimed.
func (q *DeferredDeletionQueue) Enqueue(lastUsedCLID uint64, alloc hal.Suballocation, release func(hal.Suballocation)) *Snatchable[hal.Suballocation] {
	wrapped := NewSnatchable(alloc)
	q.mu.Lock()
	q.entries = append(q.entries, deferredEntry{lastUsedCLID: lastUsedCLID, value: wrapped, release: release})
	q.mu.Unlock()
	return wrapped
}

// ReclaimUpTo releases every entry whose last-used command-list id has
// already been passed by completedFence. Each release runs under the
// queue's exclusive snatch guard, so it cannot race a reader holding a read
// guard from Guard().
func (q *DeferredDeletionQueue) ReclaimUpTo(completedFence uint64) {
	q.mu.Lock()
	var ready []deferredEntry
	pending := q.entries[:0:0]
	for _, e := range q.entries {
		if e.lastUsedCLID <= completedFence {
			ready = append(ready, e)
		} else {
			pending = append(pending, e)
		}
	}
	q.entries = pending
	q.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	guard := q.lock.Write()
	defer guard.Release()
	for _, e := range ready {
		if alloc := e.value.Snatch(guard); alloc != nil {
			e.release(*alloc)
		}
	}
}

// Depth returns the number of entries still awaiting their fence.
func (q *DeferredDeletionQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
