package hal

import "sync"

// ledgerEntry records a contiguous run of allocations made against the
// same fence value (spec.md §4.2.2: "Each 'ledger entry' records
// (fence_value, count_allocated_since_entry)").
type ledgerEntry struct {
	fenceValue uint64
	count      uint64
}

// RingBuffer is the fenced ring buffer backing shader-visible (online)
// descriptor tables (spec.md §4.2.2). Allocations are bump-pointer; space
// is reclaimed in bulk, oldest-fence-first, once the GPU has passed the
// fence value recorded for that span.
type RingBuffer struct {
	mu sync.Mutex

	size uint64
	head uint64 // next write offset, in [0, size)
	used uint64 // units currently allocated (not yet deallocated)

	ledgerDepth int
	ledger      []ledgerEntry // oldest first
}

// NewRingBuffer creates a ring buffer of the given total size (in slot
// units) and ledger depth L (spec.md §4.2.2 "a small, e.g. 16").
func NewRingBuffer(size uint64, ledgerDepth int) *RingBuffer {
	if ledgerDepth <= 0 {
		ledgerDepth = 16
	}
	return &RingBuffer{size: size, ledgerDepth: ledgerDepth}
}

// Allocate returns the offset of n contiguous entries tagged with
// currentFence. If n would straddle the end of the buffer, the trailing
// remainder is discarded (charged to the current ledger entry) and the
// allocation restarts at offset 0 (spec.md §4.2.2). Returns
// ErrRingBufferOverflow if there is not enough reclaimed space, or if a new
// ledger entry is needed but the ledger is already at its configured depth
// - in both cases the caller must roll over to a fresh backing heap.
func (r *RingBuffer) Allocate(n uint64, currentFence uint64) (uint64, error) {
	if n == 0 {
		return 0, NewValidationLikeError("ring buffer allocate: n must be > 0")
	}
	if n > r.size {
		return 0, ErrRingBufferOverflow
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.head+n > r.size {
		wasted := r.size - r.head
		if wasted > 0 {
			if err := r.chargeLocked(wasted, currentFence); err != nil {
				return 0, err
			}
			r.used += wasted
		}
		r.head = 0
	}

	if r.used+n > r.size {
		return 0, ErrRingBufferOverflow
	}
	if err := r.chargeLocked(n, currentFence); err != nil {
		return 0, err
	}

	offset := r.head
	r.head = (r.head + n) % r.size
	r.used += n
	return offset, nil
}

// chargeLocked records n units of allocation against currentFence, reusing
// the tail ledger entry if it already tracks currentFence, else opening a
// new one. Caller must hold r.mu.
func (r *RingBuffer) chargeLocked(n, currentFence uint64) error {
	if len(r.ledger) > 0 && r.ledger[len(r.ledger)-1].fenceValue == currentFence {
		r.ledger[len(r.ledger)-1].count += n
		return nil
	}
	if len(r.ledger) >= r.ledgerDepth {
		return ErrRingBufferOverflow
	}
	r.ledger = append(r.ledger, ledgerEntry{fenceValue: currentFence, count: n})
	return nil
}

// Deallocate walks ledger entries oldest-first, releasing any whose fence
// value is <= completedFence (spec.md §4.2.2, §8 invariant 5).
func (r *RingBuffer) Deallocate(completedFence uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	for ; i < len(r.ledger); i++ {
		if r.ledger[i].fenceValue > completedFence {
			break
		}
		r.used -= r.ledger[i].count
	}
	r.ledger = r.ledger[i:]
}

// Used returns the currently allocated (not yet deallocated) unit count.
func (r *RingBuffer) Used() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}
