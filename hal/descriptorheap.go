package hal

import "sync"

// slotRange is a half-open range [Start, End) of free descriptor slots.
type slotRange struct {
	start, end uint32
}

// heapChunk is one fixed-size descriptor heap plus its free-list of
// half-open ranges (spec.md §4.2.1).
type heapChunk struct {
	heap DescriptorHeap
	// free is kept sorted by start so adjacent ranges can be coalesced in
	// O(n) on release; n is small (one heap's slot count divided into a
	// handful of live ranges in steady state).
	free []slotRange
}

// DescriptorSlot identifies one allocated descriptor: which heap chunk it
// lives in and its slot index within that chunk.
type DescriptorSlot struct {
	chunk *heapChunk
	Index uint32
}

// DescriptorAllocator manages a pool of CPU-only descriptor heaps of fixed
// size for one descriptor kind (SRV, UAV, or Sampler) - spec.md §4.2.1:
// "an allocator is per descriptor kind". Heaps are never trimmed (pointer
// stability assumption): once created, a heapChunk lives for the life of
// the allocator.
type DescriptorAllocator struct {
	mu          sync.Mutex
	kind        DescriptorHeapKind
	slotsPerHeap uint32
	device      Device
	chunks      []*heapChunk
}

// NewDescriptorAllocator creates an allocator for one descriptor kind.
// Heaps are created lazily, slotsPerHeap slots at a time.
func NewDescriptorAllocator(device Device, kind DescriptorHeapKind, slotsPerHeap uint32) *DescriptorAllocator {
	if slotsPerHeap == 0 {
		slotsPerHeap = 4096
	}
	return &DescriptorAllocator{
		kind:         kind,
		slotsPerHeap: slotsPerHeap,
		device:       device,
	}
}

// Allocate reserves n contiguous slots. Grows the pool with a fresh heap
// chunk if no existing chunk has n contiguous free slots and n <=
// slotsPerHeap; a request larger than slotsPerHeap fails with
// ErrHeapExhausted (spec.md never asks for cross-heap contiguous spans for
// the CPU-only kind - that's the ring buffer's job, §4.2.2).
func (a *DescriptorAllocator) Allocate(n uint32) (DescriptorSlot, error) {
	if n == 0 {
		return DescriptorSlot{}, NewValidationLikeError("descriptor allocate: n must be > 0")
	}
	if n > a.slotsPerHeap {
		return DescriptorSlot{}, ErrHeapExhausted
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.chunks {
		if slot, ok := allocateFromChunk(c, n); ok {
			return slot, nil
		}
	}

	chunk, err := a.growLocked()
	if err != nil {
		return DescriptorSlot{}, err
	}
	slot, ok := allocateFromChunk(chunk, n)
	if !ok {
		return DescriptorSlot{}, ErrHeapExhausted
	}
	return slot, nil
}

func (a *DescriptorAllocator) growLocked() (*heapChunk, error) {
	heap, err := a.device.CreateDescriptorHeap(a.kind, a.slotsPerHeap, false)
	if err != nil {
		return nil, err
	}
	chunk := &heapChunk{
		heap: heap,
		free: []slotRange{{start: 0, end: a.slotsPerHeap}},
	}
	a.chunks = append(a.chunks, chunk)
	return chunk, nil
}

func allocateFromChunk(c *heapChunk, n uint32) (DescriptorSlot, bool) {
	for i := range c.free {
		r := &c.free[i]
		if r.end-r.start < n {
			continue
		}
		start := r.start
		r.start += n
		if r.start == r.end {
			c.free = append(c.free[:i], c.free[i+1:]...)
		}
		return DescriptorSlot{chunk: c, Index: start}, true
	}
	return DescriptorSlot{}, false
}

// Free releases n contiguous slots starting at slot back to its chunk's
// free-list, coalescing with adjacent ranges.
func (a *DescriptorAllocator) Free(slot DescriptorSlot, n uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := slot.chunk
	newRange := slotRange{start: slot.Index, end: slot.Index + n}

	// Insertion-sort the new range into place, then coalesce neighbors.
	insertAt := len(c.free)
	for i, r := range c.free {
		if newRange.start < r.start {
			insertAt = i
			break
		}
	}
	c.free = append(c.free, slotRange{})
	copy(c.free[insertAt+1:], c.free[insertAt:])
	c.free[insertAt] = newRange

	merged := c.free[:0]
	for _, r := range c.free {
		if len(merged) > 0 && merged[len(merged)-1].end == r.start {
			merged[len(merged)-1].end = r.end
			continue
		}
		merged = append(merged, r)
	}
	c.free = merged
}

// Heap returns the native descriptor heap backing slot.
func (slot DescriptorSlot) Heap() DescriptorHeap {
	if slot.chunk == nil {
		return nil
	}
	return slot.chunk.heap
}

// validationLikeError is a minimal local error type so hal does not need to
// import core (hal sits below core in the dependency graph).
type validationLikeError struct{ msg string }

func (e *validationLikeError) Error() string { return e.msg }

// NewValidationLikeError constructs a plain error for hal-local input
// validation (hal cannot depend on core.ValidationError without an import
// cycle - core depends on hal, not the reverse).
func NewValidationLikeError(msg string) error { return &validationLikeError{msg: msg} }
