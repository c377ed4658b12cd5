package hal

import (
	"context"
	"sync"
)

// fenceEntry pairs a returned object with the fence value that must be
// reached before it is safe to reuse.
type fenceEntry[T any] struct {
	fence uint64
	obj   T
}

// FencePool is a generic (fence_value -> object) pool (spec.md §4.2.3).
// ReturnToPool appends; Retrieve returns the oldest entry if its fence has
// been passed, otherwise calls makeNew. Grounded on the teacher's fence
// pool (recycling objects once the GPU has passed a fence value), extended
// to an arbitrary payload type via generics instead of one fixed handle type.
type FencePool[T any] struct {
	mu   sync.Mutex
	free []fenceEntry[T]
}

// NewFencePool creates an empty pool.
func NewFencePool[T any]() *FencePool[T] {
	return &FencePool[T]{}
}

// ReturnToPool appends obj to the pool, reusable once the GPU passes fence.
func (p *FencePool[T]) ReturnToPool(obj T, fence uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, fenceEntry[T]{fence: fence, obj: obj})
}

// Retrieve returns the head object if its return fence has been reached by
// currentFence, otherwise it calls makeNew to produce a fresh object.
func (p *FencePool[T]) Retrieve(currentFence uint64, makeNew func() (T, error)) (T, error) {
	p.mu.Lock()
	if len(p.free) > 0 && p.free[0].fence <= currentFence {
		entry := p.free[0]
		p.free = p.free[1:]
		p.mu.Unlock()
		return entry.obj, nil
	}
	p.mu.Unlock()
	return makeNew()
}

// Depth returns the number of objects currently sitting in the free list.
func (p *FencePool[T]) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// BoundedFencePool wraps FencePool with a maximum outstanding-object depth:
// once that many objects have been handed out and not yet returned,
// Retrieve blocks on the fence instead of calling makeNew (spec.md §4.2.3
// "A bounded variant blocks... when the pool is at max depth").
type BoundedFencePool[T any] struct {
	pool        *FencePool[T]
	fence       Fence
	maxDepth    int
	mu          sync.Mutex
	outstanding int
}

// NewBoundedFencePool creates a bounded pool backed by fence for blocking
// waits, capped at maxDepth outstanding objects.
func NewBoundedFencePool[T any](fence Fence, maxDepth int) *BoundedFencePool[T] {
	return &BoundedFencePool[T]{pool: NewFencePool[T](), fence: fence, maxDepth: maxDepth}
}

// Retrieve behaves like FencePool.Retrieve, except once maxDepth objects
// are outstanding it blocks (via fence.Wait) on the oldest return fence
// instead of calling makeNew, matching the command-allocator pool's role
// in the command-list manager (spec.md §4.2.7).
func (b *BoundedFencePool[T]) Retrieve(ctx context.Context, currentFence uint64, makeNew func() (T, error)) (T, error) {
	b.mu.Lock()
	atCapacity := b.outstanding >= b.maxDepth
	b.mu.Unlock()

	if atCapacity {
		b.pool.mu.Lock()
		var waitFor uint64
		haveWait := len(b.pool.free) > 0
		if haveWait {
			waitFor = b.pool.free[0].fence
		}
		b.pool.mu.Unlock()
		if haveWait && waitFor > currentFence {
			if err := b.fence.Wait(ctx, waitFor); err != nil {
				var zero T
				return zero, err
			}
			currentFence = waitFor
		}
	}

	obj, err := b.pool.Retrieve(currentFence, makeNew)
	if err != nil {
		var zero T
		return zero, err
	}
	b.mu.Lock()
	b.outstanding++
	b.mu.Unlock()
	return obj, nil
}

// ReturnToPool returns obj to the underlying pool and decrements the
// outstanding count.
func (b *BoundedFencePool[T]) ReturnToPool(obj T, fence uint64) {
	b.pool.ReturnToPool(obj, fence)
	b.mu.Lock()
	b.outstanding--
	b.mu.Unlock()
}

// roundUpBucket rounds size up to the next power-of-two bucket, with a
// floor of 4 KiB - used by MultiLevelFencePool to give chunked dynamic
// buffers of rounded-up size (spec.md §4.2.3).
func roundUpBucket(size uint64) uint64 {
	const floor = 4096
	if size <= floor {
		return floor
	}
	bucket := uint64(floor)
	for bucket < size {
		bucket <<= 1
	}
	return bucket
}

// MultiLevelFencePool indexes independent FencePool instances by size
// bucket, so a request for N bytes is satisfied from (or returned to) the
// pool for its rounded-up bucket size (spec.md §4.2.3 "A multi-level
// variant indexes by size bucket").
type MultiLevelFencePool[T any] struct {
	mu      sync.Mutex
	buckets map[uint64]*FencePool[T]
}

// NewMultiLevelFencePool creates an empty multi-level pool.
func NewMultiLevelFencePool[T any]() *MultiLevelFencePool[T] {
	return &MultiLevelFencePool[T]{buckets: make(map[uint64]*FencePool[T])}
}

func (m *MultiLevelFencePool[T]) bucketFor(size uint64) *FencePool[T] {
	bucket := roundUpBucket(size)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.buckets[bucket]
	if !ok {
		p = NewFencePool[T]()
		m.buckets[bucket] = p
	}
	return p
}

// Retrieve returns an object sized to the bucket covering size, or calls
// makeNew with the rounded-up bucket size.
func (m *MultiLevelFencePool[T]) Retrieve(size, currentFence uint64, makeNew func(bucketSize uint64) (T, error)) (T, error) {
	bucket := roundUpBucket(size)
	return m.bucketFor(size).Retrieve(currentFence, func() (T, error) { return makeNew(bucket) })
}

// ReturnToPool returns obj (allocated for the bucket covering size) to its pool.
func (m *MultiLevelFencePool[T]) ReturnToPool(size uint64, obj T, fence uint64) {
	m.bucketFor(size).ReturnToPool(obj, fence)
}
