package hal

import (
	"errors"
	"sync"

	"github.com/gogpu/clon12/internal/pagesize"
)

// Buddy allocator errors.
var (
	ErrOutOfMemory   = errors.New("hal: buddy allocator out of memory")
	ErrInvalidSize   = errors.New("hal: invalid allocation size")
	ErrDoubleFree    = errors.New("hal: double free")
	ErrInvalidConfig = errors.New("hal: invalid buddy allocator configuration")
)

// BuddyBlock identifies one allocated block: its byte offset within the
// buddy allocator's virtual address space, its size, and its order.
type BuddyBlock struct {
	Offset uint64
	Size   uint64
	order  int
}

// BuddyStats reports allocator occupancy, for the residency manager's own
// decisions and for diagnostics.
type BuddyStats struct {
	TotalSize       uint64
	AllocatedBytes  uint64
	FreeBytes       uint64
	AllocatedBlocks int
}

// BuddyAllocator subdivides a large power-of-two virtual address space into
// power-of-two blocks, splitting and merging as needed (spec.md §4.2.4,
// grounded on the teacher's buddy allocator used for Vulkan suballocation).
// Thread-safe for concurrent use.
type BuddyAllocator struct {
	mu sync.Mutex

	totalSize    uint64
	minBlockSize uint64
	maxOrder     int

	// freeLists[order] holds the set of free block offsets at that order,
	// where order 0 is minBlockSize and order maxOrder is totalSize.
	freeLists []map[uint64]struct{}
	// splitBlocks records offsets (at any order) that have been split into
	// two children and therefore cannot be allocated directly.
	splitBlocks map[uint64]struct{}
	// allocatedBlocks maps an allocated block's offset to its order.
	allocatedBlocks map[uint64]int
}

// NewBuddyAllocator creates a buddy allocator over [0, totalSize), with
// minBlockSize as the smallest splittable unit. Both must be powers of two
// and totalSize must be a multiple of minBlockSize.
func NewBuddyAllocator(totalSize, minBlockSize uint64) (*BuddyAllocator, error) {
	if totalSize == 0 || minBlockSize == 0 || !isPowerOfTwo(totalSize) || !isPowerOfTwo(minBlockSize) || totalSize < minBlockSize {
		return nil, ErrInvalidConfig
	}

	maxOrder := 0
	for (minBlockSize << uint(maxOrder)) < totalSize {
		maxOrder++
	}

	b := &BuddyAllocator{
		totalSize:       totalSize,
		minBlockSize:    minBlockSize,
		maxOrder:        maxOrder,
		freeLists:       make([]map[uint64]struct{}, maxOrder+1),
		splitBlocks:     make(map[uint64]struct{}),
		allocatedBlocks: make(map[uint64]int),
	}
	for i := range b.freeLists {
		b.freeLists[i] = make(map[uint64]struct{})
	}
	b.freeLists[maxOrder][0] = struct{}{}
	return b, nil
}

// NewBuddyAllocatorDefault creates a buddy allocator whose minimum block
// size is the larger of the configured floor and the OS page size.
func NewBuddyAllocatorDefault(totalSize, minBlockSize uint64) (*BuddyAllocator, error) {
	if pg := pagesize.Get(); pg > minBlockSize {
		minBlockSize = nextPowerOfTwo(pg)
	}
	return NewBuddyAllocator(totalSize, minBlockSize)
}

func isPowerOfTwo(v uint64) bool { return v != 0 && v&(v-1) == 0 }

func nextPowerOfTwo(v uint64) uint64 {
	p := uint64(1)
	for p < v {
		p <<= 1
	}
	return p
}

func (b *BuddyAllocator) orderForSize(size uint64) int {
	blockSize := b.minBlockSize
	order := 0
	for blockSize < size {
		blockSize <<= 1
		order++
	}
	return order
}

// Alloc reserves a block of at least size bytes, returning the smallest
// power-of-two block (at or above minBlockSize) that fits, splitting larger
// free blocks as needed.
func (b *BuddyAllocator) Alloc(size uint64) (BuddyBlock, error) {
	if size == 0 {
		return BuddyBlock{}, ErrInvalidSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order := b.orderForSize(size)
	if order > b.maxOrder {
		return BuddyBlock{}, ErrOutOfMemory
	}

	offset, ok := b.findFreeLocked(order)
	if !ok {
		return BuddyBlock{}, ErrOutOfMemory
	}

	delete(b.freeLists[order], offset)
	b.allocatedBlocks[offset] = order
	blockSize := b.minBlockSize << uint(order)
	return BuddyBlock{Offset: offset, Size: blockSize, order: order}, nil
}

// findFreeLocked returns a free block at the given order, splitting a
// larger free block down if none exists at this order directly.
func (b *BuddyAllocator) findFreeLocked(order int) (uint64, bool) {
	for offset := range b.freeLists[order] {
		return offset, true
	}
	if order == b.maxOrder {
		return 0, false
	}
	parentOffset, ok := b.findFreeLocked(order + 1)
	if !ok {
		return 0, false
	}
	delete(b.freeLists[order+1], parentOffset)
	b.splitBlocks[parentOffset] = struct{}{}

	childSize := b.minBlockSize << uint(order)
	buddyOffset := parentOffset + childSize
	b.freeLists[order][buddyOffset] = struct{}{}
	return parentOffset, true
}

// Free releases a previously allocated block, merging with its buddy when
// both halves are free (recursively, up to maxOrder).
func (b *BuddyAllocator) Free(block BuddyBlock) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.allocatedBlocks[block.Offset]
	if !ok {
		return ErrDoubleFree
	}
	delete(b.allocatedBlocks, block.Offset)
	b.mergeLocked(block.Offset, order)
	return nil
}

func (b *BuddyAllocator) mergeLocked(offset uint64, order int) {
	if order >= b.maxOrder {
		b.freeLists[order][offset] = struct{}{}
		return
	}

	blockSize := b.minBlockSize << uint(order)
	buddyOffset := offset ^ blockSize // buddies differ in exactly their order's bit

	if _, buddyFree := b.freeLists[order][buddyOffset]; buddyFree {
		delete(b.freeLists[order], buddyOffset)
		mergedOffset := offset
		if buddyOffset < offset {
			mergedOffset = buddyOffset
		}
		delete(b.splitBlocks, mergedOffset)
		b.mergeLocked(mergedOffset, order+1)
		return
	}
	b.freeLists[order][offset] = struct{}{}
}

// Stats returns a snapshot of allocator occupancy.
func (b *BuddyAllocator) Stats() BuddyStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var allocated uint64
	for offset, order := range b.allocatedBlocks {
		_ = offset
		allocated += b.minBlockSize << uint(order)
	}
	return BuddyStats{
		TotalSize:       b.totalSize,
		AllocatedBytes:  allocated,
		FreeBytes:       b.totalSize - allocated,
		AllocatedBlocks: len(b.allocatedBlocks),
	}
}

// DirectAllocator hands out one dedicated native resource per request,
// with no suballocation. Used for requests above the conditional
// allocator's threshold, or flagged CannotBeOffset (spec.md §4.2.4).
type DirectAllocator struct {
	device Device
	heap   HeapKind
}

// NewDirectAllocator creates a direct allocator for the given heap kind.
func NewDirectAllocator(device Device, heap HeapKind) *DirectAllocator {
	return &DirectAllocator{device: device, heap: heap}
}

// Alloc creates one dedicated native resource of exactly size bytes.
func (d *DirectAllocator) Alloc(size uint64) (Resource, error) {
	return d.device.CreateResource(ResourceDesc{SizeBytes: size, Heap: d.heap, CannotBeOffset: true})
}

// Free destroys a resource created by Alloc.
func (d *DirectAllocator) Free(r Resource) {
	d.device.DestroyResource(r)
}

// Suballocation is a handle to a region within a conditionally-allocated
// resource: either a buddy-carved offset into a shared backing resource,
// or a whole dedicated resource from the direct allocator.
type Suballocation struct {
	Resource Resource
	Offset   uint64
	Size     uint64

	fromBuddy bool
	block     BuddyBlock
}

// ConditionalAllocator routes a request to the buddy allocator when the
// size is at or below threshold and the caller did not require sole
// ownership, and to the direct allocator otherwise (spec.md §4.2.4).
type ConditionalAllocator struct {
	mu        sync.Mutex
	threshold uint64
	buddy     *BuddyAllocator
	backing   Resource // one large resource the buddy allocator carves offsets into
	direct    *DirectAllocator
	device    Device
	heap      HeapKind
}

// NewConditionalAllocator creates a conditional allocator with the given
// buddy threshold, root size, and minimum block size.
func NewConditionalAllocator(device Device, heap HeapKind, threshold, buddyRootSize, minBlock uint64) (*ConditionalAllocator, error) {
	buddy, err := NewBuddyAllocatorDefault(buddyRootSize, minBlock)
	if err != nil {
		return nil, err
	}
	backing, err := device.CreateResource(ResourceDesc{SizeBytes: buddyRootSize, Heap: heap})
	if err != nil {
		return nil, err
	}
	return &ConditionalAllocator{
		threshold: threshold,
		buddy:     buddy,
		backing:   backing,
		direct:    NewDirectAllocator(device, heap),
		device:    device,
		heap:      heap,
	}, nil
}

// Alloc services size bytes, routing through the buddy allocator unless
// size exceeds threshold or cannotBeOffset is set.
func (c *ConditionalAllocator) Alloc(size uint64, cannotBeOffset bool) (Suballocation, error) {
	if !cannotBeOffset && size <= c.threshold {
		block, err := c.buddy.Alloc(size)
		if err == nil {
			return Suballocation{Resource: c.backing, Offset: block.Offset, Size: block.Size, fromBuddy: true, block: block}, nil
		}
		if !errors.Is(err, ErrOutOfMemory) {
			return Suballocation{}, err
		}
		Logger().Warn("suballocator: buddy allocator exhausted, falling back to direct allocation")
	}

	r, err := c.direct.Alloc(size)
	if err != nil {
		return Suballocation{}, err
	}
	return Suballocation{Resource: r, Offset: 0, Size: size}, nil
}

// Free releases a Suballocation previously returned by Alloc.
func (c *ConditionalAllocator) Free(s Suballocation) error {
	if s.fromBuddy {
		return c.buddy.Free(s.block)
	}
	c.direct.Free(s.Resource)
	return nil
}

// Suballocator bundles the upload and readback conditional allocators
// (spec.md §4.2.4: "Two heaps: upload ... and readback"). Released
// suballocations should be routed through the deferred-deletion queue
// keyed by last-used command-list id (spec.md §C.1) before calling Free.
type Suballocator struct {
	Upload   *ConditionalAllocator
	Readback *ConditionalAllocator
}

// NewSuballocator creates both conditional allocators with shared tunables.
func NewSuballocator(device Device, threshold, rootSize, minBlock uint64) (*Suballocator, error) {
	upload, err := NewConditionalAllocator(device, HeapUpload, threshold, rootSize, minBlock)
	if err != nil {
		return nil, err
	}
	readback, err := NewConditionalAllocator(device, HeapReadback, threshold, rootSize, minBlock)
	if err != nil {
		return nil, err
	}
	return &Suballocator{Upload: upload, Readback: readback}, nil
}
