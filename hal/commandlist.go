package hal

import (
	"context"
	"sync"
	"time"
)

// CommandListManager owns the single in-flight command list + allocator
// pair for one native queue, the residency set of resources referenced by
// it, and the heuristics that decide when to flush it to the GPU (spec.md
// §4.2.7). Grounded on the teacher's pattern of a recyclable-resource pool
// guarding a single active recording object, generalized here to the
// command-list/allocator pair and the spec's specific flush heuristics.
type CommandListManager struct {
	mu sync.Mutex

	device    Device
	queue     Queue
	residency *ResidencyManager
	allocPool *BoundedFencePool[allocatorAndList]
	fence     Fence

	heaps []DescriptorHeap

	currentAlloc CommandAllocator
	currentList  CommandList
	residencySet map[Resource]struct{}

	id uint64 // command_list_id - monotonic, signaled on submit

	commands    int
	dispatches  int
	uploadBytes uint64

	recentFlushesNoReadback int

	opportunisticCommands   int
	opportunisticDispatches int
	forcedFlushBytes        uint64
}

type allocatorAndList struct {
	alloc CommandAllocator
	list  CommandList
}

// NewCommandListManager creates a manager with a bounded allocator pool of
// the given depth and the opportunistic/forced flush thresholds from
// spec.md §4.2.7 (commands > opportunisticCommands, dispatches >
// opportunisticDispatches, upload bytes > forcedFlushBytes).
func NewCommandListManager(
	device Device,
	queue Queue,
	residency *ResidencyManager,
	fence Fence,
	allocPoolDepth int,
	opportunisticCommands, opportunisticDispatches int,
	forcedFlushBytes uint64,
	heaps []DescriptorHeap,
) *CommandListManager {
	return &CommandListManager{
		device:                  device,
		queue:                   queue,
		residency:               residency,
		fence:                   fence,
		allocPool:               NewBoundedFencePool[allocatorAndList](fence, allocPoolDepth),
		heaps:                   heaps,
		id:                      1,
		residencySet:            make(map[Resource]struct{}),
		opportunisticCommands:   opportunisticCommands,
		opportunisticDispatches: opportunisticDispatches,
		forcedFlushBytes:        forcedFlushBytes,
	}
}

// ensureOpenLocked acquires an allocator+list pair (recycled or new) and
// rebinds the descriptor heaps, reopening the residency set - the tail half
// of the spec's submit sequence, also used on first use.
func (m *CommandListManager) ensureOpenLocked(ctx context.Context) error {
	if m.currentList != nil {
		return nil
	}

	pair, err := m.allocPool.Retrieve(ctx, m.fence.Completed(), func() (allocatorAndList, error) {
		alloc, err := m.device.CreateCommandAllocator()
		if err != nil {
			return allocatorAndList{}, err
		}
		list, err := m.device.CreateCommandList(alloc)
		if err != nil {
			return allocatorAndList{}, err
		}
		return allocatorAndList{alloc: alloc, list: list}, nil
	})
	if err != nil {
		return err
	}

	if err := pair.alloc.Reset(); err != nil {
		return err
	}
	m.currentAlloc = pair.alloc
	m.currentList = pair.list
	m.currentList.SetDescriptorHeaps(m.heaps)
	m.residencySet = make(map[Resource]struct{})
	m.commands = 0
	m.dispatches = 0
	m.uploadBytes = 0
	return nil
}

// List returns the current command list, opening one if needed.
func (m *CommandListManager) List(ctx context.Context) (CommandList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureOpenLocked(ctx); err != nil {
		return nil, err
	}
	return m.currentList, nil
}

// ReferenceResource adds a resource to the in-flight residency set and
// marks it referenced in the residency manager (spec.md §4.2.6 step 1).
func (m *CommandListManager) ReferenceResource(r Resource, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.residencySet[r] = struct{}{}
	if m.residency != nil {
		m.residency.Reference(r, now)
	}
}

// RecordCommand increments the per-list command counter (spec.md §4.2.7).
func (m *CommandListManager) RecordCommand() {
	m.mu.Lock()
	m.commands++
	m.mu.Unlock()
}

// RecordDispatch increments the per-list dispatch counter.
func (m *CommandListManager) RecordDispatch() {
	m.mu.Lock()
	m.dispatches++
	m.mu.Unlock()
}

// RecordUpload adds n bytes of this list's cumulative upload-heap
// allocation, tracked for the forced-flush threshold.
func (m *CommandListManager) RecordUpload(n uint64) {
	m.mu.Lock()
	m.uploadBytes += n
	m.mu.Unlock()
}

// ShouldFlush reports whether the current list meets the opportunistic or
// forced flush heuristic (spec.md §4.2.7).
func (m *CommandListManager) ShouldFlush() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldFlushLocked()
}

func (m *CommandListManager) shouldFlushLocked() bool {
	if m.uploadBytes > m.forcedFlushBytes {
		return true
	}
	loadHeavy := m.commands > m.opportunisticCommands || m.dispatches > m.opportunisticDispatches
	if !loadHeavy {
		return false
	}
	gpuIdle := m.id == 0 || m.fence.Completed() == m.id-1
	return m.recentFlushesNoReadback < 50 && gpuIdle
}

// NoteReadback resets the recent-flushes-without-readback counter; called
// whenever a CPU readback (map/enqueueRead) occurs, since the heuristic
// only applies opportunistic flushes while the app isn't waiting on results.
func (m *CommandListManager) NoteReadback() {
	m.mu.Lock()
	m.recentFlushesNoReadback = 0
	m.mu.Unlock()
}

// Flush executes the submit sequence (spec.md §4.2.7): close list, close
// residency set, hand the set to the residency manager, execute on the
// queue, return the allocator+list to the pool keyed by id, signal the
// fence, increment id, and reopen a fresh list.
func (m *CommandListManager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentList == nil || (m.commands == 0 && m.dispatches == 0) {
		return nil
	}

	resources := make([]Resource, 0, len(m.residencySet))
	for r := range m.residencySet {
		resources = append(resources, r)
	}

	if err := m.currentList.Close(); err != nil {
		return err
	}

	if len(resources) > 0 {
		if err := m.queue.MakeResident(resources); err != nil && err != ErrBudgetExceeded {
			return err
		}
	}

	if err := m.queue.ExecuteCommandLists([]CommandList{m.currentList}); err != nil {
		return err
	}

	id := m.id
	pair := allocatorAndList{alloc: m.currentAlloc, list: m.currentList}
	m.allocPool.ReturnToPool(pair, id)

	if err := m.queue.Signal(m.fence, id); err != nil {
		return err
	}
	m.id = id + 1
	m.recentFlushesNoReadback++

	m.currentAlloc = nil
	m.currentList = nil
	return m.ensureOpenLocked(ctx)
}

// CurrentID returns the command_list_id that will be signaled on the next flush.
func (m *CommandListManager) CurrentID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// FenceCompleted returns the fence value the device has actually reached,
// for callers (e.g. the deferred-deletion queue) that need to know which
// command-list ids have retired rather than which will be signaled next.
func (m *CommandListManager) FenceCompleted() uint64 {
	return m.fence.Completed()
}
