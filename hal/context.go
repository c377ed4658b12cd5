package hal

import (
	"context"
	"time"
)

// ImmediateContext is the single-threaded composition of the descriptor
// heap manager, ring buffer, suballocator, residency manager, state
// manager, and command-list manager (spec.md §2 item 7): the surface a
// kernel launch or resource copy uses to issue work to one D3D device.
// Exactly one goroutine at a time may use an ImmediateContext - callers
// serialize access via the owning D3D device's background scheduler
// thread (spec.md §3 "D3D device... one background scheduler thread that
// executes recorded submissions").
type ImmediateContext struct {
	Device Device

	Descriptors *DescriptorAllocator
	Ring        *RingBuffer
	RingBacking Resource
	Suballoc    *Suballocator
	Residency   *ResidencyManager
	State       *StateManager
	Lists       *CommandListManager
}

// NewImmediateContext wires the six components together over one native
// device and queue, using cfg for every size/threshold tunable.
func NewImmediateContext(device Device, queue Queue, budget BudgetSource, cfg ImmediateContextConfig) (*ImmediateContext, error) {
	heap, err := device.CreateDescriptorHeap(DescriptorCBV, cfg.DescriptorHeapSlots, true)
	if err != nil {
		return nil, err
	}
	descriptors := NewDescriptorAllocator(device, DescriptorCBV, cfg.DescriptorHeapSlots)

	ringBacking, err := device.CreateResource(ResourceDesc{SizeBytes: cfg.RingBufferSize, Heap: HeapUpload, Name: "ring-buffer"})
	if err != nil {
		return nil, err
	}
	ring := NewRingBuffer(cfg.RingBufferSize, cfg.RingBufferLedgerDepth)

	suballoc, err := NewSuballocator(device, cfg.BuddyThreshold, cfg.BuddyRootSize, cfg.BuddyMinBlock)
	if err != nil {
		return nil, err
	}

	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, err
	}

	residency := NewResidencyManager(queue, budget, cfg.ResidencyMinGrace, cfg.ResidencyMaxGrace)
	state := NewStateManager()
	lists := NewCommandListManager(device, queue, residency, fence, cfg.FencePoolMaxDepth,
		cfg.OpportunisticFlushCommands, cfg.OpportunisticFlushDispatches, cfg.ForcedFlushBytes,
		[]DescriptorHeap{heap})

	return &ImmediateContext{
		Device:      device,
		Descriptors: descriptors,
		Ring:        ring,
		RingBacking: ringBacking,
		Suballoc:    suballoc,
		Residency:   residency,
		State:       state,
		Lists:       lists,
	}, nil
}

// ImmediateContextConfig bundles the tunables NewImmediateContext needs;
// populated from internal/config.Config at platform startup.
type ImmediateContextConfig struct {
	DescriptorHeapSlots          uint32
	RingBufferSize               uint64
	RingBufferLedgerDepth        int
	BuddyThreshold               uint64
	BuddyRootSize                uint64
	BuddyMinBlock                uint64
	FencePoolMaxDepth            int
	OpportunisticFlushCommands   int
	OpportunisticFlushDispatches int
	ForcedFlushBytes             uint64
	ResidencyMinGrace            time.Duration
	ResidencyMaxGrace            time.Duration
}

// RecordBarriers applies the state manager's pending transitions to the
// current command list, if any are due.
func (c *ImmediateContext) RecordBarriers(ctx context.Context) error {
	barriers := c.State.ApplyAll()
	if len(barriers) == 0 {
		return nil
	}
	list, err := c.Lists.List(ctx)
	if err != nil {
		return err
	}
	list.ResourceBarrier(barriers)
	c.Lists.RecordCommand()
	return nil
}

// MaybeFlush flushes the command-list manager if its heuristics say to.
func (c *ImmediateContext) MaybeFlush(ctx context.Context) error {
	if c.Lists.ShouldFlush() {
		return c.Lists.Flush(ctx)
	}
	return nil
}

// Flush unconditionally flushes the in-flight command list (spec.md §2.8
// "queue.flush drains all queued tasks to their D3D device").
func (c *ImmediateContext) Flush(ctx context.Context) error {
	return c.Lists.Flush(ctx)
}

// Tick runs one residency-manager pass (spec.md §4.2.6). Nothing in this
// module calls it; a pass runs only when a caller invokes Tick.
func (c *ImmediateContext) Tick(now time.Time) error {
	return c.Residency.Tick(now)
}
