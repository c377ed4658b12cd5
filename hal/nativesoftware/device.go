// Package nativesoftware is an in-process reference implementation of
// hal.Device, used under CLON12_FORCE_WARP and by the test suite in place
// of a real D3D12-class binding. It executes command lists synchronously
// and in-order on the calling goroutine - there is no actual GPU, so
// dispatches are bookkeeping only (no bytecode interpreter); buffer copies
// execute as real memory operations so buffer-content invariants
// remain testable end to end.
//
// Grounded on the teacher's noop backend (a driver-less implementation
// used for tests and benchmarks), adapted from the WebGPU object model to
// clon12's native-device contract (hal.Device).
package nativesoftware

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gogpu/clon12/hal"
)

// ErrRemoved is returned by Device operations after Destroy, and causes
// Removed() to report true.
var ErrRemoved = errors.New("nativesoftware: device destroyed")

// Device is the software reference hal.Device.
type Device struct {
	name    string
	removed atomic.Bool
	budget  *hal.StaticBudgetSource

	mu        sync.Mutex
	resources map[*resource]struct{}
}

// New creates a software device reporting name, with a static budget of
// budgetBytes (the WARP/software path has no real OS budget query).
func New(name string, budgetBytes uint64) *Device {
	return &Device{
		name:      name,
		budget:    hal.NewStaticBudgetSource(budgetBytes),
		resources: make(map[*resource]struct{}),
	}
}

func (d *Device) Name() string { return d.name }

func (d *Device) CreateResource(desc hal.ResourceDesc) (hal.Resource, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	r := &resource{data: make([]byte, desc.SizeBytes), name: desc.Name}
	d.mu.Lock()
	d.resources[r] = struct{}{}
	d.mu.Unlock()
	return r, nil
}

func (d *Device) DestroyResource(res hal.Resource) {
	r, ok := res.(*resource)
	if !ok {
		return
	}
	d.mu.Lock()
	delete(d.resources, r)
	d.mu.Unlock()
}

func (d *Device) CreateCommandAllocator() (hal.CommandAllocator, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	return &commandAllocator{}, nil
}

func (d *Device) CreateCommandList(alloc hal.CommandAllocator) (hal.CommandList, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	return &commandList{device: d}, nil
}

func (d *Device) CreateFence(initial uint64) (hal.Fence, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	f := &fence{}
	f.value.Store(initial)
	return f, nil
}

func (d *Device) CreateQueue() (hal.Queue, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	return &queue{device: d}, nil
}

func (d *Device) CreateDescriptorHeap(kind hal.DescriptorHeapKind, numSlots uint32, shaderVisible bool) (hal.DescriptorHeap, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	return &descriptorHeap{kind: kind, slots: make([]hal.Resource, numSlots)}, nil
}

func (d *Device) CreatePipelineState(nativeBytecode []byte) (hal.PipelineState, error) {
	if d.removed.Load() {
		return nil, ErrRemoved
	}
	cp := make([]byte, len(nativeBytecode))
	copy(cp, nativeBytecode)
	return &pipelineState{bytecode: cp}, nil
}

func (d *Device) Budget() hal.BudgetSource { return d.budget }

func (d *Device) Removed() bool { return d.removed.Load() }

func (d *Device) Destroy() { d.removed.Store(true) }

// resource is a host-memory-backed hal.Resource.
type resource struct {
	mu   sync.Mutex
	data []byte
	name string
}

func (r *resource) Size() uint64 { return uint64(len(r.data)) }

func (r *resource) Map() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, nil
}

func (r *resource) Unmap() {}

// commandAllocator has no backing state to reset in the software device.
type commandAllocator struct{}

func (a *commandAllocator) Reset() error { return nil }

// pipelineState stores the compiled native bytecode. The software device
// does not interpret it - real dispatch accounting happens in the
// CommandListManager, not in kernel math.
type pipelineState struct {
	bytecode []byte
}

// descriptorHeap is a plain slice of resource references.
type descriptorHeap struct {
	mu    sync.Mutex
	kind  hal.DescriptorHeapKind
	slots []hal.Resource
}

func (h *descriptorHeap) Kind() hal.DescriptorHeapKind { return h.kind }
func (h *descriptorHeap) NumSlots() uint32             { return uint32(len(h.slots)) }

func (h *descriptorHeap) Write(slot uint32, res hal.Resource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(slot) >= len(h.slots) {
		return errors.New("nativesoftware: descriptor slot out of range")
	}
	h.slots[slot] = res
	return nil
}

// fence is a monotonic counter with condition-variable-style waiters.
type fence struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value atomic.Uint64
}

func (f *fence) Completed() uint64 { return f.value.Load() }

func (f *fence) signal(v uint64) {
	f.mu.Lock()
	if f.cond == nil {
		f.cond = sync.NewCond(&f.mu)
	}
	if v > f.value.Load() {
		f.value.Store(v)
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fence) Wait(ctx context.Context, value uint64) error {
	if f.Completed() >= value {
		return nil
	}
	done := make(chan struct{})
	go func() {
		f.mu.Lock()
		if f.cond == nil {
			f.cond = sync.NewCond(&f.mu)
		}
		for f.value.Load() < value {
			f.cond.Wait()
		}
		f.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commandList records operations and replays them synchronously when the
// queue executes it.
type commandList struct {
	device *Device
	heaps  []hal.DescriptorHeap
	ops    []func()
	closed bool
}

func (c *commandList) ResourceBarrier(barriers []hal.Barrier) {
	// The software device has no real barrier cost; state correctness is
	// already enforced by hal.StateManager before this call is recorded.
}

func (c *commandList) SetDescriptorHeaps(heaps []hal.DescriptorHeap) { c.heaps = heaps }

func (c *commandList) SetPipelineState(pso hal.PipelineState) {}

func (c *commandList) SetComputeRootConstantBufferView(rootIndex uint32, cbv hal.Resource, offset uint64) {
}

func (c *commandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	// No bytecode interpreter; dispatch accounting lives in
	// hal.CommandListManager. Recorded as a no-op for ordering parity with
	// CopyBufferRegion.
	c.ops = append(c.ops, func() {})
}

func (c *commandList) CopyBufferRegion(dst hal.Resource, dstOffset uint64, src hal.Resource, srcOffset uint64, size uint64) {
	d, sOk := dst.(*resource)
	s, dOk := src.(*resource)
	if !sOk || !dOk {
		return
	}
	c.ops = append(c.ops, func() {
		s.mu.Lock()
		d.mu.Lock()
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		d.mu.Unlock()
		s.mu.Unlock()
	})
}

func (c *commandList) Close() error {
	c.closed = true
	return nil
}

func (c *commandList) replay() {
	for _, op := range c.ops {
		op()
	}
}

// queue executes command lists synchronously (no real async GPU) and
// signals fences immediately.
type queue struct {
	device *Device
}

func (q *queue) ExecuteCommandLists(lists []hal.CommandList) error {
	for _, l := range lists {
		if cl, ok := l.(*commandList); ok {
			cl.replay()
		}
	}
	return nil
}

func (q *queue) Signal(f hal.Fence, value uint64) error {
	if sf, ok := f.(*fence); ok {
		sf.signal(value)
		return nil
	}
	return errors.New("nativesoftware: Signal called with a foreign fence type")
}

func (q *queue) MakeResident(resources []hal.Resource) error { return nil }

func (q *queue) Evict(resources []hal.Resource) error { return nil }
