// Package hal abstracts the native, D3D12-class compute API that clon12
// targets (spec.md §1: "explicit command queues, fences, resource heaps,
// bindless descriptors, shader binaries authored in a distinct bytecode").
// The native API itself is out of scope (spec.md §1's "black-box
// contract"); this package only defines the narrow surface clon12's
// resource/residency engine and command-list manager need from it, plus
// the pool/allocator/tracker machinery built on top that spec.md does
// specify (§4.2).
//
// Device is implemented by hal/nativesoftware (an in-process
// reference device, used under CLON12_FORCE_WARP and by the test suite)
// and would be implemented by a real D3D12-class binding in production.
package hal

import (
	"context"
	"time"
)

// ResourceState is a bitmask of the native API's per-subresource states
// (spec.md §4.2.5, §C.3: read-only states accumulate via bitwise OR).
type ResourceState uint32

// Resource states clon12 transitions between. Write states (CopyDest,
// UnorderedAccess) are mutually exclusive with every other bit; read
// states (the rest) may be OR-combined.
const (
	StateCommon ResourceState = 1 << iota
	StateCopySource
	StateCopyDest
	StateUnorderedAccess
	StateNonPixelShaderResource
	StateConstantBuffer
	StateIndirectArgument
)

// IsWriteState reports whether s is (or contains) a write state. Write
// states never combine with other bits (spec.md §4.2.5).
func (s ResourceState) IsWriteState() bool {
	return s&(StateCopyDest|StateUnorderedAccess) != 0
}

// HeapKind selects the native memory heap a resource is placed in
// (spec.md §4.2.4: "Two heaps: upload ... and readback").
type HeapKind int

const (
	// HeapDefault is GPU-local memory, not CPU-accessible.
	HeapDefault HeapKind = iota
	// HeapUpload is CPU-write-combined, GPU-read memory.
	HeapUpload
	// HeapReadback is GPU-write, CPU-read memory.
	HeapReadback
)

// ResourceDesc describes a native resource allocation request.
type ResourceDesc struct {
	SizeBytes uint64
	Heap      HeapKind
	// CannotBeOffset forces a dedicated (non-suballocated) allocation,
	// needed when the caller requires sole ownership for state transitions
	// (spec.md §4.2.4).
	CannotBeOffset bool
	Name           string
}

// Resource is a native GPU buffer allocation.
type Resource interface {
	Size() uint64
	// Map returns a CPU-visible view of the resource's contents. Only
	// valid for HeapUpload/HeapReadback resources.
	Map() ([]byte, error)
	Unmap()
}

// DescriptorHeapKind identifies the kind of descriptor slots a heap holds.
type DescriptorHeapKind int

const (
	DescriptorSRV DescriptorHeapKind = iota
	DescriptorUAV
	DescriptorSampler
	DescriptorCBV
)

// DescriptorHeap is a native, fixed-size table of shader-visible or
// CPU-only descriptor slots (spec.md §4.2.1).
type DescriptorHeap interface {
	Kind() DescriptorHeapKind
	NumSlots() uint32
	// Write populates the descriptor at the given slot to reference resource.
	Write(slot uint32, resource Resource) error
}

// PipelineState is an opaque, specialized compute pipeline state object
// (spec.md §4.3 "creates the native pipeline state (PSO)").
type PipelineState interface{}

// Barrier is one resource-state transition to be recorded before a
// dispatch or copy (spec.md §4.2.5 "apply_all").
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

// CommandAllocator is the backing memory for a CommandList; both are
// recyclable once the GPU finishes using them (GLOSSARY).
type CommandAllocator interface {
	Reset() error
}

// CommandList is a recorded buffer of native GPU commands.
type CommandList interface {
	ResourceBarrier(barriers []Barrier)
	SetDescriptorHeaps(heaps []DescriptorHeap)
	SetPipelineState(pso PipelineState)
	SetComputeRootConstantBufferView(rootIndex uint32, cbv Resource, offset uint64)
	Dispatch(groupsX, groupsY, groupsZ uint32)
	CopyBufferRegion(dst Resource, dstOffset uint64, src Resource, srcOffset uint64, size uint64)
	Close() error
}

// Fence is a monotonic 64-bit counter signaled by the GPU (GLOSSARY).
// Completed is the non-blocking poll; Wait is the blocking variant -
// spec.md §C.2 ("FenceValue()/GetCompletedValue() style query is
// non-blocking while SetEventOnCompletion+wait is blocking").
type Fence interface {
	Completed() uint64
	Wait(ctx context.Context, value uint64) error
}

// Queue submits command lists to the GPU and manages residency.
type Queue interface {
	ExecuteCommandLists(lists []CommandList) error
	Signal(fence Fence, value uint64) error
	MakeResident(resources []Resource) error
	Evict(resources []Resource) error
}

// MemoryBudget is a point-in-time OS GPU memory budget query result
// (spec.md §4.2.6 step 2).
type MemoryBudget struct {
	BudgetBytes uint64
	UsageBytes  uint64
}

// BudgetSource queries the OS for the current GPU memory budget. Backed in
// production by hal/nvmlbudget; backed in tests by a fixed or
// programmable value.
type BudgetSource interface {
	Query() (MemoryBudget, error)
}

// Device is the native compute device: the factory for every other native
// object. One Device backs every core.D3DDevice created for the same
// core.Device; each of those D3DDevices creates its own Queue from it.
type Device interface {
	Name() string
	CreateResource(desc ResourceDesc) (Resource, error)
	DestroyResource(r Resource)
	CreateCommandAllocator() (CommandAllocator, error)
	CreateCommandList(alloc CommandAllocator) (CommandList, error)
	CreateFence(initial uint64) (Fence, error)
	CreateQueue() (Queue, error)
	CreateDescriptorHeap(kind DescriptorHeapKind, numSlots uint32, shaderVisible bool) (DescriptorHeap, error)
	// CreatePipelineState builds a PSO from native bytecode produced by the
	// external compiler's spirv_to_native entry point (spec.md §6).
	CreatePipelineState(nativeBytecode []byte) (PipelineState, error)
	Budget() BudgetSource
	// Removed reports whether the device has been lost (fence stalled,
	// driver reset). Polled by the residency/command-list managers before
	// treating a long wait as a real timeout vs. a lost device.
	Removed() bool
	Destroy()
}

// DefaultFenceWaitTimeout bounds how long a Fence.Wait blocks before the
// caller should suspect a device-removed condition (spec.md §7 "fence
// never advances → treated as OUT_OF_RESOURCES").
const DefaultFenceWaitTimeout = 10 * time.Second
